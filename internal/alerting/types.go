package alerting

import (
	"fmt"
	"strings"
)

// AlertLevel is the severity attached to an alert and to the check that
// raises it. The zero value None disables a check entirely.
type AlertLevel int

const (
	None AlertLevel = iota
	Info
	Warn
	Error
)

var levelNames = map[AlertLevel]string{
	None:  "None",
	Info:  "Info",
	Warn:  "Warn",
	Error: "Error",
}

func (l AlertLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("AlertLevel(%d)", int(l))
}

// MarshalText implements encoding.TextMarshaler.
func (l AlertLevel) MarshalText() ([]byte, error) {
	if _, ok := levelNames[l]; !ok {
		return nil, fmt.Errorf("unknown alert level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Matching is case-insensitive.
func (l *AlertLevel) UnmarshalText(text []byte) error {
	for level, name := range levelNames {
		if strings.EqualFold(name, strings.TrimSpace(string(text))) {
			*l = level
			return nil
		}
	}
	return fmt.Errorf("unknown alert level %q", string(text))
}

// AlertParams is a single alert raised by a watcher or the action dispatcher.
// Name is the deduplication key.
type AlertParams struct {
	Name        string
	Description string
	Level       AlertLevel
}

// NewAlert is shorthand for building AlertParams.
func NewAlert(name, description string, level AlertLevel) AlertParams {
	return AlertParams{Name: name, Description: description, Level: level}
}

// Summary is the one-line text sent to the paging service.
func (a AlertParams) Summary() string {
	return a.Name + ": " + a.Description
}

// Severity maps a level to the paging service severity. Only Warn and Error
// are ever escalated.
func Severity(level AlertLevel) (string, bool) {
	switch level {
	case Warn:
		return "warning", true
	case Error:
		return "critical", true
	default:
		return "", false
	}
}
