package actions

import (
	"fmt"
	"strings"

	"fuel-watchtower/internal/alerting"
)

// EthereumAction is an emergency operation against the bridge contracts on
// Ethereum. The zero value None does nothing.
type EthereumAction int

const (
	None EthereumAction = iota
	PauseState
	PauseGateway
	PausePortal
	PauseAll
)

var actionNames = map[EthereumAction]string{
	None:         "None",
	PauseState:   "PauseState",
	PauseGateway: "PauseGateway",
	PausePortal:  "PausePortal",
	PauseAll:     "PauseAll",
}

func (a EthereumAction) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("EthereumAction(%d)", int(a))
}

// MarshalText implements encoding.TextMarshaler.
func (a EthereumAction) MarshalText() ([]byte, error) {
	if _, ok := actionNames[a]; !ok {
		return nil, fmt.Errorf("unknown ethereum action %d", int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Matching is case-insensitive.
func (a *EthereumAction) UnmarshalText(text []byte) error {
	for action, name := range actionNames {
		if strings.EqualFold(name, strings.TrimSpace(string(text))) {
			*a = action
			return nil
		}
	}
	return fmt.Errorf("unknown ethereum action %q", string(text))
}

// ActionParams is one action request. Level is the severity of the condition
// that triggered it and is reused for failure alerts.
type ActionParams struct {
	Action EthereumAction
	Level  alerting.AlertLevel
}
