package fuel

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Receipt types as reported by the Fuel GraphQL API.
const (
	receiptMessageOut = "MESSAGE_OUT"
	receiptBurn       = "BURN"
	receiptLogData    = "LOG_DATA"

	statusSuccess = "SuccessStatus"

	// to (b256) | from (b256) | amount (u64)
	withdrawalEventSize = 72

	// TAI64 labels start at 2^62; the extra 10s is the TAI/UTC offset at 1970.
	tai64Epoch = uint64(1)<<62 + 10
)

// u64 is a Fuel U64 scalar. The API serialises it as a decimal string.
type u64 uint64

func (v *u64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*v = 0
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse u64 %q: %w", s, err)
	}
	*v = u64(n)
	return nil
}

type receipt struct {
	ReceiptType string `json:"receiptType"`
	ID          string `json:"id"`
	ContractID  string `json:"contractId"`
	Amount      u64    `json:"amount"`
	Data        string `json:"data"`
}

type transactionStatus struct {
	Typename string    `json:"__typename"`
	Receipts []receipt `json:"receipts"`
}

type transaction struct {
	Status *transactionStatus `json:"status"`
}

func (t transaction) succeeded() bool {
	return t.Status != nil && t.Status.Typename == statusSuccess
}

type blockHeader struct {
	Height u64 `json:"height"`
	Time   u64 `json:"time"`
}

type block struct {
	ID           string        `json:"id"`
	Header       blockHeader   `json:"header"`
	Transactions []transaction `json:"transactions"`
}

// taiToUnix converts a TAI64 label to unix seconds.
func taiToUnix(tai uint64) int64 {
	if tai < tai64Epoch {
		return 0
	}
	return int64(tai - tai64Epoch)
}

func normalizeID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if !strings.HasPrefix(id, "0x") {
		id = "0x" + id
	}
	return id
}

// baseWithdrawals sums the MessageOut amounts of successful transactions.
func baseWithdrawals(blocks []block) *uint256.Int {
	total := new(uint256.Int)
	for _, b := range blocks {
		for _, tx := range b.Transactions {
			if !tx.succeeded() {
				continue
			}
			for _, r := range tx.Status.Receipts {
				if r.ReceiptType == receiptMessageOut {
					total.Add(total, uint256.NewInt(uint64(r.Amount)))
				}
			}
		}
	}
	return total
}

// tokenWithdrawals sums the withdrawal events logged by contractID. A log only
// counts once the same transaction burned tokens from that contract.
func tokenWithdrawals(blocks []block, contractID string) *uint256.Int {
	contractID = normalizeID(contractID)
	total := new(uint256.Int)
	for _, b := range blocks {
		for _, tx := range b.Transactions {
			if !tx.succeeded() {
				continue
			}

			burned := false
			for _, r := range tx.Status.Receipts {
				switch r.ReceiptType {
				case receiptBurn:
					if normalizeID(r.ContractID) == contractID {
						burned = true
					}
				case receiptLogData:
					if !burned || normalizeID(r.ID) != contractID {
						continue
					}
					if amount, ok := decodeWithdrawalEvent(r.Data); ok {
						total.Add(total, uint256.NewInt(amount))
					}
				}
			}
		}
	}
	return total
}

// decodeWithdrawalEvent extracts the amount of a token withdrawal log.
func decodeWithdrawalEvent(data string) (uint64, bool) {
	raw := common.FromHex(data)
	if len(raw) != withdrawalEventSize {
		return 0, false
	}
	return binary.BigEndian.Uint64(raw[64:]), true
}
