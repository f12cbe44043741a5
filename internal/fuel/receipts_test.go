package fuel

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tokenContract = "0x4ea6ccef1215d9479f1024dff70fc055ca538215d2c8c348beddffd54583d0e8"
	otherContract = "0x1111111111111111111111111111111111111111111111111111111111111111"
)

func withdrawalLog(amount uint64) string {
	return "0x" + strings.Repeat("ab", 32) + strings.Repeat("cd", 32) + fmt.Sprintf("%016x", amount)
}

func successTx(receipts ...receipt) transaction {
	return transaction{Status: &transactionStatus{Typename: statusSuccess, Receipts: receipts}}
}

func TestTokenWithdrawals(t *testing.T) {
	burn := func(id string) receipt { return receipt{ReceiptType: receiptBurn, ContractID: id} }
	logData := func(id string, amount uint64) receipt {
		return receipt{ReceiptType: receiptLogData, ID: id, Data: withdrawalLog(amount)}
	}

	tests := []struct {
		name string
		txs  []transaction
		want uint64
	}{
		{
			name: "burn then log",
			txs:  []transaction{successTx(burn(tokenContract), logData(tokenContract, 100))},
			want: 100,
		},
		{
			name: "log without burn",
			txs:  []transaction{successTx(logData(tokenContract, 100))},
			want: 0,
		},
		{
			name: "log before burn",
			txs:  []transaction{successTx(logData(tokenContract, 100), burn(tokenContract))},
			want: 0,
		},
		{
			name: "burn from another contract",
			txs:  []transaction{successTx(burn(otherContract), logData(tokenContract, 100))},
			want: 0,
		},
		{
			name: "log from another contract",
			txs:  []transaction{successTx(burn(tokenContract), logData(otherContract, 100))},
			want: 0,
		},
		{
			name: "burn does not carry across transactions",
			txs:  []transaction{successTx(burn(tokenContract)), successTx(logData(tokenContract, 100))},
			want: 0,
		},
		{
			name: "failed transaction ignored",
			txs: []transaction{{Status: &transactionStatus{
				Typename: "FailureStatus",
				Receipts: []receipt{burn(tokenContract), logData(tokenContract, 100)},
			}}},
			want: 0,
		},
		{
			name: "undecodable log ignored",
			txs: []transaction{successTx(burn(tokenContract),
				receipt{ReceiptType: receiptLogData, ID: tokenContract, Data: "0x01"},
				logData(tokenContract, 7))},
			want: 7,
		},
		{
			name: "ids compared case insensitively",
			txs:  []transaction{successTx(burn(strings.ToUpper(tokenContract[2:])), logData(tokenContract, 5))},
			want: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tokenWithdrawals([]block{{Transactions: tt.txs}}, tokenContract)
			assert.Equal(t, uint256.NewInt(tt.want), got)
		})
	}
}

func TestBaseWithdrawals(t *testing.T) {
	blocks := []block{
		{Transactions: []transaction{
			successTx(receipt{ReceiptType: receiptMessageOut, Amount: 10}, receipt{ReceiptType: receiptLogData, Amount: 99}),
			{Status: &transactionStatus{Typename: "FailureStatus", Receipts: []receipt{{ReceiptType: receiptMessageOut, Amount: 1000}}}},
			{},
		}},
		{Transactions: []transaction{successTx(receipt{ReceiptType: receiptMessageOut, Amount: 5})}},
	}

	assert.Equal(t, uint256.NewInt(15), baseWithdrawals(blocks))
}

func TestTaiToUnix(t *testing.T) {
	assert.Equal(t, int64(1_700_000_000), taiToUnix(uint64(1)<<62+10+1_700_000_000))
	assert.Equal(t, int64(0), taiToUnix(5))
}

func TestU64Unmarshal(t *testing.T) {
	var r receipt
	require.NoError(t, json.Unmarshal([]byte(`{"receiptType":"MESSAGE_OUT","amount":"18446744073709551615"}`), &r))
	assert.Equal(t, u64(18446744073709551615), r.Amount)

	require.NoError(t, json.Unmarshal([]byte(`{"amount":null}`), &r))
	assert.Zero(t, r.Amount)

	assert.Error(t, json.Unmarshal([]byte(`{"amount":"-1"}`), &r))
}
