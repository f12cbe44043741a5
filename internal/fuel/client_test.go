package fuel

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNode struct {
	mu       sync.Mutex
	requests []graphQLRequest
	respond  func(req graphQLRequest) (int, string)
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.requests = append(n.requests, req)
	n.mu.Unlock()

	status, body := n.respond(req)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newTestClient(t *testing.T, node *fakeNode, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	opts.GraphQLURL = srv.URL
	c, err := NewClient(opts, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(Options{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestRetryWaitBoundsRetries(t *testing.T) {
	var calls int
	node := &fakeNode{respond: func(graphQLRequest) (int, string) {
		calls++
		if calls < 3 {
			return http.StatusServiceUnavailable, `unavailable`
		}
		return http.StatusOK, `{"data":{"health":true}}`
	}}
	c := newTestClient(t, node, Options{
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 2 * time.Millisecond,
	})

	assert.Equal(t, time.Millisecond, c.http.RetryWaitMin)
	assert.Equal(t, 2*time.Millisecond, c.http.RetryWaitMax)

	started := time.Now()
	require.NoError(t, c.CheckConnection(t.Context()))
	assert.Equal(t, 3, calls)
	assert.Less(t, time.Since(started), 400*time.Millisecond)
}

func TestCheckConnection(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		fails   bool
	}{
		{name: "healthy", status: http.StatusOK, body: `{"data":{"health":true}}`},
		{name: "unhealthy", status: http.StatusOK, body: `{"data":{"health":false}}`, wantErr: ErrUnhealthy, fails: true},
		{name: "graphql error", status: http.StatusOK, body: `{"errors":[{"message":"boom"}]}`, wantErr: ErrGraphQL, fails: true},
		{name: "bad status", status: http.StatusNotFound, body: `not found`, fails: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := &fakeNode{respond: func(graphQLRequest) (int, string) { return tt.status, tt.body }}
			c := newTestClient(t, node, Options{})

			err := c.CheckConnection(t.Context())
			if !tt.fails {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestSecondsSinceLastBlock(t *testing.T) {
	now := time.Unix(1_700_000_100, 0)
	tai := uint64(1)<<62 + 10 + 1_700_000_000
	node := &fakeNode{respond: func(req graphQLRequest) (int, string) {
		return http.StatusOK, fmt.Sprintf(`{"data":{"chain":{"latestBlock":{"id":"0x01","header":{"height":"12","time":"%d"}}}}}`, tai)
	}}
	c := newTestClient(t, node, Options{Now: func() time.Time { return now }})

	seconds, err := c.SecondsSinceLastBlock(t.Context())

	require.NoError(t, err)
	assert.Equal(t, uint64(100), seconds)
}

func TestVerifyBlockCommit(t *testing.T) {
	known := common.HexToHash("0xaa")
	node := &fakeNode{respond: func(req graphQLRequest) (int, string) {
		if req.Variables["id"] == known.Hex() {
			return http.StatusOK, `{"data":{"block":{"id":"` + known.Hex() + `","header":{"height":"5","time":"0"}}}}`
		}
		return http.StatusOK, `{"data":{"block":null}}`
	}}
	c := newTestClient(t, node, Options{})

	ok, err := c.VerifyBlockCommit(t.Context(), known)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.VerifyBlockCommit(t.Context(), common.HexToHash("0xbb"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.BlockByID(t.Context(), "0xbb")
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func blockJSON(height int, receipts string) string {
	return fmt.Sprintf(`{"id":"0x%02x","header":{"height":"%d","time":"0"},"transactions":[{"status":{"__typename":"SuccessStatus","receipts":[%s]}}]}`,
		height, height, receipts)
}

func TestWithdrawalsPageThroughBlocks(t *testing.T) {
	messageOut := `{"receiptType":"MESSAGE_OUT","amount":"1000"}`
	node := &fakeNode{respond: func(req graphQLRequest) (int, string) {
		if _, ok := req.Variables["before"]; !ok {
			return http.StatusOK, `{"data":{"blocks":{"pageInfo":{"hasPreviousPage":true,"startCursor":"c1"},"nodes":[` +
				blockJSON(9, messageOut) + `,` + blockJSON(10, messageOut) + `]}}}`
		}
		return http.StatusOK, `{"data":{"blocks":{"pageInfo":{"hasPreviousPage":false,"startCursor":"c0"},"nodes":[` +
			blockJSON(8, messageOut) + `]}}}`
	}}
	c := newTestClient(t, node, Options{BlockTime: time.Second, PageSize: 2})

	amount, err := c.BaseAmountWithdrawn(t.Context(), 5*time.Second)

	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(3000), amount)
	require.Len(t, node.requests, 2)
	assert.EqualValues(t, 2, node.requests[0].Variables["last"])
	assert.Equal(t, "c1", node.requests[1].Variables["before"])
	assert.True(t, strings.Contains(node.requests[0].Query, "blocks(last: $last, before: $before)"))
}

func TestTokenAmountWithdrawn(t *testing.T) {
	receipts := fmt.Sprintf(`{"receiptType":"BURN","contractId":"%s"},{"receiptType":"LOG_DATA","id":"%s","data":"%s"}`,
		tokenContract, tokenContract, withdrawalLog(250))
	node := &fakeNode{respond: func(req graphQLRequest) (int, string) {
		return http.StatusOK, `{"data":{"blocks":{"pageInfo":{"hasPreviousPage":false},"nodes":[` + blockJSON(1, receipts) + `]}}}`
	}}
	c := newTestClient(t, node, Options{})

	amount, err := c.TokenAmountWithdrawn(t.Context(), time.Minute, tokenContract)

	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(250), amount)
}
