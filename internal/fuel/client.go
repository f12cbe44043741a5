// Package fuel is the Fuel GraphQL adapter: connectivity and liveness checks,
// block lookups for commit verification and withdrawal volumes parsed from
// transaction receipts.
package fuel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"fuel-watchtower/internal/httpclient"
	"fuel-watchtower/internal/logging"
)

var (
	// ErrBlockNotFound is returned when the node does not know a block id.
	ErrBlockNotFound = errors.New("fuel block not found")
	// ErrUnhealthy is returned when the node reports itself unhealthy.
	ErrUnhealthy = errors.New("fuel node is unhealthy")
	// ErrGraphQL wraps errors reported in a GraphQL response.
	ErrGraphQL = errors.New("fuel graphql error")
)

const (
	healthQuery      = `query { health }`
	latestBlockQuery = `query { chain { latestBlock { id header { height time } } } }`
	blockQuery       = `query($id: BlockId) { block(id: $id) { id header { height time } } }`
	blocksQuery      = `query($last: Int, $before: String) {
  blocks(last: $last, before: $before) {
    pageInfo { hasPreviousPage startCursor }
    nodes {
      id
      header { height time }
      transactions {
        status {
          __typename
          ... on SuccessStatus {
            receipts { receiptType id contractId amount data }
          }
        }
      }
    }
  }
}`
)

// Options parameterise the Fuel client.
type Options struct {
	GraphQLURL string
	BlockTime  time.Duration
	PageSize   int
	Timeout    time.Duration
	RetryMax   int
	// RetryWaitMin and RetryWaitMax bound the backoff between attempts.
	// Both must be positive to override the HTTP client defaults.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// Now is the clock used for block age, time.Now when nil.
	Now func() time.Time
}

// Client talks to a Fuel node over GraphQL.
type Client struct {
	opts   Options
	http   *retryablehttp.Client
	logger zerolog.Logger
}

// NewClient builds a Fuel client.
func NewClient(opts Options, logger zerolog.Logger) (*Client, error) {
	if opts.GraphQLURL == "" {
		return nil, errors.New("fuel graphql url not configured")
	}
	if opts.BlockTime <= 0 {
		opts.BlockTime = time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 40
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger = logging.Component(logger, "fuel_client")
	httpOpts := []httpclient.Option{
		httpclient.WithTimeout(opts.Timeout),
		httpclient.WithRetryMax(opts.RetryMax),
		httpclient.WithLogger(logger),
	}
	if opts.RetryWaitMin > 0 && opts.RetryWaitMax > 0 {
		httpOpts = append(httpOpts, httpclient.WithRetryWait(opts.RetryWaitMin, opts.RetryWaitMax))
	}
	return &Client{
		opts:   opts,
		http:   httpclient.New(httpOpts...),
		logger: logger,
	}, nil
}

// CheckConnection fails unless the node answers and reports itself healthy.
func (c *Client) CheckConnection(ctx context.Context) error {
	var out struct {
		Health bool `json:"health"`
	}
	if err := c.query(ctx, healthQuery, nil, &out); err != nil {
		return err
	}
	if !out.Health {
		return ErrUnhealthy
	}
	return nil
}

// SecondsSinceLastBlock is the age of the chain tip.
func (c *Client) SecondsSinceLastBlock(ctx context.Context) (uint64, error) {
	var out struct {
		Chain struct {
			LatestBlock block `json:"latestBlock"`
		} `json:"chain"`
	}
	if err := c.query(ctx, latestBlockQuery, nil, &out); err != nil {
		return 0, err
	}

	produced := taiToUnix(uint64(out.Chain.LatestBlock.Header.Time))
	age := c.opts.Now().Unix() - produced
	if age < 0 {
		return 0, nil
	}
	return uint64(age), nil
}

// VerifyBlockCommit reports whether the committed hash is a Fuel block.
func (c *Client) VerifyBlockCommit(ctx context.Context, blockHash common.Hash) (bool, error) {
	_, err := c.BlockByID(ctx, blockHash.Hex())
	switch {
	case errors.Is(err, ErrBlockNotFound):
		return false, nil
	case err != nil:
		return false, err
	default:
		return true, nil
	}
}

// BlockByID returns the height of a block, ErrBlockNotFound when unknown.
func (c *Client) BlockByID(ctx context.Context, id string) (uint64, error) {
	var out struct {
		Block *block `json:"block"`
	}
	if err := c.query(ctx, blockQuery, map[string]any{"id": normalizeID(id)}, &out); err != nil {
		return 0, err
	}
	if out.Block == nil {
		return 0, fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	return uint64(out.Block.Header.Height), nil
}

// BaseAmountWithdrawn sums base asset withdrawals over the trailing window.
func (c *Client) BaseAmountWithdrawn(ctx context.Context, timeFrame time.Duration) (*uint256.Int, error) {
	blocks, err := c.recentBlocks(ctx, timeFrame)
	if err != nil {
		return nil, fmt.Errorf("fetch fuel blocks: %w", err)
	}
	return baseWithdrawals(blocks), nil
}

// TokenAmountWithdrawn sums the withdrawals of one bridged token contract
// over the trailing window.
func (c *Client) TokenAmountWithdrawn(ctx context.Context, timeFrame time.Duration, contractID string) (*uint256.Int, error) {
	blocks, err := c.recentBlocks(ctx, timeFrame)
	if err != nil {
		return nil, fmt.Errorf("fetch fuel blocks: %w", err)
	}
	return tokenWithdrawals(blocks, contractID), nil
}

// recentBlocks pages backwards from the tip, newest block first.
func (c *Client) recentBlocks(ctx context.Context, timeFrame time.Duration) ([]block, error) {
	remaining := int(timeFrame / c.opts.BlockTime)
	if remaining < 1 {
		remaining = 1
	}

	blocks := make([]block, 0, remaining)
	var before *string
	for remaining > 0 {
		var out struct {
			Blocks struct {
				PageInfo struct {
					HasPreviousPage bool   `json:"hasPreviousPage"`
					StartCursor     string `json:"startCursor"`
				} `json:"pageInfo"`
				Nodes []block `json:"nodes"`
			} `json:"blocks"`
		}

		vars := map[string]any{"last": min(remaining, c.opts.PageSize)}
		if before != nil {
			vars["before"] = *before
		}
		if err := c.query(ctx, blocksQuery, vars, &out); err != nil {
			return nil, err
		}

		nodes := out.Blocks.Nodes
		for i := len(nodes) - 1; i >= 0 && remaining > 0; i-- {
			blocks = append(blocks, nodes[i])
			remaining--
		}

		if len(nodes) == 0 || !out.Blocks.PageInfo.HasPreviousPage {
			break
		}
		cursor := out.Blocks.PageInfo.StartCursor
		before = &cursor
	}

	c.logger.Debug().Dur("time_frame", timeFrame).Int("blocks", len(blocks)).Msg("fetched fuel blocks")
	return blocks, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) query(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.opts.GraphQLURL, body)
	if err != nil {
		return fmt.Errorf("create graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send graphql request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("fuel graphql responded %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var envelope graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode graphql response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("%w: %s", ErrGraphQL, envelope.Errors[0].Message)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode graphql data: %w", err)
	}
	return nil
}
