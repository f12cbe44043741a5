// Package ethereum is the Ethereum JSON-RPC adapter and the bridge contract
// adapters built on top of it.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"fuel-watchtower/internal/logging"
	"fuel-watchtower/internal/retry"
)

// ErrNoSigner is returned by pause calls when no wallet key is configured.
var ErrNoSigner = errors.New("no ethereum wallet key configured")

// Backend is the subset of ethclient.Client used by the adapters.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ethereum.ChainIDReader
	ethereum.BlockNumberReader
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Options parameterise the chain adapter.
type Options struct {
	RPCURL         string
	RequestTimeout time.Duration
	// BlockTime converts time windows into block counts.
	BlockTime time.Duration
	// WalletKey is a hex encoded private key. Empty disables signing.
	WalletKey string
	Retry     retry.Retry
	// Now is the clock used for block age, time.Now when nil.
	Now func() time.Time
}

// Chain reads chain state and signs pause transactions.
type Chain struct {
	opts    Options
	backend Backend
	key     *ecdsa.PrivateKey
	wallet  common.Address
	logger  zerolog.Logger
}

// Dial connects to the RPC endpoint.
func Dial(ctx context.Context, opts Options, logger zerolog.Logger) (*Chain, error) {
	if opts.RPCURL == "" {
		return nil, errors.New("ethereum rpc url not configured")
	}

	client, err := ethclient.DialContext(ctx, opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial ethereum rpc: %w", err)
	}

	chain, err := NewChain(client, opts, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	return chain, nil
}

// NewChain wraps an existing backend.
func NewChain(backend Backend, opts Options, logger zerolog.Logger) (*Chain, error) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.BlockTime <= 0 {
		opts.BlockTime = 12 * time.Second
	}
	if opts.Retry == nil {
		opts.Retry = retry.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Chain{
		opts:    opts,
		backend: backend,
		logger:  logging.Component(logger, "ethereum_chain"),
	}

	if opts.WalletKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(opts.WalletKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse ethereum wallet key: %w", err)
		}
		c.key = key
		c.wallet = crypto.PubkeyToAddress(key.PublicKey)
		c.logger.Info().Str("wallet", c.wallet.Hex()).Msg("pause signing enabled")
	}

	return c, nil
}

// call runs op with the request timeout under the retry policy.
func call[T any](ctx context.Context, c *Chain, op func(ctx context.Context) (T, error)) (T, error) {
	return retry.Value(ctx, c.opts.Retry, func() (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
		return op(callCtx)
	})
}

// CheckConnection asks the node for its chain id.
func (c *Chain) CheckConnection(ctx context.Context) error {
	_, err := call(ctx, c, c.backend.ChainID)
	if err != nil {
		return fmt.Errorf("query chain id: %w", err)
	}
	return nil
}

// SecondsSinceLastBlock is the age of the latest header.
func (c *Chain) SecondsSinceLastBlock(ctx context.Context) (uint64, error) {
	header, err := call(ctx, c, func(ctx context.Context) (*types.Header, error) {
		return c.backend.HeaderByNumber(ctx, nil)
	})
	if err != nil {
		return 0, fmt.Errorf("query latest header: %w", err)
	}

	now := uint64(c.opts.Now().Unix())
	if header.Time >= now {
		return 0, nil
	}
	return now - header.Time, nil
}

// LatestBlockNumber returns the chain tip.
func (c *Chain) LatestBlockNumber(ctx context.Context) (uint64, error) {
	n, err := call(ctx, c, c.backend.BlockNumber)
	if err != nil {
		return 0, fmt.Errorf("query block number: %w", err)
	}
	return n, nil
}

// AccountBalance returns the balance of address in wei.
func (c *Chain) AccountBalance(ctx context.Context, address common.Address) (*uint256.Int, error) {
	balance, err := call(ctx, c, func(ctx context.Context) (*big.Int, error) {
		return c.backend.BalanceAt(ctx, address, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("query balance of %s: %w", address.Hex(), err)
	}

	v, overflow := uint256.FromBig(balance)
	if overflow {
		return nil, fmt.Errorf("balance of %s overflows 256 bits", address.Hex())
	}
	return v, nil
}

// WalletAddress is the signer address, false when no key is configured.
func (c *Chain) WalletAddress() (common.Address, bool) {
	return c.wallet, c.key != nil
}

// BlocksIn converts a time window to a block count, at least one.
func (c *Chain) BlocksIn(timeFrame time.Duration) uint64 {
	n := uint64(timeFrame / c.opts.BlockTime)
	if n == 0 {
		return 1
	}
	return n
}

func (c *Chain) filterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return call(ctx, c, func(ctx context.Context) ([]types.Log, error) {
		return c.backend.FilterLogs(ctx, query)
	})
}

func (c *Chain) transactor(ctx context.Context) (*bind.TransactOpts, error) {
	if c.key == nil {
		return nil, ErrNoSigner
	}

	chainID, err := call(ctx, c, c.backend.ChainID)
	if err != nil {
		return nil, fmt.Errorf("query chain id: %w", err)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(c.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// Close releases the underlying client when it owns one.
func (c *Chain) Close() {
	if closer, ok := c.backend.(interface{ Close() }); ok {
		closer.Close()
	}
}
