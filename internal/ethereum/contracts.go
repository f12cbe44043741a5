package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

const (
	stateABIJSON = `[
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"uint256","name":"commitHeight","type":"uint256"},{"indexed":false,"internalType":"bytes32","name":"blockHash","type":"bytes32"}],"name":"CommitSubmitted","type":"event"},
{"inputs":[],"name":"pause","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

	portalABIJSON = `[
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"bytes32","name":"sender","type":"bytes32"},{"indexed":true,"internalType":"bytes32","name":"recipient","type":"bytes32"},{"indexed":true,"internalType":"uint256","name":"nonce","type":"uint256"},{"indexed":false,"internalType":"uint64","name":"amount","type":"uint64"},{"indexed":false,"internalType":"bytes","name":"data","type":"bytes"}],"name":"MessageSent","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"bytes32","name":"messageId","type":"bytes32"},{"indexed":true,"internalType":"bytes32","name":"sender","type":"bytes32"},{"indexed":true,"internalType":"bytes32","name":"recipient","type":"bytes32"},{"indexed":false,"internalType":"uint64","name":"amount","type":"uint64"}],"name":"MessageRelayed","type":"event"},
{"inputs":[],"name":"pause","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

	gatewayABIJSON = `[
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"bytes32","name":"sender","type":"bytes32"},{"indexed":true,"internalType":"address","name":"tokenAddress","type":"address"},{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"}],"name":"Deposit","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"bytes32","name":"recipient","type":"bytes32"},{"indexed":true,"internalType":"address","name":"tokenAddress","type":"address"},{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"}],"name":"Withdrawal","type":"event"},
{"inputs":[],"name":"pause","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

	eventCommitSubmitted = "CommitSubmitted"
	eventMessageSent     = "MessageSent"
	eventMessageRelayed  = "MessageRelayed"
	eventDeposit         = "Deposit"
	eventWithdrawal      = "Withdrawal"
)

var (
	stateABI   abi.ABI
	portalABI  abi.ABI
	gatewayABI abi.ABI

	// Portal amounts use the 9 decimals of the Fuel base asset.
	fuelToWei = uint256.NewInt(1_000_000_000)
)

func init() {
	stateABI = mustParseABI("state", stateABIJSON)
	portalABI = mustParseABI("portal", portalABIJSON)
	gatewayABI = mustParseABI("gateway", gatewayABIJSON)
}

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("failed to parse " + name + " contract ABI: " + err.Error())
	}
	return parsed
}

// contract is the shared part of the three bridge contracts.
type contract struct {
	name    string
	address common.Address
	abi     abi.ABI
	chain   *Chain
	bound   *bind.BoundContract
	logger  zerolog.Logger
}

func newContract(chain *Chain, name string, address common.Address, parsed abi.ABI) contract {
	b := chain.backend
	return contract{
		name:    name,
		address: address,
		abi:     parsed,
		chain:   chain,
		bound:   bind.NewBoundContract(address, parsed, b, b, b),
		logger:  chain.logger.With().Str("contract", name).Str("address", address.Hex()).Logger(),
	}
}

// Pause sends pause() and waits for it to be mined.
func (c *contract) Pause(ctx context.Context) error {
	opts, err := c.chain.transactor(ctx)
	if err != nil {
		return err
	}

	tx, err := c.bound.Transact(opts, "pause")
	if err != nil {
		return fmt.Errorf("send %s pause transaction: %w", c.name, err)
	}
	c.logger.Info().Str("tx", tx.Hash().Hex()).Msg("pause transaction sent")

	receipt, err := bind.WaitMined(ctx, c.chain.backend, tx)
	if err != nil {
		return fmt.Errorf("wait for %s pause transaction: %w", c.name, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%s pause transaction %s reverted", c.name, tx.Hash().Hex())
	}
	return nil
}

// logs fetches event logs of this contract between from and to. A nil to
// means the chain tip.
func (c *contract) logs(ctx context.Context, event string, from uint64, to *big.Int, topics ...[]common.Hash) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   to,
		Addresses: []common.Address{c.address},
		Topics:    append([][]common.Hash{{c.abi.Events[event].ID}}, topics...),
	}

	logs, err := c.chain.filterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("filter %s %s logs: %w", c.name, event, err)
	}
	return logs, nil
}

// window fetches logs over the timeFrame ending at lastBlock.
func (c *contract) window(ctx context.Context, event string, timeFrame time.Duration, lastBlock uint64, topics ...[]common.Hash) ([]types.Log, error) {
	from := uint64(0)
	if blocks := c.chain.BlocksIn(timeFrame); lastBlock > blocks {
		from = lastBlock - blocks
	}
	return c.logs(ctx, event, from, new(big.Int).SetUint64(lastBlock), topics...)
}

// StateContract is the Fuel chain state contract.
type StateContract struct {
	contract
}

// NewStateContract binds the state contract at address.
func NewStateContract(chain *Chain, address common.Address) *StateContract {
	return &StateContract{contract: newContract(chain, "state", address, stateABI)}
}

// LatestCommits returns the block hashes committed since fromBlock.
func (s *StateContract) LatestCommits(ctx context.Context, fromBlock uint64) ([]common.Hash, error) {
	logs, err := s.logs(ctx, eventCommitSubmitted, fromBlock, nil)
	if err != nil {
		return nil, err
	}

	hashes := make([]common.Hash, 0, len(logs))
	for _, l := range logs {
		hash, err := s.decodeCommit(l)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	return hashes, nil
}

func (s *StateContract) decodeCommit(l types.Log) (common.Hash, error) {
	var event struct {
		BlockHash [32]byte
	}
	if err := s.abi.UnpackIntoInterface(&event, eventCommitSubmitted, l.Data); err != nil {
		return common.Hash{}, fmt.Errorf("decode commit in tx %s: %w", l.TxHash.Hex(), err)
	}
	return common.Hash(event.BlockHash), nil
}

// PortalContract is the Fuel message portal holding bridged ETH.
type PortalContract struct {
	contract
}

// NewPortalContract binds the portal contract at address.
func NewPortalContract(chain *Chain, address common.Address) *PortalContract {
	return &PortalContract{contract: newContract(chain, "portal", address, portalABI)}
}

// BaseAmountDeposited sums ETH sent to Fuel over the window, in wei.
func (p *PortalContract) BaseAmountDeposited(ctx context.Context, timeFrame time.Duration, lastBlock uint64) (*uint256.Int, error) {
	return p.sum(ctx, eventMessageSent, timeFrame, lastBlock)
}

// BaseAmountWithdrawn sums ETH relayed back from Fuel over the window, in wei.
func (p *PortalContract) BaseAmountWithdrawn(ctx context.Context, timeFrame time.Duration, lastBlock uint64) (*uint256.Int, error) {
	return p.sum(ctx, eventMessageRelayed, timeFrame, lastBlock)
}

func (p *PortalContract) sum(ctx context.Context, event string, timeFrame time.Duration, lastBlock uint64) (*uint256.Int, error) {
	logs, err := p.window(ctx, event, timeFrame, lastBlock)
	if err != nil {
		return nil, err
	}

	total := new(uint256.Int)
	for _, l := range logs {
		amount, err := p.decodeAmount(event, l)
		if err != nil {
			return nil, err
		}
		total.Add(total, new(uint256.Int).Mul(uint256.NewInt(amount), fuelToWei))
	}
	return total, nil
}

func (p *PortalContract) decodeAmount(event string, l types.Log) (uint64, error) {
	values, err := p.abi.Unpack(event, l.Data)
	if err != nil {
		return 0, fmt.Errorf("decode %s in tx %s: %w", event, l.TxHash.Hex(), err)
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("decode %s in tx %s: empty data", event, l.TxHash.Hex())
	}
	amount, ok := values[0].(uint64)
	if !ok {
		return 0, fmt.Errorf("decode %s in tx %s: unexpected amount type %T", event, l.TxHash.Hex(), values[0])
	}
	return amount, nil
}

// GatewayContract is the ERC-20 gateway.
type GatewayContract struct {
	contract
}

// NewGatewayContract binds the gateway contract at address.
func NewGatewayContract(chain *Chain, address common.Address) *GatewayContract {
	return &GatewayContract{contract: newContract(chain, "gateway", address, gatewayABI)}
}

// TokenAmountDeposited sums deposits of token over the window.
func (g *GatewayContract) TokenAmountDeposited(ctx context.Context, timeFrame time.Duration, token common.Address, lastBlock uint64) (*uint256.Int, error) {
	return g.sum(ctx, eventDeposit, timeFrame, token, lastBlock)
}

// TokenAmountWithdrawn sums withdrawals of token over the window.
func (g *GatewayContract) TokenAmountWithdrawn(ctx context.Context, timeFrame time.Duration, token common.Address, lastBlock uint64) (*uint256.Int, error) {
	return g.sum(ctx, eventWithdrawal, timeFrame, token, lastBlock)
}

func (g *GatewayContract) sum(ctx context.Context, event string, timeFrame time.Duration, token common.Address, lastBlock uint64) (*uint256.Int, error) {
	// topic 1 is the indexed sender/recipient, topic 2 the token address
	logs, err := g.window(ctx, event, timeFrame, lastBlock, nil, []common.Hash{common.BytesToHash(token.Bytes())})
	if err != nil {
		return nil, err
	}

	total := new(uint256.Int)
	for _, l := range logs {
		amount, err := g.decodeAmount(event, l)
		if err != nil {
			return nil, err
		}
		if _, overflow := total.AddOverflow(total, amount); overflow {
			return nil, errors.New("token amount overflows 256 bits")
		}
	}
	return total, nil
}

func (g *GatewayContract) decodeAmount(event string, l types.Log) (*uint256.Int, error) {
	values, err := g.abi.Unpack(event, l.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s in tx %s: %w", event, l.TxHash.Hex(), err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("decode %s in tx %s: empty data", event, l.TxHash.Hex())
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode %s in tx %s: unexpected amount type %T", event, l.TxHash.Hex(), values[0])
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, fmt.Errorf("decode %s in tx %s: amount overflows 256 bits", event, l.TxHash.Hex())
	}
	return v, nil
}
