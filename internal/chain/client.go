package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"log/slog"
)

// Backend is the subset of the ledger node RPC surface the settlement layer
// needs. *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type ClientConfig struct {
	// Confirmations is how many blocks past inclusion a receipt must be
	// before it counts as final.
	Confirmations uint64
	EstimateTimeout time.Duration
	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
	// RequireTieredFees makes a missing tip-cap estimate an error instead of
	// a silent legacy fallback.
	RequireTieredFees bool
}

func (c *ClientConfig) applyDefaults() {
	if c.Confirmations == 0 {
		c.Confirmations = 1
	}
	if c.EstimateTimeout <= 0 {
		c.EstimateTimeout = 5 * time.Second
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 2 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
}

// Client is the thin adapter in front of the ledger node: fee estimates,
// raw submission, receipt waiting, read-only calls. No business logic.
type Client struct {
	backend Backend
	cfg     ClientConfig
	logger  *slog.Logger
}

func NewClient(backend Backend, cfg ClientConfig, logger *slog.Logger) *Client {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{backend: backend, cfg: cfg, logger: logger}
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.backend.ChainID(ctx)
}

// FeeEstimate is one of the two fee-market tiers: a tiered (base + priority)
// pair when the node supports it, else a single legacy gas price.
type FeeEstimate struct {
	Tiered   bool
	GasPrice *big.Int // legacy
	TipCap   *big.Int // tiered
	FeeCap   *big.Int // tiered
}

// EstimateFees queries the node for the current fee market. Tiered estimates
// are preferred; the legacy path is the fallback unless RequireTieredFees.
func (c *Client) EstimateFees(ctx context.Context) (*FeeEstimate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EstimateTimeout)
	defer cancel()

	tip, tipErr := c.backend.SuggestGasTipCap(ctx)
	if tipErr == nil {
		head, err := c.backend.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("fee estimate: head: %w", err)
		}
		if head.BaseFee != nil {
			feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
			return &FeeEstimate{Tiered: true, TipCap: tip, FeeCap: feeCap}, nil
		}
		tipErr = errors.New("no base fee in head block")
	}

	if c.cfg.RequireTieredFees {
		return nil, fmt.Errorf("tiered fee estimate unavailable: %w", tipErr)
	}

	c.logger.Debug("falling back to legacy fee estimate", "reason", tipErr)
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("fee estimate: %w", err)
	}
	return &FeeEstimate{GasPrice: gasPrice}, nil
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EstimateTimeout)
	defer cancel()
	return c.backend.EstimateGas(ctx, msg)
}

func (c *Client) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	return c.backend.PendingNonceAt(ctx, account)
}

func (c *Client) Send(ctx context.Context, tx *types.Transaction) error {
	return c.backend.SendTransaction(ctx, tx)
}

func (c *Client) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return c.backend.CallContract(ctx, msg, nil)
}

// WaitReceipt polls until the transaction is included and buried under the
// configured confirmation depth, bounded by ConfirmTimeout. A timeout does
// not cancel the underlying submission.
func (c *Client) WaitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	deadline := time.Now().Add(c.cfg.ConfirmTimeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	var receipt *types.Receipt
	for receipt == nil {
		r, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil && r != nil {
			receipt = r
			break
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil {
			c.logger.Debug("receipt poll failed", "tx", txHash.Hex(), "error", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	for {
		head, err := c.backend.BlockNumber(ctx)
		if err == nil && head >= receipt.BlockNumber.Uint64()+c.cfg.Confirmations-1 {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Receipt fetches a receipt without waiting. Returns ethereum.NotFound while
// the transaction is still pending or unknown.
func (c *Client) Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.backend.TransactionReceipt(ctx, txHash)
}

func (c *Client) Confirmations() uint64 { return c.cfg.Confirmations }
