package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/romico/HomeSure-sub002/libs/retry"
	"github.com/shopspring/decimal"
	"log/slog"
)

// Confirmation is what a finalized mutating call hands back to the lifecycle
// layer: the receipt reference, the decoded event with the ledger-assigned
// identifiers, and what the submission actually cost.
type Confirmation struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
	FeePaid     decimal.Decimal
	Event       *Event
}

// SubmissionStatus is the reconciliation view of a previously submitted
// transaction, looked up by hash after a confirmation timeout.
type SubmissionStatus struct {
	TxHash      string
	Found       bool
	Confirmed   bool
	Reverted    bool
	BlockNumber uint64
}

// Orchestrator turns logical mutations into confirmed ledger state changes
// for a single signing account. All submissions from that account go through
// the orchestrator's lock: nonce fetch, signing and dispatch are a critical
// section, the confirmation wait is not.
type Orchestrator struct {
	client   *Client
	exchange *Exchange
	key      *ecdsa.PrivateKey
	sender   common.Address
	chainID  *big.Int
	signer   types.Signer
	retryCfg retry.Config
	logger   *slog.Logger
	metrics  *Metrics

	mu sync.Mutex
}

func NewOrchestrator(client *Client, exchange *Exchange, privateKeyHex string, chainID *big.Int, retryCfg retry.Config, logger *slog.Logger, metrics *Metrics) (*Orchestrator, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		client:   client,
		exchange: exchange,
		key:      key,
		sender:   crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		signer:   types.LatestSignerForChainID(chainID),
		retryCfg: retryCfg,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

func (o *Orchestrator) Sender() string { return o.sender.Hex() }

func (o *Orchestrator) CreateOrder(ctx context.Context, propertyID int64, side uint8, price, quantity decimal.Decimal, expiry time.Time) (*Confirmation, error) {
	data, err := o.exchange.PackCreateOrder(big.NewInt(propertyID), side, ToUnits(price), ToUnits(quantity), big.NewInt(expiry.Unix()))
	if err != nil {
		return nil, fmt.Errorf("pack createOrder: %w", err)
	}
	// Buy orders escrow the full notional with the submission.
	var value *big.Int
	if side == SideBuy {
		value = ToUnits(price.Mul(quantity))
	}
	return o.execute(ctx, "createOrder", data, value, EventOrderCreated)
}

func (o *Orchestrator) CancelOrder(ctx context.Context, orderID int64) (*Confirmation, error) {
	data, err := o.exchange.PackCancelOrder(big.NewInt(orderID))
	if err != nil {
		return nil, fmt.Errorf("pack cancelOrder: %w", err)
	}
	return o.execute(ctx, "cancelOrder", data, nil, EventOrderCancelled)
}

func (o *Orchestrator) MatchOrders(ctx context.Context, buyOrderID, sellOrderID int64, quantity decimal.Decimal) (*Confirmation, error) {
	data, err := o.exchange.PackMatchOrders(big.NewInt(buyOrderID), big.NewInt(sellOrderID), ToUnits(quantity))
	if err != nil {
		return nil, fmt.Errorf("pack matchOrders: %w", err)
	}
	return o.execute(ctx, "matchOrders", data, nil, EventOrdersMatched)
}

func (o *Orchestrator) CreateEscrow(ctx context.Context, tradeID int64, amount decimal.Decimal, conditions string) (*Confirmation, error) {
	data, err := o.exchange.PackCreateEscrow(big.NewInt(tradeID), ToUnits(amount), conditions)
	if err != nil {
		return nil, fmt.Errorf("pack createEscrow: %w", err)
	}
	return o.execute(ctx, "createEscrow", data, nil, EventEscrowCreated)
}

func (o *Orchestrator) ReleaseEscrow(ctx context.Context, escrowID int64) (*Confirmation, error) {
	data, err := o.exchange.PackReleaseEscrow(big.NewInt(escrowID))
	if err != nil {
		return nil, fmt.Errorf("pack releaseEscrow: %w", err)
	}
	return o.execute(ctx, "releaseEscrow", data, nil, EventEscrowReleased)
}

func (o *Orchestrator) RefundEscrow(ctx context.Context, escrowID int64) (*Confirmation, error) {
	data, err := o.exchange.PackRefundEscrow(big.NewInt(escrowID))
	if err != nil {
		return nil, fmt.Errorf("pack refundEscrow: %w", err)
	}
	return o.execute(ctx, "refundEscrow", data, nil, EventEscrowRefunded)
}

// Allowance reads how much of a property token the owner has authorized the
// exchange to transfer, in token units.
func (o *Orchestrator) Allowance(ctx context.Context, owner string, propertyID int64) (decimal.Decimal, error) {
	if !common.IsHexAddress(owner) {
		return decimal.Zero, fmt.Errorf("invalid settlement account %q", owner)
	}
	raw, err := o.exchange.Allowance(ctx, o.client, common.HexToAddress(owner), big.NewInt(propertyID))
	if err != nil {
		return decimal.Zero, err
	}
	return FromUnits(raw), nil
}

// Lookup reconciles a submission by hash after the caller gave up waiting.
func (o *Orchestrator) Lookup(ctx context.Context, txHash string) (*SubmissionStatus, error) {
	hash := common.HexToHash(txHash)
	receipt, err := o.client.Receipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return &SubmissionStatus{TxHash: txHash}, nil
		}
		return nil, err
	}
	return &SubmissionStatus{
		TxHash:      txHash,
		Found:       true,
		Confirmed:   receipt.Status == types.ReceiptStatusSuccessful,
		Reverted:    receipt.Status == types.ReceiptStatusFailed,
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}

func (o *Orchestrator) execute(ctx context.Context, op string, data []byte, value *big.Int, expectedEvent string) (*Confirmation, error) {
	start := time.Now()

	attempts := 0
	txHash, err := retry.Do(ctx, o.retryCfg, isTransientSubmitError, func(attempt int, lastErr error, backoff time.Duration) {
		o.logger.Warn("resubmitting settlement call", "op", op, "attempt", attempt, "backoff", backoff, "error", lastErr)
	}, func() (common.Hash, error) {
		attempts++
		return o.submit(ctx, op, data, value)
	})
	if err != nil {
		o.observe(op, "submit_failed", start)
		return nil, &SubmissionError{Op: op, Attempts: attempts, Err: err}
	}

	receipt, err := o.client.WaitReceipt(ctx, txHash)
	if err != nil {
		o.observe(op, "confirm_timeout", start)
		return nil, &ConfirmationTimeoutError{Op: op, TxHash: txHash, Waited: time.Since(start)}
	}
	if receipt.Status == types.ReceiptStatusFailed {
		o.observe(op, "reverted", start)
		return nil, &RevertedError{Op: op, TxHash: txHash}
	}

	event, err := o.exchange.FindEvent(receipt, expectedEvent)
	if err != nil {
		o.observe(op, "receipt_mismatch", start)
		return nil, &ReceiptMismatchError{Op: op, TxHash: txHash, ExpectedEvent: expectedEvent}
	}
	if event == nil {
		// The call nominally succeeded but did not do what we asked. Needs
		// operator investigation, never an automatic retry.
		o.observe(op, "receipt_mismatch", start)
		return nil, &ReceiptMismatchError{Op: op, TxHash: txHash, ExpectedEvent: expectedEvent}
	}

	feePaid := decimal.Zero
	if receipt.EffectiveGasPrice != nil {
		paid := new(big.Int).Mul(receipt.EffectiveGasPrice, new(big.Int).SetUint64(receipt.GasUsed))
		feePaid = FromUnits(paid)
	}
	if o.metrics != nil {
		o.metrics.FeePaid.Observe(feePaid.InexactFloat64())
	}
	o.observe(op, "confirmed", start)

	o.logger.Info("settlement confirmed",
		"op", op,
		"tx", txHash.Hex(),
		"block", receipt.BlockNumber.Uint64(),
		"gas_used", receipt.GasUsed,
		"attempts", attempts,
	)

	return &Confirmation{
		TxHash:      txHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		FeePaid:     feePaid,
		Event:       event,
	}, nil
}

// submit holds the per-account lock across nonce fetch, signing and dispatch
// only. Two concurrent submissions from this account can prepare in
// parallel but dispatch in lock order.
func (o *Orchestrator) submit(ctx context.Context, op string, data []byte, value *big.Int) (common.Hash, error) {
	fees, err := o.client.EstimateFees(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate fees: %w", err)
	}

	msg := ethereum.CallMsg{From: o.sender, To: addressPtr(o.exchange.Address()), Data: data, Value: value}
	gasLimit, err := o.client.EstimateGas(ctx, msg)
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
	}
	gasLimit += gasLimit / 5

	o.mu.Lock()
	defer o.mu.Unlock()

	nonce, err := o.client.PendingNonce(ctx, o.sender)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}

	tx, err := o.buildTx(nonce, gasLimit, fees, value, data)
	if err != nil {
		return common.Hash{}, err
	}
	signed, err := types.SignTx(tx, o.signer, o.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}

	if err := o.client.Send(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx (%s): %w", op, err)
	}
	return signed.Hash(), nil
}

func (o *Orchestrator) buildTx(nonce, gasLimit uint64, fees *FeeEstimate, value *big.Int, data []byte) (*types.Transaction, error) {
	to := o.exchange.Address()
	if fees.Tiered {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   o.chainID,
			Nonce:     nonce,
			GasTipCap: fees.TipCap,
			GasFeeCap: fees.FeeCap,
			Gas:       gasLimit,
			To:        &to,
			Value:     value,
			Data:      data,
		}), nil
	}
	if fees.GasPrice == nil {
		return nil, fmt.Errorf("no usable fee estimate")
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: fees.GasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    value,
		Data:     data,
	}), nil
}

func (o *Orchestrator) observe(op, status string, start time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.Submissions.WithLabelValues(op, status).Inc()
	o.metrics.SettlementLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func addressPtr(addr common.Address) *common.Address { return &addr }
