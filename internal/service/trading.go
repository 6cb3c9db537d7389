package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/romico/HomeSure-sub002/internal/cache"
	"github.com/romico/HomeSure-sub002/internal/chain"
	"github.com/romico/HomeSure-sub002/internal/storage"
	"github.com/romico/HomeSure-sub002/libs/kafka"
	"github.com/shopspring/decimal"
	"log/slog"
)

type Store interface {
	GetTrader(ctx context.Context, traderID uuid.UUID) (*storage.Trader, error)
	PropertyExists(ctx context.Context, propertyID int64) (bool, error)
	GetProperty(ctx context.Context, propertyID int64) (*storage.Property, error)
	InsertOrder(ctx context.Context, order storage.Order) (*storage.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*storage.Order, error)
	MarkOrderCancelled(ctx context.Context, orderID int64, txHash string) (*storage.Order, error)
	ApplyMatch(ctx context.Context, trade storage.Trade) (*storage.Trade, error)
	GetTrade(ctx context.Context, tradeID int64) (*storage.Trade, error)
	ListOrders(ctx context.Context, filter storage.OrderFilter) ([]storage.Order, string, error)
	OrderBook(ctx context.Context, propertyID int64) (*storage.OrderBook, error)
	ListTrades(ctx context.Context, filter storage.TradeFilter) ([]storage.Trade, string, error)
	TradingStats(ctx context.Context, propertyID int64) (*storage.TradingStats, error)
	InsertEscrow(ctx context.Context, escrow storage.Escrow) (*storage.Escrow, error)
	GetEscrow(ctx context.Context, escrowID int64) (*storage.Escrow, error)
	ResolveEscrow(ctx context.Context, escrowID int64, status, txHash string) (*storage.Escrow, error)
	ExpireDueOrders(ctx context.Context, now time.Time) ([]storage.Order, error)
	InsertAudit(ctx context.Context, log storage.AuditLog) error
}

// Settlement is the orchestrator surface the lifecycle layer depends on.
// Implemented by *chain.Orchestrator.
type Settlement interface {
	CreateOrder(ctx context.Context, propertyID int64, side uint8, price, quantity decimal.Decimal, expiry time.Time) (*chain.Confirmation, error)
	CancelOrder(ctx context.Context, orderID int64) (*chain.Confirmation, error)
	MatchOrders(ctx context.Context, buyOrderID, sellOrderID int64, quantity decimal.Decimal) (*chain.Confirmation, error)
	CreateEscrow(ctx context.Context, tradeID int64, amount decimal.Decimal, conditions string) (*chain.Confirmation, error)
	ReleaseEscrow(ctx context.Context, escrowID int64) (*chain.Confirmation, error)
	RefundEscrow(ctx context.Context, escrowID int64) (*chain.Confirmation, error)
	Allowance(ctx context.Context, owner string, propertyID int64) (decimal.Decimal, error)
	Lookup(ctx context.Context, txHash string) (*chain.SubmissionStatus, error)
}

type ComplianceChecker interface {
	IsApproved(ctx context.Context, traderID uuid.UUID) (bool, error)
}

// TradingService owns the order/trade/escrow lifecycle. Every mutation goes
// ledger-first: the local row is committed only after the ledger confirms,
// and cache invalidation follows the commit.
type TradingService struct {
	store      Store
	settlement Settlement
	compliance ComplianceChecker
	cache      cache.Cache
	producer   kafka.Publisher
	logger     *slog.Logger
	metrics    *Metrics
	topics     Topics
}

func NewTradingService(store Store, settlement Settlement, compliance ComplianceChecker, c cache.Cache, producer kafka.Publisher, logger *slog.Logger, metrics *Metrics, topics Topics) *TradingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TradingService{
		store:      store,
		settlement: settlement,
		compliance: compliance,
		cache:      c,
		producer:   producer,
		logger:     logger,
		metrics:    metrics,
		topics:     topics,
	}
}

type CreateOrderInput struct {
	TraderID      uuid.UUID
	PropertyID    int64
	Side          string
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	Expiry        time.Time
	CorrelationID string
}

func (s *TradingService) CreateOrder(ctx context.Context, input CreateOrderInput) (*storage.Order, error) {
	start := time.Now()

	side := strings.ToLower(input.Side)
	if side != storage.SideBuy && side != storage.SideSell {
		return nil, fmt.Errorf("side must be buy or sell: %w", ErrInvalidInput)
	}
	if !input.Price.IsPositive() || !input.Quantity.IsPositive() {
		return nil, fmt.Errorf("price and quantity must be positive: %w", ErrInvalidInput)
	}
	if !input.Expiry.After(time.Now()) {
		return nil, fmt.Errorf("expiry must be in the future: %w", ErrInvalidInput)
	}

	trader, err := s.store.GetTrader(ctx, input.TraderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, s.reject("create_order", "forbidden", start, ErrForbidden)
		}
		return nil, s.reject("create_order", "error", start, err)
	}
	if trader.SettlementAccount == "" {
		return nil, s.reject("create_order", "forbidden", start, fmt.Errorf("no linked settlement account: %w", ErrForbidden))
	}

	approved, err := s.compliance.IsApproved(ctx, trader.ID)
	if err != nil {
		return nil, s.reject("create_order", "error", start, fmt.Errorf("compliance check: %w", err))
	}
	if !approved {
		return nil, s.reject("create_order", "compliance", start, ErrComplianceRequired)
	}

	exists, err := s.store.PropertyExists(ctx, input.PropertyID)
	if err != nil {
		return nil, s.reject("create_order", "error", start, err)
	}
	if !exists {
		return nil, s.reject("create_order", "not_found", start, ErrPropertyNotFound)
	}

	// A sell without sufficient on-ledger allowance would revert after
	// charging fees; fail fast instead.
	if side == storage.SideSell {
		allowance, err := s.settlement.Allowance(ctx, trader.SettlementAccount, input.PropertyID)
		if err != nil {
			return nil, s.reject("create_order", "error", start, fmt.Errorf("allowance check: %w", err))
		}
		if allowance.LessThan(input.Quantity) {
			return nil, s.reject("create_order", "allowance", start, ErrInsufficientAllowance)
		}
	}

	conf, err := s.settlement.CreateOrder(ctx, input.PropertyID, chainSide(side), input.Price, input.Quantity, input.Expiry)
	if err != nil {
		return nil, s.reject("create_order", "settlement", start, err)
	}

	order, err := s.store.InsertOrder(ctx, storage.Order{
		ID:             conf.Event.OrderID.Int64(),
		PropertyID:     input.PropertyID,
		TraderID:       trader.ID,
		Side:           side,
		Price:          input.Price,
		Quantity:       input.Quantity,
		FilledQuantity: decimal.Zero,
		Expiry:         input.Expiry,
		Status:         storage.OrderStatusOpen,
		TxHash:         conf.TxHash,
	})
	if err != nil {
		return nil, s.reject("create_order", "error", start, fmt.Errorf("commit confirmed order %d: %w", conf.Event.OrderID.Int64(), err))
	}

	s.invalidate(ctx, cache.PatternsOrderMutation(order.PropertyID))
	s.publishOrderCreated(ctx, input.CorrelationID, order)
	s.audit(ctx, trader.ID, "orders.create", "order", order.ID, conf.TxHash, map[string]string{
		"fee_paid": conf.FeePaid.String(),
	})
	s.observe("create_order", "success", start)

	return order, nil
}

type CancelOrderInput struct {
	OrderID       int64
	RequesterID   uuid.UUID
	CorrelationID string
}

func (s *TradingService) CancelOrder(ctx context.Context, input CancelOrderInput) (*storage.Order, error) {
	start := time.Now()

	order, err := s.store.GetOrder(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, s.reject("cancel_order", "not_found", start, err)
		}
		return nil, s.reject("cancel_order", "error", start, err)
	}

	requester, err := s.store.GetTrader(ctx, input.RequesterID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, s.reject("cancel_order", "forbidden", start, ErrForbidden)
		}
		return nil, s.reject("cancel_order", "error", start, err)
	}
	if order.TraderID != requester.ID && requester.Role != storage.RoleAdmin {
		return nil, s.reject("cancel_order", "forbidden", start, ErrForbidden)
	}

	if order.Status != storage.OrderStatusOpen && order.Status != storage.OrderStatusPartial {
		return nil, s.reject("cancel_order", "invalid_state", start, fmt.Errorf("order %d is %s: %w", order.ID, order.Status, storage.ErrInvalidStatus))
	}

	conf, err := s.settlement.CancelOrder(ctx, input.OrderID)
	if err != nil {
		return nil, s.reject("cancel_order", "settlement", start, err)
	}

	cancelled, err := s.store.MarkOrderCancelled(ctx, input.OrderID, conf.TxHash)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidStatus) {
			// The row left the cancellable set between the precondition check
			// and this commit.
			return nil, s.reject("cancel_order", "conflict", start, fmt.Errorf("order %d: %w", input.OrderID, ErrConflict))
		}
		return nil, s.reject("cancel_order", "error", start, err)
	}

	s.invalidate(ctx, cache.PatternsOrderMutation(cancelled.PropertyID), cache.KeyOrder(cancelled.ID))
	s.publishOrderCancelled(ctx, input.CorrelationID, cancelled)
	s.audit(ctx, requester.ID, "orders.cancel", "order", cancelled.ID, conf.TxHash, nil)
	s.observe("cancel_order", "success", start)

	return cancelled, nil
}

type MatchOrdersInput struct {
	BuyOrderID    int64
	SellOrderID   int64
	Quantity      decimal.Decimal
	RequesterID   uuid.UUID
	CorrelationID string
}

// MatchOrders submits a match and records the confirmed trade. The ledger is
// the arbiter of price compatibility, remaining quantity and expiry; nothing
// is re-validated locally beyond the requester's role.
func (s *TradingService) MatchOrders(ctx context.Context, input MatchOrdersInput) (*storage.Trade, error) {
	start := time.Now()

	if !input.Quantity.IsPositive() {
		return nil, fmt.Errorf("match quantity must be positive: %w", ErrInvalidInput)
	}
	requester, err := s.requireRole(ctx, input.RequesterID, storage.RoleMatcher, storage.RoleAdmin)
	if err != nil {
		return nil, s.reject("match_orders", "forbidden", start, err)
	}

	conf, err := s.settlement.MatchOrders(ctx, input.BuyOrderID, input.SellOrderID, input.Quantity)
	if err != nil {
		return nil, s.reject("match_orders", "settlement", start, err)
	}

	event := conf.Event
	price := chain.FromUnits(event.Price)
	quantity := chain.FromUnits(event.Quantity)
	trade, err := s.store.ApplyMatch(ctx, storage.Trade{
		ID:          event.TradeID.Int64(),
		BuyOrderID:  input.BuyOrderID,
		SellOrderID: input.SellOrderID,
		PropertyID:  event.PropertyID.Int64(),
		Price:       price,
		Quantity:    quantity,
		TotalAmount: price.Mul(quantity),
		Buyer:       event.Buyer.Hex(),
		Seller:      event.Seller.Hex(),
		TxHash:      conf.TxHash,
	})
	if err != nil {
		if errors.Is(err, storage.ErrInvalidStatus) {
			return nil, s.reject("match_orders", "conflict", start, fmt.Errorf("trade %d: %w", event.TradeID.Int64(), ErrConflict))
		}
		return nil, s.reject("match_orders", "error", start, err)
	}

	s.invalidate(ctx, cache.PatternsTradeMutation(trade.PropertyID),
		cache.KeyOrder(trade.BuyOrderID), cache.KeyOrder(trade.SellOrderID))
	s.publishTradeExecuted(ctx, input.CorrelationID, trade)
	s.audit(ctx, requester.ID, "trades.match", "trade", trade.ID, conf.TxHash, map[string]string{
		"buy_order_id":  strconv.FormatInt(trade.BuyOrderID, 10),
		"sell_order_id": strconv.FormatInt(trade.SellOrderID, 10),
	})
	s.observe("match_orders", "success", start)

	return trade, nil
}

type CreateEscrowInput struct {
	TradeID       int64
	Amount        decimal.Decimal
	Conditions    string
	RequesterID   uuid.UUID
	CorrelationID string
}

func (s *TradingService) CreateEscrow(ctx context.Context, input CreateEscrowInput) (*storage.Escrow, error) {
	start := time.Now()

	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("escrow amount must be positive: %w", ErrInvalidInput)
	}
	requester, err := s.requireRole(ctx, input.RequesterID, storage.RoleEscrowManager, storage.RoleAdmin)
	if err != nil {
		return nil, s.reject("create_escrow", "forbidden", start, err)
	}
	if _, err := s.store.GetTrade(ctx, input.TradeID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, s.reject("create_escrow", "not_found", start, err)
		}
		return nil, s.reject("create_escrow", "error", start, err)
	}

	conf, err := s.settlement.CreateEscrow(ctx, input.TradeID, input.Amount, input.Conditions)
	if err != nil {
		return nil, s.reject("create_escrow", "settlement", start, err)
	}

	escrow, err := s.store.InsertEscrow(ctx, storage.Escrow{
		ID:         conf.Event.EscrowID.Int64(),
		TradeID:    input.TradeID,
		Amount:     input.Amount,
		Conditions: input.Conditions,
		Status:     storage.EscrowStatusPending,
		CreatedBy:  requester.ID,
		TxHash:     conf.TxHash,
	})
	if err != nil {
		return nil, s.reject("create_escrow", "error", start, fmt.Errorf("commit confirmed escrow %d: %w", conf.Event.EscrowID.Int64(), err))
	}

	s.publishEscrowCreated(ctx, input.CorrelationID, escrow)
	s.audit(ctx, requester.ID, "escrows.create", "escrow", escrow.ID, conf.TxHash, nil)
	s.observe("create_escrow", "success", start)

	return escrow, nil
}

type ResolveEscrowInput struct {
	EscrowID      int64
	RequesterID   uuid.UUID
	CorrelationID string
}

func (s *TradingService) ReleaseEscrow(ctx context.Context, input ResolveEscrowInput) (*storage.Escrow, error) {
	return s.resolveEscrow(ctx, input, storage.EscrowStatusReleased)
}

func (s *TradingService) RefundEscrow(ctx context.Context, input ResolveEscrowInput) (*storage.Escrow, error) {
	return s.resolveEscrow(ctx, input, storage.EscrowStatusRefunded)
}

func (s *TradingService) resolveEscrow(ctx context.Context, input ResolveEscrowInput, target string) (*storage.Escrow, error) {
	start := time.Now()
	op := "release_escrow"
	if target == storage.EscrowStatusRefunded {
		op = "refund_escrow"
	}

	requester, err := s.requireRole(ctx, input.RequesterID, storage.RoleEscrowManager, storage.RoleAdmin)
	if err != nil {
		return nil, s.reject(op, "forbidden", start, err)
	}

	escrow, err := s.store.GetEscrow(ctx, input.EscrowID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, s.reject(op, "not_found", start, err)
		}
		return nil, s.reject(op, "error", start, err)
	}
	if escrow.Status != storage.EscrowStatusPending {
		return nil, s.reject(op, "invalid_state", start, fmt.Errorf("escrow %d is %s: %w", escrow.ID, escrow.Status, storage.ErrInvalidStatus))
	}

	var conf *chain.Confirmation
	if target == storage.EscrowStatusReleased {
		conf, err = s.settlement.ReleaseEscrow(ctx, input.EscrowID)
	} else {
		conf, err = s.settlement.RefundEscrow(ctx, input.EscrowID)
	}
	if err != nil {
		return nil, s.reject(op, "settlement", start, err)
	}

	resolved, err := s.store.ResolveEscrow(ctx, input.EscrowID, target, conf.TxHash)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidStatus) {
			return nil, s.reject(op, "conflict", start, fmt.Errorf("escrow %d: %w", input.EscrowID, ErrConflict))
		}
		return nil, s.reject(op, "error", start, err)
	}

	s.invalidate(ctx, nil, cache.KeyEscrow(resolved.ID))
	s.publishEscrowResolved(ctx, input.CorrelationID, resolved)
	s.audit(ctx, requester.ID, "escrows."+target, "escrow", resolved.ID, conf.TxHash, nil)
	s.observe(op, "success", start)

	return resolved, nil
}

// SettlementStatus reconciles a submission by hash, for callers who received
// a settlement failure with a transaction reference.
func (s *TradingService) SettlementStatus(ctx context.Context, txHash string) (*chain.SubmissionStatus, error) {
	return s.settlement.Lookup(ctx, txHash)
}

func (s *TradingService) requireRole(ctx context.Context, requesterID uuid.UUID, roles ...string) (*storage.Trader, error) {
	requester, err := s.store.GetTrader(ctx, requesterID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	for _, role := range roles {
		if requester.Role == role {
			return requester, nil
		}
	}
	return nil, fmt.Errorf("role %s: %w", requester.Role, ErrForbidden)
}

// invalidate applies the pattern set and any exact keys after a commit.
// Failures are logged, never propagated: TTL expiry is the backstop.
func (s *TradingService) invalidate(ctx context.Context, patterns []string, keys ...string) {
	if s.cache == nil {
		return
	}
	for _, pattern := range patterns {
		if err := s.cache.DeletePattern(ctx, pattern); err != nil {
			s.logger.Error("cache invalidation failed", "pattern", pattern, "error", err)
			s.countInvalidation("error")
			continue
		}
		s.countInvalidation("success")
	}
	if len(keys) > 0 {
		if err := s.cache.Delete(ctx, keys...); err != nil {
			s.logger.Error("cache key delete failed", "keys", keys, "error", err)
			s.countInvalidation("error")
			return
		}
		s.countInvalidation("success")
	}
}

func (s *TradingService) publishOrderCreated(ctx context.Context, correlationID string, order *storage.Order) {
	if s.producer == nil || order == nil {
		return
	}
	eventID := kafka.DeterministicEventID("orders.created", strconv.FormatInt(order.ID, 10))
	env, err := kafka.NewEnvelopeWithID(eventID, "orders.created", 1, correlationID)
	if err != nil {
		s.logger.Error("build order created envelope failed", "error", err)
		return
	}
	payload := OrderCreatedEvent{
		Envelope:   env,
		OrderID:    order.ID,
		PropertyID: order.PropertyID,
		TraderID:   order.TraderID.String(),
		Side:       order.Side,
		Price:      order.Price.String(),
		Quantity:   order.Quantity.String(),
		Expiry:     order.Expiry.UTC().Format(time.RFC3339),
		TxHash:     order.TxHash,
		CreatedAt:  order.CreatedAt.UTC().Format(time.RFC3339),
	}
	if _, _, err := s.producer.PublishJSON(ctx, s.topics.OrdersCreated, strconv.FormatInt(order.PropertyID, 10), payload); err != nil {
		s.logger.Error("publish order created failed", "error", err)
	}
}

func (s *TradingService) publishOrderCancelled(ctx context.Context, correlationID string, order *storage.Order) {
	if s.producer == nil || order == nil {
		return
	}
	eventID := kafka.DeterministicEventID("orders.cancelled", strconv.FormatInt(order.ID, 10))
	env, err := kafka.NewEnvelopeWithID(eventID, "orders.cancelled", 1, correlationID)
	if err != nil {
		s.logger.Error("build order cancelled envelope failed", "error", err)
		return
	}
	payload := OrderCancelledEvent{
		Envelope:    env,
		OrderID:     order.ID,
		PropertyID:  order.PropertyID,
		TxHash:      order.TxHash,
		CancelledAt: order.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if _, _, err := s.producer.PublishJSON(ctx, s.topics.OrdersCancelled, strconv.FormatInt(order.PropertyID, 10), payload); err != nil {
		s.logger.Error("publish order cancelled failed", "error", err)
	}
}

func (s *TradingService) publishTradeExecuted(ctx context.Context, correlationID string, trade *storage.Trade) {
	if s.producer == nil || trade == nil {
		return
	}
	eventID := kafka.DeterministicEventID("trades.executed", strconv.FormatInt(trade.ID, 10))
	env, err := kafka.NewEnvelopeWithID(eventID, "trades.executed", 1, correlationID)
	if err != nil {
		s.logger.Error("build trade executed envelope failed", "error", err)
		return
	}
	payload := TradeExecutedEvent{
		Envelope:    env,
		TradeID:     trade.ID,
		BuyOrderID:  trade.BuyOrderID,
		SellOrderID: trade.SellOrderID,
		PropertyID:  trade.PropertyID,
		Price:       trade.Price.String(),
		Quantity:    trade.Quantity.String(),
		TotalAmount: trade.TotalAmount.String(),
		TxHash:      trade.TxHash,
		ExecutedAt:  trade.ExecutedAt.UTC().Format(time.RFC3339),
	}
	if _, _, err := s.producer.PublishJSON(ctx, s.topics.TradesExecuted, strconv.FormatInt(trade.PropertyID, 10), payload); err != nil {
		s.logger.Error("publish trade executed failed", "error", err)
	}
}

func (s *TradingService) publishEscrowCreated(ctx context.Context, correlationID string, escrow *storage.Escrow) {
	if s.producer == nil || escrow == nil {
		return
	}
	eventID := kafka.DeterministicEventID("escrows.created", strconv.FormatInt(escrow.ID, 10))
	env, err := kafka.NewEnvelopeWithID(eventID, "escrows.created", 1, correlationID)
	if err != nil {
		s.logger.Error("build escrow created envelope failed", "error", err)
		return
	}
	payload := EscrowCreatedEvent{
		Envelope: env,
		EscrowID: escrow.ID,
		TradeID:  escrow.TradeID,
		Amount:   escrow.Amount.String(),
		TxHash:   escrow.TxHash,
	}
	if _, _, err := s.producer.PublishJSON(ctx, s.topics.EscrowsCreated, strconv.FormatInt(escrow.TradeID, 10), payload); err != nil {
		s.logger.Error("publish escrow created failed", "error", err)
	}
}

func (s *TradingService) publishEscrowResolved(ctx context.Context, correlationID string, escrow *storage.Escrow) {
	if s.producer == nil || escrow == nil {
		return
	}
	eventID := kafka.DeterministicEventID("escrows.resolved", strconv.FormatInt(escrow.ID, 10), escrow.Status)
	env, err := kafka.NewEnvelopeWithID(eventID, "escrows.resolved", 1, correlationID)
	if err != nil {
		s.logger.Error("build escrow resolved envelope failed", "error", err)
		return
	}
	payload := EscrowResolvedEvent{
		Envelope:   env,
		EscrowID:   escrow.ID,
		TradeID:    escrow.TradeID,
		Status:     escrow.Status,
		TxHash:     escrow.ResolvedTxHash,
		ResolvedAt: escrow.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if _, _, err := s.producer.PublishJSON(ctx, s.topics.EscrowsResolved, strconv.FormatInt(escrow.TradeID, 10), payload); err != nil {
		s.logger.Error("publish escrow resolved failed", "error", err)
	}
}

func (s *TradingService) audit(ctx context.Context, actorID uuid.UUID, action, entityType string, entityID int64, txHash string, metadata map[string]string) {
	log := storage.AuditLog{
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   &entityID,
		TxHash:     txHash,
		Metadata:   metadata,
	}
	if err := s.store.InsertAudit(ctx, log); err != nil {
		s.logger.Error("audit log failed", "action", action, "error", err)
	}
}

func (s *TradingService) reject(op, status string, start time.Time, err error) error {
	s.observe(op, status, start)
	return err
}

func (s *TradingService) observe(op, status string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.Operations.WithLabelValues(op, status).Inc()
	s.metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *TradingService) countInvalidation(result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.CacheInvalidation.WithLabelValues(result).Inc()
}

func chainSide(side string) uint8 {
	if side == storage.SideBuy {
		return chain.SideBuy
	}
	return chain.SideSell
}
