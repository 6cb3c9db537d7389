package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	OrderStatusOpen      = "open"
	OrderStatusPartial   = "partial"
	OrderStatusFilled    = "filled"
	OrderStatusCancelled = "cancelled"
	OrderStatusExpired   = "expired"

	EscrowStatusPending  = "pending"
	EscrowStatusReleased = "released"
	EscrowStatusRefunded = "refunded"

	SideBuy  = "buy"
	SideSell = "sell"
)

const (
	RoleTrader        = "trader"
	RoleMatcher       = "matcher"
	RoleEscrowManager = "escrow_manager"
	RoleAdmin         = "admin"
)

// Order is the local index row for a ledger-confirmed order. The ID is
// assigned by the exchange contract, never locally.
type Order struct {
	ID             int64
	PropertyID     int64
	TraderID       uuid.UUID
	Side           string
	Price          decimal.Decimal
	Quantity       decimal.Decimal
	FilledQuantity decimal.Decimal
	Expiry         time.Time
	Status         string
	TxHash         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (o Order) RemainingQuantity() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// Trade records a confirmed match. Immutable once written.
type Trade struct {
	ID          int64
	BuyOrderID  int64
	SellOrderID int64
	PropertyID  int64
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	TotalAmount decimal.Decimal
	Buyer       string
	Seller      string
	TxHash      string
	ExecutedAt  time.Time
}

type Escrow struct {
	ID             int64
	TradeID        int64
	Amount         decimal.Decimal
	Conditions     string
	Status         string
	CreatedBy      uuid.UUID
	TxHash         string
	ResolvedTxHash string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Property struct {
	ID        int64
	Name      string
	Location  string
	Status    string
	CreatedAt time.Time
}

type Trader struct {
	ID                uuid.UUID
	Email             string
	SettlementAccount string
	Role              string
	Status            string
	CreatedAt         time.Time
}

type OrderFilter struct {
	PropertyID *int64
	TraderID   *uuid.UUID
	Status     string
	Side       string
	Cursor     string
	Limit      int
}

type TradeFilter struct {
	PropertyID *int64
	OrderID    *int64
	Cursor     string
	Limit      int
}

// BookLevel aggregates remaining quantity at one price point.
type BookLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderBook is the open/partial interest for one property, bids sorted
// best-first (descending), asks ascending.
type OrderBook struct {
	PropertyID int64
	Bids       []BookLevel
	Asks       []BookLevel
}

type TradingStats struct {
	PropertyID  int64
	TradeCount  int64
	TotalVolume decimal.Decimal
	TotalValue  decimal.Decimal
	AvgPrice    decimal.Decimal
	LastPrice   decimal.Decimal
}

type AuditLog struct {
	ActorID    uuid.UUID
	Action     string
	EntityType string
	EntityID   *int64
	TxHash     string
	Metadata   map[string]string
}
