package service

import "github.com/romico/HomeSure-sub002/libs/kafka"

type Topics struct {
	OrdersCreated   string
	OrdersCancelled string
	TradesExecuted  string
	EscrowsCreated  string
	EscrowsResolved string
}

func DefaultTopics() Topics {
	return Topics{
		OrdersCreated:   "trading.orders.created",
		OrdersCancelled: "trading.orders.cancelled",
		TradesExecuted:  "trading.trades.executed",
		EscrowsCreated:  "trading.escrows.created",
		EscrowsResolved: "trading.escrows.resolved",
	}
}

type OrderCreatedEvent struct {
	kafka.Envelope
	OrderID    int64  `json:"order_id"`
	PropertyID int64  `json:"property_id"`
	TraderID   string `json:"trader_id"`
	Side       string `json:"side"`
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
	Expiry     string `json:"expiry"`
	TxHash     string `json:"tx_hash"`
	CreatedAt  string `json:"created_at"`
}

type OrderCancelledEvent struct {
	kafka.Envelope
	OrderID     int64  `json:"order_id"`
	PropertyID  int64  `json:"property_id"`
	TxHash      string `json:"tx_hash"`
	CancelledAt string `json:"cancelled_at"`
}

type TradeExecutedEvent struct {
	kafka.Envelope
	TradeID     int64  `json:"trade_id"`
	BuyOrderID  int64  `json:"buy_order_id"`
	SellOrderID int64  `json:"sell_order_id"`
	PropertyID  int64  `json:"property_id"`
	Price       string `json:"price"`
	Quantity    string `json:"quantity"`
	TotalAmount string `json:"total_amount"`
	TxHash      string `json:"tx_hash"`
	ExecutedAt  string `json:"executed_at"`
}

type EscrowCreatedEvent struct {
	kafka.Envelope
	EscrowID int64  `json:"escrow_id"`
	TradeID  int64  `json:"trade_id"`
	Amount   string `json:"amount"`
	TxHash   string `json:"tx_hash"`
}

type EscrowResolvedEvent struct {
	kafka.Envelope
	EscrowID   int64  `json:"escrow_id"`
	TradeID    int64  `json:"trade_id"`
	Status     string `json:"status"`
	TxHash     string `json:"tx_hash"`
	ResolvedAt string `json:"resolved_at"`
}
