package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/romico/HomeSure-sub002/internal/cache"
	"github.com/romico/HomeSure-sub002/internal/storage"
)

// OrderPage is the cached envelope for a paginated order listing.
type OrderPage struct {
	Orders     []storage.Order `json:"orders"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type TradePage struct {
	Trades     []storage.Trade `json:"trades"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func (s *TradingService) GetOrder(ctx context.Context, orderID int64) (*storage.Order, bool, error) {
	key := cache.KeyOrder(orderID)
	var cached storage.Order
	if s.cacheGet(ctx, "order", key, &cached) {
		return &cached, true, nil
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	s.cacheSet(ctx, key, order, cache.TTLOrderDetail)
	return order, false, nil
}

func (s *TradingService) ListOrders(ctx context.Context, filter storage.OrderFilter) (*OrderPage, bool, error) {
	key := cache.KeyOrderList(filter.PropertyID, listOrderParts(filter)...)
	var cached OrderPage
	if s.cacheGet(ctx, "order_list", key, &cached) {
		return &cached, true, nil
	}

	orders, next, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	page := &OrderPage{Orders: orders, NextCursor: next}
	s.cacheSet(ctx, key, page, cache.TTLOrderList)
	return page, false, nil
}

func (s *TradingService) GetOrderBook(ctx context.Context, propertyID int64) (*storage.OrderBook, bool, error) {
	key := cache.KeyOrderBook(propertyID)
	var cached storage.OrderBook
	if s.cacheGet(ctx, "order_book", key, &cached) {
		return &cached, true, nil
	}

	book, err := s.store.OrderBook(ctx, propertyID)
	if err != nil {
		return nil, false, err
	}
	s.cacheSet(ctx, key, book, cache.TTLOrderBook)
	return book, false, nil
}

func (s *TradingService) GetTrade(ctx context.Context, tradeID int64) (*storage.Trade, error) {
	return s.store.GetTrade(ctx, tradeID)
}

func (s *TradingService) GetProperty(ctx context.Context, propertyID int64) (*storage.Property, error) {
	return s.store.GetProperty(ctx, propertyID)
}

func (s *TradingService) ListTrades(ctx context.Context, filter storage.TradeFilter) (*TradePage, bool, error) {
	key := cache.KeyTradeList(filter.PropertyID, listTradeParts(filter)...)
	var cached TradePage
	if s.cacheGet(ctx, "trade_list", key, &cached) {
		return &cached, true, nil
	}

	trades, next, err := s.store.ListTrades(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	page := &TradePage{Trades: trades, NextCursor: next}
	s.cacheSet(ctx, key, page, cache.TTLTradeList)
	return page, false, nil
}

func (s *TradingService) GetTradingStats(ctx context.Context, propertyID int64) (*storage.TradingStats, bool, error) {
	key := cache.KeyStats(propertyID)
	var cached storage.TradingStats
	if s.cacheGet(ctx, "stats", key, &cached) {
		return &cached, true, nil
	}

	stats, err := s.store.TradingStats(ctx, propertyID)
	if err != nil {
		return nil, false, err
	}
	s.cacheSet(ctx, key, stats, cache.TTLStats)
	return stats, false, nil
}

func (s *TradingService) GetEscrow(ctx context.Context, escrowID int64) (*storage.Escrow, bool, error) {
	key := cache.KeyEscrow(escrowID)
	var cached storage.Escrow
	if s.cacheGet(ctx, "escrow", key, &cached) {
		return &cached, true, nil
	}

	escrow, err := s.store.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, false, err
	}
	s.cacheSet(ctx, key, escrow, cache.TTLOrderDetail)
	return escrow, false, nil
}

// cacheGet unmarshals a hit into out. Cache failures count as misses so the
// database stays authoritative.
func (s *TradingService) cacheGet(ctx context.Context, family, key string, out any) bool {
	if s.cache == nil {
		return false
	}
	data, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed", "key", key, "error", err)
		s.countLookup(family, "error")
		return false
	}
	if !found {
		s.countLookup(family, "miss")
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Warn("cache entry corrupt", "key", key, "error", err)
		s.countLookup(family, "error")
		return false
	}
	s.countLookup(family, "hit")
	return true
}

func (s *TradingService) cacheSet(ctx context.Context, key string, value any, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, data, ttl); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func (s *TradingService) countLookup(family, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.CacheLookups.WithLabelValues(family, result).Inc()
}

func listOrderParts(filter storage.OrderFilter) []string {
	parts := []string{"status", filter.Status, "side", filter.Side, "cursor", filter.Cursor, "limit", strconv.Itoa(filter.Limit)}
	if filter.TraderID != nil {
		parts = append(parts, "trader", filter.TraderID.String())
	}
	return parts
}

func listTradeParts(filter storage.TradeFilter) []string {
	parts := []string{"cursor", filter.Cursor, "limit", strconv.Itoa(filter.Limit)}
	if filter.OrderID != nil {
		parts = append(parts, "order", strconv.FormatInt(*filter.OrderID, 10))
	}
	return parts
}
