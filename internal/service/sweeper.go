package service

import (
	"context"
	"time"

	"github.com/romico/HomeSure-sub002/internal/cache"
)

// RunExpirySweep marks past-expiry open orders as expired on an interval
// until ctx is cancelled. The sweep is local index hygiene only: the ledger
// enforces expiry at match time regardless, so a missed tick never admits an
// expired fill.
func (s *TradingService) RunExpirySweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("expiry sweep started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweep stopped")
			return
		case <-ticker.C:
			s.SweepExpiredOrders(ctx)
		}
	}
}

// SweepExpiredOrders runs a single pass and invalidates the cache entries of
// every order it expired.
func (s *TradingService) SweepExpiredOrders(ctx context.Context) int {
	expired, err := s.store.ExpireDueOrders(ctx, time.Now())
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	properties := make(map[int64]struct{}, len(expired))
	keys := make([]string, 0, len(expired))
	for _, order := range expired {
		properties[order.PropertyID] = struct{}{}
		keys = append(keys, cache.KeyOrder(order.ID))
	}
	for propertyID := range properties {
		s.invalidate(ctx, cache.PatternsOrderMutation(propertyID))
	}
	s.invalidate(ctx, nil, keys...)

	if s.metrics != nil {
		s.metrics.OrdersExpired.Add(float64(len(expired)))
	}
	s.logger.Info("orders expired", "count", len(expired))
	return len(expired)
}
