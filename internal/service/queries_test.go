package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/romico/HomeSure-sub002/internal/cache"
	"github.com/romico/HomeSure-sub002/internal/storage"
	"github.com/shopspring/decimal"
)

func TestGetOrderReadThrough(t *testing.T) {
	env := newTestEnv()
	trader := env.seedTrader(storage.RoleTrader)
	env.seedOrder(7, 42, trader, storage.SideBuy)

	order, cached, err := env.svc.GetOrder(context.Background(), 7)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if cached {
		t.Fatal("first read must miss")
	}
	if order.ID != 7 {
		t.Fatalf("expected order 7, got %d", order.ID)
	}

	// Mutate the store behind the cache. The second read serves the cached
	// copy until an invalidation or TTL expiry.
	env.store.orders[7].Status = storage.OrderStatusCancelled
	again, cached, err := env.svc.GetOrder(context.Background(), 7)
	if err != nil {
		t.Fatalf("cached get order: %v", err)
	}
	if !cached {
		t.Fatal("second read must hit the cache")
	}
	if again.Status != storage.OrderStatusOpen {
		t.Fatalf("expected cached status open, got %s", again.Status)
	}
}

func TestGetOrderMissingNotCached(t *testing.T) {
	env := newTestEnv()

	_, _, err := env.svc.GetOrder(context.Background(), 404)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, found, _ := env.cache.Get(context.Background(), cache.KeyOrder(404)); found {
		t.Fatal("a miss must not leave a cache entry")
	}
}

func TestListOrdersCachedPerFilter(t *testing.T) {
	env := newTestEnv()
	trader := env.seedTrader(storage.RoleTrader)
	env.seedOrder(7, 42, trader, storage.SideBuy)

	propertyID := int64(42)
	filter := storage.OrderFilter{PropertyID: &propertyID, Limit: 50}

	page, cached, err := env.svc.ListOrders(context.Background(), filter)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if cached || len(page.Orders) != 1 {
		t.Fatalf("expected uncached single-order page, cached=%v len=%d", cached, len(page.Orders))
	}

	if _, cached, _ = env.svc.ListOrders(context.Background(), filter); !cached {
		t.Fatal("identical filter must hit the cache")
	}

	// A different filter shape is a different key.
	open := filter
	open.Status = storage.OrderStatusOpen
	if _, cached, _ = env.svc.ListOrders(context.Background(), open); cached {
		t.Fatal("changed filter must miss")
	}
}

func TestCancelInvalidationScopedToProperty(t *testing.T) {
	env := newTestEnv()
	trader := env.seedTrader(storage.RoleTrader)
	env.seedOrder(7, 42, trader, storage.SideBuy)
	env.seedOrder(8, 43, trader, storage.SideBuy)

	p42, p43 := int64(42), int64(43)
	if _, _, err := env.svc.ListOrders(context.Background(), storage.OrderFilter{PropertyID: &p42, Limit: 50}); err != nil {
		t.Fatalf("warm p42: %v", err)
	}
	if _, _, err := env.svc.ListOrders(context.Background(), storage.OrderFilter{PropertyID: &p43, Limit: 50}); err != nil {
		t.Fatalf("warm p43: %v", err)
	}
	if _, _, err := env.svc.GetOrder(context.Background(), 7); err != nil {
		t.Fatalf("warm order 7: %v", err)
	}

	if _, err := env.svc.CancelOrder(context.Background(), CancelOrderInput{OrderID: 7, RequesterID: trader}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Property 42 listings and the order detail are gone; property 43 is
	// untouched.
	if _, cached, _ := env.svc.ListOrders(context.Background(), storage.OrderFilter{PropertyID: &p42, Limit: 50}); cached {
		t.Fatal("property 42 listing must be invalidated")
	}
	if _, cached, _ := env.svc.ListOrders(context.Background(), storage.OrderFilter{PropertyID: &p43, Limit: 50}); !cached {
		t.Fatal("property 43 listing must survive")
	}
	order, cached, err := env.svc.GetOrder(context.Background(), 7)
	if err != nil {
		t.Fatalf("reread order 7: %v", err)
	}
	if cached {
		t.Fatal("order detail must be invalidated")
	}
	if order.Status != storage.OrderStatusCancelled {
		t.Fatalf("reread must see cancelled, got %s", order.Status)
	}
}

func TestOrderBookReadThrough(t *testing.T) {
	env := newTestEnv()

	book, cached, err := env.svc.GetOrderBook(context.Background(), 42)
	if err != nil {
		t.Fatalf("order book: %v", err)
	}
	if cached || book.PropertyID != 42 {
		t.Fatalf("expected uncached book for 42, cached=%v got %d", cached, book.PropertyID)
	}
	if _, cached, _ = env.svc.GetOrderBook(context.Background(), 42); !cached {
		t.Fatal("second book read must hit the cache")
	}
}

func TestTradingStatsReadThrough(t *testing.T) {
	env := newTestEnv()

	if _, cached, err := env.svc.GetTradingStats(context.Background(), 42); err != nil || cached {
		t.Fatalf("first stats read: cached=%v err=%v", cached, err)
	}
	if _, cached, _ := env.svc.GetTradingStats(context.Background(), 42); !cached {
		t.Fatal("second stats read must hit the cache")
	}
}

func TestSweepExpiredOrders(t *testing.T) {
	env := newTestEnv()
	trader := env.seedTrader(storage.RoleTrader)
	first := env.seedOrder(7, 42, trader, storage.SideBuy)
	second := env.seedOrder(8, 43, trader, storage.SideBuy)
	env.store.expireDue = []storage.Order{*first, *second}

	if _, _, err := env.svc.GetOrder(context.Background(), 7); err != nil {
		t.Fatalf("warm order 7: %v", err)
	}
	p42 := int64(42)
	if _, _, err := env.svc.ListOrders(context.Background(), storage.OrderFilter{PropertyID: &p42, Limit: 50}); err != nil {
		t.Fatalf("warm p42: %v", err)
	}

	if n := env.svc.SweepExpiredOrders(context.Background()); n != 2 {
		t.Fatalf("expected 2 expired, got %d", n)
	}

	if _, found, _ := env.cache.Get(context.Background(), cache.KeyOrder(7)); found {
		t.Fatal("expired order detail must be invalidated")
	}
	if _, cached, _ := env.svc.ListOrders(context.Background(), storage.OrderFilter{PropertyID: &p42, Limit: 50}); cached {
		t.Fatal("expired order's property listing must be invalidated")
	}
}

func TestCacheDisabledFallsThrough(t *testing.T) {
	env := newTestEnv()
	env.svc.cache = nil
	trader := env.seedTrader(storage.RoleTrader)
	env.seedOrder(7, 42, trader, storage.SideBuy)

	for i := 0; i < 2; i++ {
		order, cached, err := env.svc.GetOrder(context.Background(), 7)
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		if cached {
			t.Fatal("nil cache must never report a hit")
		}
		if !order.Price.Equal(decimal.NewFromInt(5)) {
			t.Fatalf("unexpected order %+v", order)
		}
	}
}

func TestRunExpirySweepStopsOnCancel(t *testing.T) {
	env := newTestEnv()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		env.svc.RunExpirySweep(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep loop did not stop on context cancel")
	}
}
