package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	if _, ok, err := c.Get(ctx, "order:1"); err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	if err := c.Set(ctx, "order:1", []byte(`{"id":1}`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, ok, err := c.Get(ctx, "order:1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(value) != `{"id":1}` {
		t.Fatalf("value = %q", value)
	}

	if err := c.Delete(ctx, "order:1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "order:1"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	if err := c.Set(ctx, "book:p7", []byte("x"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "book:p7"); ok {
		t.Fatalf("expected expiry")
	}
}

func TestMemoryCacheDeletePattern(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	for _, key := range []string{
		KeyOrderList(int64Ptr(7), "status=open"),
		KeyOrderList(int64Ptr(7), "status=filled"),
		KeyOrderList(nil, "status=open"),
		KeyOrderList(int64Ptr(8), "status=open"),
		KeyOrderBook(7),
		KeyOrderBook(8),
	} {
		if err := c.Set(ctx, key, []byte("v"), time.Minute); err != nil {
			t.Fatalf("Set %q: %v", key, err)
		}
	}

	for _, pattern := range PatternsOrderMutation(7) {
		if err := c.DeletePattern(ctx, pattern); err != nil {
			t.Fatalf("DeletePattern %q: %v", pattern, err)
		}
	}

	// Everything scoped to property 7, plus the unscoped lists, is gone.
	for _, key := range []string{
		KeyOrderList(int64Ptr(7), "status=open"),
		KeyOrderList(int64Ptr(7), "status=filled"),
		KeyOrderList(nil, "status=open"),
		KeyOrderBook(7),
	} {
		if _, ok, _ := c.Get(ctx, key); ok {
			t.Fatalf("key %q survived invalidation", key)
		}
	}

	// The unrelated property is untouched.
	for _, key := range []string{
		KeyOrderList(int64Ptr(8), "status=open"),
		KeyOrderBook(8),
	} {
		if _, ok, _ := c.Get(ctx, key); !ok {
			t.Fatalf("key %q should have survived", key)
		}
	}
}

func TestKeyBuilderStability(t *testing.T) {
	a := KeyOrderList(int64Ptr(7), "status=open", "cursor=")
	b := KeyOrderList(int64Ptr(7), "status=open", "cursor=")
	if a != b {
		t.Fatalf("same parameters must build the same key: %q vs %q", a, b)
	}
	if a == KeyOrderList(int64Ptr(7), "status=filled", "cursor=") {
		t.Fatalf("different filters must build different keys")
	}
}

func int64Ptr(v int64) *int64 { return &v }
