package cache

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

// Cache is the read-through layer in front of the relational index. It is
// never the system of record: losing every key costs latency, not data.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePattern removes every key matching a glob pattern. Best-effort:
	// callers log failures and rely on TTL expiry as the backstop.
	DeletePattern(ctx context.Context, pattern string) error
}

// TTLs per resource family: order books churn fastest, historical stats
// slowest.
const (
	TTLOrderDetail = time.Minute
	TTLOrderList   = 30 * time.Second
	TTLOrderBook   = 10 * time.Second
	TTLTradeList   = time.Minute
	TTLStats       = 5 * time.Minute
)

const allProperties = "all"

func propertySegment(propertyID *int64) string {
	if propertyID == nil {
		return allProperties
	}
	return fmt.Sprintf("%d", *propertyID)
}

func KeyOrder(orderID int64) string {
	return fmt.Sprintf("order:%d", orderID)
}

// KeyOrderList canonicalizes one list query: property scope plus a hash of
// the remaining filter/cursor parameters.
func KeyOrderList(propertyID *int64, filterParts ...string) string {
	return fmt.Sprintf("orders:p%s:%s", propertySegment(propertyID), hashParts(filterParts))
}

func KeyOrderBook(propertyID int64) string {
	return fmt.Sprintf("book:p%d", propertyID)
}

func KeyTradeList(propertyID *int64, filterParts ...string) string {
	return fmt.Sprintf("trades:p%s:%s", propertySegment(propertyID), hashParts(filterParts))
}

func KeyStats(propertyID int64) string {
	return fmt.Sprintf("stats:p%d", propertyID)
}

func KeyEscrow(escrowID int64) string {
	return fmt.Sprintf("escrow:%d", escrowID)
}

// PatternsOrderMutation is the invalidation set for a committed order
// mutation: every list shape touching the property, the unscoped lists, and
// the property's book.
func PatternsOrderMutation(propertyID int64) []string {
	return []string{
		fmt.Sprintf("orders:p%d:*", propertyID),
		fmt.Sprintf("orders:p%s:*", allProperties),
		fmt.Sprintf("book:p%d", propertyID),
	}
}

// PatternsTradeMutation extends the order set with trade lists and stats,
// used after a confirmed match.
func PatternsTradeMutation(propertyID int64) []string {
	return append(PatternsOrderMutation(propertyID),
		fmt.Sprintf("trades:p%d:*", propertyID),
		fmt.Sprintf("trades:p%s:*", allProperties),
		fmt.Sprintf("stats:p%d", propertyID),
	)
}

func hashParts(parts []string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%016x", h.Sum64())
}
