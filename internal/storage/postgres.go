package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidCursor = errors.New("invalid cursor")
	ErrInvalidStatus = errors.New("invalid status transition")
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetTrader(ctx context.Context, traderID uuid.UUID) (*Trader, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, settlement_account, role, status, created_at
		FROM traders
		WHERE id = $1
	`, traderID)
	var trader Trader
	if err := row.Scan(&trader.ID, &trader.Email, &trader.SettlementAccount, &trader.Role, &trader.Status, &trader.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &trader, nil
}

func (s *Store) PropertyExists(ctx context.Context, propertyID int64) (bool, error) {
	var exists bool
	row := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM properties WHERE id = $1 AND status = 'active')
	`, propertyID)
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) GetProperty(ctx context.Context, propertyID int64) (*Property, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, location, status, created_at
		FROM properties
		WHERE id = $1
	`, propertyID)
	var property Property
	if err := row.Scan(&property.ID, &property.Name, &property.Location, &property.Status, &property.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &property, nil
}

// InsertOrder records a confirmed order. The id comes from the ledger, so a
// replayed confirmation hits the conflict path and returns the existing row.
func (s *Store) InsertOrder(ctx context.Context, order Order) (*Order, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO orders (id, property_id, trader_id, side, price, quantity, filled_quantity, expiry, status, tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
		RETURNING id, property_id, trader_id, side, price::text, quantity::text, filled_quantity::text, expiry, status, tx_hash, created_at, updated_at
	`, order.ID, order.PropertyID, order.TraderID, order.Side, order.Price.String(), order.Quantity.String(), order.FilledQuantity.String(), order.Expiry, order.Status, order.TxHash)

	stored, err := scanOrderRow(row)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return s.GetOrder(ctx, order.ID)
}

func (s *Store) GetOrder(ctx context.Context, orderID int64) (*Order, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, property_id, trader_id, side, price::text, quantity::text, filled_quantity::text, expiry, status, tx_hash, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, orderID)
	order, err := scanOrderRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

// MarkOrderCancelled flips an open or partial order to cancelled. Returns
// ErrInvalidStatus when the row left the eligible set underneath the caller.
func (s *Store) MarkOrderCancelled(ctx context.Context, orderID int64, txHash string) (*Order, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE orders
		SET status = $1, tx_hash = $2, updated_at = now()
		WHERE id = $3 AND status IN ('open','partial')
		RETURNING id, property_id, trader_id, side, price::text, quantity::text, filled_quantity::text, expiry, status, tx_hash, created_at, updated_at
	`, OrderStatusCancelled, txHash, orderID)

	order, err := scanOrderRow(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		var status string
		check := s.pool.QueryRow(ctx, `
			SELECT status
			FROM orders
			WHERE id = $1
		`, orderID)
		if scanErr := check.Scan(&status); scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, scanErr
		}
		return nil, ErrInvalidStatus
	}
	return order, nil
}

// ApplyMatch commits a confirmed trade and advances the fill state of both
// matched orders in one transaction. Order rows are locked and their status
// re-checked under the lock, so a cancellation that won the race rejects the
// commit instead of being overwritten.
func (s *Store) ApplyMatch(ctx context.Context, trade Trade) (*Trade, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	row := tx.QueryRow(ctx, `
		INSERT INTO trades (id, buy_order_id, sell_order_id, property_id, price, quantity, total_amount, buyer, seller, tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
		RETURNING id, buy_order_id, sell_order_id, property_id, price::text, quantity::text, total_amount::text, buyer, seller, tx_hash, executed_at
	`, trade.ID, trade.BuyOrderID, trade.SellOrderID, trade.PropertyID, trade.Price.String(), trade.Quantity.String(), trade.TotalAmount.String(), trade.Buyer, trade.Seller, trade.TxHash)

	stored, err := scanTradeRow(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		// Replayed confirmation: the trade and its fills are already recorded.
		existing, err := s.GetTrade(ctx, trade.ID)
		if err != nil {
			return nil, err
		}
		return existing, nil
	}

	for _, orderID := range []int64{trade.BuyOrderID, trade.SellOrderID} {
		if err := applyFill(ctx, tx, orderID, trade.Quantity); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return stored, nil
}

func applyFill(ctx context.Context, tx pgx.Tx, orderID int64, quantity decimal.Decimal) error {
	row := tx.QueryRow(ctx, `
		SELECT id, property_id, trader_id, side, price::text, quantity::text, filled_quantity::text, expiry, status, tx_hash, created_at, updated_at
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, orderID)
	order, err := scanOrderRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
		}
		return err
	}

	if order.Status != OrderStatusOpen && order.Status != OrderStatusPartial {
		return fmt.Errorf("order %d: %w", orderID, ErrInvalidStatus)
	}

	newFilled := order.FilledQuantity.Add(quantity)
	if newFilled.GreaterThan(order.Quantity) {
		newFilled = order.Quantity
	}
	newStatus := OrderStatusPartial
	if newFilled.Equal(order.Quantity) {
		newStatus = OrderStatusFilled
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET filled_quantity = $1, status = $2, updated_at = now()
		WHERE id = $3
	`, newFilled.String(), newStatus, orderID)
	return err
}

func (s *Store) GetTrade(ctx context.Context, tradeID int64) (*Trade, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, buy_order_id, sell_order_id, property_id, price::text, quantity::text, total_amount::text, buyer, seller, tx_hash, executed_at
		FROM trades
		WHERE id = $1
	`, tradeID)
	trade, err := scanTradeRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return trade, nil
}

func (s *Store) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, string, error) {
	limit := clampLimit(filter.Limit)

	query := `
		SELECT id, property_id, trader_id, side, price::text, quantity::text, filled_quantity::text, expiry, status, tx_hash, created_at, updated_at
		FROM orders
		WHERE 1=1
	`
	args := []any{}
	idx := 1

	if filter.PropertyID != nil {
		query += fmt.Sprintf(" AND property_id = $%d", idx)
		args = append(args, *filter.PropertyID)
		idx++
	}
	if filter.TraderID != nil {
		query += fmt.Sprintf(" AND trader_id = $%d", idx)
		args = append(args, *filter.TraderID)
		idx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, filter.Status)
		idx++
	}
	if filter.Side != "" {
		query += fmt.Sprintf(" AND side = $%d", idx)
		args = append(args, filter.Side)
		idx++
	}
	if filter.Cursor != "" {
		ts, id, err := decodeCursor(filter.Cursor)
		if err != nil {
			return nil, "", ErrInvalidCursor
		}
		query += fmt.Sprintf(" AND (created_at, id) > ($%d, $%d)", idx, idx+1)
		args = append(args, ts, id)
		idx += 2
	}

	query += fmt.Sprintf(" ORDER BY created_at, id LIMIT $%d", idx)
	args = append(args, limit+1)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	orders := make([]Order, 0, limit)
	for rows.Next() {
		order, err := scanOrderRow(rows)
		if err != nil {
			return nil, "", err
		}
		orders = append(orders, *order)
	}
	if rows.Err() != nil {
		return nil, "", rows.Err()
	}

	var nextCursor string
	if len(orders) > limit {
		last := orders[limit]
		orders = orders[:limit]
		nextCursor = encodeCursor(last.CreatedAt, last.ID)
	}

	return orders, nextCursor, nil
}

// OrderBook aggregates remaining quantity of open and partial orders for one
// property, grouped by price per side.
func (s *Store) OrderBook(ctx context.Context, propertyID int64) (*OrderBook, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT side, price::text, SUM(quantity - filled_quantity)::text
		FROM orders
		WHERE property_id = $1 AND status IN ('open','partial')
		GROUP BY side, price
		ORDER BY price DESC
	`, propertyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	book := &OrderBook{PropertyID: propertyID}
	for rows.Next() {
		var side, priceStr, qtyStr string
		if err := rows.Scan(&side, &priceStr, &qtyStr); err != nil {
			return nil, err
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("parse book price: %w", err)
		}
		qty, err := decimal.NewFromString(qtyStr)
		if err != nil {
			return nil, fmt.Errorf("parse book quantity: %w", err)
		}
		level := BookLevel{Price: price, Quantity: qty}
		if side == SideBuy {
			book.Bids = append(book.Bids, level)
		} else {
			book.Asks = append(book.Asks, level)
		}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	// Rows arrive price-descending, which is best-first for bids; asks want
	// ascending.
	for i, j := 0, len(book.Asks)-1; i < j; i, j = i+1, j-1 {
		book.Asks[i], book.Asks[j] = book.Asks[j], book.Asks[i]
	}
	return book, nil
}

func (s *Store) ListTrades(ctx context.Context, filter TradeFilter) ([]Trade, string, error) {
	limit := clampLimit(filter.Limit)

	query := `
		SELECT id, buy_order_id, sell_order_id, property_id, price::text, quantity::text, total_amount::text, buyer, seller, tx_hash, executed_at
		FROM trades
		WHERE 1=1
	`
	args := []any{}
	idx := 1

	if filter.PropertyID != nil {
		query += fmt.Sprintf(" AND property_id = $%d", idx)
		args = append(args, *filter.PropertyID)
		idx++
	}
	if filter.OrderID != nil {
		query += fmt.Sprintf(" AND (buy_order_id = $%d OR sell_order_id = $%d)", idx, idx)
		args = append(args, *filter.OrderID)
		idx++
	}
	if filter.Cursor != "" {
		ts, id, err := decodeCursor(filter.Cursor)
		if err != nil {
			return nil, "", ErrInvalidCursor
		}
		query += fmt.Sprintf(" AND (executed_at, id) > ($%d, $%d)", idx, idx+1)
		args = append(args, ts, id)
		idx += 2
	}

	query += fmt.Sprintf(" ORDER BY executed_at, id LIMIT $%d", idx)
	args = append(args, limit+1)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	trades := make([]Trade, 0, limit)
	for rows.Next() {
		trade, err := scanTradeRow(rows)
		if err != nil {
			return nil, "", err
		}
		trades = append(trades, *trade)
	}
	if rows.Err() != nil {
		return nil, "", rows.Err()
	}

	var nextCursor string
	if len(trades) > limit {
		last := trades[limit]
		trades = trades[:limit]
		nextCursor = encodeCursor(last.ExecutedAt, last.ID)
	}

	return trades, nextCursor, nil
}

func (s *Store) TradingStats(ctx context.Context, propertyID int64) (*TradingStats, error) {
	stats := &TradingStats{PropertyID: propertyID}

	var volumeStr, valueStr string
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(quantity), 0)::text, COALESCE(SUM(total_amount), 0)::text
		FROM trades
		WHERE property_id = $1
	`, propertyID)
	if err := row.Scan(&stats.TradeCount, &volumeStr, &valueStr); err != nil {
		return nil, err
	}

	var err error
	if stats.TotalVolume, err = decimal.NewFromString(volumeStr); err != nil {
		return nil, fmt.Errorf("parse total volume: %w", err)
	}
	if stats.TotalValue, err = decimal.NewFromString(valueStr); err != nil {
		return nil, fmt.Errorf("parse total value: %w", err)
	}
	if stats.TotalVolume.IsPositive() {
		stats.AvgPrice = stats.TotalValue.Div(stats.TotalVolume)
	}

	var lastPriceStr string
	last := s.pool.QueryRow(ctx, `
		SELECT price::text
		FROM trades
		WHERE property_id = $1
		ORDER BY executed_at DESC, id DESC
		LIMIT 1
	`, propertyID)
	if err := last.Scan(&lastPriceStr); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stats, nil
		}
		return nil, err
	}
	if stats.LastPrice, err = decimal.NewFromString(lastPriceStr); err != nil {
		return nil, fmt.Errorf("parse last price: %w", err)
	}
	return stats, nil
}

func (s *Store) InsertEscrow(ctx context.Context, escrow Escrow) (*Escrow, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO escrows (id, trade_id, amount, conditions, status, created_by, tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
		RETURNING id, trade_id, amount::text, conditions, status, created_by, tx_hash, COALESCE(resolved_tx_hash, ''), created_at, updated_at
	`, escrow.ID, escrow.TradeID, escrow.Amount.String(), escrow.Conditions, escrow.Status, escrow.CreatedBy, escrow.TxHash)

	stored, err := scanEscrowRow(row)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return s.GetEscrow(ctx, escrow.ID)
}

func (s *Store) GetEscrow(ctx context.Context, escrowID int64) (*Escrow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, trade_id, amount::text, conditions, status, created_by, tx_hash, COALESCE(resolved_tx_hash, ''), created_at, updated_at
		FROM escrows
		WHERE id = $1
	`, escrowID)
	escrow, err := scanEscrowRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return escrow, nil
}

// ResolveEscrow moves a pending escrow to released or refunded. The pending
// guard makes the two terminal states mutually exclusive even under racing
// resolvers.
func (s *Store) ResolveEscrow(ctx context.Context, escrowID int64, status, txHash string) (*Escrow, error) {
	if status != EscrowStatusReleased && status != EscrowStatusRefunded {
		return nil, fmt.Errorf("resolve escrow to %q: %w", status, ErrInvalidStatus)
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE escrows
		SET status = $1, resolved_tx_hash = $2, updated_at = now()
		WHERE id = $3 AND status = 'pending'
		RETURNING id, trade_id, amount::text, conditions, status, created_by, tx_hash, COALESCE(resolved_tx_hash, ''), created_at, updated_at
	`, status, txHash, escrowID)

	escrow, err := scanEscrowRow(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		var current string
		check := s.pool.QueryRow(ctx, `
			SELECT status
			FROM escrows
			WHERE id = $1
		`, escrowID)
		if scanErr := check.Scan(&current); scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, scanErr
		}
		return nil, ErrInvalidStatus
	}
	return escrow, nil
}

// ExpireDueOrders sweeps open and partial orders whose expiry has passed.
// Returns the swept rows so the caller can invalidate per-property cache keys.
func (s *Store) ExpireDueOrders(ctx context.Context, now time.Time) ([]Order, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE orders
		SET status = $1, updated_at = now()
		WHERE status IN ('open','partial') AND expiry <= $2
		RETURNING id, property_id, trader_id, side, price::text, quantity::text, filled_quantity::text, expiry, status, tx_hash, created_at, updated_at
	`, OrderStatusExpired, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []Order
	for rows.Next() {
		order, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *order)
	}
	return expired, rows.Err()
}

func (s *Store) InsertAudit(ctx context.Context, log AuditLog) error {
	metadata := log.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	if log.TxHash != "" {
		metadata["tx_hash"] = log.TxHash
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_logs (actor_id, action, entity_type, entity_id, created_at, metadata)
		VALUES ($1, $2, $3, $4, now(), $5)
	`, log.ActorID, log.Action, log.EntityType, log.EntityID, metadata)
	return err
}

func scanOrderRow(row pgx.Row) (*Order, error) {
	var order Order
	var priceStr, qtyStr, filledStr string
	if err := row.Scan(&order.ID, &order.PropertyID, &order.TraderID, &order.Side, &priceStr, &qtyStr, &filledStr, &order.Expiry, &order.Status, &order.TxHash, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if order.Price, err = decimal.NewFromString(priceStr); err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	if order.Quantity, err = decimal.NewFromString(qtyStr); err != nil {
		return nil, fmt.Errorf("parse quantity: %w", err)
	}
	if order.FilledQuantity, err = decimal.NewFromString(filledStr); err != nil {
		return nil, fmt.Errorf("parse filled quantity: %w", err)
	}
	return &order, nil
}

func scanTradeRow(row pgx.Row) (*Trade, error) {
	var trade Trade
	var priceStr, qtyStr, totalStr string
	if err := row.Scan(&trade.ID, &trade.BuyOrderID, &trade.SellOrderID, &trade.PropertyID, &priceStr, &qtyStr, &totalStr, &trade.Buyer, &trade.Seller, &trade.TxHash, &trade.ExecutedAt); err != nil {
		return nil, err
	}

	var err error
	if trade.Price, err = decimal.NewFromString(priceStr); err != nil {
		return nil, fmt.Errorf("parse trade price: %w", err)
	}
	if trade.Quantity, err = decimal.NewFromString(qtyStr); err != nil {
		return nil, fmt.Errorf("parse trade quantity: %w", err)
	}
	if trade.TotalAmount, err = decimal.NewFromString(totalStr); err != nil {
		return nil, fmt.Errorf("parse trade total: %w", err)
	}
	return &trade, nil
}

func scanEscrowRow(row pgx.Row) (*Escrow, error) {
	var escrow Escrow
	var amountStr string
	if err := row.Scan(&escrow.ID, &escrow.TradeID, &amountStr, &escrow.Conditions, &escrow.Status, &escrow.CreatedBy, &escrow.TxHash, &escrow.ResolvedTxHash, &escrow.CreatedAt, &escrow.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if escrow.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("parse escrow amount: %w", err)
	}
	return &escrow, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func encodeCursor(ts time.Time, id int64) string {
	payload := fmt.Sprintf("%s|%d", ts.UTC().Format(time.RFC3339Nano), id)
	return base64.StdEncoding.EncodeToString([]byte(payload))
}

func decodeCursor(cursor string) (time.Time, int64, error) {
	decoded, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, 0, ErrInvalidCursor
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, 0, ErrInvalidCursor
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, 0, ErrInvalidCursor
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, 0, ErrInvalidCursor
	}
	return ts, id, nil
}
