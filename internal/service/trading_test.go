package service

import (
	"context"
	"errors"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/romico/HomeSure-sub002/internal/cache"
	"github.com/romico/HomeSure-sub002/internal/chain"
	"github.com/romico/HomeSure-sub002/internal/storage"
	"github.com/shopspring/decimal"
	"log/slog"
)

type fakeStore struct {
	mu         sync.Mutex
	traders    map[uuid.UUID]*storage.Trader
	properties map[int64]bool
	orders     map[int64]*storage.Order
	trades     map[int64]*storage.Trade
	escrows    map[int64]*storage.Escrow
	audits     []storage.AuditLog

	insertOrderErr error
	expireDue      []storage.Order
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		traders:    make(map[uuid.UUID]*storage.Trader),
		properties: make(map[int64]bool),
		orders:     make(map[int64]*storage.Order),
		trades:     make(map[int64]*storage.Trade),
		escrows:    make(map[int64]*storage.Escrow),
	}
}

func (f *fakeStore) GetTrader(ctx context.Context, traderID uuid.UUID) (*storage.Trader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	trader, ok := f.traders[traderID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *trader
	return &copied, nil
}

func (f *fakeStore) PropertyExists(ctx context.Context, propertyID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.properties[propertyID], nil
}

func (f *fakeStore) GetProperty(ctx context.Context, propertyID int64) (*storage.Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.properties[propertyID] {
		return nil, storage.ErrNotFound
	}
	return &storage.Property{ID: propertyID, Status: "active"}, nil
}

func (f *fakeStore) InsertOrder(ctx context.Context, order storage.Order) (*storage.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertOrderErr != nil {
		return nil, f.insertOrderErr
	}
	if existing, ok := f.orders[order.ID]; ok {
		copied := *existing
		return &copied, nil
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	f.orders[order.ID] = &order
	copied := order
	return &copied, nil
}

func (f *fakeStore) GetOrder(ctx context.Context, orderID int64) (*storage.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *order
	return &copied, nil
}

func (f *fakeStore) MarkOrderCancelled(ctx context.Context, orderID int64, txHash string) (*storage.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if order.Status != storage.OrderStatusOpen && order.Status != storage.OrderStatusPartial {
		return nil, storage.ErrInvalidStatus
	}
	order.Status = storage.OrderStatusCancelled
	order.UpdatedAt = time.Now()
	copied := *order
	copied.TxHash = txHash
	return &copied, nil
}

func (f *fakeStore) ApplyMatch(ctx context.Context, trade storage.Trade) (*storage.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.trades[trade.ID]; ok {
		copied := *existing
		return &copied, nil
	}
	for _, orderID := range []int64{trade.BuyOrderID, trade.SellOrderID} {
		order, ok := f.orders[orderID]
		if !ok {
			return nil, storage.ErrNotFound
		}
		if order.Status != storage.OrderStatusOpen && order.Status != storage.OrderStatusPartial {
			return nil, storage.ErrInvalidStatus
		}
		order.FilledQuantity = order.FilledQuantity.Add(trade.Quantity)
		if order.FilledQuantity.GreaterThanOrEqual(order.Quantity) {
			order.Status = storage.OrderStatusFilled
		} else {
			order.Status = storage.OrderStatusPartial
		}
	}
	trade.ExecutedAt = time.Now()
	f.trades[trade.ID] = &trade
	copied := trade
	return &copied, nil
}

func (f *fakeStore) GetTrade(ctx context.Context, tradeID int64) (*storage.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	trade, ok := f.trades[tradeID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *trade
	return &copied, nil
}

func (f *fakeStore) ListOrders(ctx context.Context, filter storage.OrderFilter) ([]storage.Order, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.Order
	for _, order := range f.orders {
		if filter.PropertyID != nil && order.PropertyID != *filter.PropertyID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		out = append(out, *order)
	}
	return out, "", nil
}

func (f *fakeStore) OrderBook(ctx context.Context, propertyID int64) (*storage.OrderBook, error) {
	return &storage.OrderBook{PropertyID: propertyID}, nil
}

func (f *fakeStore) ListTrades(ctx context.Context, filter storage.TradeFilter) ([]storage.Trade, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.Trade
	for _, trade := range f.trades {
		if filter.PropertyID != nil && trade.PropertyID != *filter.PropertyID {
			continue
		}
		out = append(out, *trade)
	}
	return out, "", nil
}

func (f *fakeStore) TradingStats(ctx context.Context, propertyID int64) (*storage.TradingStats, error) {
	return &storage.TradingStats{PropertyID: propertyID}, nil
}

func (f *fakeStore) InsertEscrow(ctx context.Context, escrow storage.Escrow) (*storage.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.escrows[escrow.ID]; ok {
		copied := *existing
		return &copied, nil
	}
	escrow.CreatedAt = time.Now()
	escrow.UpdatedAt = escrow.CreatedAt
	f.escrows[escrow.ID] = &escrow
	copied := escrow
	return &copied, nil
}

func (f *fakeStore) GetEscrow(ctx context.Context, escrowID int64) (*storage.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	escrow, ok := f.escrows[escrowID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *escrow
	return &copied, nil
}

func (f *fakeStore) ResolveEscrow(ctx context.Context, escrowID int64, status, txHash string) (*storage.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	escrow, ok := f.escrows[escrowID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if escrow.Status != storage.EscrowStatusPending {
		return nil, storage.ErrInvalidStatus
	}
	escrow.Status = status
	escrow.ResolvedTxHash = txHash
	escrow.UpdatedAt = time.Now()
	copied := *escrow
	return &copied, nil
}

func (f *fakeStore) ExpireDueOrders(ctx context.Context, now time.Time) ([]storage.Order, error) {
	return f.expireDue, nil
}

func (f *fakeStore) InsertAudit(ctx context.Context, log storage.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, log)
	return nil
}

type fakeSettlement struct {
	mu           sync.Mutex
	nextOrderID  int64
	nextTradeID  int64
	nextEscrowID int64
	createErr    error
	cancelErr    error
	matchErr     error
	escrowErr    error
	allowance    decimal.Decimal
	allowanceErr error
	calls        []string
	status       *chain.SubmissionStatus
	matchEvent   *chain.Event
}

func newFakeSettlement() *fakeSettlement {
	return &fakeSettlement{
		nextOrderID:  100,
		nextTradeID:  500,
		nextEscrowID: 900,
		allowance:    decimal.NewFromInt(1_000_000),
	}
}

func (f *fakeSettlement) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeSettlement) confirmed(event *chain.Event) *chain.Confirmation {
	return &chain.Confirmation{
		TxHash:      "0xfeed",
		BlockNumber: 10,
		GasUsed:     50_000,
		FeePaid:     decimal.RequireFromString("0.0001"),
		Event:       event,
	}
}

func (f *fakeSettlement) CreateOrder(ctx context.Context, propertyID int64, side uint8, price, quantity decimal.Decimal, expiry time.Time) (*chain.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create_order")
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextOrderID++
	return f.confirmed(&chain.Event{
		Name:       chain.EventOrderCreated,
		OrderID:    big.NewInt(f.nextOrderID),
		PropertyID: big.NewInt(propertyID),
	}), nil
}

func (f *fakeSettlement) CancelOrder(ctx context.Context, orderID int64) (*chain.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("cancel_order")
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return f.confirmed(&chain.Event{
		Name:    chain.EventOrderCancelled,
		OrderID: big.NewInt(orderID),
	}), nil
}

func (f *fakeSettlement) MatchOrders(ctx context.Context, buyOrderID, sellOrderID int64, quantity decimal.Decimal) (*chain.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("match_orders")
	if f.matchErr != nil {
		return nil, f.matchErr
	}
	event := f.matchEvent
	if event == nil {
		f.nextTradeID++
		event = &chain.Event{
			Name:        chain.EventOrdersMatched,
			TradeID:     big.NewInt(f.nextTradeID),
			BuyOrderID:  big.NewInt(buyOrderID),
			SellOrderID: big.NewInt(sellOrderID),
			PropertyID:  big.NewInt(42),
			Price:       chain.ToUnits(decimal.NewFromInt(5)),
			Quantity:    chain.ToUnits(quantity),
			Buyer:       common.HexToAddress("0x1111111111111111111111111111111111111111"),
			Seller:      common.HexToAddress("0x2222222222222222222222222222222222222222"),
		}
	}
	return f.confirmed(event), nil
}

func (f *fakeSettlement) CreateEscrow(ctx context.Context, tradeID int64, amount decimal.Decimal, conditions string) (*chain.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create_escrow")
	if f.escrowErr != nil {
		return nil, f.escrowErr
	}
	f.nextEscrowID++
	return f.confirmed(&chain.Event{
		Name:     chain.EventEscrowCreated,
		EscrowID: big.NewInt(f.nextEscrowID),
		TradeID:  big.NewInt(tradeID),
	}), nil
}

func (f *fakeSettlement) ReleaseEscrow(ctx context.Context, escrowID int64) (*chain.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("release_escrow")
	if f.escrowErr != nil {
		return nil, f.escrowErr
	}
	return f.confirmed(&chain.Event{Name: chain.EventEscrowReleased, EscrowID: big.NewInt(escrowID)}), nil
}

func (f *fakeSettlement) RefundEscrow(ctx context.Context, escrowID int64) (*chain.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("refund_escrow")
	if f.escrowErr != nil {
		return nil, f.escrowErr
	}
	return f.confirmed(&chain.Event{Name: chain.EventEscrowRefunded, EscrowID: big.NewInt(escrowID)}), nil
}

func (f *fakeSettlement) Allowance(ctx context.Context, owner string, propertyID int64) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("allowance")
	if f.allowanceErr != nil {
		return decimal.Zero, f.allowanceErr
	}
	return f.allowance, nil
}

func (f *fakeSettlement) Lookup(ctx context.Context, txHash string) (*chain.SubmissionStatus, error) {
	if f.status != nil {
		return f.status, nil
	}
	return &chain.SubmissionStatus{TxHash: txHash}, nil
}

func (f *fakeSettlement) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

type fakeCompliance struct {
	approved bool
	err      error
}

func (f *fakeCompliance) IsApproved(ctx context.Context, traderID uuid.UUID) (bool, error) {
	return f.approved, f.err
}

type publishedMessage struct {
	Topic string
	Key   string
	Value any
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

func (f *fakePublisher) PublishJSON(ctx context.Context, topic, key string, value any) (int32, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, 0, f.err
	}
	f.messages = append(f.messages, publishedMessage{Topic: topic, Key: key, Value: value})
	return 0, int64(len(f.messages)), nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	for i, m := range f.messages {
		out[i] = m.Topic
	}
	return out
}

type testEnv struct {
	svc        *TradingService
	store      *fakeStore
	settlement *fakeSettlement
	compliance *fakeCompliance
	producer   *fakePublisher
	cache      *cache.MemoryCache
}

func newTestEnv() *testEnv {
	store := newFakeStore()
	settlement := newFakeSettlement()
	compliance := &fakeCompliance{approved: true}
	producer := &fakePublisher{}
	memory := cache.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewTradingService(store, settlement, compliance, memory, producer, logger, nil, DefaultTopics())
	return &testEnv{svc: svc, store: store, settlement: settlement, compliance: compliance, producer: producer, cache: memory}
}

func (e *testEnv) seedTrader(role string) uuid.UUID {
	id := uuid.New()
	e.store.traders[id] = &storage.Trader{
		ID:                id,
		Email:             id.String() + "@homesure.dev",
		SettlementAccount: "0x3333333333333333333333333333333333333333",
		Role:              role,
		Status:            "active",
	}
	return id
}

func (e *testEnv) seedOrder(id, propertyID int64, traderID uuid.UUID, side string) *storage.Order {
	order := &storage.Order{
		ID:         id,
		PropertyID: propertyID,
		TraderID:   traderID,
		Side:       side,
		Price:      decimal.NewFromInt(5),
		Quantity:   decimal.NewFromInt(10),
		Expiry:     time.Now().Add(time.Hour),
		Status:     storage.OrderStatusOpen,
		TxHash:     "0xseed",
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	e.store.orders[id] = order
	return order
}

func validCreateInput(traderID uuid.UUID) CreateOrderInput {
	return CreateOrderInput{
		TraderID:   traderID,
		PropertyID: 42,
		Side:       storage.SideBuy,
		Price:      decimal.NewFromInt(5),
		Quantity:   decimal.NewFromInt(10),
		Expiry:     time.Now().Add(time.Hour),
	}
}

func TestCreateOrderCommitsAfterConfirmation(t *testing.T) {
	env := newTestEnv()
	traderID := env.seedTrader(storage.RoleTrader)
	env.store.properties[42] = true

	order, err := env.svc.CreateOrder(context.Background(), validCreateInput(traderID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ID != 101 {
		t.Fatalf("expected ledger-assigned id 101, got %d", order.ID)
	}
	if order.Status != storage.OrderStatusOpen {
		t.Fatalf("expected open, got %s", order.Status)
	}
	if order.TxHash != "0xfeed" {
		t.Fatalf("expected tx hash from confirmation, got %s", order.TxHash)
	}
	if _, err := env.store.GetOrder(context.Background(), order.ID); err != nil {
		t.Fatalf("order not committed: %v", err)
	}

	topics := env.producer.topics()
	if len(topics) != 1 || topics[0] != "trading.orders.created" {
		t.Fatalf("expected one orders.created event, got %v", topics)
	}
	if len(env.store.audits) != 1 || env.store.audits[0].Action != "orders.create" {
		t.Fatalf("expected one orders.create audit row, got %+v", env.store.audits)
	}
}

func TestCreateOrderSettlementFailureLeavesNoRow(t *testing.T) {
	env := newTestEnv()
	traderID := env.seedTrader(storage.RoleTrader)
	env.store.properties[42] = true
	env.settlement.createErr = &chain.RevertedError{Op: "create_order"}

	_, err := env.svc.CreateOrder(context.Background(), validCreateInput(traderID))
	if err == nil {
		t.Fatal("expected settlement error")
	}
	var reverted *chain.RevertedError
	if !errors.As(err, &reverted) {
		t.Fatalf("expected RevertedError, got %v", err)
	}
	if len(env.store.orders) != 0 {
		t.Fatalf("no local row should exist after settlement failure, got %d", len(env.store.orders))
	}
	if len(env.producer.topics()) != 0 {
		t.Fatal("nothing should be published on settlement failure")
	}
}

func TestCreateOrderRequiresCompliance(t *testing.T) {
	env := newTestEnv()
	traderID := env.seedTrader(storage.RoleTrader)
	env.store.properties[42] = true
	env.compliance.approved = false

	_, err := env.svc.CreateOrder(context.Background(), validCreateInput(traderID))
	if !errors.Is(err, ErrComplianceRequired) {
		t.Fatalf("expected ErrComplianceRequired, got %v", err)
	}
	if env.settlement.callCount("create_order") != 0 {
		t.Fatal("settlement must not be reached without compliance approval")
	}
}

func TestCreateOrderSellChecksAllowance(t *testing.T) {
	env := newTestEnv()
	traderID := env.seedTrader(storage.RoleTrader)
	env.store.properties[42] = true
	env.settlement.allowance = decimal.NewFromInt(3)

	input := validCreateInput(traderID)
	input.Side = storage.SideSell
	_, err := env.svc.CreateOrder(context.Background(), input)
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
	if env.settlement.callCount("create_order") != 0 {
		t.Fatal("settlement must not be reached without allowance")
	}

	// Buys skip the allowance probe entirely.
	input.Side = storage.SideBuy
	if _, err := env.svc.CreateOrder(context.Background(), input); err != nil {
		t.Fatalf("buy should not require allowance: %v", err)
	}
	if env.settlement.callCount("allowance") != 1 {
		t.Fatalf("expected a single allowance call, got %d", env.settlement.callCount("allowance"))
	}
}

func TestCreateOrderValidation(t *testing.T) {
	env := newTestEnv()
	traderID := env.seedTrader(storage.RoleTrader)
	env.store.properties[42] = true

	cases := []struct {
		name   string
		mutate func(*CreateOrderInput)
	}{
		{"bad side", func(in *CreateOrderInput) { in.Side = "short" }},
		{"zero price", func(in *CreateOrderInput) { in.Price = decimal.Zero }},
		{"negative quantity", func(in *CreateOrderInput) { in.Quantity = decimal.NewFromInt(-1) }},
		{"past expiry", func(in *CreateOrderInput) { in.Expiry = time.Now().Add(-time.Minute) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validCreateInput(traderID)
			tc.mutate(&input)
			if _, err := env.svc.CreateOrder(context.Background(), input); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestCreateOrderUnknownProperty(t *testing.T) {
	env := newTestEnv()
	traderID := env.seedTrader(storage.RoleTrader)

	_, err := env.svc.CreateOrder(context.Background(), validCreateInput(traderID))
	if !errors.Is(err, ErrPropertyNotFound) {
		t.Fatalf("expected ErrPropertyNotFound, got %v", err)
	}
}

func TestCancelOrderOwnerOrAdmin(t *testing.T) {
	env := newTestEnv()
	owner := env.seedTrader(storage.RoleTrader)
	stranger := env.seedTrader(storage.RoleTrader)
	admin := env.seedTrader(storage.RoleAdmin)
	env.seedOrder(7, 42, owner, storage.SideBuy)
	env.seedOrder(8, 42, owner, storage.SideBuy)

	if _, err := env.svc.CancelOrder(context.Background(), CancelOrderInput{OrderID: 7, RequesterID: stranger}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for stranger, got %v", err)
	}
	if _, err := env.svc.CancelOrder(context.Background(), CancelOrderInput{OrderID: 7, RequesterID: owner}); err != nil {
		t.Fatalf("owner cancel: %v", err)
	}
	if _, err := env.svc.CancelOrder(context.Background(), CancelOrderInput{OrderID: 8, RequesterID: admin}); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
}

func TestCancelOrderTwice(t *testing.T) {
	env := newTestEnv()
	owner := env.seedTrader(storage.RoleTrader)
	env.seedOrder(7, 42, owner, storage.SideBuy)

	if _, err := env.svc.CancelOrder(context.Background(), CancelOrderInput{OrderID: 7, RequesterID: owner}); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	_, err := env.svc.CancelOrder(context.Background(), CancelOrderInput{OrderID: 7, RequesterID: owner})
	if !errors.Is(err, storage.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus on second cancel, got %v", err)
	}
	if env.settlement.callCount("cancel_order") != 1 {
		t.Fatalf("second cancel must not reach settlement, got %d calls", env.settlement.callCount("cancel_order"))
	}
}

func TestConcurrentCancelsExactlyOneSucceeds(t *testing.T) {
	env := newTestEnv()
	owner := env.seedTrader(storage.RoleTrader)
	env.seedOrder(7, 42, owner, storage.SideBuy)

	const workers = 4
	results := make(chan error, workers)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < workers; i++ {
		go func() {
			start.Wait()
			_, err := env.svc.CancelOrder(context.Background(), CancelOrderInput{OrderID: 7, RequesterID: owner})
			results <- err
		}()
	}
	start.Done()

	var succeeded, conflicted, invalid int
	for i := 0; i < workers; i++ {
		err := <-results
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrConflict):
			conflicted++
		case errors.Is(err, storage.ErrInvalidStatus):
			invalid++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("exactly one cancel should succeed, got %d", succeeded)
	}
	if conflicted+invalid != workers-1 {
		t.Fatalf("losers should fail with conflict or invalid state, got %d/%d", conflicted, invalid)
	}
}

func TestMatchOrdersRecordsTrade(t *testing.T) {
	env := newTestEnv()
	trader := env.seedTrader(storage.RoleTrader)
	matcher := env.seedTrader(storage.RoleMatcher)
	env.seedOrder(7, 42, trader, storage.SideBuy)
	env.seedOrder(8, 42, trader, storage.SideSell)

	trade, err := env.svc.MatchOrders(context.Background(), MatchOrdersInput{
		BuyOrderID:  7,
		SellOrderID: 8,
		Quantity:    decimal.NewFromInt(10),
		RequesterID: matcher,
	})
	if err != nil {
		t.Fatalf("match orders: %v", err)
	}
	if trade.ID != 501 {
		t.Fatalf("expected ledger-assigned trade id 501, got %d", trade.ID)
	}
	if !trade.Price.Equal(decimal.NewFromInt(5)) || !trade.Quantity.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("trade price/quantity mismatch: %s @ %s", trade.Quantity, trade.Price)
	}
	if !trade.TotalAmount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected total 50, got %s", trade.TotalAmount)
	}

	buy, _ := env.store.GetOrder(context.Background(), 7)
	sell, _ := env.store.GetOrder(context.Background(), 8)
	if buy.Status != storage.OrderStatusFilled || sell.Status != storage.OrderStatusFilled {
		t.Fatalf("expected both orders filled, got %s/%s", buy.Status, sell.Status)
	}

	topics := env.producer.topics()
	if len(topics) != 1 || topics[0] != "trading.trades.executed" {
		t.Fatalf("expected trades.executed event, got %v", topics)
	}
}

func TestMatchOrdersRequiresMatcherRole(t *testing.T) {
	env := newTestEnv()
	trader := env.seedTrader(storage.RoleTrader)
	env.seedOrder(7, 42, trader, storage.SideBuy)
	env.seedOrder(8, 42, trader, storage.SideSell)

	_, err := env.svc.MatchOrders(context.Background(), MatchOrdersInput{
		BuyOrderID:  7,
		SellOrderID: 8,
		Quantity:    decimal.NewFromInt(10),
		RequesterID: trader,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if env.settlement.callCount("match_orders") != 0 {
		t.Fatal("settlement must not be reached without the matcher role")
	}
}

func TestMatchOrdersSettlementFailureLeavesOrdersUntouched(t *testing.T) {
	env := newTestEnv()
	trader := env.seedTrader(storage.RoleTrader)
	matcher := env.seedTrader(storage.RoleMatcher)
	env.seedOrder(7, 42, trader, storage.SideBuy)
	env.seedOrder(8, 42, trader, storage.SideSell)
	env.settlement.matchErr = &chain.RevertedError{Op: "match_orders"}

	_, err := env.svc.MatchOrders(context.Background(), MatchOrdersInput{
		BuyOrderID:  7,
		SellOrderID: 8,
		Quantity:    decimal.NewFromInt(10),
		RequesterID: matcher,
	})
	if err == nil {
		t.Fatal("expected settlement error")
	}
	buy, _ := env.store.GetOrder(context.Background(), 7)
	if buy.Status != storage.OrderStatusOpen || !buy.FilledQuantity.IsZero() {
		t.Fatalf("buy order must be untouched, got %s filled %s", buy.Status, buy.FilledQuantity)
	}
	if len(env.store.trades) != 0 {
		t.Fatal("no trade row should exist")
	}
}

func TestEscrowLifecycle(t *testing.T) {
	env := newTestEnv()
	manager := env.seedTrader(storage.RoleEscrowManager)
	env.store.trades[501] = &storage.Trade{ID: 501, PropertyID: 42}

	escrow, err := env.svc.CreateEscrow(context.Background(), CreateEscrowInput{
		TradeID:     501,
		Amount:      decimal.NewFromInt(50),
		Conditions:  "deed transfer recorded",
		RequesterID: manager,
	})
	if err != nil {
		t.Fatalf("create escrow: %v", err)
	}
	if escrow.ID != 901 || escrow.Status != storage.EscrowStatusPending {
		t.Fatalf("unexpected escrow %+v", escrow)
	}

	released, err := env.svc.ReleaseEscrow(context.Background(), ResolveEscrowInput{EscrowID: escrow.ID, RequesterID: manager})
	if err != nil {
		t.Fatalf("release escrow: %v", err)
	}
	if released.Status != storage.EscrowStatusReleased {
		t.Fatalf("expected released, got %s", released.Status)
	}

	_, err = env.svc.RefundEscrow(context.Background(), ResolveEscrowInput{EscrowID: escrow.ID, RequesterID: manager})
	if !errors.Is(err, storage.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus refunding a released escrow, got %v", err)
	}
	if env.settlement.callCount("refund_escrow") != 0 {
		t.Fatal("refund must not reach settlement once released")
	}
}

func TestCreateEscrowRequiresRole(t *testing.T) {
	env := newTestEnv()
	trader := env.seedTrader(storage.RoleTrader)
	env.store.trades[501] = &storage.Trade{ID: 501}

	_, err := env.svc.CreateEscrow(context.Background(), CreateEscrowInput{
		TradeID:     501,
		Amount:      decimal.NewFromInt(50),
		RequesterID: trader,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCreateEscrowUnknownTrade(t *testing.T) {
	env := newTestEnv()
	manager := env.seedTrader(storage.RoleEscrowManager)

	_, err := env.svc.CreateEscrow(context.Background(), CreateEscrowInput{
		TradeID:     999,
		Amount:      decimal.NewFromInt(50),
		RequesterID: manager,
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if env.settlement.callCount("create_escrow") != 0 {
		t.Fatal("settlement must not be reached for an unknown trade")
	}
}

func TestSettlementStatusPassthrough(t *testing.T) {
	env := newTestEnv()
	env.settlement.status = &chain.SubmissionStatus{TxHash: "0xabc", Found: true, Confirmed: true, BlockNumber: 12}

	status, err := env.svc.SettlementStatus(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("settlement status: %v", err)
	}
	if !status.Found || !status.Confirmed || status.BlockNumber != 12 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	env := newTestEnv()
	traderID := env.seedTrader(storage.RoleTrader)
	env.store.properties[42] = true
	env.producer.err = errors.New("broker down")

	if _, err := env.svc.CreateOrder(context.Background(), validCreateInput(traderID)); err != nil {
		t.Fatalf("publish failure must not fail the operation: %v", err)
	}
}
