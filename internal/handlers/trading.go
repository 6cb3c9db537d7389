package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/romico/HomeSure-sub002/internal/chain"
	"github.com/romico/HomeSure-sub002/internal/service"
	"github.com/romico/HomeSure-sub002/internal/storage"
	"github.com/romico/HomeSure-sub002/libs/auth"
	"github.com/shopspring/decimal"
	"log/slog"
)

type TradingService interface {
	CreateOrder(ctx context.Context, input service.CreateOrderInput) (*storage.Order, error)
	CancelOrder(ctx context.Context, input service.CancelOrderInput) (*storage.Order, error)
	MatchOrders(ctx context.Context, input service.MatchOrdersInput) (*storage.Trade, error)
	CreateEscrow(ctx context.Context, input service.CreateEscrowInput) (*storage.Escrow, error)
	ReleaseEscrow(ctx context.Context, input service.ResolveEscrowInput) (*storage.Escrow, error)
	RefundEscrow(ctx context.Context, input service.ResolveEscrowInput) (*storage.Escrow, error)
	SettlementStatus(ctx context.Context, txHash string) (*chain.SubmissionStatus, error)

	GetOrder(ctx context.Context, orderID int64) (*storage.Order, bool, error)
	ListOrders(ctx context.Context, filter storage.OrderFilter) (*service.OrderPage, bool, error)
	GetOrderBook(ctx context.Context, propertyID int64) (*storage.OrderBook, bool, error)
	GetTrade(ctx context.Context, tradeID int64) (*storage.Trade, error)
	GetProperty(ctx context.Context, propertyID int64) (*storage.Property, error)
	ListTrades(ctx context.Context, filter storage.TradeFilter) (*service.TradePage, bool, error)
	GetTradingStats(ctx context.Context, propertyID int64) (*storage.TradingStats, bool, error)
	GetEscrow(ctx context.Context, escrowID int64) (*storage.Escrow, bool, error)
}

type Handler struct {
	Service TradingService
	Logger  *slog.Logger
}

func New(svc TradingService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Service: svc, Logger: logger}
}

func (h *Handler) Register(r *gin.Engine, jwtSecret []byte) {
	group := r.Group("/", auth.Middleware(jwtSecret))
	group.POST("/orders", h.CreateOrder)
	group.GET("/orders", h.ListOrders)
	group.GET("/orders/:id", h.GetOrder)
	group.DELETE("/orders/:id", h.CancelOrder)
	group.POST("/matches", h.MatchOrders)
	group.GET("/trades", h.ListTrades)
	group.GET("/trades/:id", h.GetTrade)
	group.GET("/properties/:id", h.GetProperty)
	group.GET("/properties/:id/book", h.GetOrderBook)
	group.GET("/properties/:id/stats", h.GetTradingStats)
	group.POST("/escrows", h.CreateEscrow)
	group.GET("/escrows/:id", h.GetEscrow)
	group.POST("/escrows/:id/release", h.ReleaseEscrow)
	group.POST("/escrows/:id/refund", h.RefundEscrow)
	group.GET("/settlements/:txhash", h.GetSettlementStatus)
}

type createOrderRequest struct {
	PropertyID int64  `json:"property_id"`
	Side       string `json:"side"`
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
	Expiry     string `json:"expiry"`
}

type orderItem struct {
	OrderID    int64  `json:"order_id"`
	PropertyID int64  `json:"property_id"`
	TraderID   string `json:"trader_id"`
	Side       string `json:"side"`
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
	Filled     string `json:"filled_quantity"`
	Remaining  string `json:"remaining_quantity"`
	Expiry     string `json:"expiry"`
	Status     string `json:"status"`
	TxHash     string `json:"tx_hash"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type listOrdersResponse struct {
	Orders     []orderItem `json:"orders"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

type matchOrdersRequest struct {
	BuyOrderID  int64  `json:"buy_order_id"`
	SellOrderID int64  `json:"sell_order_id"`
	Quantity    string `json:"quantity"`
}

type tradeItem struct {
	TradeID     int64  `json:"trade_id"`
	BuyOrderID  int64  `json:"buy_order_id"`
	SellOrderID int64  `json:"sell_order_id"`
	PropertyID  int64  `json:"property_id"`
	Price       string `json:"price"`
	Quantity    string `json:"quantity"`
	TotalAmount string `json:"total_amount"`
	Buyer       string `json:"buyer"`
	Seller      string `json:"seller"`
	TxHash      string `json:"tx_hash"`
	ExecutedAt  string `json:"executed_at"`
}

type listTradesResponse struct {
	Trades     []tradeItem `json:"trades"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

type createEscrowRequest struct {
	TradeID    int64  `json:"trade_id"`
	Amount     string `json:"amount"`
	Conditions string `json:"conditions"`
}

type escrowItem struct {
	EscrowID       int64  `json:"escrow_id"`
	TradeID        int64  `json:"trade_id"`
	Amount         string `json:"amount"`
	Conditions     string `json:"conditions,omitempty"`
	Status         string `json:"status"`
	TxHash         string `json:"tx_hash"`
	ResolvedTxHash string `json:"resolved_tx_hash,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type bookLevelItem struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

type orderBookResponse struct {
	PropertyID int64           `json:"property_id"`
	Bids       []bookLevelItem `json:"bids"`
	Asks       []bookLevelItem `json:"asks"`
}

type statsResponse struct {
	PropertyID  int64  `json:"property_id"`
	TradeCount  int64  `json:"trade_count"`
	TotalVolume string `json:"total_volume"`
	TotalValue  string `json:"total_value"`
	AvgPrice    string `json:"avg_price"`
	LastPrice   string `json:"last_price,omitempty"`
}

type settlementStatusResponse struct {
	TxHash      string `json:"tx_hash"`
	Found       bool   `json:"found"`
	Confirmed   bool   `json:"confirmed"`
	Reverted    bool   `json:"reverted"`
	BlockNumber uint64 `json:"block_number,omitempty"`
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func (h *Handler) CreateOrder(c *gin.Context) {
	traderID, ok := traderIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing trader", nil)
		return
	}

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload", nil)
		return
	}

	price, err := decimal.NewFromString(strings.TrimSpace(req.Price))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid price", nil)
		return
	}
	quantity, err := decimal.NewFromString(strings.TrimSpace(req.Quantity))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid quantity", nil)
		return
	}
	expiry, err := time.Parse(time.RFC3339, strings.TrimSpace(req.Expiry))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid expiry", nil)
		return
	}

	order, err := h.Service.CreateOrder(c.Request.Context(), service.CreateOrderInput{
		TraderID:      traderID,
		PropertyID:    req.PropertyID,
		Side:          strings.ToLower(strings.TrimSpace(req.Side)),
		Price:         price,
		Quantity:      quantity,
		Expiry:        expiry,
		CorrelationID: requestIDFromContext(c),
	})
	if err != nil {
		h.writeServiceError(c, "create order", err)
		return
	}

	c.JSON(http.StatusCreated, orderToItem(*order))
}

func (h *Handler) GetOrder(c *gin.Context) {
	orderID, err := parseIDParam(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid order id", nil)
		return
	}

	order, cached, err := h.Service.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.writeServiceError(c, "get order", err)
		return
	}

	setCacheHeader(c, cached)
	c.JSON(http.StatusOK, orderToItem(*order))
}

func (h *Handler) ListOrders(c *gin.Context) {
	filter := storage.OrderFilter{
		Status: strings.ToLower(strings.TrimSpace(c.Query("status"))),
		Side:   strings.ToLower(strings.TrimSpace(c.Query("side"))),
		Cursor: strings.TrimSpace(c.Query("cursor")),
	}

	if raw := strings.TrimSpace(c.Query("property_id")); raw != "" {
		propertyID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid property_id", nil)
			return
		}
		filter.PropertyID = &propertyID
	}
	if raw := strings.TrimSpace(c.Query("trader_id")); raw != "" {
		traderID, err := uuid.Parse(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid trader_id", nil)
			return
		}
		filter.TraderID = &traderID
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid limit", nil)
			return
		}
		filter.Limit = n
	}

	page, cached, err := h.Service.ListOrders(c.Request.Context(), filter)
	if err != nil {
		h.writeServiceError(c, "list orders", err)
		return
	}

	items := make([]orderItem, 0, len(page.Orders))
	for _, order := range page.Orders {
		items = append(items, orderToItem(order))
	}
	setCacheHeader(c, cached)
	c.JSON(http.StatusOK, listOrdersResponse{Orders: items, NextCursor: page.NextCursor})
}

func (h *Handler) CancelOrder(c *gin.Context) {
	traderID, ok := traderIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing trader", nil)
		return
	}
	orderID, err := parseIDParam(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid order id", nil)
		return
	}

	order, err := h.Service.CancelOrder(c.Request.Context(), service.CancelOrderInput{
		OrderID:       orderID,
		RequesterID:   traderID,
		CorrelationID: requestIDFromContext(c),
	})
	if err != nil {
		h.writeServiceError(c, "cancel order", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id":   order.ID,
		"status":     order.Status,
		"tx_hash":    order.TxHash,
		"updated_at": order.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) MatchOrders(c *gin.Context) {
	traderID, ok := traderIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing trader", nil)
		return
	}

	var req matchOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload", nil)
		return
	}
	quantity, err := decimal.NewFromString(strings.TrimSpace(req.Quantity))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid quantity", nil)
		return
	}

	trade, err := h.Service.MatchOrders(c.Request.Context(), service.MatchOrdersInput{
		BuyOrderID:    req.BuyOrderID,
		SellOrderID:   req.SellOrderID,
		Quantity:      quantity,
		RequesterID:   traderID,
		CorrelationID: requestIDFromContext(c),
	})
	if err != nil {
		h.writeServiceError(c, "match orders", err)
		return
	}

	c.JSON(http.StatusCreated, tradeToItem(*trade))
}

func (h *Handler) GetTrade(c *gin.Context) {
	tradeID, err := parseIDParam(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid trade id", nil)
		return
	}

	trade, err := h.Service.GetTrade(c.Request.Context(), tradeID)
	if err != nil {
		h.writeServiceError(c, "get trade", err)
		return
	}

	c.JSON(http.StatusOK, tradeToItem(*trade))
}

func (h *Handler) ListTrades(c *gin.Context) {
	filter := storage.TradeFilter{Cursor: strings.TrimSpace(c.Query("cursor"))}

	if raw := strings.TrimSpace(c.Query("property_id")); raw != "" {
		propertyID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid property_id", nil)
			return
		}
		filter.PropertyID = &propertyID
	}
	if raw := strings.TrimSpace(c.Query("order_id")); raw != "" {
		orderID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid order_id", nil)
			return
		}
		filter.OrderID = &orderID
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid limit", nil)
			return
		}
		filter.Limit = n
	}

	page, cached, err := h.Service.ListTrades(c.Request.Context(), filter)
	if err != nil {
		h.writeServiceError(c, "list trades", err)
		return
	}

	items := make([]tradeItem, 0, len(page.Trades))
	for _, trade := range page.Trades {
		items = append(items, tradeToItem(trade))
	}
	setCacheHeader(c, cached)
	c.JSON(http.StatusOK, listTradesResponse{Trades: items, NextCursor: page.NextCursor})
}

func (h *Handler) GetProperty(c *gin.Context) {
	propertyID, err := parseIDParam(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid property id", nil)
		return
	}

	property, err := h.Service.GetProperty(c.Request.Context(), propertyID)
	if err != nil {
		h.writeServiceError(c, "get property", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"property_id": property.ID,
		"name":        property.Name,
		"location":    property.Location,
		"status":      property.Status,
	})
}

func (h *Handler) GetOrderBook(c *gin.Context) {
	propertyID, err := parseIDParam(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid property id", nil)
		return
	}

	book, cached, err := h.Service.GetOrderBook(c.Request.Context(), propertyID)
	if err != nil {
		h.writeServiceError(c, "order book", err)
		return
	}

	resp := orderBookResponse{PropertyID: book.PropertyID, Bids: []bookLevelItem{}, Asks: []bookLevelItem{}}
	for _, level := range book.Bids {
		resp.Bids = append(resp.Bids, bookLevelItem{Price: level.Price.String(), Quantity: level.Quantity.String()})
	}
	for _, level := range book.Asks {
		resp.Asks = append(resp.Asks, bookLevelItem{Price: level.Price.String(), Quantity: level.Quantity.String()})
	}
	setCacheHeader(c, cached)
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetTradingStats(c *gin.Context) {
	propertyID, err := parseIDParam(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid property id", nil)
		return
	}

	stats, cached, err := h.Service.GetTradingStats(c.Request.Context(), propertyID)
	if err != nil {
		h.writeServiceError(c, "trading stats", err)
		return
	}

	resp := statsResponse{
		PropertyID:  stats.PropertyID,
		TradeCount:  stats.TradeCount,
		TotalVolume: stats.TotalVolume.String(),
		TotalValue:  stats.TotalValue.String(),
		AvgPrice:    stats.AvgPrice.String(),
	}
	if !stats.LastPrice.IsZero() {
		resp.LastPrice = stats.LastPrice.String()
	}
	setCacheHeader(c, cached)
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) CreateEscrow(c *gin.Context) {
	traderID, ok := traderIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing trader", nil)
		return
	}

	var req createEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload", nil)
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid amount", nil)
		return
	}

	escrow, err := h.Service.CreateEscrow(c.Request.Context(), service.CreateEscrowInput{
		TradeID:       req.TradeID,
		Amount:        amount,
		Conditions:    strings.TrimSpace(req.Conditions),
		RequesterID:   traderID,
		CorrelationID: requestIDFromContext(c),
	})
	if err != nil {
		h.writeServiceError(c, "create escrow", err)
		return
	}

	c.JSON(http.StatusCreated, escrowToItem(*escrow))
}

func (h *Handler) GetEscrow(c *gin.Context) {
	escrowID, err := parseIDParam(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid escrow id", nil)
		return
	}

	escrow, cached, err := h.Service.GetEscrow(c.Request.Context(), escrowID)
	if err != nil {
		h.writeServiceError(c, "get escrow", err)
		return
	}

	setCacheHeader(c, cached)
	c.JSON(http.StatusOK, escrowToItem(*escrow))
}

func (h *Handler) ReleaseEscrow(c *gin.Context) {
	h.resolveEscrow(c, h.Service.ReleaseEscrow, "release escrow")
}

func (h *Handler) RefundEscrow(c *gin.Context) {
	h.resolveEscrow(c, h.Service.RefundEscrow, "refund escrow")
}

func (h *Handler) resolveEscrow(c *gin.Context, resolve func(context.Context, service.ResolveEscrowInput) (*storage.Escrow, error), op string) {
	traderID, ok := traderIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing trader", nil)
		return
	}
	escrowID, err := parseIDParam(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid escrow id", nil)
		return
	}

	escrow, err := resolve(c.Request.Context(), service.ResolveEscrowInput{
		EscrowID:      escrowID,
		RequesterID:   traderID,
		CorrelationID: requestIDFromContext(c),
	})
	if err != nil {
		h.writeServiceError(c, op, err)
		return
	}

	c.JSON(http.StatusOK, escrowToItem(*escrow))
}

func (h *Handler) GetSettlementStatus(c *gin.Context) {
	txHash := strings.TrimSpace(c.Param("txhash"))
	if txHash == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "missing tx hash", nil)
		return
	}

	status, err := h.Service.SettlementStatus(c.Request.Context(), txHash)
	if err != nil {
		h.writeServiceError(c, "settlement status", err)
		return
	}

	c.JSON(http.StatusOK, settlementStatusResponse{
		TxHash:      status.TxHash,
		Found:       status.Found,
		Confirmed:   status.Confirmed,
		Reverted:    status.Reverted,
		BlockNumber: status.BlockNumber,
	})
}

// writeServiceError maps lifecycle and settlement failures onto stable error
// codes. Settlement failures that happened after dispatch carry the tx hash
// so clients can poll /settlements/:txhash.
func (h *Handler) writeServiceError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	case errors.Is(err, service.ErrComplianceRequired):
		writeError(c, http.StatusForbidden, "COMPLIANCE_REQUIRED", "trader is not compliance approved", nil)
	case errors.Is(err, service.ErrInsufficientAllowance):
		writeError(c, http.StatusBadRequest, "INSUFFICIENT_ALLOWANCE", "settlement allowance below order quantity", nil)
	case errors.Is(err, service.ErrForbidden):
		writeError(c, http.StatusForbidden, "FORBIDDEN", "not allowed", nil)
	case errors.Is(err, service.ErrPropertyNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "property not found or inactive", nil)
	case errors.Is(err, storage.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "not found", nil)
	case errors.Is(err, service.ErrConflict):
		writeError(c, http.StatusConflict, "CONFLICT", "state changed concurrently, refetch and retry", nil)
	case errors.Is(err, storage.ErrInvalidStatus):
		writeError(c, http.StatusConflict, "INVALID_STATE", "not in a state that allows this operation", nil)
	case errors.Is(err, storage.ErrInvalidCursor):
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid cursor", nil)
	case chain.IsSettlementError(err):
		h.Logger.Error(op+" settlement failed", "error", err)
		code := "SETTLEMENT_FAILED"
		var mismatch *chain.ReceiptMismatchError
		if errors.As(err, &mismatch) {
			code = "RECEIPT_MISMATCH"
		}
		var details map[string]string
		if txHash, ok := chain.TxHashFromError(err); ok {
			details = map[string]string{"tx_hash": txHash.Hex()}
		}
		writeError(c, http.StatusBadGateway, code, "settlement failed", details)
	default:
		h.Logger.Error(op+" failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
	}
}

func orderToItem(order storage.Order) orderItem {
	return orderItem{
		OrderID:    order.ID,
		PropertyID: order.PropertyID,
		TraderID:   order.TraderID.String(),
		Side:       order.Side,
		Price:      order.Price.String(),
		Quantity:   order.Quantity.String(),
		Filled:     order.FilledQuantity.String(),
		Remaining:  order.RemainingQuantity().String(),
		Expiry:     order.Expiry.UTC().Format(time.RFC3339),
		Status:     order.Status,
		TxHash:     order.TxHash,
		CreatedAt:  order.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  order.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func tradeToItem(trade storage.Trade) tradeItem {
	return tradeItem{
		TradeID:     trade.ID,
		BuyOrderID:  trade.BuyOrderID,
		SellOrderID: trade.SellOrderID,
		PropertyID:  trade.PropertyID,
		Price:       trade.Price.String(),
		Quantity:    trade.Quantity.String(),
		TotalAmount: trade.TotalAmount.String(),
		Buyer:       trade.Buyer,
		Seller:      trade.Seller,
		TxHash:      trade.TxHash,
		ExecutedAt:  trade.ExecutedAt.UTC().Format(time.RFC3339),
	}
}

func escrowToItem(escrow storage.Escrow) escrowItem {
	return escrowItem{
		EscrowID:       escrow.ID,
		TradeID:        escrow.TradeID,
		Amount:         escrow.Amount.String(),
		Conditions:     escrow.Conditions,
		Status:         escrow.Status,
		TxHash:         escrow.TxHash,
		ResolvedTxHash: escrow.ResolvedTxHash,
		CreatedAt:      escrow.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      escrow.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func traderIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	val, ok := c.Get(auth.ContextUserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	raw, ok := val.(string)
	if !ok {
		return uuid.Nil, false
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return parsed, true
}

func requestIDFromContext(c *gin.Context) string {
	val, ok := c.Get("X-Request-ID")
	if !ok {
		return ""
	}
	id, _ := val.(string)
	return id
}

func parseIDParam(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errors.New("missing id")
	}
	id, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, errors.New("id must be positive")
	}
	return id, nil
}

func setCacheHeader(c *gin.Context, cached bool) {
	if cached {
		c.Header("X-Cache", "HIT")
		return
	}
	c.Header("X-Cache", "MISS")
}

func writeError(c *gin.Context, status int, code, message string, details map[string]string) {
	resp := errorResponse{Code: code, Message: message, Details: details}
	c.JSON(status, resp)
}
