package handler

import (
	"net/http"
	"strconv"

	"ignitia/internal/model"
	"ignitia/internal/service"
	"ignitia/pkg/apperr"
	"ignitia/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handler adapts the services to HTTP. The caller's identity always comes
// from the auth middleware, never from the request body.
type Handler struct {
	svc *service.Services
}

func NewHandler(svc *service.Services) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// queryInt parses an optional positive integer query parameter.
func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, apperr.Newf(apperr.CodeValidation, "%s must be a positive integer", key)
	}
	return v, nil
}

// ============================================================
// Wallet
// ============================================================

// GET /api/v1/wallet
func (h *Handler) GetWallet(c *gin.Context) {
	wallet, err := h.svc.Wallet.GetWallet(c.Request.Context(), currentUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, wallet)
}

// GET /api/v1/wallet/balance
func (h *Handler) GetBalance(c *gin.Context) {
	userID := currentUserID(c)
	balance, err := h.svc.Wallet.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"user_id": userID,
		"balance": balance,
	})
}

// GET /api/v1/wallet/transactions?limit=50
func (h *Handler) ListTransactions(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		response.Fail(c, err)
		return
	}
	txns, err := h.svc.Wallet.ListTransactions(c.Request.Context(), currentUserID(c), limit)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"transactions": txns})
}

type AddFundsRequest struct {
	Amount int64 `json:"amount" binding:"required,amount"`
}

// POST /api/v1/wallet/credit
func (h *Handler) AddFunds(c *gin.Context) {
	var req AddFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, bindError(err))
		return
	}

	userID := currentUserID(c)
	txn, err := h.svc.Wallet.AddFunds(c.Request.Context(), userID, req.Amount)
	if err != nil {
		response.Fail(c, err)
		return
	}
	balance, err := h.svc.Wallet.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"transaction": txn,
		"balance":     balance,
	})
}

// ============================================================
// Merch
// ============================================================

// GET /api/v1/merch/catalog
func (h *Handler) GetCatalog(c *gin.Context) {
	items, err := h.svc.Catalog.GetCatalog(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"items": items})
}

type OrderLine struct {
	ItemID   string `json:"itemId" binding:"required"`
	Quantity int64  `json:"quantity" binding:"required,gt=0"`
}

type CreateOrderRequest struct {
	Items []OrderLine `json:"items" binding:"required,min=1,dive"`
}

// POST /api/v1/merch/orders
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, bindError(err))
		return
	}

	lines := make([]model.StockLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, model.StockLine{ItemID: item.ItemID, Quantity: item.Quantity})
	}
	order, err := h.svc.Order.CreateOrder(c.Request.Context(), currentUserID(c), lines)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, order)
}

// GET /api/v1/merch/orders?page=1&page_size=10
func (h *Handler) ListOrders(c *gin.Context) {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		response.Fail(c, err)
		return
	}
	pageSize, err := queryInt(c, "page_size", 10)
	if err != nil {
		response.Fail(c, err)
		return
	}

	orders, total, err := h.svc.Order.ListOrders(c.Request.Context(), currentUserID(c), page, pageSize)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GET /api/v1/merch/orders/:id
func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.svc.Order.GetOrder(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, order)
}

// POST /api/v1/merch/orders/:id/checkout
func (h *Handler) Checkout(c *gin.Context) {
	result, err := h.svc.Order.Checkout(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// POST /api/v1/merch/orders/:id/cancel
func (h *Handler) CancelOrder(c *gin.Context) {
	order, err := h.svc.Order.CancelOrder(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, order)
}

// ============================================================
// Events
// ============================================================

// GET /api/v1/events
func (h *Handler) ListEvents(c *gin.Context) {
	events, err := h.svc.Registration.ListEvents(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"events": events})
}

// GET /api/v1/events/leaderboard
func (h *Handler) Leaderboard(c *gin.Context) {
	events, err := h.svc.Registration.Leaderboard(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"leaderboard": events})
}

// POST /api/v1/events/:id/register
func (h *Handler) RegisterForEvent(c *gin.Context) {
	result, err := h.svc.Registration.Register(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// GET /api/v1/events/registrations
func (h *Handler) ListRegistrations(c *gin.Context) {
	regs, err := h.svc.Registration.ListRegistrations(c.Request.Context(), currentUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"registrations": regs})
}

type UpdateRegistrationRequest struct {
	UserID  string `json:"userId" binding:"required"`
	EventID string `json:"eventId" binding:"required"`
	Status  string `json:"status" binding:"required,registration_status"`
}

// POST /api/v1/admin/registrations/status
func (h *Handler) UpdateRegistrationStatus(c *gin.Context) {
	var req UpdateRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, bindError(err))
		return
	}
	reg, err := h.svc.Registration.UpdateRegistrationStatus(c.Request.Context(), req.UserID, req.EventID, req.Status)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, reg)
}

// ============================================================
// Payments
// ============================================================

type InitiatePaymentRequest struct {
	Amount int64  `json:"amount" binding:"required,amount"`
	Method string `json:"method" binding:"omitempty,payment_method"`
	UpiID  string `json:"upiId"`
}

// POST /api/v1/payments/initiate
func (h *Handler) InitiatePayment(c *gin.Context) {
	var req InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, bindError(err))
		return
	}

	payment, err := h.svc.Payment.Initiate(c.Request.Context(), currentUserID(c), service.InitiatePaymentRequest{
		Amount: req.Amount,
		Method: req.Method,
		UpiID:  req.UpiID,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"payment_id":             payment.PaymentNo,
		"gateway_order_id":       payment.GatewayOrderID,
		"gateway_transaction_id": payment.GatewayTransactionID,
		"amount":                 payment.Amount,
		"currency":               payment.Currency,
		"method":                 payment.Method,
		"status":                 payment.Status,
	})
}

type PaymentDetails struct {
	Amount    int64  `json:"amount" binding:"required,amount"`
	Method    string `json:"method" binding:"required,payment_method"`
	UpiID     string `json:"upiId"`
	Signature string `json:"signature"`
}

type VerifyPaymentRequest struct {
	GatewayOrderID       string         `json:"gatewayOrderId" binding:"required"`
	GatewayTransactionID string         `json:"gatewayTransactionId" binding:"required"`
	Details              PaymentDetails `json:"details" binding:"required"`
}

// POST /api/v1/payments/verify
func (h *Handler) VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, bindError(err))
		return
	}

	result, err := h.svc.Payment.Verify(c.Request.Context(), currentUserID(c), service.VerifyPaymentRequest{
		GatewayOrderID:       req.GatewayOrderID,
		GatewayTransactionID: req.GatewayTransactionID,
		Amount:               req.Details.Amount,
		Method:               req.Details.Method,
		UpiID:                req.Details.UpiID,
		Signature:            req.Details.Signature,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// GET /api/v1/payments/:transactionId/status
func (h *Handler) GetPaymentStatus(c *gin.Context) {
	payment, err := h.svc.Payment.GetStatus(c.Request.Context(), currentUserID(c), c.Param("transactionId"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, payment)
}

// GET /api/v1/payments/history?limit=50
func (h *Handler) PaymentHistory(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		response.Fail(c, err)
		return
	}
	payments, err := h.svc.Payment.ListPayments(c.Request.Context(), currentUserID(c), limit)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"payments": payments})
}

type RefundRequest struct {
	Reason string `json:"reason" binding:"max=128"`
}

// POST /api/v1/admin/payments/:transactionId/refund
func (h *Handler) RefundPayment(c *gin.Context) {
	var req RefundRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Fail(c, bindError(err))
			return
		}
	}
	result, err := h.svc.Refund.RefundPayment(c.Request.Context(), c.Param("transactionId"), req.Reason)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}
