package handler

import (
	"net/http"

	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentHandler exposes payment registration and queries
type PaymentHandler struct {
	BaseHandler
	payments    *appfinance.PaymentService
	allocations *appfinance.AllocationService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments *appfinance.PaymentService, allocations *appfinance.AllocationService) *PaymentHandler {
	return &PaymentHandler{payments: payments, allocations: allocations}
}

// RegisterPaymentRequest is the body of POST /payments
type RegisterPaymentRequest struct {
	PaymentNumber  string          `json:"payment_number" binding:"required,max=50"`
	CounterpartID  string          `json:"counterpart_id" binding:"required,uuid"`
	Amount         decimal.Decimal `json:"amount" binding:"gt=0"`
	Currency       string          `json:"currency" binding:"omitempty,len=3"`
	PaymentDate    string          `json:"payment_date"`
	Method         string          `json:"method" binding:"required,oneof=bank_transfer cash check card other"`
	Reference      string          `json:"reference" binding:"max=100"`
	IdempotencyKey string          `json:"idempotency_key" binding:"max=128"`
}

// PaymentListQuery are the filters of GET /payments
type PaymentListQuery struct {
	dto.ListQuery
	Status        string `form:"status" binding:"omitempty,oneof=pending completed cancelled"`
	CounterpartID string `form:"counterpart_id" binding:"omitempty,uuid"`
}

// RegisterPayment godoc
// @Summary      Register a payment
// @Description  Register an incoming payment that can then be allocated to documents
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Idempotency key"
// @Param        request body RegisterPaymentRequest true "Payment"
// @Success      201 {object} dto.Response{data=appfinance.PaymentResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /payments [post]
func (h *PaymentHandler) RegisterPayment(c *gin.Context) {
	cc, ok := h.commandContext(c)
	if !ok {
		return
	}
	var req RegisterPaymentRequest
	if !h.bindJSON(c, &req) {
		return
	}

	counterpartID, _ := uuid.Parse(req.CounterpartID)
	appReq := appfinance.RegisterPaymentRequest{
		PaymentNumber:  req.PaymentNumber,
		CounterpartID:  counterpartID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Method:         finance.PaymentMethod(req.Method),
		Reference:      req.Reference,
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
	}
	if req.PaymentDate != "" {
		date, err := parseDate(req.PaymentDate)
		if err != nil {
			h.Error(c, dto.ErrCodeInvalidInput, "Invalid payment_date format")
			return
		}
		appReq.PaymentDate = date
	}

	payment, err := h.payments.Register(c.Request.Context(), cc, appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if payment.Replayed {
		h.Success(c, payment)
		return
	}
	h.Created(c, payment)
}

// VoidPayment godoc
// @Summary      Void a payment
// @Description  Cancel a payment that has no active allocations
// @Tags         payments
// @Param        id path string true "Payment ID" format(uuid)
// @Param        request body CancelRequest true "Reason"
// @Success      200 {object} dto.Response{data=appfinance.PaymentResponse}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /payments/{id}/void [post]
func (h *PaymentHandler) VoidPayment(c *gin.Context) {
	cc, ok := h.commandContext(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req CancelRequest
	if !h.bindJSON(c, &req) {
		return
	}

	payment, err := h.payments.Void(c.Request.Context(), cc, id, appfinance.VoidPaymentRequest{
		Reason:         req.Reason,
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, payment)
}

// GetPayment godoc
// @Summary      Get a payment by ID
// @Tags         payments
// @Param        id path string true "Payment ID" format(uuid)
// @Success      200 {object} dto.Response{data=appfinance.PaymentResponse}
// @Router       /payments/{id} [get]
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	companyID, ok := h.companyID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	payment, err := h.payments.GetByID(c.Request.Context(), companyID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, payment)
}

// ListPayments godoc
// @Summary      List payments
// @Tags         payments
// @Success      200 {object} dto.Response{data=[]appfinance.PaymentResponse,meta=dto.Meta}
// @Router       /payments [get]
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	companyID, ok := h.companyID(c)
	if !ok {
		return
	}
	var q PaymentListQuery
	if !h.bindQuery(c, &q) {
		return
	}

	filter := finance.PaymentFilter{Filter: q.Filter()}
	if q.Status != "" {
		status := finance.PaymentStatus(q.Status)
		filter.Status = &status
	}
	filter.CounterpartID, _ = optionalUUID(q.CounterpartID)

	page, err := h.payments.List(c.Request.Context(), companyID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPaginatedResponse(page))
}

// GetPaymentSummary godoc
// @Summary      Summarise a payment's allocations
// @Tags         payments
// @Param        id path string true "Payment ID" format(uuid)
// @Success      200 {object} dto.Response{data=appfinance.PaymentSummary}
// @Router       /payments/{id}/summary [get]
func (h *PaymentHandler) GetPaymentSummary(c *gin.Context) {
	companyID, ok := h.companyID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	summary, err := h.allocations.GetPaymentSummary(c.Request.Context(), companyID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}
