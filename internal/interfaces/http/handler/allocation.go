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

// AllocationHandler exposes the allocation engine
type AllocationHandler struct {
	BaseHandler
	allocations *appfinance.AllocationService
}

// NewAllocationHandler creates a new AllocationHandler
func NewAllocationHandler(allocations *appfinance.AllocationService) *AllocationHandler {
	return &AllocationHandler{allocations: allocations}
}

// PlanEntryRequest is one manual {document, amount} pair
type PlanEntryRequest struct {
	DocumentID string          `json:"document_id" binding:"required,uuid"`
	Amount     decimal.Decimal `json:"amount" binding:"gt=0"`
}

// AllocateRequest is the body of POST /allocations and /allocations/preview
type AllocateRequest struct {
	SourceType     string             `json:"source_type" binding:"required,oneof=payment credit_note"`
	SourceID       string             `json:"source_id" binding:"required,uuid"`
	Strategy       string             `json:"strategy" binding:"omitempty,oneof=manual fifo proportional overdue_first"`
	Plan           []PlanEntryRequest `json:"plan" binding:"omitempty,dive"`
	Amount         decimal.Decimal    `json:"amount" binding:"gte=0"`
	Notes          string             `json:"notes" binding:"max=1000"`
	IdempotencyKey string             `json:"idempotency_key" binding:"max=128"`
}

// ReverseRequest is the body of POST /allocations/:id/reverse
type ReverseRequest struct {
	Reason         string `json:"reason" binding:"required,max=500"`
	IdempotencyKey string `json:"idempotency_key" binding:"max=128"`
}

// AllocationListQuery are the filters of GET /allocations
type AllocationListQuery struct {
	dto.ListQuery
	PaymentID    string `form:"payment_id" binding:"omitempty,uuid"`
	CreditNoteID string `form:"credit_note_id" binding:"omitempty,uuid"`
	DocumentID   string `form:"document_id" binding:"omitempty,uuid"`
	Strategy     string `form:"strategy" binding:"omitempty,oneof=manual fifo proportional overdue_first"`
	Status       string `form:"status" binding:"omitempty,oneof=active reversed"`
}

// auditEntityTypes maps the audit route segment to the audited aggregate
var auditEntityTypes = map[string]string{
	"documents":    finance.AggregateTypeDocument,
	"payments":     finance.AggregateTypePayment,
	"credit-notes": finance.AggregateTypeCreditNote,
	"allocations":  finance.AggregateTypeAllocation,
}

func (r AllocateRequest) toApp(c *gin.Context) appfinance.AllocateRequest {
	sourceID, _ := uuid.Parse(r.SourceID)
	plan := make([]appfinance.PlanEntryInput, len(r.Plan))
	for i, p := range r.Plan {
		docID, _ := uuid.Parse(p.DocumentID)
		plan[i] = appfinance.PlanEntryInput{DocumentID: docID, Amount: p.Amount}
	}
	return appfinance.AllocateRequest{
		SourceType:     finance.SourceType(r.SourceType),
		SourceID:       sourceID,
		Strategy:       finance.StrategyType(r.Strategy),
		Plan:           plan,
		Amount:         r.Amount,
		Notes:          r.Notes,
		IdempotencyKey: idempotencyKey(c, r.IdempotencyKey),
	}
}

// writeAllocationResult mirrors the command outcome in the envelope. An
// empty plan is a 200 with success=false.
func writeAllocationResult(c *gin.Context, result *appfinance.AllocationResult) {
	status := http.StatusOK
	if result.Success && !result.Replayed {
		status = http.StatusCreated
	}
	c.JSON(status, dto.Response{Success: result.Success, Data: result})
}

// Allocate godoc
// @Summary      Allocate a payment or credit note
// @Description  Distribute a funding source over open documents with a manual plan or an automatic strategy
// @Tags         allocations
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Idempotency key"
// @Param        request body AllocateRequest true "Allocation command"
// @Success      201 {object} dto.Response{data=appfinance.AllocationResult}
// @Success      200 {object} dto.Response{data=appfinance.AllocationResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /allocations [post]
func (h *AllocationHandler) Allocate(c *gin.Context) {
	cc, ok := h.commandContext(c)
	if !ok {
		return
	}
	var req AllocateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.allocations.Allocate(c.Request.Context(), cc, req.toApp(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	writeAllocationResult(c, result)
}

// PreviewAllocation godoc
// @Summary      Preview an allocation
// @Description  Compute the allocation plan without persisting anything
// @Tags         allocations
// @Param        request body AllocateRequest true "Allocation command"
// @Success      200 {object} dto.Response{data=appfinance.AllocationPreview}
// @Router       /allocations/preview [post]
func (h *AllocationHandler) PreviewAllocation(c *gin.Context) {
	companyID, ok := h.companyID(c)
	if !ok {
		return
	}
	var req AllocateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	preview, err := h.allocations.PreviewAllocation(c.Request.Context(), companyID, req.toApp(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, preview)
}

// ReverseAllocation godoc
// @Summary      Reverse an allocation
// @Description  Restore the document balance and the funding source remaining amount
// @Tags         allocations
// @Param        id path string true "Allocation ID" format(uuid)
// @Param        request body ReverseRequest true "Reason"
// @Success      200 {object} dto.Response{data=appfinance.ReverseResult}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /allocations/{id}/reverse [post]
func (h *AllocationHandler) ReverseAllocation(c *gin.Context) {
	cc, ok := h.commandContext(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req ReverseRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.allocations.Reverse(c.Request.Context(), cc, appfinance.ReverseAllocationRequest{
		AllocationID:   id,
		Reason:         req.Reason,
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// GetAllocation godoc
// @Summary      Get an allocation by ID
// @Tags         allocations
// @Router       /allocations/{id} [get]
func (h *AllocationHandler) GetAllocation(c *gin.Context) {
	companyID, ok := h.companyID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	allocation, err := h.allocations.GetAllocation(c.Request.Context(), companyID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, allocation)
}

// ListAllocations godoc
// @Summary      List allocations
// @Tags         allocations
// @Router       /allocations [get]
func (h *AllocationHandler) ListAllocations(c *gin.Context) {
	companyID, ok := h.companyID(c)
	if !ok {
		return
	}
	var q AllocationListQuery
	if !h.bindQuery(c, &q) {
		return
	}

	filter := appfinance.AllocationListFilter{Filter: q.Filter()}
	filter.PaymentID, _ = optionalUUID(q.PaymentID)
	filter.CreditNoteID, _ = optionalUUID(q.CreditNoteID)
	filter.DocumentID, _ = optionalUUID(q.DocumentID)
	if q.Strategy != "" {
		strategy := finance.StrategyType(q.Strategy)
		filter.Strategy = &strategy
	}
	if q.Status != "" {
		status := finance.AllocationStatus(q.Status)
		filter.Status = &status
	}

	page, err := h.allocations.GetAllocations(c.Request.Context(), companyID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPaginatedResponse(page))
}

// GetAllocationStatistics returns allocation counts and totals by strategy and source
func (h *AllocationHandler) GetAllocationStatistics(c *gin.Context) {
	companyID, ok := h.companyID(c)
	if !ok {
		return
	}
	stats, err := h.allocations.GetAllocationStatistics(c.Request.Context(), companyID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// GetCounterpartBalance godoc
// @Summary      Counterpart balance
// @Description  Open documents, overdue balance and unallocated payments of a counterpart
// @Tags         allocations
// @Param        id path string true "Counterpart ID" format(uuid)
// @Success      200 {object} dto.Response{data=appfinance.CounterpartBalance}
// @Router       /counterparts/{id}/balance [get]
func (h *AllocationHandler) GetCounterpartBalance(c *gin.Context) {
	companyID, ok := h.companyID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	balance, err := h.allocations.GetCounterpartBalance(c.Request.Context(), companyID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, balance)
}

// ListStrategies returns the available allocation strategies
func (h *AllocationHandler) ListStrategies(c *gin.Context) {
	h.Success(c, h.allocations.AvailableStrategies())
}

// GetAuditTrail godoc
// @Summary      Audit trail of an entity
// @Tags         audit
// @Param        entity path string true "documents, payments, credit-notes or allocations"
// @Param        id path string true "Entity ID" format(uuid)
// @Success      200 {object} dto.Response{data=[]appfinance.AuditEntryResponse}
// @Router       /audit/{entity}/{id} [get]
func (h *AllocationHandler) GetAuditTrail(c *gin.Context) {
	companyID, ok := h.companyID(c)
	if !ok {
		return
	}
	entityType, known := auditEntityTypes[c.Param("entity")]
	if !known {
		h.Error(c, dto.ErrCodeNotFound, "Unknown audited entity")
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	entries, err := h.allocations.AuditTrail(c.Request.Context(), companyID, entityType, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entries)
}
