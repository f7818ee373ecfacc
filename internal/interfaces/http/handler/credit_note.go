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

// CreditNoteHandler exposes the credit note lifecycle
type CreditNoteHandler struct {
	BaseHandler
	creditNotes *appfinance.CreditNoteService
}

// NewCreditNoteHandler creates a new CreditNoteHandler
func NewCreditNoteHandler(creditNotes *appfinance.CreditNoteService) *CreditNoteHandler {
	return &CreditNoteHandler{creditNotes: creditNotes}
}

// CreditNoteItemRequest is one credited item
type CreditNoteItemRequest struct {
	Description string          `json:"description" binding:"required,max=500"`
	Quantity    decimal.Decimal `json:"quantity" binding:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price" binding:"gte=0"`
	TaxRate     decimal.Decimal `json:"tax_rate" binding:"gte=0"`
}

// CreateCreditNoteRequest is the body of POST /credit-notes
type CreateCreditNoteRequest struct {
	SourceDocumentID string                  `json:"source_document_id" binding:"required,uuid"`
	Reason           string                  `json:"reason" binding:"required,max=500"`
	IssueDate        string                  `json:"issue_date"`
	Items            []CreditNoteItemRequest `json:"items" binding:"required,min=1,dive"`
}

// PostCreditNoteRequest is the optional body of POST /credit-notes/:id/post
type PostCreditNoteRequest struct {
	AutoApply      bool   `json:"auto_apply"`
	IdempotencyKey string `json:"idempotency_key" binding:"max=128"`
}

// ApplyCreditNoteRequest is the optional body of POST /credit-notes/:id/apply.
// A zero amount applies as much as possible.
type ApplyCreditNoteRequest struct {
	Amount         decimal.Decimal `json:"amount" binding:"gte=0"`
	IdempotencyKey string          `json:"idempotency_key" binding:"max=128"`
}

// CreditNoteListQuery are the filters of GET /credit-notes
type CreditNoteListQuery struct {
	dto.ListQuery
	Status           string `form:"status" binding:"omitempty,oneof=draft posted cancelled"`
	SourceDocumentID string `form:"source_document_id" binding:"omitempty,uuid"`
}

// CreateCreditNote godoc
// @Summary      Draft a credit note
// @Description  Draft a credit note against a posted document
// @Tags         credit-notes
// @Accept       json
// @Produce      json
// @Param        request body CreateCreditNoteRequest true "Credit note"
// @Success      201 {object} dto.Response{data=appfinance.CreditNoteResponse}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /credit-notes [post]
func (h *CreditNoteHandler) CreateCreditNote(c *gin.Context) {
	cc, ok := h.commandContext(c)
	if !ok {
		return
	}
	var req CreateCreditNoteRequest
	if !h.bindJSON(c, &req) {
		return
	}

	sourceID, _ := uuid.Parse(req.SourceDocumentID)
	items := make([]appfinance.CreditNoteItemInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = appfinance.CreditNoteItemInput{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TaxRate:     it.TaxRate,
		}
	}
	appReq := appfinance.CreateCreditNoteRequest{
		SourceDocumentID: sourceID,
		Reason:           req.Reason,
		Items:            items,
	}
	if req.IssueDate != "" {
		date, err := parseDate(req.IssueDate)
		if err != nil {
			h.Error(c, dto.ErrCodeInvalidInput, "Invalid issue_date format")
			return
		}
		appReq.IssueDate = date
	}

	note, err := h.creditNotes.Create(c.Request.Context(), cc, appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, note)
}

// PostCreditNote godoc
// @Summary      Post a credit note
// @Description  Post a draft credit note, optionally applying it to its source document
// @Tags         credit-notes
// @Param        id path string true "Credit note ID" format(uuid)
// @Success      200 {object} dto.Response{data=appfinance.CreditNoteCommandResult}
// @Router       /credit-notes/{id}/post [post]
func (h *CreditNoteHandler) PostCreditNote(c *gin.Context) {
	cc, ok := h.commandContext(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req PostCreditNoteRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	result, err := h.creditNotes.Post(c.Request.Context(), cc, id, appfinance.PostCreditNoteRequest{
		AutoApply:      req.AutoApply,
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ApplyCreditNote godoc
// @Summary      Apply posted credit to the source document
// @Tags         credit-notes
// @Param        id path string true "Credit note ID" format(uuid)
// @Success      200 {object} dto.Response{data=appfinance.AllocationResult}
// @Router       /credit-notes/{id}/apply [post]
func (h *CreditNoteHandler) ApplyCreditNote(c *gin.Context) {
	cc, ok := h.commandContext(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req ApplyCreditNoteRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	result, err := h.creditNotes.Apply(c.Request.Context(), cc, id, appfinance.ApplyCreditNoteRequest{
		Amount:         req.Amount,
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	writeAllocationResult(c, result)
}

// CancelCreditNote godoc
// @Summary      Cancel a credit note
// @Tags         credit-notes
// @Param        id path string true "Credit note ID" format(uuid)
// @Param        request body CancelRequest true "Reason"
// @Router       /credit-notes/{id}/cancel [post]
func (h *CreditNoteHandler) CancelCreditNote(c *gin.Context) {
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

	result, err := h.creditNotes.Cancel(c.Request.Context(), cc, id, appfinance.CancelCreditNoteRequest{
		Reason:         req.Reason,
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// GetCreditNote godoc
// @Summary      Get a credit note by ID
// @Tags         credit-notes
// @Router       /credit-notes/{id} [get]
func (h *CreditNoteHandler) GetCreditNote(c *gin.Context) {
	companyID, ok := h.companyID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	note, err := h.creditNotes.GetByID(c.Request.Context(), companyID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, note)
}

// ListCreditNotes godoc
// @Summary      List credit notes
// @Tags         credit-notes
// @Router       /credit-notes [get]
func (h *CreditNoteHandler) ListCreditNotes(c *gin.Context) {
	companyID, ok := h.companyID(c)
	if !ok {
		return
	}
	var q CreditNoteListQuery
	if !h.bindQuery(c, &q) {
		return
	}

	filter := finance.CreditNoteFilter{Filter: q.Filter()}
	if q.Status != "" {
		status := finance.CreditNoteStatus(q.Status)
		filter.Status = &status
	}
	filter.SourceDocumentID, _ = optionalUUID(q.SourceDocumentID)

	page, err := h.creditNotes.List(c.Request.Context(), companyID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPaginatedResponse(page))
}

// GetCreditNoteStatistics returns issued, applied and open credit totals
func (h *CreditNoteHandler) GetCreditNoteStatistics(c *gin.Context) {
	companyID, ok := h.companyID(c)
	if !ok {
		return
	}
	stats, err := h.creditNotes.Statistics(c.Request.Context(), companyID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}
