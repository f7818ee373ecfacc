package handler

import (
	"context"
	"net/http"

	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentHandler exposes payable document lifecycle endpoints
type DocumentHandler struct {
	BaseHandler
	documents *appfinance.DocumentService
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(documents *appfinance.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// ===================== Request DTOs =====================

// TaxRateRequest attaches a tax rate to a document line
type TaxRateRequest struct {
	ID              string          `json:"id" binding:"omitempty,uuid"`
	Name            string          `json:"name" binding:"required,max=100"`
	Type            string          `json:"type" binding:"required,oneof=percentage fixed"`
	Rate            decimal.Decimal `json:"rate" binding:"gte=0"`
	FixedAmount     decimal.Decimal `json:"fixed_amount" binding:"gte=0"`
	IsCompound      bool            `json:"is_compound"`
	IsInclusive     bool            `json:"is_inclusive"`
	IsReverseCharge bool            `json:"is_reverse_charge"`
}

// DocumentLineRequest is one line of a document
type DocumentLineRequest struct {
	Description     string           `json:"description" binding:"required,max=500"`
	Quantity        decimal.Decimal  `json:"quantity" binding:"gt=0"`
	UnitPrice       decimal.Decimal  `json:"unit_price" binding:"gte=0"`
	DiscountPercent decimal.Decimal  `json:"discount_percent" binding:"gte=0"`
	TaxRates        []TaxRateRequest `json:"tax_rates" binding:"omitempty,dive"`
}

// CreateDocumentRequest is the body of POST /documents
type CreateDocumentRequest struct {
	Kind           string                `json:"kind" binding:"required,oneof=invoice bill purchase_order tax_return"`
	DocumentNumber string                `json:"document_number" binding:"required,max=50"`
	CounterpartID  string                `json:"counterpart_id" binding:"required,uuid"`
	Currency       string                `json:"currency" binding:"omitempty,len=3"`
	ExchangeRate   decimal.Decimal       `json:"exchange_rate" binding:"gte=0"`
	IssueDate      string                `json:"issue_date"`
	DueDate        string                `json:"due_date"`
	Notes          string                `json:"notes" binding:"max=2000"`
	Lines          []DocumentLineRequest `json:"lines" binding:"omitempty,dive"`
}

// ReplaceLinesRequest is the body of PUT /documents/:id/lines
type ReplaceLinesRequest struct {
	Lines []DocumentLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// TransitionRequest is the optional body of a lifecycle command
type TransitionRequest struct {
	Reason         string `json:"reason" binding:"max=500"`
	IdempotencyKey string `json:"idempotency_key" binding:"max=128"`
}

// CancelRequest requires a reason
type CancelRequest struct {
	Reason         string `json:"reason" binding:"required,max=500"`
	IdempotencyKey string `json:"idempotency_key" binding:"max=128"`
}

// DocumentListQuery are the filters of GET /documents
type DocumentListQuery struct {
	dto.ListQuery
	Kind          string `form:"kind" binding:"omitempty,oneof=invoice bill purchase_order tax_return"`
	Status        string `form:"status"`
	CounterpartID string `form:"counterpart_id" binding:"omitempty,uuid"`
	DueBefore     string `form:"due_before"`
}

func toLineInputs(lines []DocumentLineRequest) []appfinance.DocumentLineInput {
	out := make([]appfinance.DocumentLineInput, len(lines))
	for i, l := range lines {
		rates := make([]appfinance.TaxRateInput, len(l.TaxRates))
		for j, r := range l.TaxRates {
			id, _ := uuid.Parse(r.ID)
			if id == uuid.Nil {
				id = uuid.New()
			}
			rates[j] = appfinance.TaxRateInput{
				ID:              id,
				Name:            r.Name,
				Type:            finance.TaxRateType(r.Type),
				Rate:            r.Rate,
				FixedAmount:     r.FixedAmount,
				IsCompound:      r.IsCompound,
				IsInclusive:     r.IsInclusive,
				IsReverseCharge: r.IsReverseCharge,
			}
		}
		out[i] = appfinance.DocumentLineInput{
			Description:     l.Description,
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			DiscountPercent: l.DiscountPercent,
			TaxRates:        rates,
		}
	}
	return out
}

// ===================== Handlers =====================

// CreateDocument godoc
// @Summary      Create a payable document
// @Description  Create a draft invoice, bill, purchase order or tax return
// @Tags         documents
// @Accept       json
// @Produce      json
// @Param        request body CreateDocumentRequest true "Document"
// @Success      201 {object} dto.Response{data=appfinance.DocumentResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /documents [post]
func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	cc, ok := h.commandContext(c)
	if !ok {
		return
	}
	var req CreateDocumentRequest
	if !h.bindJSON(c, &req) {
		return
	}

	counterpartID, _ := uuid.Parse(req.CounterpartID)
	appReq := appfinance.CreateDocumentRequest{
		Kind:           finance.DocumentKind(req.Kind),
		DocumentNumber: req.DocumentNumber,
		CounterpartID:  counterpartID,
		Currency:       req.Currency,
		ExchangeRate:   req.ExchangeRate,
		Notes:          req.Notes,
		Lines:          toLineInputs(req.Lines),
	}
	if req.IssueDate != "" {
		issue, err := parseDate(req.IssueDate)
		if err != nil {
			h.Error(c, dto.ErrCodeInvalidInput, "Invalid issue_date format")
			return
		}
		appReq.IssueDate = issue
	}
	due, err := optionalDate(req.DueDate)
	if err != nil {
		h.Error(c, dto.ErrCodeInvalidInput, "Invalid due_date format")
		return
	}
	appReq.DueDate = due

	doc, err := h.documents.Create(c.Request.Context(), cc, appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, doc)
}

// ReplaceLines godoc
// @Summary      Replace document lines
// @Tags         documents
// @Param        id path string true "Document ID" format(uuid)
// @Param        request body ReplaceLinesRequest true "Lines"
// @Success      200 {object} dto.Response{data=appfinance.DocumentResponse}
// @Router       /documents/{id}/lines [put]
func (h *DocumentHandler) ReplaceLines(c *gin.Context) {
	cc, ok := h.commandContext(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req ReplaceLinesRequest
	if !h.bindJSON(c, &req) {
		return
	}

	doc, err := h.documents.ReplaceLines(c.Request.Context(), cc, id, toLineInputs(req.Lines))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, doc)
}

// documentTransition is a lifecycle method of DocumentService
type documentTransition func(*appfinance.DocumentService, context.Context, shared.CommandContext, uuid.UUID, appfinance.DocumentTransitionRequest) (*appfinance.DocumentCommandResult, error)

func (h *DocumentHandler) transition(c *gin.Context, reasonRequired bool, run documentTransition) {
	cc, ok := h.commandContext(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var appReq appfinance.DocumentTransitionRequest
	if reasonRequired {
		var req CancelRequest
		if !h.bindJSON(c, &req) {
			return
		}
		appReq = appfinance.DocumentTransitionRequest{Reason: req.Reason, IdempotencyKey: req.IdempotencyKey}
	} else {
		var req TransitionRequest
		if !h.bindOptionalJSON(c, &req) {
			return
		}
		appReq = appfinance.DocumentTransitionRequest{Reason: req.Reason, IdempotencyKey: req.IdempotencyKey}
	}
	appReq.IdempotencyKey = idempotencyKey(c, appReq.IdempotencyKey)

	result, err := run(h.documents, c.Request.Context(), cc, id, appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// SubmitDocument godoc
// @Summary      Submit a draft document for approval
// @Tags         documents
// @Param        id path string true "Document ID" format(uuid)
// @Success      200 {object} dto.Response{data=appfinance.DocumentCommandResult}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /documents/{id}/submit [post]
func (h *DocumentHandler) SubmitDocument(c *gin.Context) {
	h.transition(c, false, (*appfinance.DocumentService).Submit)
}

// ApproveDocument godoc
// @Summary      Approve a submitted document
// @Tags         documents
// @Router       /documents/{id}/approve [post]
func (h *DocumentHandler) ApproveDocument(c *gin.Context) {
	h.transition(c, false, (*appfinance.DocumentService).Approve)
}

// RejectDocument godoc
// @Summary      Reject a submitted document
// @Tags         documents
// @Router       /documents/{id}/reject [post]
func (h *DocumentHandler) RejectDocument(c *gin.Context) {
	h.transition(c, true, (*appfinance.DocumentService).Reject)
}

// PostDocument godoc
// @Summary      Post an approved document
// @Description  Posting fixes totals, records tax components and opens the balance due
// @Tags         documents
// @Router       /documents/{id}/post [post]
func (h *DocumentHandler) PostDocument(c *gin.Context) {
	h.transition(c, false, (*appfinance.DocumentService).Post)
}

// CancelDocument godoc
// @Summary      Cancel a document
// @Tags         documents
// @Router       /documents/{id}/cancel [post]
func (h *DocumentHandler) CancelDocument(c *gin.Context) {
	h.transition(c, true, (*appfinance.DocumentService).Cancel)
}

// GetDocument godoc
// @Summary      Get a document by ID
// @Tags         documents
// @Param        id path string true "Document ID" format(uuid)
// @Success      200 {object} dto.Response{data=appfinance.DocumentResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /documents/{id} [get]
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	companyID, ok := h.companyID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	doc, err := h.documents.GetByID(c.Request.Context(), companyID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, doc)
}

// ListDocuments godoc
// @Summary      List documents
// @Tags         documents
// @Param        kind query string false "Document kind"
// @Param        status query string false "Document status"
// @Param        counterpart_id query string false "Counterpart" format(uuid)
// @Param        due_before query string false "Due before date"
// @Success      200 {object} dto.Response{data=[]appfinance.DocumentResponse,meta=dto.Meta}
// @Router       /documents [get]
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	companyID, ok := h.companyID(c)
	if !ok {
		return
	}
	var q DocumentListQuery
	if !h.bindQuery(c, &q) {
		return
	}

	filter := finance.DocumentFilter{Filter: q.Filter()}
	if q.Kind != "" {
		kind := finance.DocumentKind(q.Kind)
		filter.Kind = &kind
	}
	if q.Status != "" {
		status := finance.DocumentStatus(q.Status)
		if !status.IsValid() {
			h.Error(c, dto.ErrCodeInvalidInput, "Invalid status")
			return
		}
		filter.Status = &status
	}
	counterpartID, err := optionalUUID(q.CounterpartID)
	if err != nil {
		h.Error(c, dto.ErrCodeInvalidInput, "Invalid counterpart_id format")
		return
	}
	filter.CounterpartID = counterpartID
	dueBefore, err := optionalDate(q.DueBefore)
	if err != nil {
		h.Error(c, dto.ErrCodeInvalidInput, "Invalid due_before format")
		return
	}
	filter.DueBefore = dueBefore

	page, err := h.documents.List(c.Request.Context(), companyID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPaginatedResponse(page))
}

// GetTaxComponents returns the tax components recorded when the document was posted
func (h *DocumentHandler) GetTaxComponents(c *gin.Context) {
	companyID, ok := h.companyID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	components, err := h.documents.TaxComponents(c.Request.Context(), companyID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, components)
}
