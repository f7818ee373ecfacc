package finance

import (
	"context"
	"errors"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PreviewAllocation computes the plan an allocate command would execute and
// validates it without locking or writing anything. Business rule failures
// are reported on the preview; only lookup and storage failures are errors.
func (s *AllocationService) PreviewAllocation(ctx context.Context, companyID uuid.UUID, req AllocateRequest) (*AllocationPreview, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "preview")
	defer span.End()

	req.IdempotencyKey = ""
	if err := req.validate(); err != nil {
		return nil, err
	}
	source, err := loadSource(ctx, s.repos, companyID, req.SourceType, req.SourceID, false)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	preview := &AllocationPreview{
		SourceType:      source.SourceType(),
		SourceID:        source.SourceID(),
		Strategy:        req.strategy(),
		Lines:           []PreviewLine{},
		Total:           decimal.Zero,
		RemainingBefore: source.Remaining(),
		RemainingAfter:  source.Remaining(),
	}
	if err := source.CanFund(); err != nil {
		return preview.reject(err)
	}
	plan, err := s.plan(ctx, companyID, req, source)
	if err != nil {
		return preview.reject(err)
	}
	if plan.IsEmpty() {
		preview.Message = "No open documents to allocate to"
		return preview, nil
	}

	docs, err := s.planDocuments(ctx, companyID, plan)
	if err != nil {
		return nil, err
	}
	if err := validatePlan(source, plan, docs); err != nil {
		return preview.reject(err)
	}

	for _, e := range plan.Entries {
		doc := docs[e.DocumentID]
		preview.Lines = append(preview.Lines, PreviewLine{
			DocumentID:     doc.ID,
			DocumentNumber: doc.DocumentNumber,
			BalanceDue:     doc.BalanceDue,
			Amount:         e.Amount,
			BalanceAfter:   doc.BalanceDue.Sub(e.Amount),
		})
		preview.Total = preview.Total.Add(e.Amount)
	}
	preview.RemainingAfter = source.Remaining().Sub(preview.Total)
	preview.Valid = true
	return preview, nil
}

func (p *AllocationPreview) reject(err error) (*AllocationPreview, error) {
	de, ok := shared.AsDomainError(err)
	if !ok || errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	p.Valid = false
	p.Message = de.Message
	p.Errors = de.Details
	return p, nil
}

// planDocuments reads the planned documents without locking them
func (s *AllocationService) planDocuments(ctx context.Context, companyID uuid.UUID, plan finance.AllocationPlan) (map[uuid.UUID]*finance.PayableDocument, error) {
	docs := make(map[uuid.UUID]*finance.PayableDocument, len(plan.Entries))
	for _, id := range planDocumentIDs(plan) {
		doc, err := s.repos.Documents().FindByIDForCompany(ctx, companyID, id)
		if errors.Is(err, shared.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		docs[id] = doc
	}
	return docs, nil
}

// GetAllocations lists allocations and credit note applications
func (s *AllocationService) GetAllocations(ctx context.Context, companyID uuid.UUID, filter AllocationListFilter) (*shared.Paginated[AllocationResponse], error) {
	if filter.PaymentID != nil && filter.CreditNoteID != nil {
		return nil, shared.NewValidationError("Invalid filter", map[string]string{
			"source": "filter by payment or by credit note, not both",
		})
	}
	f := finance.AllocationFilter{
		Filter:     filter.Filter.Normalize(),
		DocumentID: filter.DocumentID,
		Strategy:   filter.Strategy,
		Status:     filter.Status,
	}
	switch {
	case filter.PaymentID != nil:
		t := finance.SourceTypePayment
		f.SourceType, f.SourceID = &t, filter.PaymentID
	case filter.CreditNoteID != nil:
		t := finance.SourceTypeCreditNote
		f.SourceType, f.SourceID = &t, filter.CreditNoteID
	}

	items, err := s.repos.Allocations().FindAll(ctx, companyID, f)
	if err != nil {
		return nil, err
	}
	total, err := s.repos.Allocations().Count(ctx, companyID, f)
	if err != nil {
		return nil, err
	}
	page := shared.NewPaginated(ToAllocationResponses(items), total, f.Page, f.PageSize)
	return &page, nil
}

// GetAllocation returns one allocation
func (s *AllocationService) GetAllocation(ctx context.Context, companyID, id uuid.UUID) (*AllocationResponse, error) {
	alloc, err := s.repos.Allocations().FindByIDForCompany(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	resp := ToAllocationResponse(alloc)
	return &resp, nil
}

// GetAllocationStatistics aggregates allocations per strategy
func (s *AllocationService) GetAllocationStatistics(ctx context.Context, companyID uuid.UUID) (*finance.AllocationStatistics, error) {
	return s.repos.Allocations().Statistics(ctx, companyID)
}

// GetPaymentSummary returns a payment with its active allocations
func (s *AllocationService) GetPaymentSummary(ctx context.Context, companyID, paymentID uuid.UUID) (*PaymentSummary, error) {
	payment, err := s.repos.Payments().FindByIDForCompany(ctx, companyID, paymentID)
	if err != nil {
		return nil, err
	}
	sourceType := finance.SourceTypePayment
	active := finance.AllocationStatusActive
	allocations, err := s.repos.Allocations().FindAll(ctx, companyID, finance.AllocationFilter{
		Filter:     shared.Filter{Page: 1, PageSize: 500, OrderBy: "allocation_date", OrderDir: "asc"},
		SourceType: &sourceType,
		SourceID:   &payment.ID,
		Status:     &active,
	})
	if err != nil {
		return nil, err
	}
	return &PaymentSummary{
		PaymentID:       payment.ID,
		PaymentNumber:   payment.PaymentNumber,
		Status:          payment.Status,
		Amount:          payment.Amount,
		AllocatedAmount: payment.AllocatedAmount(),
		RemainingAmount: payment.RemainingAmount,
		FullyAllocated:  payment.IsFullyAllocated(),
		Allocations:     ToAllocationResponses(allocations),
	}, nil
}

// GetCounterpartBalance summarises open documents and unallocated payments
func (s *AllocationService) GetCounterpartBalance(ctx context.Context, companyID, counterpartID uuid.UUID) (*CounterpartBalance, error) {
	docs, err := s.repos.Documents().FindOpenByCounterpart(ctx, companyID, counterpartID)
	if err != nil {
		return nil, err
	}
	unallocated, err := s.repos.Payments().SumUnallocated(ctx, companyID, counterpartID)
	if err != nil {
		return nil, err
	}

	now := s.runner.now()
	balance := &CounterpartBalance{
		CounterpartID:       counterpartID,
		Documents:           make([]OpenDocumentLine, 0, len(docs)),
		TotalBalanceDue:     decimal.Zero,
		OverdueBalance:      decimal.Zero,
		UnallocatedPayments: unallocated,
	}
	for i := range docs {
		d := &docs[i]
		overdue := d.IsOverdue(now)
		balance.Documents = append(balance.Documents, OpenDocumentLine{
			DocumentID:     d.ID,
			DocumentNumber: d.DocumentNumber,
			Kind:           d.Kind,
			Status:         d.Status,
			TotalAmount:    d.TotalAmount,
			BalanceDue:     d.BalanceDue,
			DueDate:        d.DueDate,
			IsOverdue:      overdue,
			DaysOverdue:    d.DaysOverdue(now),
		})
		balance.TotalBalanceDue = balance.TotalBalanceDue.Add(d.BalanceDue)
		if overdue {
			balance.OverdueBalance = balance.OverdueBalance.Add(d.BalanceDue)
		}
	}
	balance.NetBalance = balance.TotalBalanceDue.Sub(unallocated)
	return balance, nil
}

// AvailableStrategies lists the strategies the engine accepts
func (s *AllocationService) AvailableStrategies() []StrategyInfo {
	types := finance.AllStrategyTypes()
	out := make([]StrategyInfo, len(types))
	for i, t := range types {
		out[i] = StrategyInfo{Name: t, Description: t.Description()}
	}
	return out
}

// AuditTrail returns the audit entries of one entity, oldest first
func (s *AllocationService) AuditTrail(ctx context.Context, companyID uuid.UUID, entityType string, entityID uuid.UUID) ([]AuditEntryResponse, error) {
	switch entityType {
	case finance.AggregateTypeDocument, finance.AggregateTypePayment,
		finance.AggregateTypeCreditNote, finance.AggregateTypeAllocation:
	default:
		return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "Unknown entity type %q", entityType)
	}
	entries, err := s.repos.Audit().FindByEntity(ctx, companyID, entityType, entityID)
	if err != nil {
		return nil, err
	}
	return ToAuditEntryResponses(entries), nil
}
