package finance

import (
	"context"
	"strconv"
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	commandCreateCreditNote = "create_credit_note"
	commandPostCreditNote   = "post_credit_note"
	commandCancelCreditNote = "cancel_credit_note"
)

// CancelCreditNoteRequest cancels a credit note
type CancelCreditNoteRequest struct {
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// CreditNoteService manages credit notes. Applying credit goes through the
// allocation engine so balances only ever move in one place.
type CreditNoteService struct {
	repos     RepositorySet
	runner    *commandRunner
	allocator *AllocationService
}

// NewCreditNoteService creates a new CreditNoteService
func NewCreditNoteService(repos RepositorySet, txScope TransactionScope, allocator *AllocationService, logger *zap.Logger) *CreditNoteService {
	return &CreditNoteService{
		repos:     repos,
		runner:    newCommandRunner(repos, txScope, logger),
		allocator: allocator,
	}
}

// SetEventPublisher sets the publisher that receives events after commit
func (s *CreditNoteService) SetEventPublisher(publisher shared.EventPublisher) {
	s.runner.publisher = publisher
}

// SetMetrics sets the command metrics recorder
func (s *CreditNoteService) SetMetrics(m *telemetry.AllocationMetrics) {
	s.runner.metrics = m
}

// SetIdempotencyCache puts a result cache in front of the idempotency table
func (s *CreditNoteService) SetIdempotencyCache(cache shared.IdempotencyCache, cfg shared.IdempotencyConfig) {
	s.runner.idem.cache = cache
	if cfg.CacheTTL > 0 {
		s.runner.idem.ttl = cfg.CacheTTL
	}
}

// SetClock overrides the clock used for numbering and issue dates
func (s *CreditNoteService) SetClock(clock func() time.Time) {
	s.runner.clock = clock
}

// Create drafts a credit note against a posted document. The number is
// CN-YYYY-NNNN, sequential per company and issue year.
func (s *CreditNoteService) Create(ctx context.Context, cc shared.CommandContext, req CreateCreditNoteRequest) (*CreditNoteResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "credit_note", "create")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCompanyID, cc.CompanyID.String(),
		telemetry.SpanAttrDocumentID, req.SourceDocumentID.String(),
	)

	if err := cc.Validate(); err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, shared.NewDomainError(finance.CodeNoLineItems, "Credit note has no items")
	}
	items := make([]finance.CreditNoteItem, 0, len(req.Items))
	for i, in := range req.Items {
		item, err := finance.NewCreditNoteItem(in.Description, in.Quantity, in.UnitPrice, in.TaxRate)
		if err != nil {
			if de, ok := shared.AsDomainError(err); ok {
				return nil, de.WithDetail("items", "item "+strconv.Itoa(i)+": "+de.Message)
			}
			return nil, err
		}
		items = append(items, item)
	}
	issueDate := req.IssueDate
	if issueDate.IsZero() {
		issueDate = s.runner.now()
	}

	resp, _, err := execute(ctx, s.runner, cc.CompanyID, "", commandCreateCreditNote,
		func(repos TransactionalRepositories, events *eventCollector) (*CreditNoteResponse, error) {
			source, err := repos.Documents().FindByIDForUpdate(ctx, cc.CompanyID, req.SourceDocumentID)
			if err != nil {
				return nil, err
			}
			seq, err := repos.CreditNotes().NextSequence(ctx, cc.CompanyID, issueDate.Year())
			if err != nil {
				return nil, err
			}
			note, err := finance.NewCreditNote(cc.CompanyID, finance.FormatCreditNoteNumber(issueDate.Year(), seq),
				source, req.Reason, items, issueDate, cc.ActorID)
			if err != nil {
				return nil, err
			}
			if err := repos.CreditNotes().Create(ctx, note); err != nil {
				return nil, err
			}
			entry := finance.NewAuditEntry(cc, finance.AuditCreditNoteCreated, finance.AggregateTypeCreditNote, note.ID, finance.AuditPayload{
				"credit_note_number": note.CreditNoteNumber,
				"source_document_id": note.SourceDocumentID.String(),
				"total_amount":       note.TotalAmount.StringFixed(valueobject.AmountScale),
				"reason":             note.Reason,
			})
			if err := repos.Audit().Create(ctx, entry); err != nil {
				return nil, err
			}
			events.collect(note)
			out := ToCreditNoteResponse(note)
			return &out, nil
		})
	telemetry.Finish(span, err)
	return resp, err
}

// Post posts a draft credit note. With AutoApply the whole remaining credit,
// capped at the source balance, is applied to the source document in the
// same transaction.
func (s *CreditNoteService) Post(ctx context.Context, cc shared.CommandContext, id uuid.UUID, req PostCreditNoteRequest) (*CreditNoteCommandResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "credit_note", "post")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCompanyID, cc.CompanyID.String(),
		telemetry.SpanAttrSourceID, id.String(),
		"credit_note.auto_apply", req.AutoApply,
	)

	if err := cc.Validate(); err != nil {
		return nil, err
	}
	unlock, err := s.allocator.locker.Lock(ctx, cc.CompanyID, finance.SourceTypeCreditNote, id)
	if err != nil {
		return nil, err
	}
	defer s.allocator.release(ctx, unlock)

	result, replayed, err := execute(ctx, s.runner, cc.CompanyID, req.IdempotencyKey, commandPostCreditNote,
		func(repos TransactionalRepositories, events *eventCollector) (*CreditNoteCommandResult, error) {
			note, err := repos.CreditNotes().FindByIDForUpdate(ctx, cc.CompanyID, id)
			if err != nil {
				return nil, err
			}
			source, err := repos.Documents().FindByIDForUpdate(ctx, cc.CompanyID, note.SourceDocumentID)
			if err != nil {
				return nil, err
			}
			if err := note.Post(cc.ActorID, source); err != nil {
				return nil, err
			}
			if err := repos.CreditNotes().SaveWithLock(ctx, note); err != nil {
				return nil, err
			}
			entry := finance.NewAuditEntry(cc, finance.AuditCreditNotePosted, finance.AggregateTypeCreditNote, note.ID, finance.AuditPayload{
				"credit_note_number": note.CreditNoteNumber,
				"total_amount":       note.TotalAmount.StringFixed(valueobject.AmountScale),
				"auto_apply":         req.AutoApply,
			}).WithCommand(uuid.New(), req.IdempotencyKey)
			if err := repos.Audit().Create(ctx, entry); err != nil {
				return nil, err
			}
			events.collect(note)

			out := &CreditNoteCommandResult{
				Success: true,
				Message: "Credit note " + note.CreditNoteNumber + " posted",
			}
			if req.AutoApply {
				amount := decimal.Min(note.RemainingAmount, source.BalanceDue)
				if amount.IsPositive() {
					plan := finance.AllocationPlan{
						Strategy: finance.StrategyManual,
						Entries:  []finance.PlanEntry{{DocumentID: source.ID, Amount: amount}},
					}
					meta := commandMeta{id: uuid.New(), key: req.IdempotencyKey, notes: "auto-applied on posting"}
					applied, err := s.allocator.applyPlan(ctx, repos, cc, note, plan, meta, events)
					if err != nil {
						return nil, err
					}
					out.Applied = applied
					out.Message += " and applied to " + source.DocumentNumber
				}
			}
			out.CreditNote = ToCreditNoteResponse(note)
			return out, nil
		})
	if result != nil {
		result.Replayed = replayed
	}
	telemetry.Finish(span, err)
	return result, err
}

// Apply applies posted credit to the source document through the engine.
// A zero amount applies as much as both balances allow.
func (s *CreditNoteService) Apply(ctx context.Context, cc shared.CommandContext, id uuid.UUID, req ApplyCreditNoteRequest) (*AllocationResult, error) {
	note, err := s.repos.CreditNotes().FindByIDForCompany(ctx, cc.CompanyID, id)
	if err != nil {
		return nil, err
	}
	amount := req.Amount
	if amount.IsZero() {
		source, err := s.repos.Documents().FindByIDForCompany(ctx, cc.CompanyID, note.SourceDocumentID)
		if err != nil {
			return nil, err
		}
		amount = decimal.Min(note.RemainingAmount, source.BalanceDue)
		if !amount.IsPositive() {
			return nil, shared.NewDomainErrorf(finance.CodeSourceNotAvailable,
				"Credit note %s has nothing left to apply", note.CreditNoteNumber)
		}
	}
	return s.allocator.Allocate(ctx, cc, AllocateRequest{
		SourceType:     finance.SourceTypeCreditNote,
		SourceID:       note.ID,
		Strategy:       finance.StrategyManual,
		Plan:           []PlanEntryInput{{DocumentID: note.SourceDocumentID, Amount: amount}},
		IdempotencyKey: req.IdempotencyKey,
	})
}

// Cancel cancels a draft or posted credit note without active applications
func (s *CreditNoteService) Cancel(ctx context.Context, cc shared.CommandContext, id uuid.UUID, req CancelCreditNoteRequest) (*CreditNoteCommandResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "credit_note", "cancel")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCompanyID, cc.CompanyID.String(),
		telemetry.SpanAttrSourceID, id.String(),
	)

	if err := cc.Validate(); err != nil {
		return nil, err
	}
	result, replayed, err := execute(ctx, s.runner, cc.CompanyID, req.IdempotencyKey, commandCancelCreditNote,
		func(repos TransactionalRepositories, events *eventCollector) (*CreditNoteCommandResult, error) {
			note, err := repos.CreditNotes().FindByIDForUpdate(ctx, cc.CompanyID, id)
			if err != nil {
				return nil, err
			}
			hasActive, err := repos.Allocations().HasActiveForSource(ctx, cc.CompanyID, finance.SourceTypeCreditNote, note.ID)
			if err != nil {
				return nil, err
			}
			before := note.Status
			if err := note.Cancel(req.Reason, hasActive); err != nil {
				return nil, err
			}
			if err := repos.CreditNotes().SaveWithLock(ctx, note); err != nil {
				return nil, err
			}
			entry := finance.NewAuditEntry(cc, finance.AuditCreditNoteCanceled, finance.AggregateTypeCreditNote, note.ID, finance.AuditPayload{
				"status_before": string(before),
				"status_after":  string(note.Status),
				"reason":        note.CancellationReason,
			}).WithCommand(uuid.New(), req.IdempotencyKey)
			if err := repos.Audit().Create(ctx, entry); err != nil {
				return nil, err
			}
			events.collect(note)
			return &CreditNoteCommandResult{
				Success:    true,
				Message:    "Credit note " + note.CreditNoteNumber + " cancelled",
				CreditNote: ToCreditNoteResponse(note),
			}, nil
		})
	if result != nil {
		result.Replayed = replayed
	}
	telemetry.Finish(span, err)
	return result, err
}

// GetByID returns a credit note of the company
func (s *CreditNoteService) GetByID(ctx context.Context, companyID, id uuid.UUID) (*CreditNoteResponse, error) {
	note, err := s.repos.CreditNotes().FindByIDForCompany(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	resp := ToCreditNoteResponse(note)
	return &resp, nil
}

// List returns a page of credit notes
func (s *CreditNoteService) List(ctx context.Context, companyID uuid.UUID, filter finance.CreditNoteFilter) (*shared.Paginated[CreditNoteResponse], error) {
	filter.Filter = filter.Filter.Normalize()
	notes, err := s.repos.CreditNotes().FindAllForCompany(ctx, companyID, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.repos.CreditNotes().CountForCompany(ctx, companyID, filter)
	if err != nil {
		return nil, err
	}
	items := make([]CreditNoteResponse, len(notes))
	for i := range notes {
		items[i] = ToCreditNoteResponse(&notes[i])
	}
	page := shared.NewPaginated(items, total, filter.Page, filter.PageSize)
	return &page, nil
}

// Statistics returns counts per status and issued, applied and open totals
func (s *CreditNoteService) Statistics(ctx context.Context, companyID uuid.UUID) (*CreditNoteStatistics, error) {
	totals, err := s.repos.CreditNotes().Totals(ctx, companyID)
	if err != nil {
		return nil, err
	}
	counts := make(map[finance.CreditNoteStatus]int64, len(finance.AllCreditNoteStatuses()))
	for _, st := range finance.AllCreditNoteStatuses() {
		counts[st] = totals.CountByStatus[st]
	}
	return &CreditNoteStatistics{
		CountByStatus: counts,
		TotalIssued:   totals.TotalIssued,
		TotalApplied:  totals.TotalApplied,
		TotalOpen:     totals.TotalOpen,
	}, nil
}
