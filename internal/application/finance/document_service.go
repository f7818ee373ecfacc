package finance

import (
	"context"
	"strings"
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	commandCreateDocument  = "create_document"
	commandReplaceLines    = "replace_document_lines"
	commandSubmitDocument  = "submit_document"
	commandApproveDocument = "approve_document"
	commandRejectDocument  = "reject_document"
	commandPostDocument    = "post_document"
	commandCancelDocument  = "cancel_document"
)

// DocumentService manages the lifecycle of invoices and bills up to posting.
// Balances of posted documents change only through the AllocationService.
type DocumentService struct {
	repos           RepositorySet
	runner          *commandRunner
	calc            *finance.TaxCalculator
	defaultCurrency valueobject.Currency
}

// NewDocumentService creates a new DocumentService
func NewDocumentService(repos RepositorySet, txScope TransactionScope, logger *zap.Logger) *DocumentService {
	return &DocumentService{
		repos:           repos,
		runner:          newCommandRunner(repos, txScope, logger),
		calc:            finance.NewTaxCalculator(),
		defaultCurrency: "USD",
	}
}

// SetEventPublisher sets the publisher that receives events after commit
func (s *DocumentService) SetEventPublisher(publisher shared.EventPublisher) {
	s.runner.publisher = publisher
}

// SetMetrics sets the command metrics recorder
func (s *DocumentService) SetMetrics(m *telemetry.AllocationMetrics) {
	s.runner.metrics = m
}

// SetIdempotencyCache puts a result cache in front of the idempotency table
func (s *DocumentService) SetIdempotencyCache(cache shared.IdempotencyCache, cfg shared.IdempotencyConfig) {
	s.runner.idem.cache = cache
	if cfg.CacheTTL > 0 {
		s.runner.idem.ttl = cfg.CacheTTL
	}
}

// SetDefaultCurrency sets the currency used when a request names none
func (s *DocumentService) SetDefaultCurrency(currency string) {
	if c := valueobject.Currency(strings.ToUpper(currency)); c.Validate() == nil {
		s.defaultCurrency = c
	}
}

// SetClock overrides the clock used for reversal timestamps and defaults
func (s *DocumentService) SetClock(clock func() time.Time) {
	s.runner.clock = clock
}

// Create drafts a new document, computing totals from its lines
func (s *DocumentService) Create(ctx context.Context, cc shared.CommandContext, req CreateDocumentRequest) (*DocumentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "document", "create")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCompanyID, cc.CompanyID.String(),
		"document.kind", string(req.Kind),
	)

	if err := cc.Validate(); err != nil {
		return nil, err
	}
	currency := valueobject.Currency(strings.ToUpper(strings.TrimSpace(req.Currency)))
	if currency == "" {
		currency = s.defaultCurrency
	}
	issueDate := req.IssueDate
	if issueDate.IsZero() {
		issueDate = s.runner.now()
	}

	doc, err := finance.NewPayableDocument(cc.CompanyID, req.Kind, req.DocumentNumber, req.CounterpartID,
		currency, req.ExchangeRate, issueDate, req.DueDate, cc.ActorID)
	if err != nil {
		return nil, err
	}
	doc.Notes = req.Notes
	if len(req.Lines) > 0 {
		if err := doc.ReplaceLines(toDocumentLines(req.Lines), s.calc); err != nil {
			return nil, err
		}
	}

	resp, _, err := execute(ctx, s.runner, cc.CompanyID, "", commandCreateDocument,
		func(repos TransactionalRepositories, events *eventCollector) (*DocumentResponse, error) {
			exists, err := repos.Documents().ExistsByNumber(ctx, cc.CompanyID, doc.Kind, doc.DocumentNumber)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, shared.NewValidationError("Document number already exists", map[string]string{
					"document_number": "already used by another " + doc.Kind.String(),
				})
			}
			if err := repos.Documents().Create(ctx, doc); err != nil {
				return nil, err
			}
			entry := finance.NewAuditEntry(cc, finance.AuditDocumentCreated, finance.AggregateTypeDocument, doc.ID, finance.AuditPayload{
				"kind":            string(doc.Kind),
				"document_number": doc.DocumentNumber,
				"total_amount":    doc.TotalAmount.StringFixed(valueobject.AmountScale),
				"lines":           len(doc.Lines),
			})
			if err := repos.Audit().Create(ctx, entry); err != nil {
				return nil, err
			}
			events.collect(doc)
			out := ToDocumentResponse(doc)
			return &out, nil
		})
	telemetry.Finish(span, err)
	return resp, err
}

// ReplaceLines replaces the lines of an editable document
func (s *DocumentService) ReplaceLines(ctx context.Context, cc shared.CommandContext, id uuid.UUID, lines []DocumentLineInput) (*DocumentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "document", "replace_lines")
	defer span.End()

	if err := cc.Validate(); err != nil {
		return nil, err
	}
	resp, _, err := execute(ctx, s.runner, cc.CompanyID, "", commandReplaceLines,
		func(repos TransactionalRepositories, events *eventCollector) (*DocumentResponse, error) {
			doc, err := repos.Documents().FindByIDForUpdate(ctx, cc.CompanyID, id)
			if err != nil {
				return nil, err
			}
			before := doc.TotalAmount
			if err := doc.ReplaceLines(toDocumentLines(lines), s.calc); err != nil {
				return nil, err
			}
			if err := repos.Documents().SaveLines(ctx, doc); err != nil {
				return nil, err
			}
			if err := repos.Documents().SaveWithLock(ctx, doc); err != nil {
				return nil, err
			}
			entry := finance.NewAuditEntry(cc, finance.AuditDocumentUpdated, finance.AggregateTypeDocument, doc.ID, finance.AuditPayload{
				"total_before": before.StringFixed(valueobject.AmountScale),
				"total_after":  doc.TotalAmount.StringFixed(valueobject.AmountScale),
				"lines":        len(doc.Lines),
			})
			if err := repos.Audit().Create(ctx, entry); err != nil {
				return nil, err
			}
			events.collect(doc)
			out := ToDocumentResponse(doc)
			return &out, nil
		})
	telemetry.Finish(span, err)
	return resp, err
}

// Submit sends a draft for approval
func (s *DocumentService) Submit(ctx context.Context, cc shared.CommandContext, id uuid.UUID, req DocumentTransitionRequest) (*DocumentCommandResult, error) {
	return s.transition(ctx, cc, id, req, commandSubmitDocument, finance.AuditDocumentSubmitted,
		func(_ TransactionalRepositories, doc *finance.PayableDocument) error {
			return doc.Submit(cc.ActorID)
		})
}

// Approve approves a pending document
func (s *DocumentService) Approve(ctx context.Context, cc shared.CommandContext, id uuid.UUID, req DocumentTransitionRequest) (*DocumentCommandResult, error) {
	return s.transition(ctx, cc, id, req, commandApproveDocument, finance.AuditDocumentApproved,
		func(_ TransactionalRepositories, doc *finance.PayableDocument) error {
			return doc.Approve(cc.ActorID)
		})
}

// Reject rejects a pending document; a reason is required
func (s *DocumentService) Reject(ctx context.Context, cc shared.CommandContext, id uuid.UUID, req DocumentTransitionRequest) (*DocumentCommandResult, error) {
	return s.transition(ctx, cc, id, req, commandRejectDocument, finance.AuditDocumentRejected,
		func(_ TransactionalRepositories, doc *finance.PayableDocument) error {
			return doc.Reject(cc.ActorID, req.Reason)
		})
}

// Post recomputes totals, opens the balance and records tax components
func (s *DocumentService) Post(ctx context.Context, cc shared.CommandContext, id uuid.UUID, req DocumentTransitionRequest) (*DocumentCommandResult, error) {
	return s.transition(ctx, cc, id, req, commandPostDocument, finance.AuditDocumentPosted,
		func(repos TransactionalRepositories, doc *finance.PayableDocument) error {
			components, err := doc.Post(cc.ActorID, s.calc)
			if err != nil {
				return err
			}
			if err := repos.Documents().SaveLines(ctx, doc); err != nil {
				return err
			}
			if len(components) == 0 {
				return nil
			}
			return repos.TaxComponents().CreateBatch(ctx, components)
		})
}

// Cancel cancels a document without active allocations. Tax components
// recorded at posting are reversed.
func (s *DocumentService) Cancel(ctx context.Context, cc shared.CommandContext, id uuid.UUID, req DocumentTransitionRequest) (*DocumentCommandResult, error) {
	return s.transition(ctx, cc, id, req, commandCancelDocument, finance.AuditDocumentCancelled,
		func(repos TransactionalRepositories, doc *finance.PayableDocument) error {
			hasActive, err := repos.Allocations().HasActiveForDocument(ctx, cc.CompanyID, doc.ID)
			if err != nil {
				return err
			}
			wasPosted := doc.PostedAt != nil
			if err := doc.Cancel(cc.ActorID, req.Reason, hasActive); err != nil {
				return err
			}
			if !wasPosted {
				return nil
			}
			components, err := repos.TaxComponents().FindByDocument(ctx, cc.CompanyID, doc.ID)
			if err != nil {
				return err
			}
			now := s.runner.now()
			for _, c := range components {
				if c.IsReversed {
					continue
				}
				if err := c.Reverse(now); err != nil {
					return err
				}
				if err := repos.TaxComponents().Save(ctx, c); err != nil {
					return err
				}
			}
			return nil
		})
}

// transition runs one lifecycle command on a locked document
func (s *DocumentService) transition(
	ctx context.Context,
	cc shared.CommandContext,
	id uuid.UUID,
	req DocumentTransitionRequest,
	command string,
	action finance.AuditAction,
	fn func(repos TransactionalRepositories, doc *finance.PayableDocument) error,
) (*DocumentCommandResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "document", command)
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCompanyID, cc.CompanyID.String(),
		telemetry.SpanAttrDocumentID, id.String(),
		telemetry.SpanAttrIdempotencyKey, req.IdempotencyKey,
	)

	if err := cc.Validate(); err != nil {
		return nil, err
	}
	result, replayed, err := execute(ctx, s.runner, cc.CompanyID, req.IdempotencyKey, command,
		func(repos TransactionalRepositories, events *eventCollector) (*DocumentCommandResult, error) {
			doc, err := repos.Documents().FindByIDForUpdate(ctx, cc.CompanyID, id)
			if err != nil {
				return nil, err
			}
			before := doc.Status
			if err := fn(repos, doc); err != nil {
				return nil, err
			}
			if err := repos.Documents().SaveWithLock(ctx, doc); err != nil {
				return nil, err
			}

			payload := finance.AuditPayload{
				"status_before": string(before),
				"status_after":  string(doc.Status),
				"total_amount":  doc.TotalAmount.StringFixed(valueobject.AmountScale),
				"balance_due":   doc.BalanceDue.StringFixed(valueobject.AmountScale),
			}
			if req.Reason != "" {
				payload["reason"] = req.Reason
			}
			entry := finance.NewAuditEntry(cc, action, finance.AggregateTypeDocument, doc.ID, payload).
				WithCommand(uuid.New(), req.IdempotencyKey)
			if err := repos.Audit().Create(ctx, entry); err != nil {
				return nil, err
			}
			events.collect(doc)

			return &DocumentCommandResult{
				Success:   true,
				Message:   doc.Kind.String() + " " + doc.DocumentNumber + " is now " + doc.Status.String(),
				NewStatus: doc.Status,
				Document:  ToDocumentResponse(doc),
			}, nil
		})
	if result != nil {
		result.Replayed = replayed
	}
	telemetry.Finish(span, err)
	return result, err
}

// GetByID returns a document of the company
func (s *DocumentService) GetByID(ctx context.Context, companyID, id uuid.UUID) (*DocumentResponse, error) {
	doc, err := s.repos.Documents().FindByIDForCompany(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	resp := ToDocumentResponse(doc)
	return &resp, nil
}

// List returns a page of documents
func (s *DocumentService) List(ctx context.Context, companyID uuid.UUID, filter finance.DocumentFilter) (*shared.Paginated[DocumentResponse], error) {
	filter.Filter = filter.Filter.Normalize()
	docs, err := s.repos.Documents().FindAllForCompany(ctx, companyID, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.repos.Documents().CountForCompany(ctx, companyID, filter)
	if err != nil {
		return nil, err
	}
	page := shared.NewPaginated(ToDocumentResponses(docs), total, filter.Page, filter.PageSize)
	return &page, nil
}

// TaxComponents returns the tax components recorded when the document was posted
func (s *DocumentService) TaxComponents(ctx context.Context, companyID, id uuid.UUID) ([]TaxComponentResponse, error) {
	if _, err := s.repos.Documents().FindByIDForCompany(ctx, companyID, id); err != nil {
		return nil, err
	}
	components, err := s.repos.TaxComponents().FindByDocument(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	return ToTaxComponentResponses(components), nil
}
