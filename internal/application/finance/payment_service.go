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
	commandRegisterPayment = "register_payment"
	commandVoidPayment     = "void_payment"
)

// PaymentService registers and voids payments. Allocation of a payment is
// done by the AllocationService.
type PaymentService struct {
	repos           RepositorySet
	runner          *commandRunner
	defaultCurrency valueobject.Currency
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(repos RepositorySet, txScope TransactionScope, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		repos:           repos,
		runner:          newCommandRunner(repos, txScope, logger),
		defaultCurrency: "USD",
	}
}

// SetEventPublisher sets the publisher that receives events after commit
func (s *PaymentService) SetEventPublisher(publisher shared.EventPublisher) {
	s.runner.publisher = publisher
}

// SetMetrics sets the command metrics recorder
func (s *PaymentService) SetMetrics(m *telemetry.AllocationMetrics) {
	s.runner.metrics = m
}

// SetIdempotencyCache puts a result cache in front of the idempotency table
func (s *PaymentService) SetIdempotencyCache(cache shared.IdempotencyCache, cfg shared.IdempotencyConfig) {
	s.runner.idem.cache = cache
	if cfg.CacheTTL > 0 {
		s.runner.idem.ttl = cfg.CacheTTL
	}
}

// SetDefaultCurrency sets the currency used when a request names none
func (s *PaymentService) SetDefaultCurrency(currency string) {
	if c := valueobject.Currency(strings.ToUpper(currency)); c.Validate() == nil {
		s.defaultCurrency = c
	}
}

// SetClock overrides the clock used for default payment dates
func (s *PaymentService) SetClock(clock func() time.Time) {
	s.runner.clock = clock
}

// Register records a pending payment. Retrying with the same idempotency
// key returns the payment registered the first time.
func (s *PaymentService) Register(ctx context.Context, cc shared.CommandContext, req RegisterPaymentRequest) (*PaymentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "register")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCompanyID, cc.CompanyID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
		telemetry.SpanAttrIdempotencyKey, req.IdempotencyKey,
	)

	if err := cc.Validate(); err != nil {
		return nil, err
	}
	currency := valueobject.Currency(strings.ToUpper(strings.TrimSpace(req.Currency)))
	if currency == "" {
		currency = s.defaultCurrency
	}
	paymentDate := req.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = s.runner.now()
	}
	payment, err := finance.NewPayment(cc.CompanyID, req.PaymentNumber, req.CounterpartID, req.Amount,
		currency, paymentDate, req.Method, req.Reference, cc.ActorID)
	if err != nil {
		return nil, err
	}

	resp, replayed, err := execute(ctx, s.runner, cc.CompanyID, req.IdempotencyKey, commandRegisterPayment,
		func(repos TransactionalRepositories, events *eventCollector) (*PaymentResponse, error) {
			if err := repos.Payments().Create(ctx, payment); err != nil {
				return nil, err
			}
			entry := finance.NewAuditEntry(cc, finance.AuditPaymentRegistered, finance.AggregateTypePayment, payment.ID, finance.AuditPayload{
				"payment_number": payment.PaymentNumber,
				"counterpart_id": payment.CounterpartID.String(),
				"amount":         payment.Amount.StringFixed(valueobject.AmountScale),
				"currency":       payment.Currency.String(),
				"method":         string(payment.Method),
			}).WithCommand(uuid.New(), req.IdempotencyKey)
			if err := repos.Audit().Create(ctx, entry); err != nil {
				return nil, err
			}
			events.collect(payment)
			out := ToPaymentResponse(payment)
			return &out, nil
		})
	if resp != nil {
		resp.Replayed = replayed
	}
	telemetry.Finish(span, err)
	return resp, err
}

// VoidPaymentRequest cancels a payment
type VoidPaymentRequest struct {
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Void cancels a payment that has no active allocations
func (s *PaymentService) Void(ctx context.Context, cc shared.CommandContext, id uuid.UUID, req VoidPaymentRequest) (*PaymentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "void")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCompanyID, cc.CompanyID.String(),
		telemetry.SpanAttrSourceID, id.String(),
	)

	if err := cc.Validate(); err != nil {
		return nil, err
	}
	resp, replayed, err := execute(ctx, s.runner, cc.CompanyID, req.IdempotencyKey, commandVoidPayment,
		func(repos TransactionalRepositories, events *eventCollector) (*PaymentResponse, error) {
			payment, err := repos.Payments().FindByIDForUpdate(ctx, cc.CompanyID, id)
			if err != nil {
				return nil, err
			}
			hasActive, err := repos.Allocations().HasActiveForSource(ctx, cc.CompanyID, finance.SourceTypePayment, payment.ID)
			if err != nil {
				return nil, err
			}
			before := payment.Status
			if err := payment.Void(req.Reason, hasActive); err != nil {
				return nil, err
			}
			if err := repos.Payments().SaveWithLock(ctx, payment); err != nil {
				return nil, err
			}
			entry := finance.NewAuditEntry(cc, finance.AuditPaymentVoided, finance.AggregateTypePayment, payment.ID, finance.AuditPayload{
				"status_before": string(before),
				"status_after":  string(payment.Status),
				"reason":        payment.CancelReason,
			}).WithCommand(uuid.New(), req.IdempotencyKey)
			if err := repos.Audit().Create(ctx, entry); err != nil {
				return nil, err
			}
			events.collect(payment)
			out := ToPaymentResponse(payment)
			return &out, nil
		})
	if resp != nil {
		resp.Replayed = replayed
	}
	telemetry.Finish(span, err)
	return resp, err
}

// GetByID returns a payment of the company
func (s *PaymentService) GetByID(ctx context.Context, companyID, id uuid.UUID) (*PaymentResponse, error) {
	payment, err := s.repos.Payments().FindByIDForCompany(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	resp := ToPaymentResponse(payment)
	return &resp, nil
}

// List returns a page of payments
func (s *PaymentService) List(ctx context.Context, companyID uuid.UUID, filter finance.PaymentFilter) (*shared.Paginated[PaymentResponse], error) {
	filter.Filter = filter.Filter.Normalize()
	payments, err := s.repos.Payments().FindAllForCompany(ctx, companyID, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.repos.Payments().CountForCompany(ctx, companyID, filter)
	if err != nil {
		return nil, err
	}
	items := make([]PaymentResponse, len(payments))
	for i := range payments {
		items[i] = ToPaymentResponse(&payments[i])
	}
	page := shared.NewPaginated(items, total, filter.Page, filter.PageSize)
	return &page, nil
}
