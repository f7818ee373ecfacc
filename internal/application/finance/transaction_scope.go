package finance

import (
	"context"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
)

// TransactionScope provides transactional access to the finance repositories.
// Everything done through the repositories handed to fn commits or rolls back together.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories exposes every finance repository bound to one transaction.
//
// Documents, payments and credit notes are aggregate roots; their Save methods
// check the stored version. Allocations, tax components, audit entries and
// idempotency records are append-mostly and written alongside the aggregates.
type TransactionalRepositories interface {
	Documents() finance.PayableDocumentRepository
	Payments() finance.PaymentRepository
	CreditNotes() finance.CreditNoteRepository
	Allocations() finance.AllocationRepository
	TaxComponents() finance.TaxComponentRepository
	Audit() finance.AuditRepository
	Idempotency() shared.IdempotencyRepository
}

// RepositorySet is a plain bundle of repositories. Services use it for reads
// outside a transaction; it also implements TransactionalRepositories.
type RepositorySet struct {
	DocumentRepo     finance.PayableDocumentRepository
	PaymentRepo      finance.PaymentRepository
	CreditNoteRepo   finance.CreditNoteRepository
	AllocationRepo   finance.AllocationRepository
	TaxComponentRepo finance.TaxComponentRepository
	AuditRepo        finance.AuditRepository
	IdempotencyRepo  shared.IdempotencyRepository
}

// Documents returns the document repository
func (r RepositorySet) Documents() finance.PayableDocumentRepository { return r.DocumentRepo }

// Payments returns the payment repository
func (r RepositorySet) Payments() finance.PaymentRepository { return r.PaymentRepo }

// CreditNotes returns the credit note repository
func (r RepositorySet) CreditNotes() finance.CreditNoteRepository { return r.CreditNoteRepo }

// Allocations returns the allocation repository
func (r RepositorySet) Allocations() finance.AllocationRepository { return r.AllocationRepo }

// TaxComponents returns the tax component repository
func (r RepositorySet) TaxComponents() finance.TaxComponentRepository { return r.TaxComponentRepo }

// Audit returns the audit repository
func (r RepositorySet) Audit() finance.AuditRepository { return r.AuditRepo }

// Idempotency returns the idempotency repository
func (r RepositorySet) Idempotency() shared.IdempotencyRepository { return r.IdempotencyRepo }

// NoOpTransactionScope runs fn against the given repositories without a
// real transaction. Used by tests and single-writer tooling.
type NoOpTransactionScope struct {
	repos RepositorySet
}

// NewNoOpTransactionScope creates a NoOpTransactionScope
func NewNoOpTransactionScope(repos RepositorySet) *NoOpTransactionScope {
	return &NoOpTransactionScope{repos: repos}
}

// Execute runs fn directly
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s.repos)
}

var (
	_ TransactionScope          = (*NoOpTransactionScope)(nil)
	_ TransactionalRepositories = RepositorySet{}
)
