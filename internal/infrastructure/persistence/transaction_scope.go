package persistence

import (
	"context"

	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"gorm.io/gorm"
)

// NewRepositorySet builds the non-transactional repositories used for reads
func NewRepositorySet(db *gorm.DB) appfinance.RepositorySet {
	return appfinance.RepositorySet{
		DocumentRepo:     NewGormPayableDocumentRepository(db),
		PaymentRepo:      NewGormPaymentRepository(db),
		CreditNoteRepo:   NewGormCreditNoteRepository(db),
		AllocationRepo:   NewGormAllocationRepository(db),
		TaxComponentRepo: NewGormTaxComponentRepository(db),
		AuditRepo:        NewGormAuditRepository(db),
		IdempotencyRepo:  NewGormIdempotencyRepository(db),
	}
}

// GormTransactionScope implements TransactionScope using GORM transactions.
// Every repository handed to the callback is bound to the same transaction.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appfinance.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

func (r *gormTransactionalRepositories) Documents() finance.PayableDocumentRepository {
	return NewGormPayableDocumentRepository(r.tx)
}

func (r *gormTransactionalRepositories) Payments() finance.PaymentRepository {
	return NewGormPaymentRepository(r.tx)
}

func (r *gormTransactionalRepositories) CreditNotes() finance.CreditNoteRepository {
	return NewGormCreditNoteRepository(r.tx)
}

func (r *gormTransactionalRepositories) Allocations() finance.AllocationRepository {
	return NewGormAllocationRepository(r.tx)
}

func (r *gormTransactionalRepositories) TaxComponents() finance.TaxComponentRepository {
	return NewGormTaxComponentRepository(r.tx)
}

func (r *gormTransactionalRepositories) Audit() finance.AuditRepository {
	return NewGormAuditRepository(r.tx)
}

func (r *gormTransactionalRepositories) Idempotency() shared.IdempotencyRepository {
	return NewGormIdempotencyRepository(r.tx)
}

var (
	_ appfinance.TransactionScope          = (*GormTransactionScope)(nil)
	_ appfinance.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
)
