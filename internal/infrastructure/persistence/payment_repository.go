package persistence

import (
	"context"
	"strings"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPaymentRepository implements PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByIDForCompany finds a payment by ID for a company
func (r *GormPaymentRepository) FindByIDForCompany(ctx context.Context, companyID, id uuid.UUID) (*finance.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyID, id).
		First(&model).Error; err != nil {
		return nil, TranslateError(err)
	}
	return model.ToDomain(), nil
}

// FindByIDForUpdate finds and row-locks a payment
func (r *GormPaymentRepository) FindByIDForUpdate(ctx context.Context, companyID, id uuid.UUID) (*finance.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("company_id = ? AND id = ?", companyID, id).
		First(&model).Error; err != nil {
		return nil, TranslateError(err)
	}
	return model.ToDomain(), nil
}

// FindAllForCompany returns a page of payments matching filter
func (r *GormPaymentRepository) FindAllForCompany(ctx context.Context, companyID uuid.UUID, filter finance.PaymentFilter) ([]finance.Payment, error) {
	var paymentModels []models.PaymentModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.PaymentModel{}), companyID, filter)
	if err := paginate(query, filter.Filter, PaymentSortFields).Find(&paymentModels).Error; err != nil {
		return nil, err
	}
	payments := make([]finance.Payment, len(paymentModels))
	for i := range paymentModels {
		payments[i] = *paymentModels[i].ToDomain()
	}
	return payments, nil
}

// CountForCompany counts payments matching filter
func (r *GormPaymentRepository) CountForCompany(ctx context.Context, companyID uuid.UUID, filter finance.PaymentFilter) (int64, error) {
	var count int64
	err := r.applyFilter(r.db.WithContext(ctx).Model(&models.PaymentModel{}), companyID, filter).
		Count(&count).Error
	return count, err
}

// SumUnallocated totals the remaining amount of pending payments of a counterpart
func (r *GormPaymentRepository) SumUnallocated(ctx context.Context, companyID, counterpartID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.WithContext(ctx).Model(&models.PaymentModel{}).
		Select("SUM(remaining_amount)").
		Where("company_id = ? AND counterpart_id = ? AND status = ?", companyID, counterpartID, finance.PaymentStatusPending).
		Row().Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// Create inserts a payment
func (r *GormPaymentRepository) Create(ctx context.Context, payment *finance.Payment) error {
	if err := r.db.WithContext(ctx).Create(models.PaymentModelFromDomain(payment)).Error; err != nil {
		return TranslateError(err)
	}
	return nil
}

// SaveWithLock updates the payment when the stored version matches and bumps it
func (r *GormPaymentRepository) SaveWithLock(ctx context.Context, payment *finance.Payment) error {
	model := models.PaymentModelFromDomain(payment)
	model.Version = payment.Version + 1
	result := r.db.WithContext(ctx).
		Model(model).
		Where("company_id = ? AND version = ?", payment.CompanyID, payment.Version).
		Select("*").
		Omit("id", "created_at", "company_id", "created_by").
		Updates(model)
	if result.Error != nil {
		return TranslateError(result.Error)
	}
	if err := concurrencyConflict(result.RowsAffected); err != nil {
		return err
	}
	payment.Version = model.Version
	return nil
}

func (r *GormPaymentRepository) applyFilter(query *gorm.DB, companyID uuid.UUID, filter finance.PaymentFilter) *gorm.DB {
	query = query.Where("company_id = ?", companyID)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CounterpartID != nil {
		query = query.Where("counterpart_id = ?", *filter.CounterpartID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("(LOWER(payment_number) LIKE ? OR LOWER(reference) LIKE ?)", like, like)
	}
	return query
}

var _ finance.PaymentRepository = (*GormPaymentRepository)(nil)
