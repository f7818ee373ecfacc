package persistence

import (
	"context"
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAllocationRepository implements AllocationRepository using GORM.
// Allocation rows are never updated except for the reversal columns.
type GormAllocationRepository struct {
	db *gorm.DB
}

// NewGormAllocationRepository creates a new GormAllocationRepository
func NewGormAllocationRepository(db *gorm.DB) *GormAllocationRepository {
	return &GormAllocationRepository{db: db}
}

// FindByIDForCompany finds an allocation by ID for a company
func (r *GormAllocationRepository) FindByIDForCompany(ctx context.Context, companyID, id uuid.UUID) (*finance.PaymentAllocation, error) {
	var model models.PaymentAllocationModel
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyID, id).
		First(&model).Error; err != nil {
		return nil, TranslateError(err)
	}
	return model.ToDomain(), nil
}

// FindByIDForUpdate finds and row-locks an allocation
func (r *GormAllocationRepository) FindByIDForUpdate(ctx context.Context, companyID, id uuid.UUID) (*finance.PaymentAllocation, error) {
	var model models.PaymentAllocationModel
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("company_id = ? AND id = ?", companyID, id).
		First(&model).Error; err != nil {
		return nil, TranslateError(err)
	}
	return model.ToDomain(), nil
}

// FindAll returns a page of allocations matching filter
func (r *GormAllocationRepository) FindAll(ctx context.Context, companyID uuid.UUID, filter finance.AllocationFilter) ([]finance.PaymentAllocation, error) {
	var allocationModels []models.PaymentAllocationModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.PaymentAllocationModel{}), companyID, filter)
	if err := paginate(query, filter.Filter, AllocationSortFields).Find(&allocationModels).Error; err != nil {
		return nil, err
	}
	allocations := make([]finance.PaymentAllocation, len(allocationModels))
	for i := range allocationModels {
		allocations[i] = *allocationModels[i].ToDomain()
	}
	return allocations, nil
}

// Count counts allocations matching filter
func (r *GormAllocationRepository) Count(ctx context.Context, companyID uuid.UUID, filter finance.AllocationFilter) (int64, error) {
	var count int64
	err := r.applyFilter(r.db.WithContext(ctx).Model(&models.PaymentAllocationModel{}), companyID, filter).
		Count(&count).Error
	return count, err
}

// HasActiveForDocument reports whether any unreversed allocation targets the document
func (r *GormAllocationRepository) HasActiveForDocument(ctx context.Context, companyID, documentID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PaymentAllocationModel{}).
		Where("company_id = ? AND document_id = ? AND is_reversed = ?", companyID, documentID, false).
		Count(&count).Error
	return count > 0, err
}

// HasActiveForSource reports whether the funding source has unreversed allocations
func (r *GormAllocationRepository) HasActiveForSource(ctx context.Context, companyID uuid.UUID, sourceType finance.SourceType, sourceID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PaymentAllocationModel{}).
		Where("company_id = ? AND source_type = ? AND source_id = ? AND is_reversed = ?", companyID, sourceType, sourceID, false).
		Count(&count).Error
	return count > 0, err
}

type allocationStatsRow struct {
	Strategy   finance.StrategyType
	IsReversed bool
	Cnt        int64
	Amount     decimal.NullDecimal
}

// Statistics aggregates allocation counts and amounts per strategy
func (r *GormAllocationRepository) Statistics(ctx context.Context, companyID uuid.UUID) (*finance.AllocationStatistics, error) {
	var rows []allocationStatsRow
	if err := r.db.WithContext(ctx).Model(&models.PaymentAllocationModel{}).
		Select("strategy, is_reversed, COUNT(*) AS cnt, SUM(allocated_amount) AS amount").
		Where("company_id = ?", companyID).
		Group("strategy, is_reversed").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	stats := &finance.AllocationStatistics{
		ActiveAmount:   decimal.Zero,
		ReversedAmount: decimal.Zero,
		ByStrategy:     make(map[finance.StrategyType]finance.StrategyStatistics),
	}
	for _, row := range rows {
		st := stats.ByStrategy[row.Strategy]
		st.Count += row.Cnt
		stats.Total += row.Cnt
		if row.IsReversed {
			st.Reversed += row.Cnt
			stats.Reversed += row.Cnt
			stats.ReversedAmount = stats.ReversedAmount.Add(row.Amount.Decimal)
		} else {
			st.Active += row.Cnt
			st.ActiveAmount = st.ActiveAmount.Add(row.Amount.Decimal)
			stats.Active += row.Cnt
			stats.ActiveAmount = stats.ActiveAmount.Add(row.Amount.Decimal)
		}
		stats.ByStrategy[row.Strategy] = st
	}
	return stats, nil
}

// Create inserts an allocation
func (r *GormAllocationRepository) Create(ctx context.Context, allocation *finance.PaymentAllocation) error {
	if err := r.db.WithContext(ctx).Create(models.PaymentAllocationModelFromDomain(allocation)).Error; err != nil {
		return TranslateError(err)
	}
	return nil
}

// SaveReversal persists the reversal fields. The update only matches active
// rows, so a second reversal of the same allocation is rejected.
func (r *GormAllocationRepository) SaveReversal(ctx context.Context, allocation *finance.PaymentAllocation) error {
	updatedAt := allocation.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	result := r.db.WithContext(ctx).Model(&models.PaymentAllocationModel{}).
		Where("company_id = ? AND id = ? AND is_reversed = ?", allocation.CompanyID, allocation.ID, false).
		Updates(map[string]any{
			"is_reversed":     true,
			"reversed_at":     allocation.ReversedAt,
			"reversed_by":     allocation.ReversedBy,
			"reversal_reason": allocation.ReversalReason,
			"updated_at":      updatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	if _, err := r.FindByIDForCompany(ctx, allocation.CompanyID, allocation.ID); err != nil {
		return err
	}
	return shared.NewDomainError(finance.CodeAlreadyReversed, "Allocation has already been reversed")
}

func (r *GormAllocationRepository) applyFilter(query *gorm.DB, companyID uuid.UUID, filter finance.AllocationFilter) *gorm.DB {
	query = query.Where("company_id = ?", companyID)
	if filter.SourceType != nil {
		query = query.Where("source_type = ?", *filter.SourceType)
	}
	if filter.SourceID != nil {
		query = query.Where("source_id = ?", *filter.SourceID)
	}
	if filter.DocumentID != nil {
		query = query.Where("document_id = ?", *filter.DocumentID)
	}
	if filter.Strategy != nil {
		query = query.Where("strategy = ?", *filter.Strategy)
	}
	if filter.Status != nil {
		query = query.Where("is_reversed = ?", *filter.Status == finance.AllocationStatusReversed)
	}
	if filter.CommandID != nil {
		query = query.Where("command_id = ?", *filter.CommandID)
	}
	return query
}

var _ finance.AllocationRepository = (*GormAllocationRepository)(nil)
