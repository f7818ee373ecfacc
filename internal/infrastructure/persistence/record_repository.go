package persistence

import (
	"context"
	"errors"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormTaxComponentRepository implements TaxComponentRepository using GORM
type GormTaxComponentRepository struct {
	db *gorm.DB
}

// NewGormTaxComponentRepository creates a new GormTaxComponentRepository
func NewGormTaxComponentRepository(db *gorm.DB) *GormTaxComponentRepository {
	return &GormTaxComponentRepository{db: db}
}

// FindByDocument returns the tax components of a document in line order
func (r *GormTaxComponentRepository) FindByDocument(ctx context.Context, companyID, documentID uuid.UUID) ([]*finance.TaxComponent, error) {
	var componentModels []models.TaxComponentModel
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND document_id = ?", companyID, documentID).
		Order("line_number ASC").
		Order("created_at ASC").
		Find(&componentModels).Error; err != nil {
		return nil, err
	}
	components := make([]*finance.TaxComponent, len(componentModels))
	for i := range componentModels {
		components[i] = componentModels[i].ToDomain()
	}
	return components, nil
}

// CreateBatch inserts components
func (r *GormTaxComponentRepository) CreateBatch(ctx context.Context, components []*finance.TaxComponent) error {
	if len(components) == 0 {
		return nil
	}
	componentModels := make([]*models.TaxComponentModel, len(components))
	for i, c := range components {
		componentModels[i] = models.TaxComponentModelFromDomain(c)
	}
	return r.db.WithContext(ctx).CreateInBatches(componentModels, 100).Error
}

// Save updates the mutable counters of a component
func (r *GormTaxComponentRepository) Save(ctx context.Context, component *finance.TaxComponent) error {
	return r.db.WithContext(ctx).Save(models.TaxComponentModelFromDomain(component)).Error
}

var _ finance.TaxComponentRepository = (*GormTaxComponentRepository)(nil)

// GormAuditRepository implements AuditRepository using GORM
type GormAuditRepository struct {
	db *gorm.DB
}

// NewGormAuditRepository creates a new GormAuditRepository
func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

// Create appends an audit entry
func (r *GormAuditRepository) Create(ctx context.Context, entry *finance.AuditEntry) error {
	return r.db.WithContext(ctx).Create(models.AuditEntryModelFromDomain(entry)).Error
}

// FindByEntity returns the audit trail of one entity, oldest first
func (r *GormAuditRepository) FindByEntity(ctx context.Context, companyID uuid.UUID, entityType string, entityID uuid.UUID) ([]finance.AuditEntry, error) {
	var entryModels []models.AuditEntryModel
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND entity_type = ? AND entity_id = ?", companyID, entityType, entityID).
		Order("created_at ASC").
		Find(&entryModels).Error; err != nil {
		return nil, err
	}
	entries := make([]finance.AuditEntry, len(entryModels))
	for i := range entryModels {
		entries[i] = entryModels[i].ToDomain()
	}
	return entries, nil
}

var _ finance.AuditRepository = (*GormAuditRepository)(nil)

// GormIdempotencyRepository implements IdempotencyRepository using GORM
type GormIdempotencyRepository struct {
	db *gorm.DB
}

// NewGormIdempotencyRepository creates a new GormIdempotencyRepository
func NewGormIdempotencyRepository(db *gorm.DB) *GormIdempotencyRepository {
	return &GormIdempotencyRepository{db: db}
}

// FindByKey returns the record stored for key
func (r *GormIdempotencyRepository) FindByKey(ctx context.Context, companyID uuid.UUID, key string) (*shared.IdempotencyRecord, error) {
	var model models.IdempotencyRecordModel
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND idempotency_key = ?", companyID, key).
		First(&model).Error; err != nil {
		return nil, TranslateError(err)
	}
	return model.ToDomain(), nil
}

// Create claims key. A key that already exists yields ErrIdempotencyConflict.
func (r *GormIdempotencyRepository) Create(ctx context.Context, record *shared.IdempotencyRecord) error {
	err := r.db.WithContext(ctx).Create(models.IdempotencyRecordModelFromDomain(record)).Error
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return shared.ErrIdempotencyConflict
	}
	return err
}

// SaveResult stores the serialized command result on the claimed record
func (r *GormIdempotencyRepository) SaveResult(ctx context.Context, record *shared.IdempotencyRecord) error {
	result := r.db.WithContext(ctx).Model(&models.IdempotencyRecordModel{}).
		Where("company_id = ? AND idempotency_key = ?", record.CompanyID, record.Key).
		Update("result", string(record.Result))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.Join(shared.ErrNotFound, errors.New("idempotency record "+record.Key+" was not claimed"))
	}
	return nil
}

var _ shared.IdempotencyRepository = (*GormIdempotencyRepository)(nil)
