package persistence

import (
	"context"
	"sort"
	"strings"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPayableDocumentRepository implements PayableDocumentRepository using GORM
type GormPayableDocumentRepository struct {
	db *gorm.DB
}

// NewGormPayableDocumentRepository creates a new GormPayableDocumentRepository
func NewGormPayableDocumentRepository(db *gorm.DB) *GormPayableDocumentRepository {
	return &GormPayableDocumentRepository{db: db}
}

func orderedLines(db *gorm.DB) *gorm.DB {
	return db.Order("line_number ASC")
}

func (r *GormPayableDocumentRepository) findOne(query *gorm.DB) (*finance.PayableDocument, error) {
	var model models.PayableDocumentModel
	if err := query.Preload("Lines", orderedLines).First(&model).Error; err != nil {
		return nil, TranslateError(err)
	}
	return model.ToDomain(), nil
}

// FindByIDForCompany loads a document owned by companyID
func (r *GormPayableDocumentRepository) FindByIDForCompany(ctx context.Context, companyID, id uuid.UUID) (*finance.PayableDocument, error) {
	return r.findOne(r.db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyID, id))
}

// FindByIDForUpdate loads and row-locks a document owned by companyID
func (r *GormPayableDocumentRepository) FindByIDForUpdate(ctx context.Context, companyID, id uuid.UUID) (*finance.PayableDocument, error) {
	return r.findOne(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("company_id = ? AND id = ?", companyID, id))
}

// FindByIDsForUpdate row-locks the company's documents in ID order so
// concurrent commands touching overlapping documents cannot deadlock.
func (r *GormPayableDocumentRepository) FindByIDsForUpdate(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID) ([]*finance.PayableDocument, error) {
	if len(ids) == 0 {
		return []*finance.PayableDocument{}, nil
	}
	sorted := append([]uuid.UUID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	var docModels []models.PayableDocumentModel
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("company_id = ? AND id IN ?", companyID, sorted).
		Order("id ASC").
		Preload("Lines", orderedLines).
		Find(&docModels).Error; err != nil {
		return nil, err
	}
	docs := make([]*finance.PayableDocument, len(docModels))
	for i := range docModels {
		docs[i] = docModels[i].ToDomain()
	}
	return docs, nil
}

// FindOpenByCounterpart returns posted or partially paid documents with a positive balance
func (r *GormPayableDocumentRepository) FindOpenByCounterpart(ctx context.Context, companyID, counterpartID uuid.UUID) ([]finance.PayableDocument, error) {
	var docModels []models.PayableDocumentModel
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND counterpart_id = ? AND status IN ? AND balance_due > 0", companyID, counterpartID,
			[]finance.DocumentStatus{finance.DocumentStatusPosted, finance.DocumentStatusPartiallyPaid}).
		Order("created_at ASC").
		Order("id ASC").
		Preload("Lines", orderedLines).
		Find(&docModels).Error; err != nil {
		return nil, err
	}
	return toDocuments(docModels), nil
}

// FindAllForCompany returns a page of documents matching filter
func (r *GormPayableDocumentRepository) FindAllForCompany(ctx context.Context, companyID uuid.UUID, filter finance.DocumentFilter) ([]finance.PayableDocument, error) {
	var docModels []models.PayableDocumentModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.PayableDocumentModel{}), companyID, filter)
	query = paginate(query, filter.Filter, DocumentSortFields)
	if err := query.Preload("Lines", orderedLines).Find(&docModels).Error; err != nil {
		return nil, err
	}
	return toDocuments(docModels), nil
}

// CountForCompany counts documents matching filter
func (r *GormPayableDocumentRepository) CountForCompany(ctx context.Context, companyID uuid.UUID, filter finance.DocumentFilter) (int64, error) {
	var count int64
	err := r.applyFilter(r.db.WithContext(ctx).Model(&models.PayableDocumentModel{}), companyID, filter).
		Count(&count).Error
	return count, err
}

// ExistsByNumber reports whether the number is taken for the kind
func (r *GormPayableDocumentRepository) ExistsByNumber(ctx context.Context, companyID uuid.UUID, kind finance.DocumentKind, number string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PayableDocumentModel{}).
		Where("company_id = ? AND kind = ? AND document_number = ?", companyID, kind, number).
		Count(&count).Error
	return count > 0, err
}

// Create inserts the document and its lines
func (r *GormPayableDocumentRepository) Create(ctx context.Context, doc *finance.PayableDocument) error {
	model := models.PayableDocumentModelFromDomain(doc)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return TranslateError(err)
	}
	return nil
}

// SaveWithLock updates the header when the stored version matches and bumps it
func (r *GormPayableDocumentRepository) SaveWithLock(ctx context.Context, doc *finance.PayableDocument) error {
	model := models.PayableDocumentModelFromDomain(doc)
	model.Version = doc.Version + 1
	result := r.db.WithContext(ctx).
		Model(model).
		Where("company_id = ? AND version = ?", doc.CompanyID, doc.Version).
		Select("*").
		Omit("id", "created_at", "company_id", "created_by", "Lines").
		Updates(model)
	if result.Error != nil {
		return TranslateError(result.Error)
	}
	if err := concurrencyConflict(result.RowsAffected); err != nil {
		return err
	}
	doc.Version = model.Version
	return nil
}

// SaveLines replaces the stored lines of the document
func (r *GormPayableDocumentRepository) SaveLines(ctx context.Context, doc *finance.PayableDocument) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("document_id = ?", doc.ID).Delete(&models.DocumentLineModel{}).Error; err != nil {
		return err
	}
	lines := models.DocumentLineModelsFromDomain(doc)
	if len(lines) == 0 {
		return nil
	}
	return db.Create(&lines).Error
}

func (r *GormPayableDocumentRepository) applyFilter(query *gorm.DB, companyID uuid.UUID, filter finance.DocumentFilter) *gorm.DB {
	query = query.Where("company_id = ?", companyID)
	if filter.Kind != nil {
		query = query.Where("kind = ?", *filter.Kind)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CounterpartID != nil {
		query = query.Where("counterpart_id = ?", *filter.CounterpartID)
	}
	if filter.DueBefore != nil {
		query = query.Where("due_date < ?", *filter.DueBefore)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query = query.Where("LOWER(document_number) LIKE ?", "%"+strings.ToLower(search)+"%")
	}
	return query
}

func toDocuments(docModels []models.PayableDocumentModel) []finance.PayableDocument {
	docs := make([]finance.PayableDocument, len(docModels))
	for i := range docModels {
		docs[i] = *docModels[i].ToDomain()
	}
	return docs
}

var _ finance.PayableDocumentRepository = (*GormPayableDocumentRepository)(nil)
