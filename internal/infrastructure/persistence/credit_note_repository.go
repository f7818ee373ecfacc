package persistence

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCreditNoteRepository implements CreditNoteRepository using GORM
type GormCreditNoteRepository struct {
	db *gorm.DB
}

// NewGormCreditNoteRepository creates a new GormCreditNoteRepository
func NewGormCreditNoteRepository(db *gorm.DB) *GormCreditNoteRepository {
	return &GormCreditNoteRepository{db: db}
}

func (r *GormCreditNoteRepository) findOne(query *gorm.DB) (*finance.CreditNote, error) {
	var model models.CreditNoteModel
	if err := query.Preload("Items").First(&model).Error; err != nil {
		return nil, TranslateError(err)
	}
	return model.ToDomain(), nil
}

// FindByIDForCompany finds a credit note by ID for a company
func (r *GormCreditNoteRepository) FindByIDForCompany(ctx context.Context, companyID, id uuid.UUID) (*finance.CreditNote, error) {
	return r.findOne(r.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id))
}

// FindByIDForUpdate finds and row-locks a credit note
func (r *GormCreditNoteRepository) FindByIDForUpdate(ctx context.Context, companyID, id uuid.UUID) (*finance.CreditNote, error) {
	return r.findOne(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("company_id = ? AND id = ?", companyID, id))
}

// FindAllForCompany returns a page of credit notes matching filter
func (r *GormCreditNoteRepository) FindAllForCompany(ctx context.Context, companyID uuid.UUID, filter finance.CreditNoteFilter) ([]finance.CreditNote, error) {
	var noteModels []models.CreditNoteModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.CreditNoteModel{}), companyID, filter)
	if err := paginate(query, filter.Filter, CreditNoteSortFields).Preload("Items").Find(&noteModels).Error; err != nil {
		return nil, err
	}
	notes := make([]finance.CreditNote, len(noteModels))
	for i := range noteModels {
		notes[i] = *noteModels[i].ToDomain()
	}
	return notes, nil
}

// CountForCompany counts credit notes matching filter
func (r *GormCreditNoteRepository) CountForCompany(ctx context.Context, companyID uuid.UUID, filter finance.CreditNoteFilter) (int64, error) {
	var count int64
	err := r.applyFilter(r.db.WithContext(ctx).Model(&models.CreditNoteModel{}), companyID, filter).
		Count(&count).Error
	return count, err
}

// NextSequence returns one past the highest CN-YYYY-NNNN sequence used in year
func (r *GormCreditNoteRepository) NextSequence(ctx context.Context, companyID uuid.UUID, year int) (int, error) {
	prefix := fmt.Sprintf("CN-%d-", year)
	var numbers []string
	if err := r.db.WithContext(ctx).Model(&models.CreditNoteModel{}).
		Where("company_id = ? AND credit_note_number LIKE ?", companyID, prefix+"%").
		Pluck("credit_note_number", &numbers).Error; err != nil {
		return 0, err
	}
	highest := 0
	for _, n := range numbers {
		seq, err := strconv.Atoi(strings.TrimPrefix(n, prefix))
		if err == nil && seq > highest {
			highest = seq
		}
	}
	return highest + 1, nil
}

type creditNoteTotalsRow struct {
	Status    finance.CreditNoteStatus
	Cnt       int64
	Total     decimal.NullDecimal
	Remaining decimal.NullDecimal
}

// Totals aggregates counts per status and the issued, applied and open
// amounts of posted notes
func (r *GormCreditNoteRepository) Totals(ctx context.Context, companyID uuid.UUID) (*finance.CreditNoteTotals, error) {
	var rows []creditNoteTotalsRow
	if err := r.db.WithContext(ctx).Model(&models.CreditNoteModel{}).
		Select("status, COUNT(*) AS cnt, SUM(total_amount) AS total, SUM(remaining_amount) AS remaining").
		Where("company_id = ?", companyID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	totals := &finance.CreditNoteTotals{
		CountByStatus: make(map[finance.CreditNoteStatus]int64),
		TotalIssued:   decimal.Zero,
		TotalApplied:  decimal.Zero,
		TotalOpen:     decimal.Zero,
	}
	for _, row := range rows {
		totals.CountByStatus[row.Status] = row.Cnt
		if row.Status != finance.CreditNoteStatusPosted {
			continue
		}
		totals.TotalIssued = totals.TotalIssued.Add(row.Total.Decimal)
		totals.TotalOpen = totals.TotalOpen.Add(row.Remaining.Decimal)
	}
	totals.TotalApplied = totals.TotalIssued.Sub(totals.TotalOpen)
	return totals, nil
}

// Create inserts the credit note and its items
func (r *GormCreditNoteRepository) Create(ctx context.Context, note *finance.CreditNote) error {
	if err := r.db.WithContext(ctx).Create(models.CreditNoteModelFromDomain(note)).Error; err != nil {
		return TranslateError(err)
	}
	return nil
}

// SaveWithLock updates the header when the stored version matches and bumps it.
// Items are immutable after creation.
func (r *GormCreditNoteRepository) SaveWithLock(ctx context.Context, note *finance.CreditNote) error {
	model := models.CreditNoteModelFromDomain(note)
	model.Version = note.Version + 1
	result := r.db.WithContext(ctx).
		Model(model).
		Where("company_id = ? AND version = ?", note.CompanyID, note.Version).
		Select("*").
		Omit("id", "created_at", "company_id", "created_by", "Items").
		Updates(model)
	if result.Error != nil {
		return TranslateError(result.Error)
	}
	if err := concurrencyConflict(result.RowsAffected); err != nil {
		return err
	}
	note.Version = model.Version
	return nil
}

func (r *GormCreditNoteRepository) applyFilter(query *gorm.DB, companyID uuid.UUID, filter finance.CreditNoteFilter) *gorm.DB {
	query = query.Where("company_id = ?", companyID)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.SourceDocumentID != nil {
		query = query.Where("source_document_id = ?", *filter.SourceDocumentID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query = query.Where("LOWER(credit_note_number) LIKE ?", "%"+strings.ToLower(search)+"%")
	}
	return query
}

var _ finance.CreditNoteRepository = (*GormCreditNoteRepository)(nil)
