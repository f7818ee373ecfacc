package models

import (
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
)

// AuditEntryModel is the persistence model for the append-only audit log.
type AuditEntryModel struct {
	ID             uuid.UUID            `gorm:"type:uuid;primary_key"`
	CompanyID      uuid.UUID            `gorm:"type:uuid;not null;index:idx_audit_entity,priority:1"`
	ActorID        uuid.UUID            `gorm:"type:uuid;not null"`
	Action         finance.AuditAction  `gorm:"type:varchar(50);not null;index"`
	EntityType     string               `gorm:"type:varchar(50);not null;index:idx_audit_entity,priority:2"`
	EntityID       uuid.UUID            `gorm:"type:uuid;not null;index:idx_audit_entity,priority:3"`
	CommandID      *uuid.UUID           `gorm:"type:uuid;index"`
	IdempotencyKey string               `gorm:"type:varchar(255)"`
	RequestID      string               `gorm:"type:varchar(100)"`
	IPAddress      string               `gorm:"type:varchar(64)"`
	UserAgent      string               `gorm:"type:varchar(500)"`
	Payload        finance.AuditPayload `gorm:"type:jsonb;default:'{}'"`
	CreatedAt      time.Time            `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AuditEntryModel) TableName() string {
	return "audit_entries"
}

// ToDomain converts the persistence model to a domain audit entry.
func (m *AuditEntryModel) ToDomain() finance.AuditEntry {
	return finance.AuditEntry{
		ID:             m.ID,
		CompanyID:      m.CompanyID,
		ActorID:        m.ActorID,
		Action:         m.Action,
		EntityType:     m.EntityType,
		EntityID:       m.EntityID,
		CommandID:      m.CommandID,
		IdempotencyKey: m.IdempotencyKey,
		RequestID:      m.RequestID,
		IPAddress:      m.IPAddress,
		UserAgent:      m.UserAgent,
		Payload:        m.Payload,
		CreatedAt:      m.CreatedAt,
	}
}

// AuditEntryModelFromDomain creates a persistence model from a domain audit entry.
func AuditEntryModelFromDomain(e *finance.AuditEntry) *AuditEntryModel {
	return &AuditEntryModel{
		ID:             e.ID,
		CompanyID:      e.CompanyID,
		ActorID:        e.ActorID,
		Action:         e.Action,
		EntityType:     e.EntityType,
		EntityID:       e.EntityID,
		CommandID:      e.CommandID,
		IdempotencyKey: e.IdempotencyKey,
		RequestID:      e.RequestID,
		IPAddress:      e.IPAddress,
		UserAgent:      e.UserAgent,
		Payload:        e.Payload,
		CreatedAt:      e.CreatedAt,
	}
}

// IdempotencyRecordModel stores the result of the first command run with a
// key. (company_id, key) is unique.
type IdempotencyRecordModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CompanyID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_idempotency_company_key,priority:1"`
	Key       string    `gorm:"column:idempotency_key;type:varchar(255);not null;uniqueIndex:idx_idempotency_company_key,priority:2"`
	Command   string    `gorm:"type:varchar(100);not null"`
	Result    string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (IdempotencyRecordModel) TableName() string {
	return "idempotency_records"
}

// ToDomain converts the persistence model to a domain record.
func (m *IdempotencyRecordModel) ToDomain() *shared.IdempotencyRecord {
	var result []byte
	if m.Result != "" {
		result = []byte(m.Result)
	}
	return &shared.IdempotencyRecord{
		ID:        m.ID,
		CompanyID: m.CompanyID,
		Key:       m.Key,
		Command:   m.Command,
		Result:    result,
		CreatedAt: m.CreatedAt,
	}
}

// IdempotencyRecordModelFromDomain creates a persistence model from a domain record.
func IdempotencyRecordModelFromDomain(r *shared.IdempotencyRecord) *IdempotencyRecordModel {
	return &IdempotencyRecordModel{
		ID:        r.ID,
		CompanyID: r.CompanyID,
		Key:       r.Key,
		Command:   r.Command,
		Result:    string(r.Result),
		CreatedAt: r.CreatedAt,
	}
}

// All returns every model in migration order. Used by AutoMigrate in tests
// and the sqlite bootstrap.
func All() []any {
	return []any{
		&PayableDocumentModel{},
		&DocumentLineModel{},
		&PaymentModel{},
		&CreditNoteModel{},
		&CreditNoteItemModel{},
		&PaymentAllocationModel{},
		&TaxComponentModel{},
		&AuditEntryModel{},
		&IdempotencyRecordModel{},
	}
}
