package finance

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
)

// AuditAction names what an audit entry records
type AuditAction string

const (
	AuditAllocationCommand  AuditAction = "payment.allocated"
	AuditAllocationCreated  AuditAction = "allocation.created"
	AuditAllocationReversed AuditAction = "allocation.reversed"
	AuditAllocationFailed   AuditAction = "payment.allocation_failed"
	AuditDocumentCreated    AuditAction = "document.created"
	AuditDocumentUpdated    AuditAction = "document.updated"
	AuditDocumentSubmitted  AuditAction = "document.submitted"
	AuditDocumentApproved   AuditAction = "document.approved"
	AuditDocumentRejected   AuditAction = "document.rejected"
	AuditDocumentPosted     AuditAction = "document.posted"
	AuditDocumentCancelled  AuditAction = "document.cancelled"
	AuditPaymentRegistered  AuditAction = "payment.registered"
	AuditPaymentVoided      AuditAction = "payment.voided"
	AuditCreditNoteCreated  AuditAction = "credit_note.created"
	AuditCreditNotePosted   AuditAction = "credit_note.posted"
	AuditCreditNoteCanceled AuditAction = "credit_note.cancelled"
)

// AuditPayload is free-form JSON attached to an audit entry
type AuditPayload map[string]any

// Value implements driver.Valuer for JSONB storage
func (p AuditPayload) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JSONB retrieval
func (p *AuditPayload) Scan(value any) error {
	if value == nil {
		*p = AuditPayload{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan AuditPayload: unsupported type")
	}
	if len(bytes) == 0 {
		*p = AuditPayload{}
		return nil
	}
	return json.Unmarshal(bytes, p)
}

// AuditEntry is an append-only record of one mutation
type AuditEntry struct {
	ID             uuid.UUID
	CompanyID      uuid.UUID
	ActorID        uuid.UUID
	Action         AuditAction
	EntityType     string
	EntityID       uuid.UUID
	CommandID      *uuid.UUID
	IdempotencyKey string
	RequestID      string
	IPAddress      string
	UserAgent      string
	Payload        AuditPayload
	CreatedAt      time.Time
}

// NewAuditEntry creates an audit entry from the command context
func NewAuditEntry(cc shared.CommandContext, action AuditAction, entityType string, entityID uuid.UUID, payload AuditPayload) *AuditEntry {
	if payload == nil {
		payload = AuditPayload{}
	}
	return &AuditEntry{
		ID:         uuid.New(),
		CompanyID:  cc.CompanyID,
		ActorID:    cc.ActorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  cc.RequestID,
		IPAddress:  cc.IPAddress,
		UserAgent:  cc.UserAgent,
		Payload:    payload,
		CreatedAt:  time.Now(),
	}
}

// WithCommand tags the entry with a command ID and idempotency key
func (e *AuditEntry) WithCommand(commandID uuid.UUID, idempotencyKey string) *AuditEntry {
	e.CommandID = &commandID
	e.IdempotencyKey = idempotencyKey
	return e
}
