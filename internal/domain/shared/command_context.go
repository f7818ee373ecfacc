package shared

import (
	"github.com/google/uuid"
)

// CommandContext identifies who issues a command and for which company.
// Every mutating operation requires one.
type CommandContext struct {
	CompanyID uuid.UUID
	ActorID   uuid.UUID
	RequestID string
	IPAddress string
	UserAgent string
}

// NewCommandContext creates a command context for a company and actor
func NewCommandContext(companyID, actorID uuid.UUID) CommandContext {
	return CommandContext{CompanyID: companyID, ActorID: actorID}
}

// Validate checks that the command context carries a company and an actor
func (c CommandContext) Validate() error {
	if c.CompanyID == uuid.Nil {
		return NewValidationError("Command context is incomplete", map[string]string{
			"company_id": "company is required",
		})
	}
	if c.ActorID == uuid.Nil {
		return NewValidationError("Command context is incomplete", map[string]string{
			"actor_id": "actor is required",
		})
	}
	return nil
}
