package persistence

import (
	"errors"
	"strings"

	"github.com/erp/settlement/internal/domain/shared"
	"gorm.io/gorm"
)

// TranslateError maps driver and GORM errors onto domain errors. Errors it
// does not recognise are returned unchanged.
func TranslateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.ErrNotFound
	case isUniqueViolation(err):
		return shared.NewDomainError(shared.CodeConcurrencyConflict, "A record with the same unique key already exists")
	}
	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

func concurrencyConflict(rowsAffected int64) error {
	if rowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}
