package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorStaleVersion marks an autosave commit that was superseded by a newer
// version before it reached the database. Droppable, not retryable.
var ErrorStaleVersion = errors.New("superseded by a newer version")

// ErrorInvalidDocumentState is returned when an edit or finalize is attempted on a
// document that already left the New status. Terminal documents are read-only.
var ErrorInvalidDocumentState = errors.New("document is not in an editable state")

// ValidationError marks malformed or incomplete input (missing target shop,
// unknown field, bad payload). It blocks the triggering operation; nothing is
// written when one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
