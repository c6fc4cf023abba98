package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCaseNotFound      = errors.New("case not found")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("conflict")
	ErrTemporary         = errors.New("temporary failure")
	ErrPersistence       = errors.New("persistence failure")

	// Model failures. ErrContextOverflow is recovered inside the summarization
	// engine; the other two end up in a document's error_message.
	ErrModelUnavailable = errors.New("model unavailable")
	ErrGenerationFailed = errors.New("generation failed")
	ErrContextOverflow  = errors.New("context length exceeded")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
