package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrPermanent     = errors.New("permanent failure")
	ErrLeaseLost     = errors.New("lease lost")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later retry classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retriable reports whether a failed job attempt may be retried. Configuration,
// validation, not-found, and permanent failures are final; everything else,
// including unclassified errors, is treated as transient.
func Retriable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrPermanent):
		return false
	default:
		return true
	}
}

// Interrupted reports whether err stems from context cancellation rather than
// a failure of the work itself.
func Interrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Classification names the error class for logs and metrics.
func Classification(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPermanent):
		return "permanent"
	case errors.Is(err, ErrLeaseLost):
		return "lease_lost"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transient"
	}
}

// MarkerFor maps a Classification kind back to its sentinel so errors that
// crossed a process boundary keep their retry semantics. Unknown kinds map
// to ErrTransient.
func MarkerFor(kind string) error {
	switch kind {
	case "configuration":
		return ErrConfiguration
	case "validation":
		return ErrValidation
	case "not_found":
		return ErrNotFound
	case "permanent":
		return ErrPermanent
	case "lease_lost":
		return ErrLeaseLost
	case "external_tool":
		return ErrExternalTool
	case "timeout":
		return ErrTimeout
	default:
		return ErrTransient
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
