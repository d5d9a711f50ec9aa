package errors

import (
	"errors"
	"fmt"
)

// Category returns the stable wire/CLI name for an error's taxonomy class.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrProjectNotFound):
		return "ProjectNotFound"
	case errors.Is(err, ErrSessionNotFound):
		return "SessionNotFound"
	case errors.Is(err, ErrNoActiveSession):
		return "NoActiveSession"
	case errors.Is(err, ErrProjectSoftDeleted):
		return "ProjectSoftDeleted"
	case errors.Is(err, ErrStoreBusy):
		return "StoreBusy"
	case errors.Is(err, ErrAdapterIO):
		return "AdapterIOError"
	case errors.Is(err, ErrProtocol):
		return "ProtocolError"
	default:
		return "InternalError"
	}
}

// ExitCode maps an error to the CLI process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrValidation):
		return 2
	case errors.Is(err, ErrProjectNotFound), errors.Is(err, ErrSessionNotFound):
		return 3
	case errors.Is(err, ErrNoActiveSession):
		return 4
	case errors.Is(err, ErrProjectSoftDeleted):
		return 5
	case errors.Is(err, ErrStoreBusy):
		return 6
	case errors.Is(err, ErrAdapterIO):
		return 7
	case errors.Is(err, ErrProtocol):
		return 8
	default:
		return 1
	}
}

// IsRetryable reports whether the caller may retry the operation as-is.
// Only lock contention qualifies; everything else needs caller action.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreBusy)
}

// Wrap wraps an error with context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Validation wraps a message as a validation error.
func Validation(message string) error {
	return fmt.Errorf("%s: %w", message, ErrValidation)
}

// ProjectNotFound wraps a message as a missing-project error.
func ProjectNotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrProjectNotFound)
}

// SessionNotFound wraps a message as a missing-session error.
func SessionNotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrSessionNotFound)
}

// StoreBusy wraps a message as a lock-contention error.
func StoreBusy(message string) error {
	return fmt.Errorf("%s: %w", message, ErrStoreBusy)
}

// AdapterIO wraps a message as an adapter read failure.
func AdapterIO(message string) error {
	return fmt.Errorf("%s: %w", message, ErrAdapterIO)
}

// Protocol wraps a message as a malformed-request error.
func Protocol(message string) error {
	return fmt.Errorf("%s: %w", message, ErrProtocol)
}

// IsCategory checks if error belongs to specific category
func IsCategory(err error, category error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, category)
}
