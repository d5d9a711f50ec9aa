package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrValidation - required field missing or malformed (rejected before any write)
	ErrValidation = errors.New("validation error")

	// ErrProjectNotFound - project absent from registry or already purged
	ErrProjectNotFound = errors.New("project not found")

	// ErrSessionNotFound - session id does not belong to the project
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoActiveSession - stop/append attempted with no recording session
	ErrNoActiveSession = errors.New("no active session")

	// ErrProjectSoftDeleted - operation against a soft-deleted project without reactivation
	ErrProjectSoftDeleted = errors.New("project soft-deleted")

	// ErrStoreBusy - store lock contention exhausted retries
	ErrStoreBusy = errors.New("store busy")

	// ErrAdapterIO - adapter log unreadable or rotated unexpectedly (retried next poll)
	ErrAdapterIO = errors.New("adapter io error")

	// ErrProtocol - malformed protocol request shape (connection stays open)
	ErrProtocol = errors.New("protocol error")
)
