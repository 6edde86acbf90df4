package domain

import (
	"github.com/pkg/errors"
)

// Sentinel errors shared across the core. Callers match with errors.Is and
// the HTTP layer maps them to status codes.
var (
	// ErrNotFound indicates a referenced message or session does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation, e.g. duplicate feedback.
	ErrConflict = errors.New("conflict")

	// ErrConfiguration indicates a component was used before it was
	// configured, e.g. the semantic cache without an embedder.
	ErrConfiguration = errors.New("configuration error")

	// ErrUnavailable indicates the backing store is unreachable. Cache
	// callers degrade to recompute; session callers surface it.
	ErrUnavailable = errors.New("store unavailable")
)
