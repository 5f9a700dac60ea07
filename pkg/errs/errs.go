// Package errs defines the error taxonomy shared across the Momo core:
// InvalidRequest, NotFound, Conflict, Unauthorized, DependencyUnavailable,
// Internal. Components wrap a sentinel with fmt.Errorf("...: %w", ...) so
// callers can classify an error with errors.Is while keeping context.
package errs

import "errors"

var (
	// ErrInvalidRequest marks malformed input, an unsupported content type,
	// or a schema violation. Never retried.
	ErrInvalidRequest = errors.New("invalid_request")

	// ErrNotFound marks a lookup by id that found nothing. Never retried.
	ErrNotFound = errors.New("not_found")

	// ErrConflict marks a duplicate custom_id or a lost race on a
	// version-chain update. The caller may retry.
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized marks a failed auth check.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDependencyUnavailable marks a timeout or connection failure talking
	// to the Embedder, LLM, OCR, or transcription collaborator. Retried with
	// backoff inside the component; ingestion gives up into "failed", search
	// degrades gracefully.
	ErrDependencyUnavailable = errors.New("dependency_unavailable")

	// ErrInternal marks an invariant violation or a storage-layer error.
	// Never recovered locally.
	ErrInternal = errors.New("internal")

	// ErrGraphBoundsExceeded marks a bounded graph traversal that hit its
	// node, edge, hop, or timeout limit.
	ErrGraphBoundsExceeded = errors.New("graph_bounds_exceeded")
)

// Kind returns the snake_case code for the envelope's error.code field,
// matching whichever sentinel err wraps. Falls back to "internal".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrDependencyUnavailable):
		return "dependency_unavailable"
	case errors.Is(err, ErrGraphBoundsExceeded):
		return "graph_bounds_exceeded"
	default:
		return "internal"
	}
}
