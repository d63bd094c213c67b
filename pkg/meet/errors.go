package meet

import "errors"

// Error taxonomy shared by all subsystems. Callers classify failures with
// errors.Is; transports map them to their own surface (signaling ERROR
// messages, HTTP status codes).
var (
	// ErrPermissionDenied means the caller lacks the role for an operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound means a meeting, recording, or decision is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput means a malformed payload, bad UUID, or out-of-range size.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict means a state-transition violation (already started,
	// already a member).
	ErrConflict = errors.New("conflict")

	// ErrQuotaExhausted means the credential pool is fully booked.
	ErrQuotaExhausted = errors.New("quota exhausted")

	// ErrExternal means an LLM/STT/TTS/storage call failed; recoverable.
	ErrExternal = errors.New("external failure")

	// ErrInternal means a programming invariant was broken.
	ErrInternal = errors.New("internal error")
)
