package tokenauth

import "errors"

var (
	// ErrUnauthorized is the only error category callers outside the process
	// should act on. Every Login, Refresh, Validate and ResumeSession failure
	// matches it.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidToken marks a token that is malformed, tampered, expired or
	// presented for the wrong purpose.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSessionNotFound marks a token with no matching session record.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTokenMismatch marks a token whose claims disagree with the stored record.
	ErrTokenMismatch = errors.New("token does not match session")
	// ErrRefreshExpired marks a refresh attempt at or after the session expiry.
	ErrRefreshExpired = errors.New("refresh expired")
	// ErrPersistence marks a session store failure.
	ErrPersistence = errors.New("session persistence failed")
	// ErrInvalidPrincipal is returned by Login for a principal without an id.
	ErrInvalidPrincipal = errors.New("invalid principal")
	// ErrEngineNotReady is returned by methods called on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not ready")
)

// AuthError is the error type returned by authentication paths. Its message
// is always "unauthorized" so it can be written to a client verbatim; the
// specific cause is reachable with errors.Is and errors.As for logging,
// metrics and tests.
type AuthError struct {
	// Reason is one of ErrInvalidToken, ErrSessionNotFound, ErrTokenMismatch,
	// ErrRefreshExpired, ErrPersistence or ErrInvalidPrincipal.
	Reason error
	// Cause is the underlying codec or store error, if any.
	Cause error
}

func (e *AuthError) Error() string {
	return ErrUnauthorized.Error()
}

// Is reports ErrUnauthorized and the reason as matches.
func (e *AuthError) Is(target error) bool {
	return target == ErrUnauthorized || (e.Reason != nil && target == e.Reason)
}

// Unwrap exposes the underlying cause.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

func unauthorized(reason, cause error) error {
	return &AuthError{Reason: reason, Cause: cause}
}
