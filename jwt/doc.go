// Package jwt issues and verifies the HS256 access and refresh tokens used by
// the session lifecycle engine.
//
// The signing key is derived once from a shared secret ([NewSigningKey]) and
// handed to [NewManager]; nothing in this package holds process-wide state.
// Parse failures are reported as [ErrMalformed], [ErrInvalidSignature] or
// [ErrExpired] so callers can tell a tampered token from a garbled one.
package jwt
