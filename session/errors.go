package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("session not found")
	// ErrUnavailable wraps backend failures (network, driver, disk).
	ErrUnavailable = errors.New("session store unavailable")
	// ErrInvalidRecord is returned when a record is missing required fields.
	ErrInvalidRecord = errors.New("invalid session record")
)

func validateRecord(rec *Record) error {
	if rec == nil || rec.PrincipalID == "" || rec.AccessTokenID == "" || rec.RefreshToken == "" || rec.RefreshBindingID == "" {
		return ErrInvalidRecord
	}
	if rec.ExpiresAt.IsZero() {
		return ErrInvalidRecord
	}
	return nil
}

// refreshDigest is the index key for a refresh token. Backends index by
// digest so token strings never appear in key space.
func refreshDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
