package session

import (
	"context"
	"time"
)

// Store persists at most one [Record] per principal.
//
// Implementations must make UpsertSingleSession atomic: there is no instant at
// which two records for the same principal are visible, and readers never see
// a record merged from two writes. Every method is scoped to one principal's
// record, so no cross-principal locking is required.
type Store interface {
	// UpsertSingleSession replaces any record for rec.PrincipalID with rec.
	UpsertSingleSession(ctx context.Context, rec *Record) error
	// FindByRefreshToken returns the record whose refresh token equals token exactly.
	FindByRefreshToken(ctx context.Context, token string) (*Record, error)
	// FindByPrincipalID returns the principal's record.
	FindByPrincipalID(ctx context.Context, principalID string) (*Record, error)
	// RotateAccessTokenID rebinds the record to a new access-token id in place
	// when rot's conditions still hold. It returns ErrNotFound when the
	// principal has no record or the record has been replaced since it was read.
	RotateAccessTokenID(ctx context.Context, rot Rotation) error
	// TouchSession sets LastUsedAt when the record is still bound to
	// accessTokenID. It returns ErrNotFound when there is no such record.
	TouchSession(ctx context.Context, principalID, accessTokenID string, lastUsedAt time.Time) error
	// DeleteByPrincipalID removes the principal's record. Missing records are not an error.
	DeleteByPrincipalID(ctx context.Context, principalID string) error
	// DeleteExpired removes every record with ExpiresAt <= now and reports how many.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Rotation is a conditional rebind of a record to a new access-token id.
type Rotation struct {
	PrincipalID string
	// RefreshToken must still be the record's refresh token, so a rotation
	// read before a new login cannot land on the new session.
	RefreshToken string
	// PreviousAccessTokenID, when set, must equal the record's current
	// access-token id.
	PreviousAccessTokenID string
	AccessTokenID         string
	LastUsedAt            time.Time
}

func (r Rotation) matches(rec *Record) bool {
	if rec.RefreshToken != r.RefreshToken {
		return false
	}
	return r.PreviousAccessTokenID == "" || rec.AccessTokenID == r.PreviousAccessTokenID
}
