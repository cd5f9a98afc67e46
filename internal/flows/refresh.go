package flows

import (
	"context"
	"errors"
	"time"

	"github.com/voyz/tokenauth/jwt"
	"github.com/voyz/tokenauth/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureParse
	RefreshFailureSessionNotFound
	RefreshFailureMismatch
	RefreshFailureExpired
	RefreshFailureLookup
	RefreshFailureIssueAccess
	RefreshFailureUpdate
)

var (
	errBindingMismatch = errors.New("refresh token binding does not match session")
	errRecordExpired   = errors.New("session record past its expiry")
)

// RefreshResult carries either the rotated token pair or failure metadata.
type RefreshResult struct {
	Failure               RefreshFailureKind
	Err                   error
	PrincipalID           string
	PreviousAccessTokenID string
	AccessTokenID         string
	AccessToken           string
	RefreshToken          string
}

type RefreshSessionStore interface {
	FindByRefreshToken(ctx context.Context, token string) (*session.Record, error)
	RotateAccessTokenID(ctx context.Context, rot session.Rotation) error
	DeleteByPrincipalID(ctx context.Context, principalID string) error
}

// RefreshDeps captures refresh flow dependencies.
//
// With StrictRotation set, the refresh token's access-token id must equal
// the id currently on record, so each refresh token can rotate once per
// access token. Otherwise it is checked against the id the refresh token was
// minted with and stays reusable until it expires.
type RefreshDeps struct {
	Now              func() time.Time
	NewAccessTokenID func() string
	ParseRefresh     func(string) (*jwt.RefreshClaims, error)
	CreateAccess     func(jwt.AccessClaims) (string, error)
	StrictRotation   bool
	Warn             func(string, ...any)
	SessionStore     RefreshSessionStore
}

// RunRefresh verifies a refresh token against its session record and mints
// a new access token bound to it. The refresh token itself is returned
// unchanged.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return expireOnRead(ctx, refreshToken, err, deps)
		}
		return RefreshResult{Failure: RefreshFailureParse, Err: err}
	}

	principalID := claims.PrincipalID()
	rec, err := deps.SessionStore.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return RefreshResult{
				Failure:     RefreshFailureSessionNotFound,
				Err:         err,
				PrincipalID: principalID,
			}
		}
		return RefreshResult{
			Failure:     RefreshFailureLookup,
			Err:         err,
			PrincipalID: principalID,
		}
	}

	bound := rec.RefreshBindingID
	if deps.StrictRotation {
		bound = rec.AccessTokenID
	}
	if rec.PrincipalID != principalID || bound != claims.AccessTokenID {
		return RefreshResult{
			Failure:     RefreshFailureMismatch,
			Err:         errBindingMismatch,
			PrincipalID: principalID,
		}
	}

	now := deps.Now()
	if rec.Expired(now) {
		if delErr := deps.SessionStore.DeleteByPrincipalID(ctx, rec.PrincipalID); delErr != nil && deps.Warn != nil {
			deps.Warn("tokenauth: lazy expiry delete failed", "principal_id", rec.PrincipalID)
		}
		return RefreshResult{
			Failure:     RefreshFailureExpired,
			Err:         errRecordExpired,
			PrincipalID: principalID,
		}
	}

	nextID := deps.NewAccessTokenID()
	access, err := deps.CreateAccess(accessClaimsFor(identityFromRecord(rec), nextID, now))
	if err != nil {
		return RefreshResult{
			Failure:     RefreshFailureIssueAccess,
			Err:         err,
			PrincipalID: principalID,
		}
	}

	rot := session.Rotation{
		PrincipalID:   rec.PrincipalID,
		RefreshToken:  refreshToken,
		AccessTokenID: nextID,
		LastUsedAt:    now,
	}
	if deps.StrictRotation {
		rot.PreviousAccessTokenID = rec.AccessTokenID
	}
	if err := deps.SessionStore.RotateAccessTokenID(ctx, rot); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			// Revoked, replaced by a new login or rotated by a concurrent
			// strict refresh between lookup and update.
			return RefreshResult{
				Failure:     RefreshFailureSessionNotFound,
				Err:         err,
				PrincipalID: principalID,
			}
		}
		return RefreshResult{
			Failure:     RefreshFailureUpdate,
			Err:         err,
			PrincipalID: principalID,
		}
	}

	return RefreshResult{
		Failure:               RefreshFailureNone,
		PrincipalID:           principalID,
		PreviousAccessTokenID: rec.AccessTokenID,
		AccessTokenID:         nextID,
		AccessToken:           access,
		RefreshToken:          refreshToken,
	}
}

// expireOnRead handles a refresh token whose signature verified but whose
// expiry has passed. The matching record, if still present, is removed so
// expired sessions are cleaned up without waiting for the sweep.
func expireOnRead(ctx context.Context, refreshToken string, parseErr error, deps RefreshDeps) RefreshResult {
	rec, err := deps.SessionStore.FindByRefreshToken(ctx, refreshToken)
	if err != nil || !rec.Expired(deps.Now()) {
		return RefreshResult{Failure: RefreshFailureParse, Err: parseErr}
	}

	if delErr := deps.SessionStore.DeleteByPrincipalID(ctx, rec.PrincipalID); delErr != nil && deps.Warn != nil {
		deps.Warn("tokenauth: lazy expiry delete failed", "principal_id", rec.PrincipalID)
	}
	return RefreshResult{
		Failure:     RefreshFailureExpired,
		Err:         parseErr,
		PrincipalID: rec.PrincipalID,
	}
}
