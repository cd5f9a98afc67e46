package flows

import (
	"context"
	"errors"
	"time"

	"github.com/voyz/tokenauth/jwt"
	"github.com/voyz/tokenauth/session"
)

// ResumeFailureKind classifies session-resume failures for root-level mapping.
type ResumeFailureKind int

const (
	ResumeFailureNone ResumeFailureKind = iota
	ResumeFailureToken
	ResumeFailureSessionNotFound
	ResumeFailureMismatch
	ResumeFailureExpired
	ResumeFailureLookup
)

// ResumeResult carries the verified claims or failure metadata.
type ResumeResult struct {
	Failure     ResumeFailureKind
	Err         error
	PrincipalID string
	Claims      *jwt.AccessClaims
}

type ResumeSessionStore interface {
	FindByPrincipalID(ctx context.Context, principalID string) (*session.Record, error)
	TouchSession(ctx context.Context, principalID, accessTokenID string, lastUsedAt time.Time) error
	DeleteByPrincipalID(ctx context.Context, principalID string) error
}

// ResumeDeps captures resume flow dependencies.
type ResumeDeps struct {
	Now          func() time.Time
	ParseAccess  func(string) (*jwt.AccessClaims, error)
	Warn         func(string, ...any)
	SessionStore ResumeSessionStore
}

// RunResume validates an access token and then confirms against the store
// that it is still the one bound to the principal's session. On success the
// session's last-used time is bumped.
func RunResume(ctx context.Context, accessToken string, deps ResumeDeps) ResumeResult {
	claims, err := deps.ParseAccess(accessToken)
	if err != nil {
		return ResumeResult{Failure: ResumeFailureToken, Err: err}
	}

	principalID := claims.PrincipalID()
	rec, err := deps.SessionStore.FindByPrincipalID(ctx, principalID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ResumeResult{Failure: ResumeFailureSessionNotFound, Err: err, PrincipalID: principalID}
		}
		return ResumeResult{Failure: ResumeFailureLookup, Err: err, PrincipalID: principalID}
	}
	if rec.AccessTokenID != claims.AccessTokenID {
		return ResumeResult{Failure: ResumeFailureMismatch, Err: errBindingMismatch, PrincipalID: principalID}
	}

	now := deps.Now()
	if rec.Expired(now) {
		if delErr := deps.SessionStore.DeleteByPrincipalID(ctx, principalID); delErr != nil && deps.Warn != nil {
			deps.Warn("tokenauth: lazy expiry delete failed", "principal_id", principalID)
		}
		return ResumeResult{Failure: ResumeFailureExpired, Err: errRecordExpired, PrincipalID: principalID}
	}

	if err := deps.SessionStore.TouchSession(ctx, principalID, claims.AccessTokenID, now); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			// Rotated or revoked since the lookup.
			return ResumeResult{Failure: ResumeFailureMismatch, Err: err, PrincipalID: principalID}
		}
		return ResumeResult{Failure: ResumeFailureLookup, Err: err, PrincipalID: principalID}
	}

	return ResumeResult{PrincipalID: principalID, Claims: claims}
}
