package flows

import (
	"context"
	"errors"
	"time"

	"github.com/voyz/tokenauth/jwt"
	"github.com/voyz/tokenauth/session"
)

// IssueFailureKind classifies issue flow failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureInvalidPrincipal
	IssueFailureIssueAccess
	IssueFailureIssueRefresh
	IssueFailurePersist
)

var errEmptyPrincipal = errors.New("principal id is empty")

// Identity is the principal snapshot embedded into access tokens.
type Identity struct {
	ID            string
	Name          string
	Role          string
	StoreName     string
	StoreCategory string
}

// IssueResult carries either the issued token pair or failure metadata.
type IssueResult struct {
	Failure       IssueFailureKind
	Err           error
	PrincipalID   string
	AccessTokenID string
	AccessToken   string
	RefreshToken  string
	ExpiresAt     time.Time
}

type IssueSessionStore interface {
	UpsertSingleSession(ctx context.Context, rec *session.Record) error
}

// IssueDeps captures issue flow dependencies.
type IssueDeps struct {
	Now              func() time.Time
	NewAccessTokenID func() string
	CreateAccess     func(jwt.AccessClaims) (string, error)
	CreateRefresh    func(jwt.RefreshClaims) (string, error)
	RefreshTTL       time.Duration
	SessionStore     IssueSessionStore
}

// RunIssue mints a fresh token pair and replaces the principal's session
// record with one bound to it. Tokens are only returned once the record is
// durably stored.
func RunIssue(ctx context.Context, id Identity, deps IssueDeps) IssueResult {
	if id.ID == "" {
		return IssueResult{Failure: IssueFailureInvalidPrincipal, Err: errEmptyPrincipal}
	}

	now := deps.Now()
	issuedAt := jwt.PinIssuedAt(now)
	accessTokenID := deps.NewAccessTokenID()

	access, err := deps.CreateAccess(accessClaimsFor(id, accessTokenID, now))
	if err != nil {
		return IssueResult{
			Failure:     IssueFailureIssueAccess,
			Err:         err,
			PrincipalID: id.ID,
		}
	}

	refreshClaims := jwt.RefreshClaims{AccessTokenID: accessTokenID}
	refreshClaims.Subject = id.ID
	refreshClaims.IssuedAt = issuedAt
	refresh, err := deps.CreateRefresh(refreshClaims)
	if err != nil {
		return IssueResult{
			Failure:     IssueFailureIssueRefresh,
			Err:         err,
			PrincipalID: id.ID,
		}
	}

	rec := &session.Record{
		PrincipalID:      id.ID,
		AccessTokenID:    accessTokenID,
		RefreshToken:     refresh,
		RefreshBindingID: accessTokenID,
		Name:             id.Name,
		Role:             id.Role,
		StoreName:        id.StoreName,
		StoreCategory:    id.StoreCategory,
		ExpiresAt:        jwt.Deadline(issuedAt.Time, deps.RefreshTTL),
		CreatedAt:        now,
		LastUsedAt:       now,
	}
	if err := deps.SessionStore.UpsertSingleSession(ctx, rec); err != nil {
		return IssueResult{
			Failure:     IssueFailurePersist,
			Err:         err,
			PrincipalID: id.ID,
		}
	}

	return IssueResult{
		Failure:       IssueFailureNone,
		PrincipalID:   id.ID,
		AccessTokenID: accessTokenID,
		AccessToken:   access,
		RefreshToken:  refresh,
		ExpiresAt:     rec.ExpiresAt,
	}
}

func accessClaimsFor(id Identity, accessTokenID string, now time.Time) jwt.AccessClaims {
	claims := jwt.AccessClaims{
		Name:          id.Name,
		Role:          id.Role,
		StoreName:     id.StoreName,
		StoreCategory: id.StoreCategory,
		AccessTokenID: accessTokenID,
	}
	claims.Subject = id.ID
	claims.IssuedAt = jwt.PinIssuedAt(now)
	return claims
}

func identityFromRecord(rec *session.Record) Identity {
	return Identity{
		ID:            rec.PrincipalID,
		Name:          rec.Name,
		Role:          rec.Role,
		StoreName:     rec.StoreName,
		StoreCategory: rec.StoreCategory,
	}
}
