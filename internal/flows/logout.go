package flows

import (
	"context"

	"github.com/voyz/tokenauth/jwt"
)

type LogoutSessionStore interface {
	DeleteByPrincipalID(ctx context.Context, principalID string) error
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	ParseAccess  func(string) (*jwt.AccessClaims, error)
	SessionStore LogoutSessionStore
}

type LogoutByAccessResult struct {
	PrincipalID string
	TokenErr    error
	Err         error
}

// RunLogout removes the principal's session. Missing sessions are not an error.
func RunLogout(ctx context.Context, principalID string, deps LogoutDeps) error {
	return deps.SessionStore.DeleteByPrincipalID(ctx, principalID)
}

// RunLogoutByAccessToken derives the principal from a valid access token and
// removes its session.
func RunLogoutByAccessToken(ctx context.Context, tokenStr string, deps LogoutDeps) LogoutByAccessResult {
	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		return LogoutByAccessResult{TokenErr: err}
	}

	principalID := claims.PrincipalID()
	return LogoutByAccessResult{
		PrincipalID: principalID,
		Err:         deps.SessionStore.DeleteByPrincipalID(ctx, principalID),
	}
}
