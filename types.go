package tokenauth

import (
	"time"

	"github.com/voyz/tokenauth/jwt"
)

// TokenTypeBearer is the token type returned with every pair.
const TokenTypeBearer = "Bearer"

// Principal is a verified identity supplied by the caller's credential
// store. The engine reads it and never persists anything beyond the
// session snapshot.
type Principal struct {
	ID            string
	Name          string
	Role          string
	StoreName     string
	StoreCategory string
}

// TokenPair is returned by Login and Refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
}

// AsMap returns the pair in the response shape {accessToken, refreshToken, tokenType}.
func (p *TokenPair) AsMap() map[string]string {
	if p == nil {
		return map[string]string{}
	}
	return map[string]string{
		"accessToken":  p.AccessToken,
		"refreshToken": p.RefreshToken,
		"tokenType":    p.TokenType,
	}
}

// Claims is the verified content of an access token.
type Claims struct {
	PrincipalID   string
	Name          string
	Role          string
	StoreName     string
	StoreCategory string
	AccessTokenID string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

func claimsFromAccess(c *jwt.AccessClaims) *Claims {
	out := &Claims{
		PrincipalID:   c.PrincipalID(),
		Name:          c.Name,
		Role:          c.Role,
		StoreName:     c.StoreName,
		StoreCategory: c.StoreCategory,
		AccessTokenID: c.AccessTokenID,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out
}
