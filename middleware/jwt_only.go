package middleware

import (
	"net/http"

	"github.com/voyz/tokenauth"
)

// RequireJWTOnly verifies the bearer token's signature and expiry with
// [tokenauth.Engine.Validate]. The session store is not consulted, so a
// revoked access token passes until it expires.
func RequireJWTOnly(engine *tokenauth.Engine) func(http.Handler) http.Handler {
	return guard(engine, func(e *tokenauth.Engine) verifyFunc { return e.Validate })
}
