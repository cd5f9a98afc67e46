package middleware

import (
	"net/http"

	"github.com/voyz/tokenauth"
)

// RequireSession additionally confirms with [tokenauth.Engine.ResumeSession]
// that the token is still bound to a live session.
func RequireSession(engine *tokenauth.Engine) func(http.Handler) http.Handler {
	return guard(engine, func(e *tokenauth.Engine) verifyFunc { return e.ResumeSession })
}
