package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/voyz/tokenauth"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims a guard attached to the request.
func ClaimsFromContext(ctx context.Context) (*tokenauth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*tokenauth.Claims)
	return claims, ok
}

type verifyFunc func(ctx context.Context, accessToken string) (*tokenauth.Claims, error)

func guard(engine *tokenauth.Engine, verify func(*tokenauth.Engine) verifyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithRequestMetadata(r)
			claims, err := verify(engine)(ctx, token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithRequestMetadata returns the request context carrying the client IP
// and User-Agent for audit events.
func WithRequestMetadata(r *http.Request) context.Context {
	ctx := r.Context()
	if ip := clientIP(r); ip != "" {
		ctx = tokenauth.WithClientIP(ctx, ip)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = tokenauth.WithUserAgent(ctx, ua)
	}
	return ctx
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
