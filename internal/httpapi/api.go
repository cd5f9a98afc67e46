package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/voyz/tokenauth"
	"github.com/voyz/tokenauth/middleware"
)

// API serves the token lifecycle over HTTP.
type API struct {
	engine    *tokenauth.Engine
	directory *Directory
	logger    zerolog.Logger
	metrics   http.Handler
}

// New creates an API. metrics may be nil, in which case /metrics is not
// mounted.
func New(engine *tokenauth.Engine, directory *Directory, logger zerolog.Logger, metrics http.Handler) *API {
	return &API{
		engine:    engine,
		directory: directory,
		logger:    logger,
		metrics:   metrics,
	}
}

// Router returns the chi router with every route mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(a.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	if a.metrics != nil {
		r.Handle("/metrics", a.metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", a.login)
		r.Post("/refresh", a.refresh)
		r.Post("/logout", a.logout)
		r.With(middleware.RequireSession(a.engine)).Post("/auto-login", a.autoLogin)
	})
	r.With(middleware.RequireJWTOnly(a.engine)).Get("/me", a.me)

	return r
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
		return
	}

	principal, ok := a.directory.Authenticate(body.Username, body.Password)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
		return
	}

	pair, err := a.engine.Login(requestContext(r), principal)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair.AsMap())
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
		return
	}

	pair, err := a.engine.Refresh(requestContext(r), body.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair.AsMap())
}

func (a *API) autoLogin(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "auto-login ok",
		"userId":  claims.PrincipalID,
	})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	const bearer = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(bearer) || header[:len(bearer)] != bearer {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
		return
	}

	if err := a.engine.LogoutByAccessToken(requestContext(r), header[len(bearer):]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":        claims.PrincipalID,
		"userName":      claims.Name,
		"role":          claims.Role,
		"storeName":     claims.StoreName,
		"storeCategory": claims.StoreCategory,
		"expiresAt":     claims.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// requestContext carries client metadata and the chi request id into
// engine calls.
func requestContext(r *http.Request) context.Context {
	ctx := middleware.WithRequestMetadata(r)
	if id := chimiddleware.GetReqID(ctx); id != "" {
		ctx = tokenauth.WithRequestID(ctx, id)
	}
	return ctx
}

// writeError maps engine errors to status codes. Authentication failures
// are a bare 401; a store failure outside an auth path is a 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tokenauth.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
