package tokenauth

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron"
	"github.com/rs/zerolog"
	"github.com/voyz/tokenauth/internal/audit"
	internalflows "github.com/voyz/tokenauth/internal/flows"
	"github.com/voyz/tokenauth/jwt"
	"github.com/voyz/tokenauth/session"
)

// Engine issues, validates, rotates and revokes session tokens. There is at
// most one live session per principal.
//
// Engine methods are safe for concurrent use. The session store call is the
// only blocking point of each operation.
type Engine struct {
	config       Config
	sessionStore session.Store
	jwtManager   *jwt.Manager
	audit        *audit.Dispatcher
	metrics      *Metrics
	logger       zerolog.Logger
	now          func() time.Time
	newID        func() string

	sweepMu   sync.Mutex
	sweeper   *cron.Cron
	sweepBusy sync.Mutex
}

// Close stops the sweeper and flushes the audit dispatcher. The session
// store is owned by the caller and left open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.StopSweeper()
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine's counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login issues a fresh token pair for an already-verified principal and
// replaces any session the principal had. Tokens are returned only after
// the session record is stored; a store failure returns an error matching
// ErrPersistence and no tokens.
func (e *Engine) Login(ctx context.Context, p Principal) (*TokenPair, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	result := internalflows.RunIssue(ctx, internalflows.Identity{
		ID:            p.ID,
		Name:          p.Name,
		Role:          p.Role,
		StoreName:     p.StoreName,
		StoreCategory: p.StoreCategory,
	}, e.issueFlowDeps())

	if result.Failure != internalflows.IssueFailureNone {
		label, reason := issueFailureReason(result.Failure)
		err := unauthorized(reason, result.Err)
		if result.Failure == internalflows.IssueFailurePersist {
			e.metricInc(MetricPersistenceFailure)
		}
		e.metricInc(MetricLoginFailure)
		e.logFailure(ctx, "login", label, p.ID, result.Err)
		e.emitAudit(ctx, auditEventLoginFailure, false, p.ID, err, func() map[string]string {
			return map[string]string{"reason": label}
		})
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, result.PrincipalID, nil, func() map[string]string {
		return map[string]string{
			"session_expires_at": result.ExpiresAt.UTC().Format(time.RFC3339),
		}
	})

	return &TokenPair{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    TokenTypeBearer,
	}, nil
}

// Validate verifies an access token's signature and expiry. It never reads
// the session store, so an access token stays valid until it expires even
// after its session is revoked; use ResumeSession to check the store.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*Claims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer e.observe(MetricValidateLatency, start)

	result := internalflows.RunValidate(accessToken, internalflows.ValidateDeps{
		ParseAccess: e.jwtManager.ParseAccess,
	})
	if result.Failure != internalflows.ValidateFailureNone {
		e.metricInc(MetricValidateFailure)
		return nil, unauthorized(ErrInvalidToken, result.Err)
	}

	e.metricInc(MetricValidateSuccess)
	return claimsFromAccess(result.Claims), nil
}

// Refresh exchanges a refresh token for a new access token bound to the
// same session. The refresh token itself is returned unchanged. Every
// failure matches ErrUnauthorized; the specific reason (ErrInvalidToken,
// ErrSessionNotFound, ErrTokenMismatch, ErrRefreshExpired, ErrPersistence)
// is available through errors.Is.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer e.observe(MetricRefreshLatency, start)

	result := internalflows.RunRefresh(ctx, refreshToken, e.refreshFlowDeps(ctx))
	if result.Failure != internalflows.RefreshFailureNone {
		label, reason := refreshFailureReason(result.Failure)
		err := unauthorized(reason, result.Err)

		e.metricInc(MetricRefreshFailure)
		switch result.Failure {
		case internalflows.RefreshFailureMismatch:
			e.metricInc(MetricRefreshMismatch)
		case internalflows.RefreshFailureExpired:
			e.metricInc(MetricRefreshExpired)
			e.metricInc(MetricSessionExpiredLazily)
		case internalflows.RefreshFailureLookup, internalflows.RefreshFailureUpdate:
			e.metricInc(MetricPersistenceFailure)
		}
		e.logFailure(ctx, "refresh", label, result.PrincipalID, result.Err)
		e.emitAudit(ctx, auditEventRefreshFailure, false, result.PrincipalID, err, func() map[string]string {
			return map[string]string{"reason": label}
		})
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, result.PrincipalID, nil, nil)

	return &TokenPair{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    TokenTypeBearer,
	}, nil
}

func (e *Engine) issueFlowDeps() internalflows.IssueDeps {
	return internalflows.IssueDeps{
		Now:              e.now,
		NewAccessTokenID: e.newID,
		CreateAccess:     e.jwtManager.CreateAccess,
		CreateRefresh:    e.jwtManager.CreateRefresh,
		RefreshTTL:       e.jwtManager.RefreshTTL(),
		SessionStore:     e.sessionStore,
	}
}

func (e *Engine) refreshFlowDeps(ctx context.Context) internalflows.RefreshDeps {
	return internalflows.RefreshDeps{
		Now:              e.now,
		NewAccessTokenID: e.newID,
		ParseRefresh:     e.jwtManager.ParseRefresh,
		CreateAccess:     e.jwtManager.CreateAccess,
		StrictRotation:   e.config.Session.StrictRotation,
		Warn:             e.warnFunc(ctx),
		SessionStore:     e.sessionStore,
	}
}

func issueFailureReason(kind internalflows.IssueFailureKind) (string, error) {
	switch kind {
	case internalflows.IssueFailureInvalidPrincipal:
		return "invalid_principal", ErrInvalidPrincipal
	case internalflows.IssueFailureIssueAccess:
		return "sign_access", nil
	case internalflows.IssueFailureIssueRefresh:
		return "sign_refresh", nil
	case internalflows.IssueFailurePersist:
		return "persist", ErrPersistence
	default:
		return "unknown", nil
	}
}

func refreshFailureReason(kind internalflows.RefreshFailureKind) (string, error) {
	switch kind {
	case internalflows.RefreshFailureParse:
		return "invalid_token", ErrInvalidToken
	case internalflows.RefreshFailureSessionNotFound:
		return "session_not_found", ErrSessionNotFound
	case internalflows.RefreshFailureMismatch:
		return "token_mismatch", ErrTokenMismatch
	case internalflows.RefreshFailureExpired:
		return "refresh_expired", ErrRefreshExpired
	case internalflows.RefreshFailureLookup:
		return "lookup", ErrPersistence
	case internalflows.RefreshFailureIssueAccess:
		return "sign_access", nil
	case internalflows.RefreshFailureUpdate:
		return "update", ErrPersistence
	default:
		return "unknown", nil
	}
}
