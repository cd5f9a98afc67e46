package tokenauth

import (
	"context"
	"fmt"
	"strconv"

	internalflows "github.com/voyz/tokenauth/internal/flows"
)

// Logout removes the principal's session. Logging out a principal without
// a session is not an error; only a store failure is reported, wrapped in
// ErrPersistence.
func (e *Engine) Logout(ctx context.Context, principalID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}

	if err := internalflows.RunLogout(ctx, principalID, e.logoutFlowDeps()); err != nil {
		e.metricInc(MetricPersistenceFailure)
		e.logFailure(ctx, "logout", "delete", principalID, err)
		wrapped := fmt.Errorf("%w: %v", ErrPersistence, err)
		e.emitAudit(ctx, auditEventLogout, false, principalID, wrapped, nil)
		return wrapped
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, principalID, nil, nil)
	return nil
}

// LogoutByAccessToken derives the principal from a valid access token and
// removes its session. An invalid token is reported as unauthorized.
func (e *Engine) LogoutByAccessToken(ctx context.Context, accessToken string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}

	result := internalflows.RunLogoutByAccessToken(ctx, accessToken, e.logoutFlowDeps())
	if result.TokenErr != nil {
		err := unauthorized(ErrInvalidToken, result.TokenErr)
		e.logFailure(ctx, "logout", "invalid_token", "", result.TokenErr)
		e.emitAudit(ctx, auditEventLogout, false, "", err, nil)
		return err
	}
	if result.Err != nil {
		e.metricInc(MetricPersistenceFailure)
		e.logFailure(ctx, "logout", "delete", result.PrincipalID, result.Err)
		wrapped := fmt.Errorf("%w: %v", ErrPersistence, result.Err)
		e.emitAudit(ctx, auditEventLogout, false, result.PrincipalID, wrapped, nil)
		return wrapped
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, result.PrincipalID, nil, nil)
	return nil
}

// ResumeSession validates an access token and then confirms against the
// store that it is still bound to the principal's live session, bumping the
// session's last-used time. Unlike Validate it detects revocation and
// rotation.
func (e *Engine) ResumeSession(ctx context.Context, accessToken string) (*Claims, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	result := internalflows.RunResume(ctx, accessToken, internalflows.ResumeDeps{
		Now:          e.now,
		ParseAccess:  e.jwtManager.ParseAccess,
		Warn:         e.warnFunc(ctx),
		SessionStore: e.sessionStore,
	})
	if result.Failure != internalflows.ResumeFailureNone {
		label, reason := resumeFailureReason(result.Failure)
		err := unauthorized(reason, result.Err)

		e.metricInc(MetricSessionResumeFailure)
		switch result.Failure {
		case internalflows.ResumeFailureExpired:
			e.metricInc(MetricSessionExpiredLazily)
		case internalflows.ResumeFailureLookup:
			e.metricInc(MetricPersistenceFailure)
		}
		e.logFailure(ctx, "resume", label, result.PrincipalID, result.Err)
		e.emitAudit(ctx, auditEventSessionResumeFailure, false, result.PrincipalID, err, func() map[string]string {
			return map[string]string{"reason": label}
		})
		return nil, err
	}

	e.metricInc(MetricSessionResumed)
	e.emitAudit(ctx, auditEventSessionResumed, true, result.PrincipalID, nil, nil)
	return claimsFromAccess(result.Claims), nil
}

// SweepExpired deletes every session whose expiry is at or before now and
// returns how many were removed.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}

	result := internalflows.RunSweep(ctx, internalflows.SweepDeps{
		Now:          e.now,
		SessionStore: e.sessionStore,
	})
	if result.Err != nil {
		e.metricInc(MetricSweepFailure)
		e.logFailure(ctx, "sweep", "delete_expired", "", result.Err)
		return result.Removed, fmt.Errorf("%w: %v", ErrPersistence, result.Err)
	}

	e.metricInc(MetricSweepRun)
	e.metrics.Add(MetricSweepRemoved, uint64(result.Removed))
	e.logger.Debug().
		Int("removed", result.Removed).
		Dur("duration", result.Duration).
		Msg("tokenauth: expiry sweep finished")
	e.emitAudit(ctx, auditEventSweepCompleted, true, "", nil, func() map[string]string {
		return map[string]string{
			"removed":     strconv.Itoa(result.Removed),
			"duration_ms": strconv.FormatInt(result.Duration.Milliseconds(), 10),
		}
	})
	return result.Removed, nil
}

func (e *Engine) logoutFlowDeps() internalflows.LogoutDeps {
	return internalflows.LogoutDeps{
		ParseAccess:  e.jwtManager.ParseAccess,
		SessionStore: e.sessionStore,
	}
}

func resumeFailureReason(kind internalflows.ResumeFailureKind) (string, error) {
	switch kind {
	case internalflows.ResumeFailureToken:
		return "invalid_token", ErrInvalidToken
	case internalflows.ResumeFailureSessionNotFound:
		return "session_not_found", ErrSessionNotFound
	case internalflows.ResumeFailureMismatch:
		return "token_mismatch", ErrTokenMismatch
	case internalflows.ResumeFailureExpired:
		return "session_expired", ErrRefreshExpired
	case internalflows.ResumeFailureLookup:
		return "lookup", ErrPersistence
	default:
		return "unknown", nil
	}
}
