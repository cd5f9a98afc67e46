package tokenauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshFailure       = "refresh_failure"
	auditEventLogout               = "logout"
	auditEventSessionResumed       = "session_resumed"
	auditEventSessionResumeFailure = "session_resume_failure"
	auditEventSweepCompleted       = "sweep_completed"
)

// AuditErrorCode is the stable error label carried by failed audit events.
type AuditErrorCode string

const (
	auditErrInvalidToken     AuditErrorCode = "invalid_token"
	auditErrSessionNotFound  AuditErrorCode = "session_not_found"
	auditErrTokenMismatch    AuditErrorCode = "token_mismatch"
	auditErrRefreshExpired   AuditErrorCode = "refresh_expired"
	auditErrInvalidPrincipal AuditErrorCode = "invalid_principal"
	auditErrUnavailable      AuditErrorCode = "backend_unavailable"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if requestID := requestIDFromContext(ctx); requestID != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["request_id"] = requestID
	}

	event := AuditEvent{
		Timestamp:   e.now().UTC(),
		EventType:   eventType,
		PrincipalID: principalID,
		IP:          clientIPFromContext(ctx),
		UserAgent:   userAgentFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// logFailure writes a warning for a failed operation. Token strings are
// never passed here.
func (e *Engine) logFailure(ctx context.Context, op, reason, principalID string, err error) {
	if e == nil {
		return
	}
	ev := e.logger.Warn().
		Str("op", op).
		Str("reason", reason)
	if principalID != "" {
		ev = ev.Str("principal_id", principalID)
	}
	if requestID := requestIDFromContext(ctx); requestID != "" {
		ev = ev.Str("request_id", requestID)
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("tokenauth: operation failed")
}

// warnFunc adapts the engine logger to the key/value warn hook the flows use.
func (e *Engine) warnFunc(ctx context.Context) func(string, ...any) {
	return func(msg string, kv ...any) {
		ev := e.logger.Warn()
		if requestID := requestIDFromContext(ctx); requestID != "" {
			ev = ev.Str("request_id", requestID)
		}
		ev.Fields(kv).Msg(msg)
	}
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrPersistence):
		return auditErrUnavailable
	case errors.Is(err, ErrRefreshExpired):
		return auditErrRefreshExpired
	case errors.Is(err, ErrTokenMismatch):
		return auditErrTokenMismatch
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrInvalidPrincipal):
		return auditErrInvalidPrincipal
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	default:
		return auditErrInternal
	}
}
