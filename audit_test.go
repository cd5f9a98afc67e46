package tokenauth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/voyz/tokenauth/session"
)

func auditConfig() Config {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = false
	return cfg
}

func nextEvent(t *testing.T, sink *ChannelSink) AuditEvent {
	t.Helper()
	select {
	case ev := <-sink.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
		return AuditEvent{}
	}
}

func TestAuditLifecycleEvents(t *testing.T) {
	sink := NewChannelSink(64)
	e := newTestEngine(t, auditConfig(), func(b *Builder) {
		b.WithAuditSink(sink)
	})

	ctx := WithRequestID(WithUserAgent(WithClientIP(context.Background(), "203.0.113.9"), "pos-terminal/2.1"), "req-42")

	pair, err := e.Login(ctx, alice())
	require.NoError(t, err)

	ev := nextEvent(t, sink)
	require.Equal(t, "login_success", ev.EventType)
	require.True(t, ev.Success)
	require.Equal(t, "user-1", ev.PrincipalID)
	require.Equal(t, "203.0.113.9", ev.IP)
	require.Equal(t, "pos-terminal/2.1", ev.UserAgent)
	require.Equal(t, "req-42", ev.Metadata["request_id"])
	require.NotEmpty(t, ev.Metadata["session_expires_at"])
	require.True(t, ev.Timestamp.Equal(e.clock.Now()))

	_, err = e.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	ev = nextEvent(t, sink)
	require.Equal(t, "refresh_success", ev.EventType)

	_, err = e.Refresh(ctx, "garbage")
	require.Error(t, err)
	ev = nextEvent(t, sink)
	require.Equal(t, "refresh_failure", ev.EventType)
	require.False(t, ev.Success)
	require.Equal(t, "invalid_token", ev.Error)
	require.Equal(t, "invalid_token", ev.Metadata["reason"])

	require.NoError(t, e.Logout(ctx, "user-1"))
	ev = nextEvent(t, sink)
	require.Equal(t, "logout", ev.EventType)
	require.True(t, ev.Success)

	_, err = e.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrSessionNotFound)
	ev = nextEvent(t, sink)
	require.Equal(t, "session_not_found", ev.Error)
}

func TestAuditSweepEvent(t *testing.T) {
	sink := NewChannelSink(8)
	e := newTestEngine(t, auditConfig(), func(b *Builder) {
		b.WithAuditSink(sink)
	})

	_, err := e.SweepExpired(context.Background())
	require.NoError(t, err)

	ev := nextEvent(t, sink)
	require.Equal(t, "sweep_completed", ev.EventType)
	require.Equal(t, "0", ev.Metadata["removed"])
	require.Empty(t, ev.PrincipalID)
}

func TestAuditErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{unauthorized(ErrInvalidToken, nil), auditErrInvalidToken},
		{unauthorized(ErrSessionNotFound, nil), auditErrSessionNotFound},
		{unauthorized(ErrTokenMismatch, nil), auditErrTokenMismatch},
		{unauthorized(ErrRefreshExpired, nil), auditErrRefreshExpired},
		{unauthorized(ErrInvalidPrincipal, nil), auditErrInvalidPrincipal},
		{unauthorized(ErrPersistence, nil), auditErrUnavailable},
		{unauthorized(nil, nil), auditErrInternal},
	}
	for _, tc := range tests {
		if got := auditErrorCode(tc.err); got != tc.want {
			t.Errorf("auditErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestAuditAndLogsNeverCarryTokens(t *testing.T) {
	var auditOut, logOut syncBuffer
	cfg := auditConfig()
	clock := newFakeClock()
	engine, err := New().
		WithConfig(cfg).
		WithStore(&failingStore{MemoryStore: session.NewMemoryStore()}).
		WithClock(clock.Now).
		WithLogger(zerolog.New(&logOut)).
		WithAuditSink(NewJSONWriterSink(&auditOut)).
		Build()
	require.NoError(t, err)

	ctx := context.Background()
	pair, err := engine.Login(ctx, alice())
	require.NoError(t, err)
	rotated, err := engine.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	_, err = engine.Refresh(ctx, tamperSignature(pair.RefreshToken))
	require.Error(t, err)
	_, err = engine.ResumeSession(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenMismatch)
	require.NoError(t, engine.Logout(ctx, "user-1"))

	engine.Close()

	for name, out := range map[string]string{"audit": auditOut.String(), "log": logOut.String()} {
		require.NotEmpty(t, out, name)
		for _, secret := range []string{pair.AccessToken, pair.RefreshToken, rotated.AccessToken} {
			require.False(t, strings.Contains(out, secret), "%s output contains a token", name)
		}
	}
	require.Contains(t, logOut.String(), `"op":"refresh"`)
}

func TestAuditDisabledIgnoresSink(t *testing.T) {
	sink := NewChannelSink(4)
	e := newTestEngine(t, testConfig(), func(b *Builder) {
		b.WithAuditSink(sink)
	})

	_, err := e.Login(context.Background(), alice())
	require.NoError(t, err)
	select {
	case ev := <-sink.Events():
		t.Fatalf("unexpected event %q with audit disabled", ev.EventType)
	case <-time.After(50 * time.Millisecond):
	}
	require.Zero(t, e.AuditDropped())
}
