package tokenauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voyz/tokenauth/jwt"
)

func TestSecurityInvariantExpiredRefreshRemovesRedisRecord(t *testing.T) {
	mr, rdb := newTestRedis(t)
	clock := newFakeClock()
	mr.SetTime(clock.Now())

	engine, err := New().WithConfig(testConfig()).WithRedis(rdb).WithClock(clock.Now).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	pair, err := engine.Login(context.Background(), alice())
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if exists := rdb.Exists(context.Background(), "tas:p:user-1").Val(); exists != 1 {
		t.Fatalf("expected session key, exists=%d", exists)
	}

	clock.Advance(24 * time.Hour)
	if _, err := engine.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrRefreshExpired) {
		t.Fatalf("expected ErrRefreshExpired, got %v", err)
	}
	if exists := rdb.Exists(context.Background(), "tas:p:user-1").Val(); exists != 0 {
		t.Fatalf("expected expired refresh to delete session key, exists=%d", exists)
	}
}

func TestSecurityInvariantResumeRequiresSession(t *testing.T) {
	e := newTestEngine(t, testConfig())

	pair, err := e.Login(context.Background(), alice())
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if err := e.LogoutByAccessToken(context.Background(), pair.AccessToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	if _, err := e.ResumeSession(context.Background(), pair.AccessToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSecurityInvariantValidateStaysStateless(t *testing.T) {
	mr, rdb := newTestRedis(t)

	engine, err := New().WithConfig(testConfig()).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	pair, err := engine.Login(context.Background(), alice())
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	mr.Close() // drop Redis before validate

	if _, err := engine.Validate(context.Background(), pair.AccessToken); err != nil {
		t.Fatalf("expected validate without redis, got %v", err)
	}
	if _, err := engine.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence with redis down, got %v", err)
	}
}

func TestSecurityInvariantForeignKeyRejected(t *testing.T) {
	e := newTestEngine(t, testConfig())
	pair, err := e.Login(context.Background(), alice())
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	other := testConfig()
	other.JWT.Secret = "ZmVkY2JhOTg3NjU0MzIxMGZlZGNiYTk4NzY1NDMyMTA="
	foreign := newTestEngine(t, other)

	if _, err := foreign.Validate(context.Background(), pair.AccessToken); !errors.Is(err, jwt.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if _, err := foreign.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSecurityInvariantErrorsDoNotLeakReason(t *testing.T) {
	e := newTestEngine(t, testConfig())
	ctx := context.Background()

	pair, err := e.Login(ctx, alice())
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	_ = e.Logout(ctx, "user-1")

	failures := []error{}
	_, err = e.Validate(ctx, "x.y.z")
	failures = append(failures, err)
	_, err = e.Refresh(ctx, pair.RefreshToken)
	failures = append(failures, err)
	_, err = e.ResumeSession(ctx, pair.AccessToken)
	failures = append(failures, err)
	_, err = e.Login(ctx, Principal{})
	failures = append(failures, err)

	for i, err := range failures {
		if err == nil {
			t.Fatalf("failure %d: expected error", i)
		}
		if err.Error() != "unauthorized" {
			t.Fatalf("failure %d: message %q leaks detail", i, err.Error())
		}
		var authErr *AuthError
		if !errors.As(err, &authErr) || authErr.Reason == nil {
			t.Fatalf("failure %d: expected AuthError with reason, got %#v", i, err)
		}
	}
}
