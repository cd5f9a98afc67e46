package jwt

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestKey(t *testing.T) *SigningKey {
	t.Helper()
	raw := make([]byte, MinSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		t.Fatalf("random secret: %v", err)
	}
	key, err := NewSigningKey(base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		t.Fatalf("new signing key: %v", err)
	}
	return key
}

func newTestManager(t *testing.T, key *SigningKey, clock *testClock) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Key:        key,
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Issuer:     "tokenauth-test",
		Now:        clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func sampleAccess() AccessClaims {
	return AccessClaims{
		Name:          "Kim",
		Role:          "owner",
		StoreName:     "Han River Noodles",
		StoreCategory: "korean",
		AccessTokenID: "ati-1",
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject: "user-1",
		},
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	key := newTestKey(t)
	cases := []Config{
		{AccessTTL: time.Minute, RefreshTTL: time.Hour},
		{Key: key, AccessTTL: 0, RefreshTTL: time.Hour},
		{Key: key, AccessTTL: time.Minute, RefreshTTL: 0},
		{Key: key, AccessTTL: time.Hour, RefreshTTL: time.Minute},
		{Key: key, AccessTTL: time.Minute, RefreshTTL: time.Hour, Leeway: time.Hour},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected config to be rejected", i)
		}
	}
}

func TestAccessRoundTrip(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := newTestManager(t, newTestKey(t), clock)

	in := sampleAccess()
	token, err := m.CreateAccess(in)
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Fatalf("expected three-part token, got %d parts", len(parts))
	}

	clock.Advance(29 * time.Minute)
	out, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if out.PrincipalID() != in.Subject || out.AccessTokenID != in.AccessTokenID {
		t.Fatalf("identity claims changed: %+v", out)
	}
	if out.Name != in.Name || out.Role != in.Role || out.StoreName != in.StoreName || out.StoreCategory != in.StoreCategory {
		t.Fatalf("tenant claims changed: %+v", out)
	}
	if out.Use != UseAccess {
		t.Fatalf("expected access use, got %q", out.Use)
	}
	if !out.IssuedAt.Time.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected iat %v", out.IssuedAt.Time)
	}
	if !out.ExpiresAt.Time.Equal(time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected exp %v", out.ExpiresAt.Time)
	}
}

func TestRefreshRoundTrip(t *testing.T) {
	clock := &testClock{now: time.Now()}
	m := newTestManager(t, newTestKey(t), clock)

	token, err := m.CreateRefresh(RefreshClaims{
		AccessTokenID:    "ati-9",
		RegisteredClaims: gjwt.RegisteredClaims{Subject: "user-9"},
	})
	if err != nil {
		t.Fatalf("create refresh: %v", err)
	}

	out, err := m.ParseRefresh(token)
	if err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
	if out.PrincipalID() != "user-9" || out.AccessTokenID != "ati-9" {
		t.Fatalf("unexpected refresh claims: %+v", out)
	}
}

func TestParseAccessExpired(t *testing.T) {
	clock := &testClock{now: time.Now()}
	m := newTestManager(t, newTestKey(t), clock)

	token, err := m.IssueAccess(sampleAccess(), time.Minute)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	clock.Advance(time.Minute)
	if _, err := m.ParseAccess(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired at exact expiry, got %v", err)
	}
}

func TestParseAccessTamperedSignature(t *testing.T) {
	clock := &testClock{now: time.Now()}
	m := newTestManager(t, newTestKey(t), clock)

	token, err := m.CreateAccess(sampleAccess())
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	sigStart := strings.LastIndex(token, ".") + 1
	replacement := byte('A')
	if token[sigStart] == 'A' {
		replacement = 'B'
	}
	tampered := token[:sigStart] + string(replacement) + token[sigStart+1:]

	_, err = m.ParseAccess(tampered)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if errors.Is(err, ErrMalformed) {
		t.Fatal("tampered token must not be reported as malformed")
	}
}

const base64URLAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// shiftChar replaces token[i] with the next symbol of the base64url alphabet.
func shiftChar(token string, i int) string {
	next := base64URLAlphabet[(strings.IndexByte(base64URLAlphabet, token[i])+1)%len(base64URLAlphabet)]
	return token[:i] + string(next) + token[i+1:]
}

func TestParseAccessRejectsNonCanonicalSignature(t *testing.T) {
	m := newTestManager(t, newTestKey(t), &testClock{now: time.Now()})

	token, err := m.CreateAccess(sampleAccess())
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	// The last symbol of a 32-byte signature carries two unused bits; flipping
	// one leaves the decoded bytes unchanged.
	last := len(token) - 1
	idx := strings.IndexByte(base64URLAlphabet, token[last])
	variant := token[:last] + string(base64URLAlphabet[idx^1]) + token[last+1:]

	if _, err := m.ParseAccess(variant); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for re-encoded signature, got %v", err)
	}
}

func TestParseAccessTamperedPayload(t *testing.T) {
	m := newTestManager(t, newTestKey(t), &testClock{now: time.Now()})

	token, err := m.CreateAccess(sampleAccess())
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	payloadStart := strings.Index(token, ".") + 1
	tampered := shiftChar(token, payloadStart+5)

	_, err = m.ParseAccess(tampered)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if errors.Is(err, ErrMalformed) {
		t.Fatal("tampered payload must not be reported as malformed")
	}
}

func TestParseAccessAnySingleCharEditIsSignatureFailure(t *testing.T) {
	m := newTestManager(t, newTestKey(t), &testClock{now: time.Now()})

	token, err := m.CreateAccess(sampleAccess())
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	for i := range token {
		if token[i] == '.' {
			continue
		}
		if _, err := m.ParseAccess(shiftChar(token, i)); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("edit at %d of %d: expected ErrInvalidSignature, got %v", i, len(token), err)
		}
	}
}

func TestParseAccessMalformed(t *testing.T) {
	m := newTestManager(t, newTestKey(t), &testClock{now: time.Now()})

	for _, input := range []string{"", "not-a-token", "a.b", "a.b.c"} {
		if _, err := m.ParseAccess(input); !errors.Is(err, ErrMalformed) {
			t.Fatalf("input %q: expected ErrMalformed, got %v", input, err)
		}
	}
}

func TestParseAccessWrongKey(t *testing.T) {
	clock := &testClock{now: time.Now()}
	issuer := newTestManager(t, newTestKey(t), clock)
	verifier := newTestManager(t, newTestKey(t), clock)

	token, err := issuer.CreateAccess(sampleAccess())
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := verifier.ParseAccess(token); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	key := newTestKey(t)
	m := newTestManager(t, key, &testClock{now: time.Now()})

	claims := sampleAccess()
	claims.Use = UseAccess
	claims.ExpiresAt = gjwt.NewNumericDate(time.Now().Add(time.Minute))
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims)
	token, err := tok.SignedString(key.bytes())
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}

	unsigned := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims)
	none, err := unsigned.SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if _, err := m.ParseAccess(none); err == nil {
		t.Fatal("expected alg=none to be rejected")
	}
}

func TestTokenUseIsEnforced(t *testing.T) {
	m := newTestManager(t, newTestKey(t), &testClock{now: time.Now()})

	access, err := m.CreateAccess(sampleAccess())
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	refresh, err := m.CreateRefresh(RefreshClaims{
		AccessTokenID:    "ati-1",
		RegisteredClaims: gjwt.RegisteredClaims{Subject: "user-1"},
	})
	if err != nil {
		t.Fatalf("create refresh: %v", err)
	}

	if _, err := m.ParseRefresh(access); !errors.Is(err, ErrWrongTokenUse) {
		t.Fatalf("expected access token to be refused as refresh, got %v", err)
	}
	if _, err := m.ParseAccess(refresh); !errors.Is(err, ErrWrongTokenUse) {
		t.Fatalf("expected refresh token to be refused as access, got %v", err)
	}
}

func TestParseAccessIssuerAndLeeway(t *testing.T) {
	key := newTestKey(t)
	clock := &testClock{now: time.Now()}
	m, err := NewManager(Config{
		Key:        key,
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
		Issuer:     "tokenauth",
		Leeway:     30 * time.Second,
		Now:        clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	other, err := NewManager(Config{Key: key, AccessTTL: time.Minute, RefreshTTL: time.Hour, Issuer: "other", Now: clock.Now})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	foreign, err := other.CreateAccess(sampleAccess())
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseAccess(foreign); !errors.Is(err, ErrInvalidClaims) {
		t.Fatalf("expected wrong issuer to fail with ErrInvalidClaims, got %v", err)
	}

	token, err := m.CreateAccess(sampleAccess())
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	clock.Advance(time.Minute + 15*time.Second)
	if _, err := m.ParseAccess(token); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
	clock.Advance(time.Minute)
	if _, err := m.ParseAccess(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected token past leeway to expire, got %v", err)
	}
}

func TestIssueRequiresIdentity(t *testing.T) {
	m := newTestManager(t, newTestKey(t), &testClock{now: time.Now()})

	if _, err := m.CreateAccess(AccessClaims{AccessTokenID: "x"}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected missing subject to fail, got %v", err)
	}
	if _, err := m.CreateRefresh(RefreshClaims{RegisteredClaims: gjwt.RegisteredClaims{Subject: "u"}}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected missing access token id to fail, got %v", err)
	}
}
