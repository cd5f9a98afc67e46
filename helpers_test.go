package tokenauth

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/voyz/tokenauth/session"
)

var testSecret = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = testSecret
	cfg.JWT.AccessTTL = 15 * time.Minute
	cfg.JWT.RefreshTTL = 24 * time.Hour
	cfg.Sweep.Enabled = false
	return cfg
}

// failingStore wraps a MemoryStore and fails selected operations.
type failingStore struct {
	*session.MemoryStore
	failUpsert bool
	failFind   bool
	failDelete bool
	// afterFind runs once, after the next FindByRefreshToken returns.
	afterFind func()
}

func (s *failingStore) UpsertSingleSession(ctx context.Context, rec *session.Record) error {
	if s.failUpsert {
		return fmt.Errorf("%w: %v", session.ErrUnavailable, "connection refused")
	}
	return s.MemoryStore.UpsertSingleSession(ctx, rec)
}

func (s *failingStore) FindByRefreshToken(ctx context.Context, token string) (*session.Record, error) {
	if s.failFind {
		return nil, fmt.Errorf("%w: %v", session.ErrUnavailable, "connection refused")
	}
	rec, err := s.MemoryStore.FindByRefreshToken(ctx, token)
	if fn := s.afterFind; fn != nil {
		s.afterFind = nil
		fn()
	}
	return rec, err
}

func (s *failingStore) DeleteByPrincipalID(ctx context.Context, principalID string) error {
	if s.failDelete {
		return fmt.Errorf("%w: %v", session.ErrUnavailable, "connection refused")
	}
	return s.MemoryStore.DeleteByPrincipalID(ctx, principalID)
}

type testEngine struct {
	*Engine
	store *session.MemoryStore
	clock *fakeClock
}

func newTestEngine(t *testing.T, cfg Config, configure ...func(*Builder)) *testEngine {
	t.Helper()

	clock := newFakeClock()
	store := session.NewMemoryStore()
	b := New().
		WithConfig(cfg).
		WithStore(store).
		WithClock(clock.Now)
	for _, fn := range configure {
		fn(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{Engine: engine, store: store, clock: clock}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func alice() Principal {
	return Principal{
		ID:            "user-1",
		Name:          "Alice",
		Role:          "OWNER",
		StoreName:     "Corner Bistro",
		StoreCategory: "RESTAURANT",
	}
}

func bob() Principal {
	return Principal{ID: "user-2", Name: "Bob", Role: "STAFF"}
}

// tamperSignature flips one character in the middle of the signature.
func tamperSignature(token string) string {
	sigStart := strings.LastIndex(token, ".") + 1
	i := sigStart + (len(token)-sigStart)/2
	replacement := byte('A')
	if token[i] == 'A' {
		replacement = 'B'
	}
	return token[:i] + string(replacement) + token[i+1:]
}

// replaceChar swaps token[i] for the following base64url symbol.
func replaceChar(token string, i int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	next := alphabet[(strings.IndexByte(alphabet, token[i])+1)%len(alphabet)]
	return token[:i] + string(next) + token[i+1:]
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
