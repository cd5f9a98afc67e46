package tokenauth

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRefreshConcurrencyStrictRotationSingleWinner(t *testing.T) {
	cfg := testConfig()
	cfg.Session.StrictRotation = true
	_, rdb := newTestRedis(t)

	engine, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	pair, err := engine.Login(context.Background(), alice())
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	start := make(chan struct{})
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := engine.Refresh(context.Background(), pair.RefreshToken)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	success := 0
	fail := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		// Losers either read the rotated record or lost the conditional write.
		if errors.Is(err, ErrTokenMismatch) || errors.Is(err, ErrSessionNotFound) {
			fail++
			continue
		}
		t.Fatalf("unexpected refresh error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
	if success+fail != n {
		t.Fatalf("expected %d results, got %d", n, success+fail)
	}
	if _, err := engine.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("refresh after rotation should mismatch, got %v", err)
	}
}
