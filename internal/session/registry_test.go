package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"goalrush/matchcore/internal/broadcast"
	"goalrush/matchcore/internal/config"
	"goalrush/matchcore/internal/logging"
	"goalrush/matchcore/internal/result"
	"goalrush/matchcore/internal/settle"
)

func testRegistry(cfg *config.Config) *Registry {
	return NewRegistry(cfg, broadcast.NewBroadcaster(8), settle.NewStream(settle.Config{}), logging.NewTestLogger())
}

func TestRegistryCreateAndLookup(t *testing.T) {
	registry := testRegistry(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := registry.Create(ctx, "match-1", "home", "away")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	found, err := registry.Get("match-1")
	if err != nil || found != sess {
		t.Fatalf("lookup failed: %v", err)
	}
	if _, err := registry.Get("match-2"); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
}

func TestRegistryRejectsDuplicateMatch(t *testing.T) {
	registry := testRegistry(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := registry.Create(ctx, "match-1", "home", "away"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := registry.Create(ctx, "match-1", "carol", "dave"); !errors.Is(err, ErrMatchExists) {
		t.Fatalf("expected ErrMatchExists, got %v", err)
	}
}

func TestRegistryEnforcesCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSessions = 1
	registry := testRegistry(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := registry.Create(ctx, "match-1", "home", "away"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := registry.Create(ctx, "match-2", "carol", "dave"); !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
}

func TestRegistryCapacityHoldsUnderConcurrentCreates(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSessions = 2
	registry := testRegistry(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	//1.- Race eight creations against a capacity of two; the gate must hold
	// even when every caller passes the initial check before any insert.
	var wg sync.WaitGroup
	var created atomic.Int64
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := registry.Create(ctx, fmt.Sprintf("match-%d", i), fmt.Sprintf("home-%d", i), fmt.Sprintf("away-%d", i))
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, ErrCapacity):
			default:
				t.Errorf("unexpected create error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if created.Load() != 2 {
		t.Fatalf("expected exactly 2 sessions created, got %d", created.Load())
	}
	if live := registry.Stats().Live; live != 2 {
		t.Fatalf("expected 2 live sessions, got %d", live)
	}
}

func TestRegistryReapsEndedSessions(t *testing.T) {
	registry := testRegistry(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := registry.Create(ctx, "match-1", "home", "away")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := registry.Abort("match-1", "test teardown"); err != nil {
		t.Fatalf("abort: %v", err)
	}
	res, ok := sess.Result()
	if !ok || res.Status != result.StatusVoid {
		t.Fatalf("expected void result, got %+v", res)
	}

	//1.- The reaper runs asynchronously; poll briefly for removal.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := registry.Get("match-1"); errors.Is(err, ErrMatchNotFound) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("ended session was not reaped")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stats := registry.Stats()
	if stats.Live != 0 || stats.Started != 1 {
		t.Fatalf("unexpected registry stats: %+v", stats)
	}
}

func TestRegistryShutdownAbortsAll(t *testing.T) {
	registry := testRegistry(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, _ := registry.Create(ctx, "match-1", "home", "away")
	b, _ := registry.Create(ctx, "match-2", "carol", "dave")

	registry.Shutdown("server shutting down")

	for _, sess := range []*Session{a, b} {
		res, ok := sess.Result()
		if !ok || res.Status != result.StatusVoid {
			t.Fatalf("expected void on shutdown, got %+v", res)
		}
	}
}
