package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"classifieds-marketplace/internal/database"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func setupStore(t *testing.T) (*GormStore, *fakeClock) {
	t.Helper()
	gdb, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { gdb.Close() })

	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewGormStore(gdb.DB()).WithClock(clock.Now), clock
}

func TestSetThenGetReturnsSameBytes(t *testing.T) {
	s, clock := setupStore(t)
	ctx := context.Background()
	body := []byte(`{"id":"abc","title":"2BHK apartment in Pune"}`)

	if _, ok, _ := s.Get(ctx, "k1"); ok {
		t.Fatalf("expected miss before Set")
	}
	if err := s.Set(ctx, "k1", body, 15*time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok, err := s.Get(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(got) != string(body) {
		t.Fatalf("stored bytes changed: %s", got)
	}

	clock.Advance(15 * time.Minute)
	if _, ok, _ := s.Get(ctx, "k1"); ok {
		t.Fatalf("expected miss after ttl")
	}
}

func TestClaimLifecycle(t *testing.T) {
	s, clock := setupStore(t)
	ctx := context.Background()

	res, err := s.Claim(ctx, "k2", time.Minute)
	if err != nil || !res.Claimed {
		t.Fatalf("expected first claim to succeed, got %+v err=%v", res, err)
	}

	if _, err := s.Claim(ctx, "k2", time.Minute); !errors.Is(err, ErrRequestInProgress) {
		t.Fatalf("expected ErrRequestInProgress, got %v", err)
	}

	if err := s.Set(ctx, "k2", []byte(`{"id":"x"}`), 15*time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	res, err = s.Claim(ctx, "k2", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Claimed || string(res.Response) != `{"id":"x"}` {
		t.Fatalf("expected stored response, got %+v", res)
	}

	clock.Advance(16 * time.Minute)
	res, err = s.Claim(ctx, "k2", time.Minute)
	if err != nil || !res.Claimed {
		t.Fatalf("expected expired key to be claimable, got %+v err=%v", res, err)
	}
}

func TestReleaseAllowsRetry(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	if _, err := s.Claim(ctx, "k3", time.Minute); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := s.Release(ctx, "k3"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	res, err := s.Claim(ctx, "k3", time.Minute)
	if err != nil || !res.Claimed {
		t.Fatalf("expected claim after release, got %+v err=%v", res, err)
	}
}

func TestStaleClaimExpires(t *testing.T) {
	s, clock := setupStore(t)
	ctx := context.Background()

	if _, err := s.Claim(ctx, "k4", time.Minute); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	clock.Advance(2 * time.Minute)
	res, err := s.Claim(ctx, "k4", time.Minute)
	if err != nil || !res.Claimed {
		t.Fatalf("expected stale claim to be replaced, got %+v err=%v", res, err)
	}
}

func TestPurgeExpired(t *testing.T) {
	s, clock := setupStore(t)
	ctx := context.Background()

	s.Set(ctx, "old", []byte(`{}`), time.Minute)
	s.Set(ctx, "new", []byte(`{}`), time.Hour)
	clock.Advance(10 * time.Minute)

	n, err := s.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged record, got %d", n)
	}
	if _, ok, _ := s.Get(ctx, "new"); !ok {
		t.Fatalf("unexpired record must survive purge")
	}
}
