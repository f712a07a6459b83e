package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"classifieds-marketplace/internal/config"
	"classifieds-marketplace/internal/database"
	"classifieds-marketplace/internal/models"
	"classifieds-marketplace/internal/outbox"

	"gorm.io/gorm"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time {
	return c.t
}

func setupRelay(t *testing.T) (*OutboxRelay, *outbox.GormStore, *gorm.DB, *fakeClock) {
	t.Helper()
	gdb, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { gdb.Close() })

	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := outbox.NewGormStore(gdb.DB()).WithClock(clock.Now)
	relay := NewOutboxRelay(store, config.DefaultConfig().Outbox)
	return relay, store, gdb.DB(), clock
}

func statusOf(t *testing.T, db *gorm.DB, id string) models.OutboxEvent {
	t.Helper()
	var ev models.OutboxEvent
	if err := db.Where("id = ?", id).Take(&ev).Error; err != nil {
		t.Fatalf("failed to load event: %v", err)
	}
	return ev
}

func TestRelayDispatchesByEventName(t *testing.T) {
	relay, store, db, _ := setupRelay(t)
	ctx := context.Background()

	var seen []string
	relay.Register(models.EventAdCreated, func(ctx context.Context, ev *models.OutboxEvent) error {
		seen = append(seen, ev.AggregateID)
		return nil
	})

	known, _ := store.Enqueue(ctx, models.EventAdCreated, "ad-1", models.AdCreatedPayload{AdID: "ad-1"})
	unknown, _ := store.Enqueue(ctx, "ad.archived", "ad-2", map[string]string{})

	done, err := relay.ProcessBatch(ctx)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if done != 1 || len(seen) != 1 || seen[0] != "ad-1" {
		t.Fatalf("expected one handled event, got done=%d seen=%v", done, seen)
	}
	if ev := statusOf(t, db, known.ID); ev.Status != models.OutboxStatusCompleted {
		t.Fatalf("expected completed, got %s", ev.Status)
	}
	ev := statusOf(t, db, unknown.ID)
	if ev.Status != models.OutboxStatusFailed || ev.RetryCount != 1 || ev.LastError == "" {
		t.Fatalf("unhandled event must fail with a reason, got %+v", ev)
	}
}

func TestRelayRetriesAfterBackoff(t *testing.T) {
	relay, store, db, clock := setupRelay(t)
	ctx := context.Background()

	calls := 0
	relay.Register(models.EventAdCreated, func(ctx context.Context, ev *models.OutboxEvent) error {
		calls++
		if calls == 1 {
			return errors.New("search unavailable")
		}
		return nil
	})
	ev, _ := store.Enqueue(ctx, models.EventAdCreated, "ad-1", models.AdCreatedPayload{AdID: "ad-1"})

	relay.ProcessBatch(ctx)
	if got := statusOf(t, db, ev.ID); got.Status != models.OutboxStatusFailed {
		t.Fatalf("expected failed after first attempt, got %s", got.Status)
	}

	// still inside the backoff window
	relay.ProcessBatch(ctx)
	if calls != 1 {
		t.Fatalf("event retried before its backoff elapsed")
	}

	clock.t = clock.t.Add(2 * time.Minute)
	done, err := relay.ProcessBatch(ctx)
	if err != nil || done != 1 {
		t.Fatalf("expected retry to complete, got done=%d err=%v", done, err)
	}
	if got := statusOf(t, db, ev.ID); got.Status != models.OutboxStatusCompleted || got.RetryCount != 1 {
		t.Fatalf("unexpected final state %+v", got)
	}
}

func TestRelayRecoversFromPanics(t *testing.T) {
	relay, store, db, _ := setupRelay(t)
	ctx := context.Background()

	relay.Register(models.EventAdCreated, func(ctx context.Context, ev *models.OutboxEvent) error {
		panic("boom")
	})
	ev, _ := store.Enqueue(ctx, models.EventAdCreated, "ad-1", models.AdCreatedPayload{AdID: "ad-1"})

	if _, err := relay.ProcessBatch(ctx); err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if got := statusOf(t, db, ev.ID); got.Status != models.OutboxStatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}

	stats, err := relay.GetQueueStats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats["failed"] != int64(1) || stats["is_running"] != false {
		t.Fatalf("unexpected stats %v", stats)
	}
}

func TestRelayStartStop(t *testing.T) {
	relay, _, _, _ := setupRelay(t)
	relay.pollInterval = 10 * time.Millisecond

	relay.Start()
	relay.Start()
	time.Sleep(30 * time.Millisecond)
	relay.Stop()
	relay.Stop()
}

func TestParseDailyRunTime(t *testing.T) {
	s := &Scheduler{}
	cases := map[string]string{
		"03:00": "0 3 * * *",
		"23:45": "45 23 * * *",
		"7:05":  "5 7 * * *",
		"25:00": "0 3 * * *",
		"noon":  "0 3 * * *",
	}
	for in, want := range cases {
		if got := s.parseDailyRunTime(in); got != want {
			t.Errorf("parseDailyRunTime(%q) = %q, want %q", in, got, want)
		}
	}
}
