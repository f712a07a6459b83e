package cleanup

import (
	"context"
	"testing"
	"time"

	"classifieds-marketplace/internal/database"
	"classifieds-marketplace/internal/idempotency"
	"classifieds-marketplace/internal/models"
	"classifieds-marketplace/internal/outbox"

	"gorm.io/gorm"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time {
	return c.t
}

func TestCleanupPurgesOnlyOldTerminalRecords(t *testing.T) {
	gdb, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer gdb.Close()
	db := gdb.DB()
	ctx := context.Background()

	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	events := outbox.NewGormStore(db).WithClock(clock.Now)
	idem := idempotency.NewGormStore(db).WithClock(clock.Now)

	done, _ := events.Enqueue(ctx, models.EventAdCreated, "ad-1", map[string]string{})
	clock.t = clock.t.Add(time.Second)
	events.Enqueue(ctx, models.EventAdCreated, "ad-2", map[string]string{})
	events.ClaimPending(ctx, 1)
	if err := events.MarkCompleted(ctx, done.ID); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	idem.Set(ctx, "k1", []byte(`{}`), 15*time.Minute)

	clock.t = clock.t.Add(8 * 24 * time.Hour)
	svc := NewService(events, idem)

	cfg := DefaultCleanupConfig()
	cfg.DryRun = true
	res, err := svc.Run(ctx, cfg)
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if res.TargetCount != 1 || res.DeletedEvents != 0 || countEvents(t, db) != 2 {
		t.Fatalf("dry run must only count, got %+v", res)
	}

	res, err = svc.Run(ctx, DefaultCleanupConfig())
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if res.DeletedEvents != 1 || res.DeletedIdempotency != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	var left models.OutboxEvent
	if err := db.Take(&left).Error; err != nil || left.AggregateID != "ad-2" || left.Status != models.OutboxStatusPending {
		t.Fatalf("pending event must survive cleanup, got %+v (%v)", left, err)
	}
}

func TestCleanupSafetyLimit(t *testing.T) {
	gdb, err := database.NewInMemory()
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer gdb.Close()
	ctx := context.Background()

	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	events := outbox.NewGormStore(gdb.DB()).WithClock(clock.Now)
	for i := 0; i < 3; i++ {
		events.Enqueue(ctx, models.EventAdCreated, "ad", map[string]string{})
	}
	claimed, _ := events.ClaimPending(ctx, 3)
	for _, ev := range claimed {
		events.MarkCompleted(ctx, ev.ID)
	}
	clock.t = clock.t.Add(30 * 24 * time.Hour)

	svc := NewService(events, idempotency.NewGormStore(gdb.DB()))
	cfg := DefaultCleanupConfig()
	cfg.MaxDeletionCount = 2
	if _, err := svc.Run(ctx, cfg); err == nil {
		t.Fatalf("expected safety check to abort")
	}
	if _, err := svc.Run(ctx, CleanupConfig{RetentionDays: 0}); err == nil {
		t.Fatalf("expected zero retention to be rejected")
	}
}

func countEvents(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	db.Model(&models.OutboxEvent{}).Count(&n)
	return n
}
