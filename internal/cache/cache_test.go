package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupCache(t *testing.T) (*TagCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := NewRedisClient(mr.Addr(), "", 0)
	t.Cleanup(func() { client.Close() })
	return NewTagCache(client, time.Second), mr
}

type entry struct {
	Title string `json:"title"`
	Total int    `json:"total"`
}

func TestSetGetRoundTrip(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	var got entry
	ok, err := c.Get(ctx, "k", &got)
	if err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := c.Set(ctx, "k", entry{Title: "Swift 2019", Total: 3}, time.Minute, TagList); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	ok, err = c.Get(ctx, "k", &got)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.Title != "Swift 2019" || got.Total != 3 {
		t.Fatalf("unexpected value %+v", got)
	}
}

func TestTTLExpiry(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	c.Set(ctx, "k", entry{Title: "x"}, 300*time.Second, TagList)
	mr.FastForward(301 * time.Second)

	var got entry
	if ok, _ := c.Get(ctx, "k", &got); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestInvalidateLists(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	all := ListKey("all", "page=1", "limit=20")
	scoped := ListKey("category_location", "property", "mumbai")
	detail := DetailKey("ad-1", "")

	c.Set(ctx, all, entry{Total: 1}, time.Minute, TagList)
	c.Set(ctx, scoped, entry{Total: 2}, time.Minute, TagList)
	c.Set(ctx, detail, entry{Title: "d"}, time.Minute, TagForAd("ad-1"))

	if err := c.InvalidateLists(ctx); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}

	if mr.Exists(all) || mr.Exists(scoped) {
		t.Fatalf("list entries must be gone after invalidation")
	}
	if mr.Exists(tagSetPrefix + TagList) {
		t.Fatalf("list tag set must be cleared")
	}
	if !mr.Exists(detail) {
		t.Fatalf("detail entries must survive list invalidation")
	}

	// invalidating an empty tag is not an error
	if err := c.InvalidateLists(ctx); err != nil {
		t.Fatalf("second invalidate failed: %v", err)
	}
}

func TestInvalidateAd(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	anon := DetailKey("ad-1", "")
	viewer := DetailKey("ad-1", "user-7")
	other := DetailKey("ad-2", "")
	c.Set(ctx, anon, entry{}, time.Minute, TagForAd("ad-1"))
	c.Set(ctx, viewer, entry{}, time.Minute, TagForAd("ad-1"))
	c.Set(ctx, other, entry{}, time.Minute, TagForAd("ad-2"))

	if err := c.InvalidateAd(ctx, "ad-1"); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if mr.Exists(anon) || mr.Exists(viewer) {
		t.Fatalf("all viewer entries of ad-1 must be gone")
	}
	if !mr.Exists(other) {
		t.Fatalf("ad-2 must not be touched")
	}
}

func TestDetailKeyUsesAnonymous(t *testing.T) {
	if DetailKey("x", "") != DetailKey("x", AnonymousViewer) {
		t.Fatalf("empty viewer must map to anonymous")
	}
	if DetailKey("x", "u1") == DetailKey("x", "u2") {
		t.Fatalf("viewers must not share detail keys")
	}
}

func TestCacheUnavailable(t *testing.T) {
	c, mr := setupCache(t)
	mr.Close()

	var got entry
	if _, err := c.Get(context.Background(), "k", &got); err == nil {
		t.Fatalf("expected error when redis is down")
	}
	if err := c.InvalidateLists(context.Background()); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}

func TestSetIfGenerationSkipsStaleWrites(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()
	key := ListKey("all", "page=1", "limit=20")

	gen, err := c.Generation(ctx, TagList)
	if err != nil || gen != 0 {
		t.Fatalf("expected generation 0, got %d err=%v", gen, err)
	}

	// an ad is created while the list query runs
	if err := c.InvalidateLists(ctx); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}

	stored, err := c.SetIfGeneration(ctx, key, entry{Total: 1}, time.Minute, TagList, gen)
	if err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if stored || mr.Exists(key) {
		t.Fatalf("result read before the invalidation must not be cached")
	}

	gen, _ = c.Generation(ctx, TagList)
	if gen != 1 {
		t.Fatalf("expected generation 1, got %d", gen)
	}
	stored, err = c.SetIfGeneration(ctx, key, entry{Total: 2}, time.Minute, TagList, gen)
	if err != nil || !stored {
		t.Fatalf("expected write at current generation, stored=%v err=%v", stored, err)
	}

	var got entry
	if ok, _ := c.Get(ctx, key, &got); !ok || got.Total != 2 {
		t.Fatalf("expected cached total 2, got ok=%v %+v", ok, got)
	}
	if ttl := mr.TTL(key); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected a ttl of at most 1m, got %v", ttl)
	}

	// the guarded entry is indexed under the tag like any other
	c.InvalidateLists(ctx)
	if mr.Exists(key) {
		t.Fatalf("guarded entry must be removed by invalidation")
	}
}
