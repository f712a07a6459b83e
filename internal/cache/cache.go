package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Tag namespaces
const (
	TagList         = "ads:list"
	tagDetailPrefix = "ads:detail:"
	tagSetPrefix    = "tag:"
	tagGenPrefix    = "gen:"
)

// AnonymousViewer keys detail entries for requests without a viewer
const AnonymousViewer = "anonymous"

// TagForAd returns the tag that groups every cached detail view of one ad
func TagForAd(id string) string {
	return tagDetailPrefix + id
}

// ListKey builds a list cache key under the list namespace
func ListKey(shape string, parts ...string) string {
	return "cache:" + TagList + ":" + shape + ":" + strings.Join(parts, ":")
}

// DetailKey builds the detail cache key for one ad and viewer
func DetailKey(id, viewerID string) string {
	if viewerID == "" {
		viewerID = AnonymousViewer
	}
	return "cache:" + TagForAd(id) + ":" + viewerID
}

// Cache is a tagged key/value cache with bulk invalidation by tag
type Cache interface {
	// Get decodes the cached value into dest; ok is false on a miss
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	// Set stores value and indexes key under every tag
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration, tags ...string) error
	// InvalidateTag deletes every key indexed under tag, then the tag itself,
	// and advances the tag generation
	InvalidateTag(ctx context.Context, tag string) error
	// Generation returns the current invalidation generation of tag
	Generation(ctx context.Context, tag string) (int64, error)
	// SetIfGeneration stores value under tag only while the tag is still at gen.
	// stored is false when an invalidation happened since gen was read.
	SetIfGeneration(ctx context.Context, key string, value interface{}, ttl time.Duration, tag string, gen int64) (stored bool, err error)
	InvalidateLists(ctx context.Context) error
	InvalidateAd(ctx context.Context, id string) error
}

// TagCache implements Cache on Redis. Values are JSON strings, tags are Redis sets.
type TagCache struct {
	client  *redis.Client
	timeout time.Duration
}

func NewTagCache(client *redis.Client, timeout time.Duration) *TagCache {
	return &TagCache{client: client, timeout: timeout}
}

// NewRedisClient creates the go-redis client used by the cache
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (c *TagCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *TagCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

// Set writes the value and its tag memberships in one MULTI block so an
// invalidation can never observe the value without its tags.
func (c *TagCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration, tags ...string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, ttl)
		for _, tag := range tags {
			setKey := tagSetPrefix + tag
			pipe.SAdd(ctx, setKey, key)
			// tag members share one TTL class, so the newest member outlives the rest
			pipe.Expire(ctx, setKey, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// invalidateScript advances the generation, then reads and deletes a tag set atomically
var invalidateScript = redis.NewScript(`
redis.call('INCR', KEYS[2])
local members = redis.call('SMEMBERS', KEYS[1])
for i = 1, #members, 500 do
	redis.call('DEL', unpack(members, i, math.min(i + 499, #members)))
end
redis.call('DEL', KEYS[1])
return #members
`)

func (c *TagCache) InvalidateTag(ctx context.Context, tag string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	keys := []string{tagSetPrefix + tag, tagGenPrefix + tag}
	if err := invalidateScript.Run(ctx, c.client, keys).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("cache invalidate %s: %w", tag, err)
	}
	return nil
}

func (c *TagCache) Generation(ctx context.Context, tag string) (int64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	gen, err := c.client.Get(ctx, tagGenPrefix+tag).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache generation %s: %w", tag, err)
	}
	return gen, nil
}

// setIfGenerationScript compares the generation and writes value and tag membership in one step
var setIfGenerationScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
redis.call('SADD', KEYS[3], KEYS[2])
redis.call('PEXPIRE', KEYS[3], ARGV[3])
return 1
`)

func (c *TagCache) SetIfGeneration(ctx context.Context, key string, value interface{}, ttl time.Duration, tag string, gen int64) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("cache encode %s: %w", key, err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	keys := []string{tagGenPrefix + tag, key, tagSetPrefix + tag}
	n, err := setIfGenerationScript.Run(ctx, c.client, keys, strconv.FormatInt(gen, 10), data, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("cache set %s: %w", key, err)
	}
	return n == 1, nil
}

// InvalidateLists drops every cached list query
func (c *TagCache) InvalidateLists(ctx context.Context) error {
	return c.InvalidateTag(ctx, TagList)
}

// InvalidateAd drops every cached detail view of the ad
func (c *TagCache) InvalidateAd(ctx context.Context, id string) error {
	return c.InvalidateTag(ctx, TagForAd(id))
}

// Ping checks the Redis connection
func (c *TagCache) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

// Noop is a Cache that stores nothing. Used when Redis is not configured.
type Noop struct{}

func (Noop) Get(context.Context, string, interface{}) (bool, error) { return false, nil }
func (Noop) Set(context.Context, string, interface{}, time.Duration, ...string) error {
	return nil
}
func (Noop) InvalidateTag(context.Context, string) error { return nil }
func (Noop) Generation(context.Context, string) (int64, error) { return 0, nil }
func (Noop) SetIfGeneration(context.Context, string, interface{}, time.Duration, string, int64) (bool, error) {
	return false, nil
}
func (Noop) InvalidateLists(context.Context) error { return nil }
func (Noop) InvalidateAd(context.Context, string) error { return nil }
