package scores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/joeblew999/plat-overlay/internal/metrics"
)

// ErrCacheMiss is returned by KV implementations for absent keys.
var ErrCacheMiss = errors.New("cache miss")

// KV is the byte store CachedFetcher keeps results in.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisKV adapts a go-redis client to KV.
type RedisKV struct {
	Client *redis.Client
}

// OpenRedis returns nil when addr is empty.
func OpenRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

func (r RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

func (r RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.Client.Set(ctx, key, value, ttl).Err()
}

// CachedFetcher serves repeated requests from a KV and collapses concurrent
// identical requests into one upstream call. Cache failures fall through to
// the upstream fetcher.
type CachedFetcher struct {
	next   Fetcher
	kv     KV
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

func NewCachedFetcher(next Fetcher, kv KV, ttl time.Duration, logger *slog.Logger) *CachedFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedFetcher{next: next, kv: kv, ttl: ttl, logger: logger}
}

// CacheKey is the KV key for req.
func CacheKey(req FetchRequest) string {
	return fmt.Sprintf("overlay:scores:%s:%s:%s:%d:%d",
		req.DataSourceID, req.Window.Range, req.Window.Interval, req.From.Unix(), req.To.Unix())
}

func (c *CachedFetcher) Fetch(ctx context.Context, req FetchRequest) ([]RegionScore, error) {
	key := CacheKey(req)

	b, err := c.kv.Get(ctx, key)
	switch {
	case err == nil:
		var out []RegionScore
		if jerr := json.Unmarshal(b, &out); jerr == nil {
			metrics.CacheHitsTotal.Inc()
			return out, nil
		}
		c.logger.Warn("score cache entry unreadable", "key", key)
	case errors.Is(err, ErrCacheMiss):
		metrics.CacheMissesTotal.Inc()
	default:
		metrics.CacheErrorsTotal.Inc()
		c.logger.Warn("score cache get failed", "key", key, "error", err)
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// Shared by every caller of key, so it must outlive the first one.
		sctx, cancel := sharedContext(ctx)
		defer cancel()

		out, err := c.next.Fetch(sctx, req)
		if err != nil {
			return nil, err
		}
		if b, err := json.Marshal(out); err == nil {
			if err := c.kv.Set(sctx, key, b, c.ttl); err != nil {
				metrics.CacheErrorsTotal.Inc()
				c.logger.Warn("score cache set failed", "key", key, "error", err)
			}
		}
		return out, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]RegionScore), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// sharedFetchTimeout bounds a shared upstream call whose first caller had no
// deadline.
const sharedFetchTimeout = 30 * time.Second

// sharedContext detaches ctx from its caller's cancellation and keeps the
// caller's deadline, or sharedFetchTimeout when there is none.
func sharedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if dl, ok := ctx.Deadline(); ok {
		return context.WithDeadline(detached, dl)
	}
	return context.WithTimeout(detached, sharedFetchTimeout)
}
