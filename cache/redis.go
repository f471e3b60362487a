package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/arcadia-data/querylayer/logger"
)

// tierTimeout bounds every tier round-trip so a degraded store cannot stall
// the request path.
const tierTimeout = 2 * time.Second

type redisTier struct {
	client   *redis.Client
	log      logger.Logger
	disabled atomic.Bool
}

var _ Tier = (*redisTier)(nil)

// NewRedisTier connects to the primary networked tier. Construction verifies
// the connection with a ping; a failure here means the tier is unusable and
// the caller should run without it. After construction, any request error
// disables the tier for the remainder of the process lifetime so a flapping
// server cannot cause a retry storm.
func NewRedisTier(url string, log logger.Logger) (Tier, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "cache: invalid redis url")
	}
	opts.DialTimeout = tierTimeout
	opts.ReadTimeout = tierTimeout
	opts.WriteTimeout = tierTimeout

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), tierTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "cache: redis unreachable")
	}
	return &redisTier{client: client, log: logger.Coalesce(log)}, nil
}

func (t *redisTier) Name() string { return "redis" }

// fail marks the tier permanently absent for this process.
func (t *redisTier) fail(op string, err error) error {
	if t.disabled.CompareAndSwap(false, true) {
		t.log.Warn("redis tier disabled after error", "op", op, "error", err)
	}
	return err
}

func (t *redisTier) Get(ctx context.Context, key string) (bool, []byte, error) {
	if t.disabled.Load() {
		return false, nil, nil
	}
	qctx, cancel := context.WithTimeout(ctx, tierTimeout)
	defer cancel()
	b, err := t.client.Get(qctx, key).Bytes()
	if err == redis.Nil {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, t.fail("get", err)
	}
	return true, b, nil
}

func (t *redisTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if t.disabled.Load() {
		return errors.New("cache: redis tier disabled")
	}
	qctx, cancel := context.WithTimeout(ctx, tierTimeout)
	defer cancel()
	if err := t.client.Set(qctx, key, value, ttl).Err(); err != nil {
		return t.fail("set", err)
	}
	return nil
}

// Clear removes matching keys. With an empty pattern every key in this
// layer's namespace is removed; otherwise keys containing the pattern are
// removed via SCAN so large keyspaces are not blocked by KEYS.
func (t *redisTier) Clear(ctx context.Context, pattern string) (int, error) {
	if t.disabled.Load() {
		return 0, errors.New("cache: redis tier disabled")
	}
	match := KeyNamespace + "*"
	if pattern != "" {
		match = "*" + pattern + "*"
	}
	qctx, cancel := context.WithTimeout(ctx, tierTimeout)
	defer cancel()

	removed := 0
	iter := t.client.Scan(qctx, 0, match, 100).Iterator()
	for iter.Next(qctx) {
		if err := t.client.Del(qctx, iter.Val()).Err(); err != nil {
			return removed, t.fail("clear", err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, t.fail("clear", err)
	}
	return removed, nil
}

func (t *redisTier) Stats(ctx context.Context) map[string]any {
	stats := map[string]any{
		"tier":      t.Name(),
		"available": !t.disabled.Load(),
	}
	if t.disabled.Load() {
		return stats
	}
	qctx, cancel := context.WithTimeout(ctx, tierTimeout)
	defer cancel()
	if n, err := t.client.DBSize(qctx).Result(); err == nil {
		stats["keys"] = n
	}
	return stats
}

func (t *redisTier) Close() error {
	return t.client.Close()
}
