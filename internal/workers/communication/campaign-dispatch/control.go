// internal/workers/communication/campaign-dispatch/control.go
package campaigndispatch

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"batch-mailer/internal/common/errors"
	"batch-mailer/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

const controlCallTimeout = 2 * time.Second

// CancelKey is the Redis key that stops a run when present.
func CancelKey(runID string) string {
	return fmt.Sprintf("dispatch:%s:cancel", runID)
}

// ProgressKey holds the last published percent of a run.
func ProgressKey(runID string) string {
	return fmt.Sprintf("dispatch:%s:progress", runID)
}

// RedisCancellation reports a run as cancelled once its cancel key exists.
// The answer latches: a key that later expires does not resume the run.
type RedisCancellation struct {
	ctx       context.Context
	client    redis.Cmdable
	key       string
	logger    logger.Logger
	cancelled atomic.Bool
}

func NewRedisCancellation(ctx context.Context, client redis.Cmdable, runID string, log logger.Logger) *RedisCancellation {
	return &RedisCancellation{
		ctx:    ctx,
		client: client,
		key:    CancelKey(runID),
		logger: log,
	}
}

// Cancelled polls the cancel key. A Redis error counts as not cancelled.
func (c *RedisCancellation) Cancelled() bool {
	if c.cancelled.Load() {
		return true
	}

	ctx, cancel := context.WithTimeout(c.ctx, controlCallTimeout)
	defer cancel()

	n, err := c.client.Exists(ctx, c.key).Result()
	if err != nil {
		c.logger.Warn("cancel key check failed", map[string]interface{}{
			"key":   c.key,
			"error": err,
		})
		return false
	}
	if n > 0 {
		c.cancelled.Store(true)
		c.logger.Info("cancel requested", map[string]interface{}{"key": c.key})
		return true
	}
	return false
}

// RequestCancel sets the cancel key for runID.
func RequestCancel(ctx context.Context, client redis.Cmdable, runID string, ttl time.Duration) error {
	if err := client.Set(ctx, CancelKey(runID), "1", ttl).Err(); err != nil {
		return errors.NewControlStoreError("request cancel", err)
	}
	return nil
}

// RedisProgressSink stores the latest progress of a run as an integer percent.
type RedisProgressSink struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

func NewRedisProgressSink(client redis.Cmdable, runID string, ttl time.Duration) *RedisProgressSink {
	return &RedisProgressSink{client: client, key: ProgressKey(runID), ttl: ttl}
}

func (s *RedisProgressSink) PublishProgress(ctx context.Context, fraction float64) error {
	ctx, cancel := context.WithTimeout(ctx, controlCallTimeout)
	defer cancel()

	percent := int(math.Round(fraction * 100))
	if err := s.client.Set(ctx, s.key, percent, s.ttl).Err(); err != nil {
		return errors.NewControlStoreError("publish progress", err)
	}
	return nil
}

// ReadProgress returns the last published percent. found is false when the
// run has not reported yet or its key expired.
func ReadProgress(ctx context.Context, client redis.Cmdable, runID string) (percent int, found bool, err error) {
	val, err := client.Get(ctx, ProgressKey(runID)).Result()
	if stderrors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.NewControlStoreError("read progress", err)
	}

	percent, err = strconv.Atoi(val)
	if err != nil {
		return 0, false, errors.NewControlStoreError("read progress", fmt.Errorf("malformed value %q", val))
	}
	return percent, true, nil
}
