// internal/dispatch/progress.go
package dispatch

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"batch-mailer/internal/common/logger"
)

// ProgressSink receives throttled progress fractions.
type ProgressSink interface {
	PublishProgress(ctx context.Context, fraction float64) error
}

type ProgressSinkFunc func(ctx context.Context, fraction float64) error

func (f ProgressSinkFunc) PublishProgress(ctx context.Context, fraction float64) error {
	return f(ctx, fraction)
}

const DefaultProgressInterval = 500 * time.Millisecond

// Reporter throttles progress before it reaches a sink. Values are clamped
// to [0,1] and never decrease.
type Reporter struct {
	sink        ProgressSink
	logger      logger.Logger
	minInterval time.Duration
	now         func() time.Time

	mu          sync.Mutex
	last        float64
	lastPercent int
	lastEmit    time.Time
	emitted     bool
	finished    bool
}

func NewReporter(sink ProgressSink, log logger.Logger, minInterval time.Duration) *Reporter {
	if minInterval <= 0 {
		minInterval = DefaultProgressInterval
	}
	return &Reporter{
		sink:        sink,
		logger:      log,
		minInterval: minInterval,
		now:         time.Now,
	}
}

// Report forwards fraction to the sink unless throttled. The first report
// and the final 1.0 always go through.
func (r *Reporter) Report(ctx context.Context, fraction float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sink == nil || r.finished {
		return
	}

	fraction = clamp(fraction)
	if r.emitted && fraction < r.last {
		return
	}
	r.last = fraction

	percent := int(math.Round(fraction * 100))
	now := r.now()

	switch {
	case !r.emitted:
	case fraction == 1:
	case percent == r.lastPercent:
		return
	case now.Sub(r.lastEmit) < r.minInterval:
		return
	}

	r.emitted = true
	r.lastPercent = percent
	r.lastEmit = now
	if fraction == 1 {
		r.finished = true
	}
	r.publish(ctx, fraction)
}

func (r *Reporter) publish(ctx context.Context, fraction float64) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("progress sink panicked", map[string]interface{}{
				"panic": fmt.Sprint(rec),
			})
		}
	}()

	if err := r.sink.PublishProgress(ctx, fraction); err != nil {
		r.logger.Warn("progress sink failed", map[string]interface{}{
			"fraction": fraction,
			"error":    err,
		})
	}
}

func clamp(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
