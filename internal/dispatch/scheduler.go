// internal/dispatch/scheduler.go
package dispatch

import (
	"context"
	"time"

	"batch-mailer/internal/common/logger"
)

// MessageRenderer turns a recipient into a message.
type MessageRenderer interface {
	Render(rcpt Recipient) RenderedMessage
}

// Sender delivers one message and reports its outcome.
type Sender interface {
	Send(ctx context.Context, msg RenderedMessage) SendOutcome
}

// ProgressReporter receives the run completion fraction.
type ProgressReporter interface {
	Report(ctx context.Context, fraction float64)
}

// Pacing is the rate limit of a run. Delays are intentional and never skipped.
type Pacing struct {
	BatchSize     int
	DelayPerEmail time.Duration
	DelayPerBatch time.Duration
}

const cancelledReason = "cancelled"

// Scheduler drives a run: batches in order, recipients in order, one send at
// a time with delays in between.
type Scheduler struct {
	logger logger.Logger
	sleep  func(ctx context.Context, d time.Duration)
	now    func() time.Time
}

func NewScheduler(log logger.Logger) *Scheduler {
	return &Scheduler{
		logger: log,
		sleep:  sleepContext,
		now:    time.Now,
	}
}

// Run sends to every recipient unless token is set or ctx ends first. Both
// are checked once per recipient, before rendering, so an interrupted delay
// is never followed by another send. A failed send never stops the run.
func (s *Scheduler) Run(
	ctx context.Context,
	recipients []Recipient,
	renderer MessageRenderer,
	sender Sender,
	reporter ProgressReporter,
	token CancellationToken,
	pacing Pacing,
) *RunResult {
	token = AnyOf(token, FromContext(ctx))
	if reporter == nil {
		reporter = discardProgress{}
	}
	batchSize := pacing.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	total := len(recipients)
	batches := Partition(total, batchSize)
	result := &RunResult{
		Status:    RunCompleted,
		Outcomes:  make([]SendOutcome, 0, total),
		Batches:   len(batches),
		StartedAt: s.now(),
	}

	s.logger.Info("dispatch started", map[string]interface{}{
		"recipients": total,
		"batches":    len(batches),
		"batchSize":  batchSize,
	})

	for bi, batch := range batches {
		reporter.Report(ctx, float64(batch.Start)/float64(total))
		s.logger.Info("batch started", map[string]interface{}{
			"batch":   batch.Number + 1,
			"batches": len(batches),
			"size":    batch.Size(),
		})

		for i := batch.Start; i < batch.End; i++ {
			if token.Cancelled() {
				s.logger.Warn("dispatch cancelled", map[string]interface{}{
					"processed": i,
					"remaining": total - i,
				})
				result.Outcomes = append(result.Outcomes, notAttempted(recipients[i:], cancelledReason)...)
				result.Status = RunCancelled
				result.FinishedAt = s.now()
				return result
			}

			rcpt := recipients[i]
			outcome := sender.Send(ctx, renderer.Render(rcpt))
			outcome.Position = rcpt.Position
			outcome.Recipient = rcpt.Email
			result.Outcomes = append(result.Outcomes, outcome)

			reporter.Report(ctx, float64(i+1)/float64(total))

			if i < batch.End-1 {
				s.sleep(ctx, pacing.DelayPerEmail)
			}
		}

		if bi < len(batches)-1 {
			s.logger.Info("batch finished, waiting", map[string]interface{}{
				"batch":   batch.Number + 1,
				"delayMs": pacing.DelayPerBatch.Milliseconds(),
			})
			s.sleep(ctx, pacing.DelayPerBatch)
		}
	}

	reporter.Report(ctx, 1)
	result.FinishedAt = s.now()

	counts := result.Counts()
	s.logger.Info("dispatch completed", map[string]interface{}{
		"sent":    counts.Sent,
		"skipped": counts.Skipped,
		"failed":  counts.Failed,
	})
	return result
}

type discardProgress struct{}

func (discardProgress) Report(context.Context, float64) {}

func notAttempted(recipients []Recipient, reason string) []SendOutcome {
	out := make([]SendOutcome, len(recipients))
	for i, r := range recipients {
		out[i] = SendOutcome{
			Position:  r.Position,
			Recipient: r.Email,
			Status:    OutcomeNotAttempted,
			Reason:    reason,
		}
	}
	return out
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
