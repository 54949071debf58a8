// internal/workers/communication/campaign-dispatch/service.go
package campaigndispatch

import (
	"context"
	"time"

	"batch-mailer/internal/common/errors"
	"batch-mailer/internal/common/logger"
	"batch-mailer/internal/common/observability"
	"batch-mailer/internal/dispatch"

	"github.com/redis/go-redis/v9"
)

type Service struct {
	config     *Config
	logger     logger.Logger
	dispatcher *dispatch.Dispatcher
	redis      redis.Cmdable
	recorder   RunRecorder
	publisher  *SummaryPublisher
	obs        *observability.Observability
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	s := &Service{
		config:     config,
		logger:     deps.Logger,
		dispatcher: deps.Dispatcher,
		redis:      deps.Redis,
		obs:        deps.Observability,
	}
	switch {
	case deps.Recorder != nil:
		s.recorder = deps.Recorder
	case deps.DB != nil:
		s.recorder = NewPostgresRecorder(deps.DB, deps.Logger)
	}
	if deps.SNS != nil && config.SummaryTopicARN != "" {
		s.publisher = NewSummaryPublisher(deps.SNS, config.SummaryTopicARN, deps.Logger)
	}
	return s
}

// Execute runs one campaign. Only configuration, connection and duplicate
// run problems are returned as errors; a cancelled run is a normal result.
// History and summary failures are logged because the messages are already
// out and a job retry would send them again.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	log := s.logger.WithFields(map[string]interface{}{
		"runId":      input.RunID,
		"campaignId": input.CampaignID,
	})

	if s.recorder != nil && input.RunID != "" {
		exists, err := s.recorder.Exists(ctx, input.RunID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, errors.NewDuplicateRunError(input.RunID)
		}
	}

	req := input.toRequest(s.config)

	var (
		sink  dispatch.ProgressSink
		token dispatch.CancellationToken
	)
	if s.redis != nil && req.RunID != "" {
		sink = NewRedisProgressSink(s.redis, req.RunID, s.config.ControlKeyTTL)
		token = NewRedisCancellation(ctx, s.redis, req.RunID, log)
	}

	result, err := s.dispatcher.Dispatch(ctx, req, sink, token)
	if err != nil {
		return nil, err
	}

	output := newOutput(input.CampaignID, result, s.config.MaxReportedFailures)
	s.observeRecipients(ctx, output)

	if s.recorder != nil {
		// the run itself may have consumed the job deadline
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		if err := s.recorder.Record(recordCtx, input.CampaignID, result); err != nil {
			log.Error("failed to record run", map[string]interface{}{"error": err})
		} else {
			output.Recorded = true
		}
		cancel()
	}

	if s.publisher != nil {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if err := s.publisher.Publish(pubCtx, output); err != nil {
			log.Warn("failed to publish run summary", map[string]interface{}{"error": err})
		}
		cancel()
	}

	log.Info("campaign run finished", map[string]interface{}{
		"status":       output.Status,
		"total":        output.Total,
		"sent":         output.Sent,
		"failed":       output.Failed,
		"skipped":      output.Skipped,
		"notAttempted": output.NotAttempted,
	})
	return output, nil
}

func (s *Service) observeRecipients(ctx context.Context, output *Output) {
	s.obs.RecordRecipients(ctx, string(dispatch.OutcomeSent), output.Sent)
	s.obs.RecordRecipients(ctx, string(dispatch.OutcomeSkipped), output.Skipped)
	s.obs.RecordRecipients(ctx, string(dispatch.OutcomeFailed), output.Failed)
	s.obs.RecordRecipients(ctx, string(dispatch.OutcomeNotAttempted), output.NotAttempted)
}
