// internal/workers/communication/campaign-dispatch/handler.go
package campaigndispatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"batch-mailer/internal/common/config"
	"batch-mailer/internal/common/errors"
	"batch-mailer/internal/common/logger"
	"batch-mailer/internal/common/metrics"
	"batch-mailer/internal/common/observability"
	"batch-mailer/internal/common/validation"
	"batch-mailer/internal/dispatch"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/redis/go-redis/v9"
)

const TaskType = "campaign-dispatch"

// commandTimeout bounds complete/fail commands sent after a run.
const commandTimeout = 10 * time.Second

type Handler struct {
	config       *Config
	logger       logger.Logger
	service      *Service
	errorHandler *errors.ErrorHandler
	obs          *observability.Observability
	baseCtx      context.Context
}

type HandlerOptions struct {
	AppConfig     *config.Config
	CustomConfig  *Config
	DB            *sql.DB
	Redis         redis.Cmdable
	SNS           SNSPublisher
	Recorder      RunRecorder
	Dialer        dispatch.Dialer
	Logger        logger.Logger
	Observability *observability.Observability
	// BaseContext is cancelled on shutdown; running jobs then stop at the
	// next recipient and complete as cancelled.
	BaseContext context.Context
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)

	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}

	loggerInstance := opts.Logger
	if loggerInstance == nil {
		loggerInstance = logger.NewStructured("info", "json")
	}
	loggerInstance = loggerInstance.WithFields(map[string]interface{}{"taskType": TaskType})

	baseCtx := opts.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	dispatcher := dispatch.NewDispatcher(dispatch.Options{
		Transport:        workerConfig.Transport,
		Dialer:           opts.Dialer,
		Logger:           loggerInstance,
		ProgressInterval: workerConfig.ProgressInterval,
	})

	return &Handler{
		config:       workerConfig,
		logger:       loggerInstance,
		errorHandler: errors.NewErrorHandler(loggerInstance),
		obs:          opts.Observability,
		baseCtx:      baseCtx,
		service: NewService(ServiceDependencies{
			Logger:        loggerInstance,
			Dispatcher:    dispatcher,
			Redis:         opts.Redis,
			DB:            opts.DB,
			Recorder:      opts.Recorder,
			SNS:           opts.SNS,
			Observability: opts.Observability,
		}, workerConfig),
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	input, err := h.parseInput(job)
	if err != nil {
		h.failJob(client, job, err, startTime)
		return err
	}
	if input.RunID == "" {
		// stable across redeliveries of the same job
		input.RunID = fmt.Sprintf("job-%d", job.GetKey())
	}

	ctx, cancel := context.WithTimeout(h.baseCtx, h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.failJob(client, job, err, startTime)
		return err
	}

	h.completeJob(client, job, output)

	elapsed := time.Since(startTime)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(elapsed.Seconds())
	h.obs.RecordJobProcessed(ctx, "completed")
	h.obs.RecordJobDuration(ctx, elapsed, "completed")
	return nil
}

// Execute runs the campaign without going through Zeebe.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.service.Execute(ctx, input)
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables := job.GetVariables()

	result, err := validation.ValidateJSON(variables, GetInputSchema())
	if err != nil {
		return nil, errors.NewInputParsingError(err)
	}
	if !result.Valid {
		return nil, errors.NewInputValidationError(result.Summary())
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, errors.NewInputParsingError(err)
	}
	return &input, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.GetKey()).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err,
		})
		return
	}

	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err,
		})
		return
	}

	h.logger.Info("job completed", map[string]interface{}{
		"jobKey": job.GetKey(),
		"runId":  output.RunID,
		"status": output.Status,
	})
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error, startTime time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	stdErr := errors.Normalize(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.obs.RecordJobProcessed(ctx, "failed")
	h.obs.RecordJobDuration(ctx, time.Since(startTime), "failed")

	h.errorHandler.HandleJobError(ctx, client, job, stdErr)
}

func (h *Handler) GetTaskType() string {
	return TaskType
}

func (h *Handler) IsEnabled() bool {
	return h.config.Enabled
}

func (h *Handler) GetConfig() *Config {
	return h.config
}
