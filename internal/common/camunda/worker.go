// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"batch-mailer/internal/common/config"
	"batch-mailer/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobHandler must return an error (required by Zeebe client)
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job) error
	GetTaskType() string
}

type CamundaWorker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

// NewWorker opens a job worker for the handler's task type. The job timeout
// must cover a whole paced run, so it comes from the worker config.
func NewWorker(client zbc.Client, wcfg config.WorkerConfig, handler JobHandler, log logger.Logger) *CamundaWorker {
	taskType := handler.GetTaskType()
	maxJobs := wcfg.MaxJobsActive
	if maxJobs <= 0 {
		maxJobs = 1
	}

	jobWorker := client.NewJobWorker().
		JobType(taskType).
		Handler(func(client worker.JobClient, job entities.Job) {
			if err := handler.Handle(client, job); err != nil {
				log.Error("Handler returned error", map[string]interface{}{
					"jobKey":   job.Key,
					"taskType": taskType,
					"error":    err,
				})
			}
		}).
		MaxJobsActive(maxJobs).
		Timeout(config.GetDuration(wcfg.Timeout)).
		PollInterval(time.Second).
		Open()

	log.Info("worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": maxJobs,
		"timeoutMs":     wcfg.Timeout,
	})

	return &CamundaWorker{
		worker:   jobWorker,
		logger:   log,
		taskType: taskType,
	}
}

// Stop closes the job worker and waits for in-flight handlers to return.
func (w *CamundaWorker) Stop() {
	w.logger.Info("stopping worker", map[string]interface{}{"taskType": w.taskType})
	w.worker.Close()
	w.worker.AwaitClose()
}
