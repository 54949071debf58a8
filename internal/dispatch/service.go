// internal/dispatch/service.go
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"batch-mailer/internal/common/errors"
	"batch-mailer/internal/common/logger"
	"batch-mailer/internal/common/metrics"

	"github.com/google/uuid"
)

// Request is everything one run needs apart from transport credentials.
type Request struct {
	RunID         string
	Rows          []Row
	EmailColumn   string
	CompanyColumn string
	Bindings      map[string]string
	UserDetails   map[string]string
	Template      string
	ResumeLink    string
	Pacing        Pacing
	Preview       bool
}

// Transport is a session the dispatcher can open, send through and close.
type Transport interface {
	Sender
	Open(ctx context.Context) error
	Close()
}

type Options struct {
	Transport        TransportConfig
	Dialer           Dialer
	Logger           logger.Logger
	ProgressInterval time.Duration
}

// Dispatcher runs one request end to end.
type Dispatcher struct {
	transport        TransportConfig
	dialer           Dialer
	logger           logger.Logger
	progressInterval time.Duration
	scheduler        *Scheduler
}

func NewDispatcher(opts Options) *Dispatcher {
	if opts.Dialer == nil {
		opts.Dialer = SMTPDialer{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	return &Dispatcher{
		transport:        opts.Transport,
		dialer:           opts.Dialer,
		logger:           opts.Logger,
		progressInterval: opts.ProgressInterval,
		scheduler:        NewScheduler(opts.Logger),
	}
}

// Validate checks the request before anything touches the network.
func (d *Dispatcher) Validate(req *Request) error {
	var problems []string

	if strings.TrimSpace(req.Template) == "" {
		problems = append(problems, "template is required")
	} else if !HasSubjectLine(req.Template) {
		problems = append(problems, fmt.Sprintf("template must start with %q", SubjectMarker))
	}
	if strings.TrimSpace(req.EmailColumn) == "" {
		problems = append(problems, "email column is required")
	}
	if req.Pacing.BatchSize < 1 {
		problems = append(problems, "batch size must be at least 1")
	}
	if req.Pacing.DelayPerEmail < 0 || req.Pacing.DelayPerBatch < 0 {
		problems = append(problems, "delays must not be negative")
	}

	if !req.Preview {
		if d.transport.Host == "" || d.transport.Port <= 0 {
			problems = append(problems, "mail server host and port are required")
		}
		if d.transport.Username == "" || d.transport.Password == "" {
			problems = append(problems, "mail server credentials are required")
		}
	}

	if len(problems) > 0 {
		return errors.NewConfigurationError(strings.Join(problems, "; "))
	}
	return nil
}

// Dispatch runs req. A configuration problem returns an error and no result.
// A failed session open returns a ConnectionFailed result together with the
// error. Cancellation is reported through the result status only.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, sink ProgressSink, token CancellationToken) (*RunResult, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	log := d.logger.WithFields(map[string]interface{}{"runId": req.RunID})

	if err := d.Validate(&req); err != nil {
		log.Error("dispatch request rejected", map[string]interface{}{"error": err})
		return nil, err
	}
	req.ResumeLink = d.checkResumeLink(log, req.ResumeLink)

	recipients := FilterValid(req.Rows, req.EmailColumn)
	log.Info("recipients loaded", map[string]interface{}{
		"rows":  len(req.Rows),
		"valid": len(recipients),
	})

	reporter := NewReporter(sink, log, d.progressInterval)
	renderer := NewRenderer(RenderConfig{
		Template:      req.Template,
		CompanyColumn: req.CompanyColumn,
		Bindings:      req.Bindings,
		UserDetails:   req.UserDetails,
		ResumeLink:    req.ResumeLink,
	})

	if len(recipients) == 0 {
		now := time.Now()
		reporter.Report(ctx, 1)
		result := &RunResult{RunID: req.RunID, Status: RunCompleted, Outcomes: []SendOutcome{}, StartedAt: now, FinishedAt: now}
		d.observe(result)
		return result, nil
	}

	var session Transport
	pacing := req.Pacing
	if req.Preview {
		session = NewPreviewSession(log)
		pacing.DelayPerEmail = 0
		pacing.DelayPerBatch = 0
	} else {
		session = NewSession(d.transport, d.dialer, log)
	}

	startedAt := time.Now()
	if err := session.Open(ctx); err != nil {
		log.Error("failed to open transport session", map[string]interface{}{"error": err})
		result := &RunResult{
			RunID:      req.RunID,
			Status:     RunConnectionFailed,
			Outcomes:   notAttempted(recipients, "connection failed"),
			Batches:    BatchCount(len(recipients), pacing.BatchSize),
			StartedAt:  startedAt,
			FinishedAt: time.Now(),
		}
		d.observe(result)
		return result, err
	}

	result := d.scheduler.Run(ctx, recipients, renderer, session, reporter, token, pacing)
	session.Close()

	result.RunID = req.RunID
	result.StartedAt = startedAt
	d.observe(result)
	return result, nil
}

// CleanResumeLink trims link and reports whether it may be used. Links that
// are not http(s) URLs come back empty with ok false, so the resume sentence
// is dropped from the message.
func CleanResumeLink(link string) (string, bool) {
	link = strings.TrimSpace(link)
	if link == "" || strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link, true
	}
	return "", false
}

func (d *Dispatcher) checkResumeLink(log logger.Logger, link string) string {
	cleaned, ok := CleanResumeLink(link)
	if !ok {
		log.Warn("resume link is not an http(s) URL, omitting it", map[string]interface{}{"resumeLink": strings.TrimSpace(link)})
	}
	return cleaned
}

func (d *Dispatcher) observe(result *RunResult) {
	counts := result.Counts()
	metrics.DispatchMessages.WithLabelValues(string(OutcomeSent)).Add(float64(counts.Sent))
	metrics.DispatchMessages.WithLabelValues(string(OutcomeSkipped)).Add(float64(counts.Skipped))
	metrics.DispatchMessages.WithLabelValues(string(OutcomeFailed)).Add(float64(counts.Failed))
	metrics.DispatchMessages.WithLabelValues(string(OutcomeNotAttempted)).Add(float64(counts.NotAttempted))
	metrics.DispatchRuns.WithLabelValues(string(result.Status)).Inc()
	metrics.DispatchRunDuration.Observe(result.Duration().Seconds())
}
