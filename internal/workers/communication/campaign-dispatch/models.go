// internal/workers/communication/campaign-dispatch/models.go
package campaigndispatch

import (
	"database/sql"
	"fmt"
	"time"

	"batch-mailer/internal/common/logger"
	"batch-mailer/internal/common/observability"
	"batch-mailer/internal/dispatch"

	"github.com/redis/go-redis/v9"
)

// Input is the job variables of a campaign-dispatch task.
type Input struct {
	RunID           string                   `json:"runId,omitempty"`
	CampaignID      string                   `json:"campaignId,omitempty"`
	Rows            []map[string]interface{} `json:"rows"`
	EmailColumn     string                   `json:"emailColumn"`
	CompanyColumn   string                   `json:"companyColumn,omitempty"`
	ColumnBindings  map[string]string        `json:"columnBindings,omitempty"`
	UserDetails     map[string]string        `json:"userDetails,omitempty"`
	Template        string                   `json:"template,omitempty"`
	ResumeLink      string                   `json:"resumeLink,omitempty"`
	BatchSize       int                      `json:"batchSize,omitempty"`
	DelayPerEmailMs *int                     `json:"delayPerEmailMs,omitempty"`
	DelayPerBatchMs *int                     `json:"delayPerBatchMs,omitempty"`
	Preview         bool                     `json:"preview,omitempty"`
}

type Output struct {
	RunID        string           `json:"runId"`
	CampaignID   string           `json:"campaignId,omitempty"`
	Status       string           `json:"status"`
	Total        int              `json:"total"`
	Sent         int              `json:"sent"`
	Skipped      int              `json:"skipped"`
	Failed       int              `json:"failed"`
	NotAttempted int              `json:"notAttempted"`
	Failures     []FailureSummary `json:"failures,omitempty"`
	Recorded     bool             `json:"recorded"`
	StartedAt    string           `json:"startedAt"`
	FinishedAt   string           `json:"finishedAt"`
}

// FailureSummary is one failed recipient. The address is masked.
type FailureSummary struct {
	Position  int    `json:"position"`
	Recipient string `json:"recipient"`
	Error     string `json:"error"`
}

type ServiceDependencies struct {
	Logger        logger.Logger
	Dispatcher    *dispatch.Dispatcher
	Redis         redis.Cmdable
	DB            *sql.DB
	Recorder      RunRecorder // overrides DB
	SNS           SNSPublisher
	Observability *observability.Observability
}

// toRequest maps job variables onto a dispatch request, filling pacing gaps
// from the worker defaults.
func (in *Input) toRequest(cfg *Config) dispatch.Request {
	pacing := cfg.Pacing
	if in.BatchSize > 0 {
		pacing.BatchSize = in.BatchSize
	}
	if in.DelayPerEmailMs != nil {
		pacing.DelayPerEmail = time.Duration(*in.DelayPerEmailMs) * time.Millisecond
	}
	if in.DelayPerBatchMs != nil {
		pacing.DelayPerBatch = time.Duration(*in.DelayPerBatchMs) * time.Millisecond
	}

	tmpl := in.Template
	if tmpl == "" {
		tmpl = dispatch.DefaultTemplate
	}

	return dispatch.Request{
		RunID:         in.RunID,
		Rows:          stringifyRows(in.Rows),
		EmailColumn:   in.EmailColumn,
		CompanyColumn: in.CompanyColumn,
		Bindings:      in.ColumnBindings,
		UserDetails:   in.UserDetails,
		Template:      tmpl,
		ResumeLink:    in.ResumeLink,
		Pacing:        pacing,
		Preview:       in.Preview,
	}
}

// stringifyRows turns spreadsheet cells of any JSON type into text.
// Nulls become empty cells.
func stringifyRows(rows []map[string]interface{}) []dispatch.Row {
	out := make([]dispatch.Row, len(rows))
	for i, row := range rows {
		r := make(dispatch.Row, len(row))
		for k, v := range row {
			r[k] = cellText(v)
		}
		out[i] = r
	}
	return out
}

func cellText(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		// JSON numbers decode as float64; whole numbers print without a fraction
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprint(val)
	default:
		return fmt.Sprint(val)
	}
}

func newOutput(campaignID string, result *dispatch.RunResult, maxFailures int) *Output {
	counts := result.Counts()
	out := &Output{
		RunID:        result.RunID,
		CampaignID:   campaignID,
		Status:       string(result.Status),
		Total:        counts.Total,
		Sent:         counts.Sent,
		Skipped:      counts.Skipped,
		Failed:       counts.Failed,
		NotAttempted: counts.NotAttempted,
		StartedAt:    result.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:   result.FinishedAt.UTC().Format(time.RFC3339),
	}

	for _, o := range result.Outcomes {
		if o.Status != dispatch.OutcomeFailed {
			continue
		}
		if len(out.Failures) >= maxFailures {
			break
		}
		out.Failures = append(out.Failures, FailureSummary{
			Position:  o.Position,
			Recipient: logger.RedactEmail(o.Recipient),
			Error:     o.Error,
		})
	}
	return out
}
