// internal/dispatch/models.go
package dispatch

import "time"

// Row is one source row, column name to cell text.
type Row map[string]string

// Recipient is a valid row. Position is the row's zero-based index in the
// source dataset.
type Recipient struct {
	Position int    `json:"position"`
	Email    string `json:"email"`
	Fields   Row    `json:"fields"`
}

// RenderedMessage is the subject and body produced for one recipient.
type RenderedMessage struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	To      string `json:"to"`
}

type OutcomeStatus string

const (
	OutcomeSent         OutcomeStatus = "sent"
	OutcomeSkipped      OutcomeStatus = "skipped"
	OutcomeFailed       OutcomeStatus = "failed"
	OutcomeNotAttempted OutcomeStatus = "not_attempted"
)

func (s OutcomeStatus) IsValid() bool {
	switch s {
	case OutcomeSent, OutcomeSkipped, OutcomeFailed, OutcomeNotAttempted:
		return true
	}
	return false
}

// Attempted reports whether a send was tried for the recipient.
func (s OutcomeStatus) Attempted() bool {
	return s == OutcomeSent || s == OutcomeSkipped || s == OutcomeFailed
}

// SendOutcome is the single result recorded for a valid recipient.
type SendOutcome struct {
	Position    int           `json:"position"`
	Recipient   string        `json:"recipient"`
	Status      OutcomeStatus `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	Error       string        `json:"error,omitempty"`
	Attempts    int           `json:"attempts"`
	Reconnected bool          `json:"reconnected,omitempty"`
	Err         error         `json:"-"`
}

type RunStatus string

const (
	RunCompleted        RunStatus = "completed"
	RunCancelled        RunStatus = "cancelled"
	RunConnectionFailed RunStatus = "connection_failed"
)

// RunResult is the terminal state of one dispatch run. Outcomes are in
// recipient order and hold exactly one entry per valid recipient.
type RunResult struct {
	RunID      string        `json:"runId"`
	Status     RunStatus     `json:"status"`
	Outcomes   []SendOutcome `json:"outcomes"`
	Batches    int           `json:"batches"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
}

type Counts struct {
	Total        int `json:"total"`
	Sent         int `json:"sent"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
	NotAttempted int `json:"notAttempted"`
}

func (r *RunResult) Counts() Counts {
	c := Counts{Total: len(r.Outcomes)}
	for _, o := range r.Outcomes {
		switch o.Status {
		case OutcomeSent:
			c.Sent++
		case OutcomeSkipped:
			c.Skipped++
		case OutcomeFailed:
			c.Failed++
		case OutcomeNotAttempted:
			c.NotAttempted++
		}
	}
	return c
}

// Duration is the wall-clock length of the run.
func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnected
	StateAuthenticated
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}
