// internal/workers/communication/campaign-dispatch/recorder.go
package campaigndispatch

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"batch-mailer/internal/common/errors"
	"batch-mailer/internal/common/logger"
	"batch-mailer/internal/dispatch"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// RunRecorder keeps the history of finished runs.
type RunRecorder interface {
	Exists(ctx context.Context, runID string) (bool, error)
	Record(ctx context.Context, campaignID string, result *dispatch.RunResult) error
}

// PostgresRecorder writes runs to dispatch_runs and dispatch_outcomes.
type PostgresRecorder struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresRecorder(db *sql.DB, log logger.Logger) *PostgresRecorder {
	return &PostgresRecorder{db: db, logger: log}
}

func (r *PostgresRecorder) Exists(ctx context.Context, runID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM dispatch_runs WHERE run_id = $1)`, runID).Scan(&exists)
	if err != nil {
		return false, errors.NewRunRecordingFailedError(runID, err)
	}
	return exists, nil
}

// Record stores the run row and one row per outcome in a single transaction.
func (r *PostgresRecorder) Record(ctx context.Context, campaignID string, result *dispatch.RunResult) error {
	for _, o := range result.Outcomes {
		if !o.Status.IsValid() {
			return errors.NewRunRecordingFailedError(result.RunID,
				fmt.Errorf("outcome at position %d has unknown status %q", o.Position, o.Status))
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewRunRecordingFailedError(result.RunID, err)
	}
	defer func() {
		// no-op after commit
		_ = tx.Rollback()
	}()

	counts := result.Counts()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO dispatch_runs (
			run_id, campaign_id, status, total, sent, skipped,
			failed, not_attempted, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		result.RunID,
		nullString(campaignID),
		string(result.Status),
		counts.Total,
		counts.Sent,
		counts.Skipped,
		counts.Failed,
		counts.NotAttempted,
		result.StartedAt.UTC(),
		result.FinishedAt.UTC(),
	)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return errors.NewDuplicateRunError(result.RunID)
		}
		return errors.NewRunRecordingFailedError(result.RunID, err)
	}

	for _, o := range result.Outcomes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO dispatch_outcomes (
				run_id, position, recipient, status, reason, error, attempts, reconnected
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			result.RunID,
			o.Position,
			o.Recipient,
			string(o.Status),
			nullString(o.Reason),
			nullString(o.Error),
			o.Attempts,
			o.Reconnected,
		)
		if err != nil {
			return errors.NewRunRecordingFailedError(result.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewRunRecordingFailedError(result.RunID, err)
	}

	r.logger.Debug("run recorded", map[string]interface{}{
		"runId":    result.RunID,
		"outcomes": len(result.Outcomes),
	})
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
