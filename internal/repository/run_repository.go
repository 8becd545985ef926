package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
	"github.com/unclebandit/mailcampaign/internal/model"
)

type RunRepositoryInterface interface {
	SaveReport(ctx context.Context, ev model.ReportEvent) error
	GetRun(ctx context.Context, id string) (*model.CampaignRun, error)
	ListRuns(ctx context.Context, offset, limit int, email string) ([]*model.CampaignRun, int, error)
	ListResults(ctx context.Context, campaignID string) ([]model.SendJob, error)
}

type RunRepository struct {
	DB *sql.DB
}

// ====================== Runs ======================

// SaveReport stores a finished run and its per-recipient results. Saving the same event
// twice leaves one copy, so redelivered queue messages are harmless.
func (r *RunRepository) SaveReport(ctx context.Context, ev model.ReportEvent) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO campaign_runs (id, total, successful, failed, batches, batch_size, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET total=EXCLUDED.total, successful=EXCLUDED.successful, failed=EXCLUDED.failed,
		    batches=EXCLUDED.batches, batch_size=EXCLUDED.batch_size, completed_at=EXCLUDED.completed_at
	`
	rep := ev.Report
	if _, err := tx.ExecContext(ctx, query, ev.CampaignID, rep.Total, rep.Successful, rep.Failed, rep.Batches, rep.BatchSize, ev.CompletedAt); err != nil {
		return fmt.Errorf("save run %s: %w", ev.CampaignID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM send_results WHERE campaign_id=$1`, ev.CampaignID); err != nil {
		return fmt.Errorf("clear results %s: %w", ev.CampaignID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO send_results (campaign_id, task_index, email, subject, status, batch_index, position_in_batch, sent_at, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, j := range ev.Jobs {
		var sentAt sql.NullTime
		if !j.Timestamp.IsZero() {
			sentAt = sql.NullTime{Time: j.Timestamp, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, ev.CampaignID, j.TaskIndex, j.Email, j.Subject, string(j.Status), j.BatchIndex, j.PositionInBatch, sentAt, j.Error); err != nil {
			return fmt.Errorf("save result for %s: %w", j.Email, err)
		}
	}

	return tx.Commit()
}

func (r *RunRepository) GetRun(ctx context.Context, id string) (*model.CampaignRun, error) {
	query := `
		SELECT id, total, successful, failed, batches, batch_size, completed_at, created_at
		FROM campaign_runs WHERE id=$1
	`
	run, err := scanRun(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return run, nil
}

// ListRuns pages through run history, newest first. A non-empty email keeps only runs
// that sent to that recipient.
func (r *RunRepository) ListRuns(ctx context.Context, offset, limit int, email string) ([]*model.CampaignRun, int, error) {
	runs := []*model.CampaignRun{}
	where := ` WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if email != "" {
		where += fmt.Sprintf(" AND id IN (SELECT campaign_id FROM send_results WHERE email=$%d)", argPos)
		args = append(args, email)
		argPos++
	}

	query := `SELECT id, total, successful, failed, batches, batch_size, completed_at, created_at FROM campaign_runs` + where
	query += fmt.Sprintf(" ORDER BY completed_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	pageArgs := append(append([]interface{}{}, args...), limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// Count total
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaign_runs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return runs, total, nil
}

// ====================== Send results ======================

func (r *RunRepository) ListResults(ctx context.Context, campaignID string) ([]model.SendJob, error) {
	query := `
		SELECT task_index, email, subject, status, batch_index, position_in_batch, sent_at, last_error
		FROM send_results WHERE campaign_id=$1
		ORDER BY batch_index, position_in_batch
	`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []model.SendJob{}
	for rows.Next() {
		var (
			j      model.SendJob
			status string
			sentAt sql.NullTime
		)
		if err := rows.Scan(&j.TaskIndex, &j.Email, &j.Subject, &status, &j.BatchIndex, &j.PositionInBatch, &sentAt, &j.Error); err != nil {
			return nil, err
		}
		j.Status = model.SendStatus(status)
		if sentAt.Valid {
			j.Timestamp = sentAt.Time
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*model.CampaignRun, error) {
	var run model.CampaignRun
	rep := &run.Report
	if err := row.Scan(&run.ID, &rep.Total, &rep.Successful, &rep.Failed, &rep.Batches, &rep.BatchSize, &run.CompletedAt, &run.CreatedAt); err != nil {
		return nil, err
	}
	return &run, nil
}
