package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mailcampaign/internal/db"
	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
	"github.com/unclebandit/mailcampaign/internal/model"
)

// Runs against a real Postgres when MAILCAMPAIGN_TEST_DATABASE_URL is set.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("MAILCAMPAIGN_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("MAILCAMPAIGN_TEST_DATABASE_URL not set")
	}
	conn, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.Migrate(context.Background(), conn))
	return conn
}

func sampleEvent(id string) model.ReportEvent {
	at := time.Now().UTC().Truncate(time.Second)
	return model.ReportEvent{
		CampaignID: id,
		Report:     model.CampaignReport{Total: 2, Successful: 1, Failed: 1, Batches: 1, BatchSize: 30},
		Jobs: []model.SendJob{
			{TaskIndex: 0, Email: "ann@example.com", Subject: "Hi", Status: model.SendSent, BatchIndex: 1, PositionInBatch: 1, Timestamp: at},
			{TaskIndex: 2, Email: "bob@example.com", Subject: "Hi", Status: model.SendFailed, BatchIndex: 1, PositionInBatch: 2, Timestamp: at, Error: "550"},
		},
		CompletedAt: at,
	}
}

func TestRunRepositoryRoundTrip(t *testing.T) {
	repo := &RunRepository{DB: openTestDB(t)}
	ctx := context.Background()
	id := uuid.NewString()

	_, err := repo.GetRun(ctx, id)
	var nf *appErrors.ErrCampaignNotFound
	require.ErrorAs(t, err, &nf)

	ev := sampleEvent(id)
	require.NoError(t, repo.SaveReport(ctx, ev))
	require.NoError(t, repo.SaveReport(ctx, ev), "redelivery is idempotent")

	run, err := repo.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ev.Report, run.Report)

	results, err := repo.ListResults(ctx, id)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "bob@example.com", results[1].Email)
	assert.Equal(t, model.SendFailed, results[1].Status)
	assert.Equal(t, "550", results[1].Error)

	runs, total, err := repo.ListRuns(ctx, 0, 10, "bob@example.com")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 1)
	assert.NotEmpty(t, runs)
}
