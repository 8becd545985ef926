//cmd/seeder/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/unclebandit/mailcampaign/internal/config"
	"github.com/unclebandit/mailcampaign/internal/db"
	"github.com/unclebandit/mailcampaign/internal/logger"
	"github.com/unclebandit/mailcampaign/internal/model"
	"github.com/unclebandit/mailcampaign/internal/repository"
	"github.com/unclebandit/mailcampaign/internal/service"
)

// demoRuns are the run history rows seeded for local development.
var demoRuns = []struct {
	id     string
	sent   int
	failed int
}{
	{"demo-welcome", 12, 0},
	{"demo-reactivation", 35, 3},
	{"demo-webinar", 4, 4},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	conn, err := db.Open(cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx, conn); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	n, err := seed(ctx, &repository.RunRepository{DB: conn}, cfg.Delivery.BatchSize, time.Now().UTC())
	if err != nil {
		log.Fatal().Err(err).Msg("seeding failed")
	}
	log.Info().Int("runs", n).Msg("database seeding completed")
}

// seed saves one report per demo run. Saving is an upsert, so reseeding is safe.
func seed(ctx context.Context, repo repository.RunRepositoryInterface, batchSize int, now time.Time) (int, error) {
	if batchSize <= 0 {
		batchSize = 30
	}
	for i, run := range demoRuns {
		jobs := demoJobs(run.id, run.sent, run.failed, batchSize, now)
		ev := model.ReportEvent{
			CampaignID:  run.id,
			Report:      service.Aggregate(jobs, batchSize),
			Jobs:        jobs,
			CompletedAt: now.Add(-time.Duration(len(demoRuns)-i) * time.Hour),
		}
		if err := repo.SaveReport(ctx, ev); err != nil {
			return i, fmt.Errorf("seed %s: %w", run.id, err)
		}
	}
	return len(demoRuns), nil
}

func demoJobs(id string, sent, failed, batchSize int, now time.Time) []model.SendJob {
	jobs := make([]model.SendJob, 0, sent+failed)
	for i := 0; i < sent+failed; i++ {
		j := model.SendJob{
			TaskIndex:       i,
			Email:           fmt.Sprintf("contact%d@%s.example.com", i+1, id),
			Subject:         "Hello from " + id,
			Body:            "Seeded body",
			Status:          model.SendSent,
			BatchIndex:      i/batchSize + 1,
			PositionInBatch: i%batchSize + 1,
			Timestamp:       now,
		}
		if i >= sent {
			j.Status = model.SendFailed
			j.Error = "mailbox unavailable"
		}
		jobs = append(jobs, j)
	}
	return jobs
}
