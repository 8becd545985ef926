package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/mailcampaign/internal/config"
	"github.com/unclebandit/mailcampaign/internal/db"
	"github.com/unclebandit/mailcampaign/internal/logger"
	"github.com/unclebandit/mailcampaign/internal/queue"
	"github.com/unclebandit/mailcampaign/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format).WithComponent("worker")

	if !cfg.AMQP.Enabled() || !cfg.Database.Enabled() {
		log.Fatal().Msg("worker needs both amqp.url and database.host")
	}

	// Connect to DB
	conn, err := db.Open(cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()
	if err := db.Migrate(context.Background(), conn); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	// Connect to RabbitMQ
	q, err := queue.DialAMQP(cfg.AMQP.URL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer q.Close()

	if err := consumeReports(q, cfg.AMQP.Queue, &repository.RunRepository{DB: conn}, log); err != nil {
		log.Fatal().Err(err).Msg("failed to start consumer")
	}

	log.Info().Str("queue", cfg.AMQP.Queue).Msg("worker running, waiting for reports...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("worker stopped")
}

// consumeReports persists every report event published on topic.
func consumeReports(q queue.Queue, topic string, runRepo repository.RunRepositoryInterface, log *logger.Logger) error {
	if topic == "" {
		topic = queue.DefaultReportTopic
	}
	return queue.StartReportSubscriber(q, topic, runRepo, log)
}
