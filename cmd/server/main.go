// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unclebandit/mailcampaign/internal/app"
	"github.com/unclebandit/mailcampaign/internal/config"
	"github.com/unclebandit/mailcampaign/internal/controller"
	"github.com/unclebandit/mailcampaign/internal/db"
	"github.com/unclebandit/mailcampaign/internal/handler"
	"github.com/unclebandit/mailcampaign/internal/logger"
	"github.com/unclebandit/mailcampaign/internal/progress"
	"github.com/unclebandit/mailcampaign/internal/queue"
	"github.com/unclebandit/mailcampaign/internal/repository"
	"github.com/unclebandit/mailcampaign/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Msg("starting mail campaign server")

	deps, err := app.NewDeps(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build campaign pipeline")
	}

	// Progress store
	if cfg.Redis.Enabled() {
		rdb, err := progress.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer rdb.Close()
		deps.Store = progress.NewRedisStore(rdb, cfg.Redis.TTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("progress kept in Redis")
	} else {
		deps.Store = progress.NewMemoryStore()
	}

	// Run history
	var runHandler *handler.RunHandler
	var runRepo *repository.RunRepository
	if cfg.Database.Enabled() {
		conn, err := db.Open(cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer conn.Close()
		if err := db.Migrate(context.Background(), conn); err != nil {
			log.Fatal().Err(err).Msg("failed to apply schema")
		}
		runRepo = &repository.RunRepository{DB: conn}
		runHandler = &handler.RunHandler{Service: &service.RunHistoryService{RunRepo: runRepo}}
	}

	// Report events. With AMQP the worker persists them; otherwise an in-process
	// subscriber does when a database is configured.
	switch {
	case cfg.AMQP.Enabled():
		q, err := queue.DialAMQP(cfg.AMQP.URL, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer q.Close()
		deps.Queue = q
	case runRepo != nil:
		q := queue.NewInMemoryQueue(log)
		defer q.Close()
		if err := queue.StartReportSubscriber(q, deps.ReportTopic, runRepo, log); err != nil {
			log.Fatal().Err(err).Msg("failed to start report subscriber")
		}
		deps.Queue = q
	}

	registry := controller.NewRegistry(deps)
	r := handler.NewRouter(handler.NewCampaignHandler(registry, log), runHandler, log)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if n := registry.CancelAll(); n > 0 {
		log.Warn().Int("campaigns", n).Msg("cancelled running campaigns")
	}

	log.Info().Msg("server stopped")
}
