// Package app builds the campaign pipeline from configuration. The server and the
// command line tool share it.
package app

import (
	"fmt"

	"github.com/unclebandit/mailcampaign/internal/ai"
	"github.com/unclebandit/mailcampaign/internal/config"
	"github.com/unclebandit/mailcampaign/internal/controller"
	"github.com/unclebandit/mailcampaign/internal/logger"
	"github.com/unclebandit/mailcampaign/internal/mail"
	"github.com/unclebandit/mailcampaign/internal/service"
)

// NewEngine builds the personalization engine over the configured completion provider.
func NewEngine(cfg *config.Config, log *logger.Logger) (*service.PersonalizationEngine, error) {
	client, err := ai.NewClient(ai.Config{
		APIKey:  cfg.AI.APIKey,
		BaseURL: cfg.AI.BaseURL,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	}, log.WithComponent("ai"))
	if err != nil {
		return nil, fmt.Errorf("ai client: %w", err)
	}

	return service.NewPersonalizationEngine(client, service.EngineConfig{
		SubBatchSize:  cfg.Generation.SubBatchSize,
		Concurrency:   cfg.Generation.Concurrency,
		SubBatchDelay: cfg.Generation.SubBatchDelay,
		CallTimeout:   cfg.Generation.CallTimeout,
	}, log.WithComponent("engine")), nil
}

// NewDispatcher builds the delivery dispatcher over pooled SMTP transports.
func NewDispatcher(cfg *config.Config, log *logger.Logger) *service.DeliveryDispatcher {
	factory := mail.PooledFactory(mail.PoolConfig{
		MaxConnections: cfg.Delivery.MaxConnections,
		MaxMessages:    cfg.Delivery.MaxMessages,
		RateLimit:      cfg.Delivery.RateLimit,
		RateWindow:     cfg.Delivery.RateWindow,
	}, log.WithComponent("mail"))

	return service.NewDeliveryDispatcher(factory, service.DispatcherConfig{
		BatchSize:    cfg.Delivery.BatchSize,
		BatchDelay:   cfg.Delivery.BatchDelay,
		MessageDelay: cfg.Delivery.MessageDelay,
	}, log.WithComponent("dispatcher"))
}

// TemplateDefaults returns the generation settings campaigns inherit.
func TemplateDefaults(cfg *config.Config) service.TemplateConfig {
	return service.TemplateConfig{
		Temperature: service.Float64(cfg.Generation.Temperature),
		MaxTokens:   cfg.Generation.MaxTokens,
	}
}

// NewDeps assembles controller dependencies. Store and Queue are left for the caller.
func NewDeps(cfg *config.Config, log *logger.Logger) (controller.Deps, error) {
	engine, err := NewEngine(cfg, log)
	if err != nil {
		return controller.Deps{}, err
	}
	return controller.Deps{
		Engine:          engine,
		Dispatcher:      NewDispatcher(cfg, log),
		ReportTopic:     cfg.AMQP.Queue,
		Log:             log,
		DefaultTemplate: TemplateDefaults(cfg),
	}, nil
}
