package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/unclebandit/mailcampaign/internal/logger"
	"github.com/unclebandit/mailcampaign/internal/model"
	"github.com/unclebandit/mailcampaign/internal/repository"
)

// DefaultReportTopic carries model.ReportEvent payloads
const DefaultReportTopic = "campaign_reports"

// StartReportSubscriber persists every published campaign report
func StartReportSubscriber(q Queue, topic string, runRepo repository.RunRepositoryInterface, log *logger.Logger) error {
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("report-subscriber")

	return q.Subscribe(topic, func(body []byte) error {
		var ev model.ReportEvent
		if err := json.Unmarshal(body, &ev); err != nil || ev.CampaignID == "" {
			log.Warn().Err(err).Msg("invalid report event, dropping")
			return nil // no retry
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := runRepo.SaveReport(ctx, ev); err != nil {
			log.Warn().Err(err).Str("campaign_id", ev.CampaignID).Msg("failed to save report")
			return err // retry
		}

		log.Info().
			Str("campaign_id", ev.CampaignID).
			Int("total", ev.Report.Total).
			Int("successful", ev.Report.Successful).
			Int("failed", ev.Report.Failed).
			Msg("report saved")
		return nil
	})
}
