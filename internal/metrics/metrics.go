package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Generation
	GenerationSucceeded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mailcampaign_generation_succeeded_total",
		Help: "Total number of drafts generated successfully",
	})
	GenerationFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mailcampaign_generation_failed_total",
		Help: "Total number of contacts whose draft generation failed",
	})
	GenerationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mailcampaign_generation_duration_seconds",
		Help:    "Latency of a single AI generation call",
		Buckets: prometheus.DefBuckets,
	})

	// Delivery
	MailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailcampaign_mail_send_success_total",
		Help: "Total number of successful mail sends",
	}, []string{"host"})
	MailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailcampaign_mail_send_failure_total",
		Help: "Total number of failed mail sends",
	}, []string{"host"})
	MailVerifyFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailcampaign_mail_verify_failure_total",
		Help: "Total number of failed relay connectivity checks",
	}, []string{"host"})
	MailConnectionsOpened = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailcampaign_mail_connections_opened_total",
		Help: "Total number of SMTP connections dialed by the pooled transport",
	}, []string{"host"})

	// Campaign lifecycle
	CampaignTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailcampaign_campaign_transitions_total",
		Help: "Campaign state transitions by target state",
	}, []string{"to"})
	ReportsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mailcampaign_reports_published_total",
		Help: "Total number of campaign reports published to the event queue",
	})
)

func init() {
	prometheus.MustRegister(GenerationSucceeded)
	prometheus.MustRegister(GenerationFailed)
	prometheus.MustRegister(GenerationDuration)
	prometheus.MustRegister(MailSendSuccess)
	prometheus.MustRegister(MailSendFailure)
	prometheus.MustRegister(MailVerifyFailure)
	prometheus.MustRegister(MailConnectionsOpened)
	prometheus.MustRegister(CampaignTransitions)
	prometheus.MustRegister(ReportsPublished)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
