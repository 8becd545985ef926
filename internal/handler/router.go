package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/unclebandit/mailcampaign/internal/logger"
	"github.com/unclebandit/mailcampaign/internal/metrics"
)

// NewRouter wires the HTTP API. runs may be nil when run history is disabled.
func NewRouter(campaigns *CampaignHandler, runs *RunHandler, log *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.MetricsHandler())

	// Contact list routes
	r.Post("/contacts/parse", campaigns.ParseContactsHandler)

	// Campaign routes
	r.Route("/campaigns", func(r chi.Router) {
		r.Post("/", campaigns.CreateCampaignHandler)
		r.Get("/", campaigns.ListCampaignsHandler)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", campaigns.GetCampaignHandler)
			r.Delete("/", campaigns.DeleteHandler)
			r.Get("/progress", campaigns.ProgressHandler)
			r.Post("/start", campaigns.StartHandler)
			r.Post("/tasks/{index}/regenerate", campaigns.RegenerateHandler)
			r.Post("/send", campaigns.SendHandler)
			r.Get("/report", campaigns.ReportHandler)
			r.Post("/reset", campaigns.ResetHandler)
			r.Post("/cancel", campaigns.CancelHandler)
		})
	})

	// Run history routes
	if runs != nil {
		r.Get("/runs", runs.ListRunsHandler)
		r.Get("/runs/{id}", runs.GetRunHandler)
	}

	return r
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.HTTPRequest(r.Method, r.URL.Path, ww.Status(), time.Since(start))
		})
	}
}
