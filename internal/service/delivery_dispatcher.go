package service

import (
	"context"
	"errors"
	"sync"
	"time"

	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
	"github.com/unclebandit/mailcampaign/internal/logger"
	"github.com/unclebandit/mailcampaign/internal/mail"
	"github.com/unclebandit/mailcampaign/internal/model"
)

var ErrRunConsumed = errors.New("dispatch run already used")

// DispatcherConfig controls batching and pacing of a dispatch run.
type DispatcherConfig struct {
	BatchSize    int
	BatchDelay   time.Duration
	MessageDelay time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 30
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 0
	}
	if c.MessageDelay < 0 {
		c.MessageDelay = 0
	}
	return c
}

// DeliveryDispatcher opens one pooled transport per campaign run.
type DeliveryDispatcher struct {
	factory mail.TransportFactory
	cfg     DispatcherConfig
	log     *logger.Logger

	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

func NewDeliveryDispatcher(factory mail.TransportFactory, cfg DispatcherConfig, log *logger.Logger) *DeliveryDispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &DeliveryDispatcher{
		factory: factory,
		cfg:     cfg.withDefaults(),
		log:     log.WithComponent("delivery"),
		Sleep:   sleepCtx,
		Now:     time.Now,
	}
}

func (d *DeliveryDispatcher) BatchSize() int { return d.cfg.BatchSize }

// Open builds the run's transport and checks connectivity. On failure the transport is
// released and a ConfigError is returned without any send being attempted.
func (d *DeliveryDispatcher) Open(ctx context.Context, settings mail.Settings) (*DispatchRun, error) {
	tr, err := d.factory(settings)
	if err != nil {
		return nil, appErrors.NewConfigError("invalid mail settings", err)
	}
	if err := tr.Verify(ctx); err != nil {
		if cerr := tr.Close(); cerr != nil {
			d.log.Warn().Err(cerr).Msg("close transport after failed verify")
		}
		d.log.Error().Err(err).Str("host", settings.Host).Msg("relay connectivity check failed")
		return nil, appErrors.NewConfigError("relay connectivity check failed", err)
	}
	return &DispatchRun{
		transport: tr,
		cfg:       d.cfg,
		log:       d.log,
		sleep:     d.Sleep,
		now:       d.Now,
	}, nil
}

// Run opens a transport and dispatches jobs over it.
func (d *DeliveryDispatcher) Run(ctx context.Context, settings mail.Settings, jobs []model.SendJob, onJob func(model.SendJob)) ([]model.SendJob, model.CampaignReport, error) {
	run, err := d.Open(ctx, settings)
	if err != nil {
		return nil, model.CampaignReport{}, err
	}
	return run.Dispatch(ctx, jobs, onJob)
}

// DispatchRun exclusively owns one transport for one pass over the jobs.
type DispatchRun struct {
	transport mail.Transport
	cfg       DispatcherConfig
	log       *logger.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time

	mu   sync.Mutex
	used bool
}

// Dispatch sends jobs sequentially in batches of BatchSize. Every attempt is recorded on
// its job and reported to onJob; a failed send never stops the run. If ctx ends, the jobs
// not yet attempted are recorded as failed. The transport is closed before returning.
func (r *DispatchRun) Dispatch(ctx context.Context, jobs []model.SendJob, onJob func(model.SendJob)) ([]model.SendJob, model.CampaignReport, error) {
	r.mu.Lock()
	if r.used {
		r.mu.Unlock()
		return nil, model.CampaignReport{}, ErrRunConsumed
	}
	r.used = true
	r.mu.Unlock()

	defer func() {
		if err := r.transport.Close(); err != nil {
			r.log.Warn().Err(err).Msg("close transport")
		}
	}()

	out := make([]model.SendJob, len(jobs))
	copy(out, jobs)
	size := r.cfg.BatchSize
	for i := range out {
		out[i].BatchIndex = i/size + 1
		out[i].PositionInBatch = i%size + 1
	}

	batches := (len(out) + size - 1) / size
	r.log.Info().Int("jobs", len(out)).Int("batches", batches).Int("batch_size", size).Msg("dispatch started")

	for i := range out {
		job := &out[i]
		if job.Status != model.SendPending {
			continue
		}

		if err := r.pace(ctx, i); err != nil {
			r.abandon(out[i:], err, onJob)
			break
		}

		err := r.transport.Send(ctx, mail.Message{To: job.Email, Subject: job.Subject, Body: job.Body})
		if err != nil {
			err = appErrors.NewDeliveryError(job.Email, err)
			r.log.Warn().Err(err).Int("batch", job.BatchIndex).Int("position", job.PositionInBatch).Msg("send failed")
		}
		job.Record(r.now(), err)
		if onJob != nil {
			onJob(*job)
		}

		if job.PositionInBatch == size || i == len(out)-1 {
			r.log.Info().Int("batch", job.BatchIndex).Int("of", batches).Msg("batch completed")
		}
	}

	report := Aggregate(out, size)
	r.log.Info().
		Int("total", report.Total).
		Int("successful", report.Successful).
		Int("failed", report.Failed).
		Int("batches", report.Batches).
		Msg("dispatch finished")
	return out, report, nil
}

// pace waits before the i-th send: BatchDelay at a batch boundary, MessageDelay inside a batch.
func (r *DispatchRun) pace(ctx context.Context, i int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if i == 0 {
		return nil
	}
	delay := r.cfg.MessageDelay
	if i%r.cfg.BatchSize == 0 {
		delay = r.cfg.BatchDelay
	}
	if delay <= 0 {
		return nil
	}
	return r.sleep(ctx, delay)
}

func (r *DispatchRun) abandon(rest []model.SendJob, cause error, onJob func(model.SendJob)) {
	at := r.now()
	for i := range rest {
		if rest[i].Status != model.SendPending {
			continue
		}
		rest[i].Record(at, appErrors.NewDeliveryError(rest[i].Email, cause))
		if onJob != nil {
			onJob(rest[i])
		}
	}
	r.log.Warn().Err(cause).Int("abandoned", len(rest)).Msg("dispatch stopped early")
}

// BuildSendJobs creates one pending job per generated task. Other tasks are skipped.
func BuildSendJobs(tasks []model.GenerationTask) []model.SendJob {
	jobs := make([]model.SendJob, 0, len(tasks))
	for _, t := range tasks {
		job, err := model.NewSendJob(t)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs
}
