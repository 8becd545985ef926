package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/mailcampaign/internal/ai"
	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
	"github.com/unclebandit/mailcampaign/internal/logger"
	"github.com/unclebandit/mailcampaign/internal/metrics"
	"github.com/unclebandit/mailcampaign/internal/model"
)

var errMissingDraftFields = errors.New("response is missing subject or body")

// EngineConfig bounds how hard the engine pushes the AI provider.
type EngineConfig struct {
	SubBatchSize  int
	Concurrency   int
	SubBatchDelay time.Duration
	CallTimeout   time.Duration
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.SubBatchSize <= 0 {
		c.SubBatchSize = 5
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.SubBatchDelay < 0 {
		c.SubBatchDelay = 0
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 60 * time.Second
	}
	return c
}

// PersonalizationEngine turns contacts into generation tasks, one AI call per contact.
// There are no retries: a failed task is re-run with Regenerate.
type PersonalizationEngine struct {
	gen ai.Generator
	cfg EngineConfig
	log *logger.Logger

	// Sleep pauses between sub-batches. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewPersonalizationEngine(gen ai.Generator, cfg EngineConfig, log *logger.Logger) *PersonalizationEngine {
	if log == nil {
		log = logger.Nop()
	}
	return &PersonalizationEngine{
		gen:   gen,
		cfg:   cfg.withDefaults(),
		log:   log.WithComponent("personalization"),
		Sleep: sleepCtx,
	}
}

// GenerateBatch processes contacts in sub-batches of at most Concurrency parallel calls,
// pausing between sub-batches. onSubBatch, when set, receives the resolved tasks of each
// sub-batch. Every returned task is terminal.
func (e *PersonalizationEngine) GenerateBatch(
	ctx context.Context,
	contacts []model.ContactRecord,
	tc TemplateConfig,
	onSubBatch func(done []model.GenerationTask),
) []model.GenerationTask {
	tc = tc.WithDefaults()

	tasks := make([]model.GenerationTask, len(contacts))
	for i, c := range contacts {
		tasks[i] = model.NewGenerationTask(i, c)
		tasks[i].Prompt = RenderTemplate(tc.UserTemplate, NewFieldContext(c, tc))
	}

	size := e.cfg.SubBatchSize
	for start := 0; start < len(tasks); start += size {
		end := min(start+size, len(tasks))
		batch := tasks[start:end]

		if err := ctx.Err(); err != nil {
			e.failRemaining(tasks[start:], err, onSubBatch)
			break
		}

		e.runSubBatch(ctx, batch, tc)

		p := SummarizeGeneration(tasks[:end])
		e.log.Info().
			Int("processed", p.Processed).
			Int("total", len(tasks)).
			Int("successful", p.Successful).
			Int("failed", p.Failed).
			Msg("generation sub-batch done")

		if onSubBatch != nil {
			onSubBatch(copyTasks(batch))
		}

		if end < len(tasks) && e.cfg.SubBatchDelay > 0 {
			if err := e.Sleep(ctx, e.cfg.SubBatchDelay); err != nil {
				e.failRemaining(tasks[end:], err, onSubBatch)
				break
			}
		}
	}
	return tasks
}

// Regenerate runs a single contact again and returns a fresh task with the given index.
func (e *PersonalizationEngine) Regenerate(ctx context.Context, index int, contact model.ContactRecord, tc TemplateConfig) model.GenerationTask {
	tc = tc.WithDefaults()
	task := model.NewGenerationTask(index, contact)
	task.Prompt = RenderTemplate(tc.UserTemplate, NewFieldContext(contact, tc))
	e.generate(ctx, &task, tc)
	return task
}

func (e *PersonalizationEngine) runSubBatch(ctx context.Context, batch []model.GenerationTask, tc TemplateConfig) {
	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i := range batch {
		task := &batch[i]
		g.Go(func() error {
			e.generate(ctx, task, tc)
			// failures are recorded on the task, siblings keep running
			return nil
		})
	}
	_ = g.Wait()
}

func (e *PersonalizationEngine) generate(ctx context.Context, task *model.GenerationTask, tc TemplateConfig) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	draft, err := e.gen.Generate(callCtx, ai.Request{
		SystemPrompt: tc.SystemPrompt,
		UserPrompt:   task.Prompt,
		Temperature:  tc.SamplingTemperature(),
		MaxTokens:    tc.MaxTokens,
	})
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())

	if err == nil && (draft.Subject == "" || draft.Body == "") {
		err = errMissingDraftFields
	}
	if err != nil {
		genErr := appErrors.NewGenerationError(task.Contact.Email, err)
		_ = task.Fail(genErr)
		metrics.GenerationFailed.Inc()
		e.log.Warn().Err(err).Int("index", task.Index).Str("email", task.Contact.Email).Msg("generation failed")
		return
	}
	_ = task.Resolve(draft.Subject, draft.Body)
	metrics.GenerationSucceeded.Inc()
}

func (e *PersonalizationEngine) failRemaining(rest []model.GenerationTask, cause error, onSubBatch func([]model.GenerationTask)) {
	for i := range rest {
		_ = rest[i].Fail(appErrors.NewGenerationError(rest[i].Contact.Email, cause))
	}
	metrics.GenerationFailed.Add(float64(len(rest)))
	e.log.Warn().Err(cause).Int("skipped", len(rest)).Msg("generation stopped early")
	if onSubBatch != nil && len(rest) > 0 {
		onSubBatch(copyTasks(rest))
	}
}

func copyTasks(tasks []model.GenerationTask) []model.GenerationTask {
	out := make([]model.GenerationTask, len(tasks))
	copy(out, tasks)
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
