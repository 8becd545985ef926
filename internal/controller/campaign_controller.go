// internal/controller/campaign_controller.go
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
	"github.com/unclebandit/mailcampaign/internal/logger"
	"github.com/unclebandit/mailcampaign/internal/mail"
	"github.com/unclebandit/mailcampaign/internal/metrics"
	"github.com/unclebandit/mailcampaign/internal/model"
	"github.com/unclebandit/mailcampaign/internal/progress"
	"github.com/unclebandit/mailcampaign/internal/queue"
	"github.com/unclebandit/mailcampaign/internal/service"
)

var errCancelled = errors.New("campaign cancelled by operator")

// Deps are the collaborators shared by every campaign.
type Deps struct {
	Engine      *service.PersonalizationEngine
	Dispatcher  *service.DeliveryDispatcher
	Store       progress.Store
	Queue       queue.Queue
	ReportTopic string
	Log         *logger.Logger
	Now         func() time.Time

	// DefaultTemplate fills the settings a campaign leaves empty.
	DefaultTemplate service.TemplateConfig
}

// CampaignController owns one campaign and moves it through
// idle -> processing -> completed -> sending -> completed-send, with failed reachable
// from processing and sending. Every operation returns the resulting CampaignState.
type CampaignController struct {
	deps     Deps
	log      *logger.Logger
	contacts []model.ContactRecord
	template service.TemplateConfig

	mu           sync.Mutex
	campaign     model.Campaign
	report       *model.CampaignReport
	cancel       context.CancelFunc
	cancelled    bool
	regenerating bool
	done         chan struct{}
	seq          uint64
	pending      *pendingSave

	saveMu   sync.Mutex
	savedSeq uint64
}

type pendingSave struct {
	seq   uint64
	state model.CampaignState
}

func NewCampaignController(id string, contacts []model.ContactRecord, tc service.TemplateConfig, deps Deps) *CampaignController {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Store == nil {
		deps.Store = progress.NewMemoryStore()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ReportTopic == "" {
		deps.ReportTopic = queue.DefaultReportTopic
	}

	now := deps.Now()
	cc := &CampaignController{
		deps:     deps,
		log:      deps.Log.WithComponent("campaign").WithCampaign(id),
		contacts: append([]model.ContactRecord(nil), contacts...),
		template: tc.Merge(deps.DefaultTemplate).WithDefaults(),
		campaign: model.Campaign{
			ID:        id,
			Status:    model.StatusIdle,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if deps.Dispatcher != nil {
		cc.campaign.BatchSize = deps.Dispatcher.BatchSize()
	}
	cc.saveLocked()
	cc.flush()
	return cc
}

func (cc *CampaignController) ID() string { return cc.campaign.ID }

func (cc *CampaignController) createdAt() time.Time { return cc.campaign.CreatedAt }

// Contacts returns the campaign's contact list.
func (cc *CampaignController) Contacts() []model.ContactRecord {
	return append([]model.ContactRecord(nil), cc.contacts...)
}

// Snapshot returns the current state.
func (cc *CampaignController) Snapshot() model.CampaignState {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.campaign.State()
}

// Tasks returns a copy of the generation tasks.
func (cc *CampaignController) Tasks() []model.GenerationTask {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return append([]model.GenerationTask(nil), cc.campaign.Tasks...)
}

// Jobs returns a copy of the send jobs.
func (cc *CampaignController) Jobs() []model.SendJob {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return append([]model.SendJob(nil), cc.campaign.Jobs...)
}

// Start generates drafts for every contact and returns once all tasks are terminal.
func (cc *CampaignController) Start(ctx context.Context) (model.CampaignState, error) {
	runCtx, err := cc.beginGeneration(ctx)
	if err != nil {
		return cc.Snapshot(), err
	}
	return cc.runGeneration(runCtx), nil
}

// StartAsync moves to processing and generates in the background.
func (cc *CampaignController) StartAsync(ctx context.Context) (model.CampaignState, error) {
	runCtx, err := cc.beginGeneration(context.WithoutCancel(ctx))
	if err != nil {
		return cc.Snapshot(), err
	}
	st := cc.Snapshot()
	go cc.runGeneration(runCtx)
	return st, nil
}

func (cc *CampaignController) beginGeneration(ctx context.Context) (context.Context, error) {
	cc.mu.Lock()
	defer cc.unlock()

	if cc.campaign.Status != model.StatusIdle {
		return nil, appErrors.NewInvalidState("start", string(cc.campaign.Status), "")
	}
	if len(cc.contacts) == 0 {
		return nil, appErrors.NewInvalidState("start", string(cc.campaign.Status), "no contacts")
	}

	tasks := make([]model.GenerationTask, len(cc.contacts))
	for i, c := range cc.contacts {
		tasks[i] = model.NewGenerationTask(i, c)
	}
	cc.campaign.Tasks = tasks
	cc.campaign.Jobs = nil
	cc.campaign.LastError = ""
	cc.report = nil

	runCtx := cc.arm(ctx)
	if err := cc.transitionLocked(model.StatusProcessing); err != nil {
		cc.disarm()
		return nil, err
	}
	return runCtx, nil
}

func (cc *CampaignController) runGeneration(ctx context.Context) model.CampaignState {
	defer cc.finish()

	tasks := cc.deps.Engine.GenerateBatch(ctx, cc.contacts, cc.template, func(done []model.GenerationTask) {
		cc.mu.Lock()
		defer cc.unlock()
		for _, t := range done {
			cc.campaign.Tasks[t.Index] = t
		}
		cc.touchLocked()
		cc.saveLocked()
	})

	cc.mu.Lock()
	defer cc.unlock()
	cc.campaign.Tasks = tasks

	if cc.cancelled {
		cc.campaign.LastError = errCancelled.Error()
		_ = cc.transitionLocked(model.StatusFailed)
		return cc.campaign.State()
	}
	for _, t := range tasks {
		if !t.Status.IsTerminal() {
			cc.campaign.LastError = fmt.Sprintf("task %d not resolved", t.Index)
			_ = cc.transitionLocked(model.StatusFailed)
			return cc.campaign.State()
		}
	}
	_ = cc.transitionLocked(model.StatusCompleted)

	p := cc.campaign.GenerationProgress()
	cc.log.Info().Int("successful", p.Successful).Int("failed", p.Failed).Msg("generation completed")
	return cc.campaign.State()
}

// Regenerate runs one task again and returns it with the resulting state. Only valid once
// generation has completed.
func (cc *CampaignController) Regenerate(ctx context.Context, index int) (model.GenerationTask, model.CampaignState, error) {
	cc.mu.Lock()
	if cc.campaign.Status != model.StatusCompleted || cc.regenerating {
		st := cc.campaign.State()
		cc.unlock()
		return model.GenerationTask{}, st, appErrors.NewInvalidState("regenerate", string(st.Status), "")
	}
	if index < 0 || index >= len(cc.campaign.Tasks) {
		st := cc.campaign.State()
		cc.unlock()
		return model.GenerationTask{}, st, appErrors.NewInvalidState("regenerate", string(st.Status), fmt.Sprintf("no task %d", index))
	}
	contact := cc.campaign.Tasks[index].Contact
	cc.regenerating = true
	cc.unlock()

	task := cc.deps.Engine.Regenerate(ctx, index, contact, cc.template)

	cc.mu.Lock()
	cc.regenerating = false
	cc.campaign.Tasks[index] = task
	cc.touchLocked()
	cc.saveLocked()
	st := cc.campaign.State()
	cc.unlock()
	return task, st, nil
}

// Send dispatches every generated draft and returns once the run is over. A failed
// connectivity check returns a ConfigError and moves the campaign to failed with no report.
func (cc *CampaignController) Send(ctx context.Context, settings mail.Settings) (model.CampaignState, error) {
	runCtx, run, jobs, err := cc.beginSend(ctx, settings)
	if err != nil {
		return cc.Snapshot(), err
	}
	return cc.runSend(runCtx, run, jobs), nil
}

// SendAsync verifies the relay synchronously, then dispatches in the background.
func (cc *CampaignController) SendAsync(ctx context.Context, settings mail.Settings) (model.CampaignState, error) {
	runCtx, run, jobs, err := cc.beginSend(context.WithoutCancel(ctx), settings)
	if err != nil {
		return cc.Snapshot(), err
	}
	st := cc.Snapshot()
	go cc.runSend(runCtx, run, jobs)
	return st, nil
}

func (cc *CampaignController) beginSend(ctx context.Context, settings mail.Settings) (context.Context, *service.DispatchRun, []model.SendJob, error) {
	cc.mu.Lock()
	if cc.campaign.Status != model.StatusCompleted || cc.regenerating {
		st := cc.campaign.Status
		cc.unlock()
		return nil, nil, nil, appErrors.NewInvalidState("send", string(st), "")
	}
	if cc.campaign.GeneratedCount() == 0 {
		cc.unlock()
		return nil, nil, nil, appErrors.NewInvalidState("send", string(model.StatusCompleted), "no generated emails")
	}

	jobs := service.BuildSendJobs(cc.campaign.Tasks)
	cc.campaign.Jobs = jobs
	cc.campaign.LastError = ""
	runCtx := cc.arm(ctx)
	_ = cc.transitionLocked(model.StatusSending)
	cc.unlock()

	run, err := cc.deps.Dispatcher.Open(runCtx, settings)
	if err != nil {
		cc.mu.Lock()
		cc.campaign.LastError = err.Error()
		_ = cc.transitionLocked(model.StatusFailed)
		cc.unlock()
		cc.finish()
		return nil, nil, nil, err
	}
	return runCtx, run, jobs, nil
}

func (cc *CampaignController) runSend(ctx context.Context, run *service.DispatchRun, jobs []model.SendJob) model.CampaignState {
	defer cc.finish()

	pos := make(map[int]int, len(jobs))
	for i, j := range jobs {
		pos[j.TaskIndex] = i
	}

	out, report, err := run.Dispatch(ctx, jobs, func(j model.SendJob) {
		cc.mu.Lock()
		defer cc.unlock()
		cc.campaign.Jobs[pos[j.TaskIndex]] = j
		cc.touchLocked()
		cc.saveLocked()
	})

	cc.mu.Lock()
	if err != nil {
		cc.campaign.LastError = err.Error()
		_ = cc.transitionLocked(model.StatusFailed)
		st := cc.campaign.State()
		cc.unlock()
		return st
	}
	cc.campaign.Jobs = out

	if cc.cancelled {
		cc.campaign.LastError = errCancelled.Error()
		_ = cc.transitionLocked(model.StatusFailed)
		st := cc.campaign.State()
		cc.unlock()
		return st
	}

	cc.report = &report
	_ = cc.transitionLocked(model.StatusCompletedSend)
	st := cc.campaign.State()
	ev := model.ReportEvent{
		CampaignID:  cc.campaign.ID,
		Report:      report,
		Jobs:        append([]model.SendJob(nil), out...),
		CompletedAt: cc.campaign.UpdatedAt,
	}
	cc.unlock()

	cc.publishReport(ev)
	return st
}

func (cc *CampaignController) publishReport(ev model.ReportEvent) {
	if cc.deps.Queue == nil {
		return
	}
	if err := cc.deps.Queue.Publish(cc.deps.ReportTopic, ev); err != nil {
		cc.log.Warn().Err(err).Msg("failed to publish campaign report")
		return
	}
	metrics.ReportsPublished.Inc()
}

// Report is the aggregated result of a finished send.
func (cc *CampaignController) Report() (model.CampaignReport, error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.campaign.Status != model.StatusCompletedSend || cc.report == nil {
		return model.CampaignReport{}, appErrors.NewInvalidState("report", string(cc.campaign.Status), "campaign has not finished sending")
	}
	return *cc.report, nil
}

// Reset discards tasks, jobs and report and returns to idle.
func (cc *CampaignController) Reset() (model.CampaignState, error) {
	cc.mu.Lock()
	defer cc.unlock()
	if cc.regenerating || !model.CanTransition(cc.campaign.Status, model.StatusIdle) {
		return cc.campaign.State(), appErrors.NewInvalidState("reset", string(cc.campaign.Status), "")
	}
	cc.campaign.Tasks = nil
	cc.campaign.Jobs = nil
	cc.campaign.LastError = ""
	cc.report = nil
	cc.cancelled = false
	if err := cc.transitionLocked(model.StatusIdle); err != nil {
		return cc.campaign.State(), err
	}
	return cc.campaign.State(), nil
}

// Cancel aborts a running generation or send. Items not yet attempted are marked failed
// and the campaign ends in failed without a report.
func (cc *CampaignController) Cancel() (model.CampaignState, error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	st := cc.campaign.Status
	if (st != model.StatusProcessing && st != model.StatusSending) || cc.cancel == nil {
		return cc.campaign.State(), appErrors.NewInvalidState("cancel", string(st), "nothing is running")
	}
	cc.cancelled = true
	cc.cancel()
	cc.log.Warn().Str("status", string(st)).Msg("campaign cancel requested")
	return cc.campaign.State(), nil
}

// Wait blocks until background work started by StartAsync or SendAsync has finished.
func (cc *CampaignController) Wait(ctx context.Context) (model.CampaignState, error) {
	cc.mu.Lock()
	done := cc.done
	cc.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return cc.Snapshot(), ctx.Err()
		}
	}
	return cc.Snapshot(), nil
}

// arm creates the cancellable run context. Callers hold cc.mu.
func (cc *CampaignController) arm(ctx context.Context) context.Context {
	runCtx, cancel := context.WithCancel(ctx)
	cc.cancel = cancel
	cc.cancelled = false
	cc.done = make(chan struct{})
	return runCtx
}

// disarm drops the run context. Callers hold cc.mu.
func (cc *CampaignController) disarm() {
	if cc.cancel != nil {
		cc.cancel()
		cc.cancel = nil
	}
	if cc.done != nil {
		close(cc.done)
		cc.done = nil
	}
}

func (cc *CampaignController) finish() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.disarm()
}

func (cc *CampaignController) transitionLocked(to model.Status) error {
	from := cc.campaign.Status
	if !model.CanTransition(from, to) {
		return appErrors.NewInvalidState("move to "+string(to), string(from), "")
	}
	cc.campaign.Status = to
	cc.touchLocked()
	cc.saveLocked()

	metrics.CampaignTransitions.WithLabelValues(string(to)).Inc()
	cc.log.Info().Str("from", string(from)).Str("to", string(to)).Msg("campaign state changed")
	return nil
}

func (cc *CampaignController) touchLocked() {
	cc.campaign.UpdatedAt = cc.deps.Now()
}

// saveLocked queues the current state for the progress store. The write happens in flush,
// after cc.mu is released, so slow stores never block snapshots.
func (cc *CampaignController) saveLocked() {
	cc.seq++
	cc.pending = &pendingSave{seq: cc.seq, state: cc.campaign.State()}
}

// unlock releases cc.mu and writes any queued state.
func (cc *CampaignController) unlock() {
	cc.mu.Unlock()
	cc.flush()
}

// flush writes the latest queued state. Writes are serialized and an older state never
// overwrites a newer one.
func (cc *CampaignController) flush() {
	cc.mu.Lock()
	p := cc.pending
	cc.pending = nil
	cc.mu.Unlock()
	if p == nil {
		return
	}

	cc.saveMu.Lock()
	defer cc.saveMu.Unlock()
	if p.seq <= cc.savedSeq {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cc.deps.Store.Save(ctx, p.state); err != nil {
		cc.log.Warn().Err(err).Msg("failed to save progress snapshot")
	}
	cc.savedSeq = p.seq
}
