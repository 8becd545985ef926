package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mailcampaign/internal/model"
)

func newTestEngine(gen *fakeGenerator, sleeper *sleepRecorder) *PersonalizationEngine {
	e := NewPersonalizationEngine(gen, EngineConfig{SubBatchDelay: time.Second}, nil)
	e.Sleep = sleeper.Sleep
	return e
}

func TestGenerateBatchAllSucceed(t *testing.T) {
	gen := &fakeGenerator{}
	sleeper := &sleepRecorder{}
	e := newTestEngine(gen, sleeper)

	tasks := e.GenerateBatch(context.Background(), contactsN(3), TemplateConfig{}, nil)

	p := SummarizeGeneration(tasks)
	assert.Equal(t, model.Progress{Processed: 3, Total: 3, Successful: 3, Failed: 0}, p)
	for i, task := range tasks {
		assert.Equal(t, i, task.Index)
		assert.Equal(t, model.GenerationGenerated, task.Status)
		assert.Equal(t, "Hello", task.Subject)
		assert.NotEmpty(t, task.Prompt)
	}
	assert.Empty(t, sleeper.delays, "a single sub-batch never pauses")
}

func TestGenerateBatchIsolatesFailures(t *testing.T) {
	contacts := contactsN(3)
	gen := &fakeGenerator{failFor: map[string]bool{contacts[1].Email: true}}
	e := newTestEngine(gen, &sleepRecorder{})

	tasks := e.GenerateBatch(context.Background(), contacts, TemplateConfig{}, nil)

	p := SummarizeGeneration(tasks)
	assert.Equal(t, 2, p.Successful)
	assert.Equal(t, 1, p.Failed)
	assert.Equal(t, model.GenerationFailed, tasks[1].Status)
	assert.Contains(t, tasks[1].Error, "upstream 500")
	assert.Contains(t, tasks[1].Error, contacts[1].Email)

	jobs := BuildSendJobs(tasks)
	require.Len(t, jobs, 2)
	for _, j := range jobs {
		assert.NotEqual(t, contacts[1].Email, j.Email)
	}
	assert.Equal(t, int32(3), gen.calls.Load(), "no retries")
}

func TestGenerateBatchSubBatchesAndConcurrency(t *testing.T) {
	gen := &fakeGenerator{hold: 10 * time.Millisecond}
	sleeper := &sleepRecorder{}
	e := newTestEngine(gen, sleeper)

	var sizes []int
	tasks := e.GenerateBatch(context.Background(), contactsN(12), TemplateConfig{}, func(done []model.GenerationTask) {
		sizes = append(sizes, len(done))
		for _, d := range done {
			assert.True(t, d.Status.IsTerminal())
		}
	})

	assert.Len(t, tasks, 12)
	assert.Equal(t, []int{5, 5, 2}, sizes)
	assert.Equal(t, 2, sleeper.count(time.Second), "pause between sub-batches, not after the last")
	assert.LessOrEqual(t, gen.maxSeen.Load(), int32(5))

	p := SummarizeGeneration(tasks)
	assert.Equal(t, p.Total, p.Successful+p.Failed)
}

func TestGenerateBatchCancelledFailsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &fakeGenerator{}
	e := NewPersonalizationEngine(gen, EngineConfig{SubBatchDelay: time.Second}, nil)
	e.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	tasks := e.GenerateBatch(ctx, contactsN(8), TemplateConfig{}, nil)

	p := SummarizeGeneration(tasks)
	assert.Equal(t, 8, p.Processed)
	assert.Equal(t, 5, p.Successful)
	assert.Equal(t, 3, p.Failed)
	assert.Contains(t, tasks[7].Error, "context canceled")
}

func TestRegenerateSingleContact(t *testing.T) {
	contacts := contactsN(1)
	gen := &fakeGenerator{failFor: map[string]bool{contacts[0].Email: true}}
	e := newTestEngine(gen, &sleepRecorder{})

	task := e.Regenerate(context.Background(), 4, contacts[0], TemplateConfig{})
	assert.Equal(t, 4, task.Index)
	assert.Equal(t, model.GenerationFailed, task.Status)

	gen.failFor = nil
	task = e.Regenerate(context.Background(), 4, contacts[0], TemplateConfig{})
	assert.Equal(t, model.GenerationGenerated, task.Status)
	assert.Empty(t, task.Error)
}
