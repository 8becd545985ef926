package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mailcampaign/internal/model"
)

func newTestQueue() *InMemoryQueue {
	q := NewInMemoryQueue(nil)
	q.Backoff = time.Millisecond
	return q
}

func TestPublishWithoutSubscribers(t *testing.T) {
	q := newTestQueue()
	assert.Error(t, q.Publish("nobody", map[string]int{"a": 1}))
}

func TestPublishRetriesUntilSuccess(t *testing.T) {
	q := newTestQueue()
	var mu sync.Mutex
	attempts := 0
	require.NoError(t, q.Subscribe("t", func(body []byte) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		assert.JSONEq(t, `{"n":7}`, string(body))
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	require.NoError(t, q.Publish("t", map[string]int{"n": 7}))
	require.NoError(t, q.Close())
	assert.Equal(t, 3, attempts)
}

func TestPublishGivesUpAfterMaxRetries(t *testing.T) {
	q := newTestQueue()
	q.MaxRetries = 2
	attempts := 0
	require.NoError(t, q.Subscribe("t", func([]byte) error {
		attempts++
		return errors.New("always")
	}))

	require.NoError(t, q.Publish("t", "x"))
	require.NoError(t, q.Close())
	assert.Equal(t, 3, attempts)
}

type mockRunRepo struct {
	mu    sync.Mutex
	saved []model.ReportEvent
	fail  int
}

func (m *mockRunRepo) SaveReport(ctx context.Context, ev model.ReportEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail > 0 {
		m.fail--
		return errors.New("db down")
	}
	m.saved = append(m.saved, ev)
	return nil
}

func (m *mockRunRepo) GetRun(ctx context.Context, id string) (*model.CampaignRun, error) {
	return nil, nil
}

func (m *mockRunRepo) ListRuns(ctx context.Context, offset, limit int, email string) ([]*model.CampaignRun, int, error) {
	return nil, 0, nil
}

func (m *mockRunRepo) ListResults(ctx context.Context, campaignID string) ([]model.SendJob, error) {
	return nil, nil
}

func TestReportSubscriberPersists(t *testing.T) {
	q := newTestQueue()
	repo := &mockRunRepo{fail: 1}
	require.NoError(t, StartReportSubscriber(q, DefaultReportTopic, repo, nil))

	ev := model.ReportEvent{
		CampaignID: "c-1",
		Report:     model.CampaignReport{Total: 1, Successful: 1, Batches: 1, BatchSize: 30},
		Jobs:       []model.SendJob{{Email: "ann@example.com", Status: model.SendSent}},
	}
	require.NoError(t, q.Publish(DefaultReportTopic, ev))
	require.NoError(t, q.Close())

	require.Len(t, repo.saved, 1)
	assert.Equal(t, "c-1", repo.saved[0].CampaignID)
	assert.Equal(t, ev.Report, repo.saved[0].Report)
}

func TestReportSubscriberDropsInvalidPayload(t *testing.T) {
	q := newTestQueue()
	repo := &mockRunRepo{}
	require.NoError(t, StartReportSubscriber(q, DefaultReportTopic, repo, nil))

	require.NoError(t, q.Publish(DefaultReportTopic, "not an event"))
	require.NoError(t, q.Close())
	assert.Empty(t, repo.saved)
}

func TestRetryCountOf(t *testing.T) {
	assert.Equal(t, int32(0), retryCountOf(nil))
	assert.Equal(t, int32(2), retryCountOf(map[string]interface{}{retryHeader: int32(2)}))
	assert.Equal(t, int32(3), retryCountOf(map[string]interface{}{retryHeader: int64(3)}))
}
