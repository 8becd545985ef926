package progress

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mailcampaign/internal/config"
	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
	"github.com/unclebandit/mailcampaign/internal/model"
)

func sampleState(id string) model.CampaignState {
	d := model.Progress{Processed: 1, Total: 2, Successful: 1}
	return model.CampaignState{
		ID:         id,
		Status:     model.StatusSending,
		Progress:   d,
		Generation: model.Progress{Processed: 2, Total: 2, Successful: 2},
		Delivery:   &d,
		UpdatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	id := uuid.NewString()

	_, err := s.Load(ctx, id)
	var nf *appErrors.ErrCampaignNotFound
	require.ErrorAs(t, err, &nf)

	want := sampleState(id)
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Load(ctx, id)
	assert.ErrorAs(t, err, &nf)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCopiesDelivery(t *testing.T) {
	s := NewMemoryStore()
	st := sampleState("c1")
	require.NoError(t, s.Save(context.Background(), st))

	st.Delivery.Successful = 99
	got, err := s.Load(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Delivery.Successful)
}

// Runs against a real Redis when MAILCAMPAIGN_TEST_REDIS_ADDR is set.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("MAILCAMPAIGN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MAILCAMPAIGN_TEST_REDIS_ADDR not set")
	}
	client, err := NewRedisClient(config.RedisConfig{Addr: addr})
	require.NoError(t, err)
	defer client.Close()

	exerciseStore(t, NewRedisStore(client, time.Minute))
}
