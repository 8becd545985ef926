package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/mailcampaign/internal/config"
	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
	"github.com/unclebandit/mailcampaign/internal/model"
)

const keyPrefix = "mailcampaign:progress:"

// RedisStore shares snapshots between server replicas. Entries expire after ttl.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient connects and pings the progress Redis.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return client, nil
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, st model.CampaignState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal campaign state: %w", err)
	}
	return s.client.Set(ctx, keyPrefix+st.ID, b, s.ttl).Err()
}

func (s *RedisStore) Load(ctx context.Context, id string) (model.CampaignState, error) {
	b, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.CampaignState{}, appErrors.NewCampaignNotFound(id)
	}
	if err != nil {
		return model.CampaignState{}, err
	}
	var st model.CampaignState
	if err := json.Unmarshal(b, &st); err != nil {
		return model.CampaignState{}, fmt.Errorf("unmarshal campaign state: %w", err)
	}
	return st, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, keyPrefix+id).Err()
}
