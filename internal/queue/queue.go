package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/unclebandit/mailcampaign/internal/logger"
)

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(body []byte) error) error
	Close() error
}

// InMemoryQueue delivers JSON encoded payloads to in-process subscribers with retry
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(body []byte) error
	wg       sync.WaitGroup
	log      *logger.Logger

	MaxRetries int
	Backoff    time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(log *logger.Logger) *InMemoryQueue {
	if log == nil {
		log = logger.Nop()
	}
	return &InMemoryQueue{
		handlers:   make(map[string][]func(body []byte) error),
		log:        log.WithComponent("queue"),
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
	}
}

// job wraps a message body with retry info
type job struct {
	topic      string
	body       []byte
	retryCount int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	q.mu.Lock()
	handlers := append([]func([]byte) error(nil), q.handlers[topic]...)
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		q.wg.Add(1)
		go q.processJob(handler, job{topic: topic, body: body})
	}

	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler func(body []byte) error, j job) {
	defer q.wg.Done()
	for {
		err := handler(j.body)
		if err == nil {
			q.log.Debug().Str("topic", j.topic).Msg("job processed")
			return // ACK
		}

		j.retryCount++
		if j.retryCount > q.MaxRetries {
			q.log.Error().Err(err).Str("topic", j.topic).Int("attempts", j.retryCount).Msg("job permanently failed")
			return // No requeue
		}
		q.log.Warn().Err(err).Str("topic", j.topic).Int("attempt", j.retryCount).Int("max_retries", q.MaxRetries).Msg("job failed")

		// Linear backoff before retry
		time.Sleep(time.Duration(j.retryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(body []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close waits for in-flight jobs
func (q *InMemoryQueue) Close() error {
	q.wg.Wait()
	return nil
}
