package queue

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/unclebandit/mailcampaign/internal/logger"
)

const retryHeader = "x-retry-count"

// AMQPQueue publishes to and consumes from durable RabbitMQ queues named after the topic
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *logger.Logger

	mu       sync.Mutex
	declared map[string]bool

	MaxRetries int
}

// DialAMQP connects to RabbitMQ and opens a channel
func DialAMQP(url string, log *logger.Logger) (*AMQPQueue, error) {
	if log == nil {
		log = logger.Nop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return &AMQPQueue{
		conn:       conn,
		ch:         ch,
		log:        log.WithComponent("amqp"),
		declared:   make(map[string]bool),
		MaxRetries: 3,
	}, nil
}

func (q *AMQPQueue) declare(topic string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.declared[topic] {
		return nil
	}
	_, err := q.ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	q.declared[topic] = true
	return nil
}

// Publish sends a persistent JSON message
func (q *AMQPQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	return q.publish(topic, body, 0)
}

func (q *AMQPQueue) publish(topic string, body []byte, retryCount int32) error {
	if err := q.declare(topic); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{retryHeader: retryCount},
		Body:         body,
	})
}

// Subscribe consumes topic with manual acks. A failing message is republished with an
// incremented retry header until MaxRetries, then dropped.
func (q *AMQPQueue) Subscribe(topic string, handler func(body []byte) error) error {
	if err := q.declare(topic); err != nil {
		return err
	}
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for d := range msgs {
			q.handle(topic, d, handler)
		}
		q.log.Info().Str("topic", topic).Msg("consumer stopped")
	}()
	return nil
}

func (q *AMQPQueue) handle(topic string, d amqp.Delivery, handler func([]byte) error) {
	err := handler(d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	retryCount := retryCountOf(d.Headers)
	if retryCount < int32(q.MaxRetries) {
		q.log.Warn().Err(err).Str("topic", topic).Int32("attempt", retryCount+1).Msg("message failed, requeueing")
		if perr := q.publish(topic, d.Body, retryCount+1); perr != nil {
			q.log.Error().Err(perr).Msg("republish failed")
			_ = d.Nack(false, true)
			return
		}
	} else {
		q.log.Error().Err(err).Str("topic", topic).Int32("attempts", retryCount+1).Msg("message permanently failed")
	}
	_ = d.Ack(false)
}

func retryCountOf(h amqp.Table) int32 {
	switch v := h[retryHeader].(type) {
	case int32:
		return v
	case int64:
		return int32(v)
	case int:
		return int32(v)
	}
	return 0
}

func (q *AMQPQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
