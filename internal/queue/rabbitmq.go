package queue

import (
	"encoding/json"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Publisher mirrors bridge events onto a RabbitMQ queue. It is optional:
// NewPublisher with an empty URL returns a disabled publisher whose Publish
// is a no-op.
type Publisher struct {
	channel *amqp091.Channel
	queue   string
	enabled bool
}

// NewPublisher connects to RabbitMQ when url is set. Connection failures
// disable publishing instead of failing startup; the bridge works without
// the mirror.
func NewPublisher(url, queue string) *Publisher {
	if url == "" {
		log.Info().Msg("RABBITMQ_URL is not set, event publishing disabled")
		return &Publisher{}
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		log.Error().Err(err).Msg("Could not connect to RabbitMQ, event publishing disabled")
		return &Publisher{}
	}
	channel, err := conn.Channel()
	if err != nil {
		log.Error().Err(err).Msg("Could not open RabbitMQ channel, event publishing disabled")
		return &Publisher{}
	}

	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("Could not declare RabbitMQ queue, event publishing disabled")
		return &Publisher{}
	}

	log.Info().Str("queue", queue).Msg("RabbitMQ connection established")
	return &Publisher{channel: channel, queue: queue, enabled: true}
}

// Publish sends one JSON event to the queue. Failures are logged and
// dropped; the queue mirror never blocks message processing.
func (p *Publisher) Publish(eventType string, payload any) {
	if !p.enabled {
		return
	}

	body, err := json.Marshal(map[string]any{
		"event":     eventType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"payload":   payload,
	})
	if err != nil {
		log.Error().Err(err).Str("eventType", eventType).Msg("Failed to marshal event for RabbitMQ")
		return
	}

	err = p.channel.Publish("", p.queue, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		log.Error().Err(err).Str("queue", p.queue).Str("eventType", eventType).Msg("Could not publish to RabbitMQ")
		return
	}
	log.Debug().Str("queue", p.queue).Str("eventType", eventType).Msg("Published event to RabbitMQ")
}
