package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const eventsExchange = "roomie.events"

// Event types published to the exchange. The routing key is the type.
const (
	EventReportRequested = "match.report.requested"
	EventFlagCreated     = "flag.created"
	EventMatchAccepted   = "match.accepted"
)

// Event is the JSON envelope published for other services.
type Event struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurredAt"`
	ActorID    int         `json:"actorId"`
	Payload    interface{} `json:"payload"`
}

// Publisher sends domain events to whoever listens.
type Publisher interface {
	Publish(evt Event) error
	Close() error
}

var publisher Publisher

// AMQPPublisher publishes to a topic exchange. With no URL it logs and drops events.
type AMQPPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex
	enabled bool
}

func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	if url == "" {
		logger.Warnw("AMQP_URL is empty, event publishing is disabled")
		return &AMQPPublisher{}, nil
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = channel.ExchangeDeclare(
		eventsExchange, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	logger.Infow("event publisher initialized", "exchange", eventsExchange)
	return &AMQPPublisher{conn: conn, channel: channel, enabled: true}, nil
}

func (p *AMQPPublisher) Publish(evt Event) error {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	if !p.enabled {
		logger.Debugw("event publishing disabled, skipping event", "type", evt.Type)
		return nil
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.Publish(
		eventsExchange, // exchange
		evt.Type,       // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    evt.OccurredAt,
			Body:         body,
			Headers: amqp.Table{
				"event_type": evt.Type,
				"actor_id":   int64(evt.ActorID),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	logger.Infow("published event", "type", evt.Type, "actor_id", evt.ActorID)
	return nil
}

func (p *AMQPPublisher) Close() error {
	if !p.enabled {
		return nil
	}
	if err := p.channel.Close(); err != nil {
		logger.Warnw("close RabbitMQ channel", "error", err)
	}
	return p.conn.Close()
}
