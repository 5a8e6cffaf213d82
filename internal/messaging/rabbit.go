// internal/messaging/rabbit.go
package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"udp-monitor/internal/metrics"
)

// QueueName is the durable queue stored-message events are published to.
const QueueName = "udp_messages"

// StoredMessage is the event body published for every persisted datagram.
// Payload marshals as base64, the JSON default for byte slices.
type StoredMessage struct {
	ID            int64  `json:"id"`
	SourceAddress string `json:"source_address"`
	SourcePort    int    `json:"source_port"`
	Payload       []byte `json:"payload"`
	PayloadSize   int    `json:"payload_size"`
}

// Publisher fans stored messages out to RabbitMQ. Publishing is
// fire-and-forget: a failure is logged and counted, never surfaced to
// the receive loop.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  zerolog.Logger
}

func NewPublisher(url string, logger zerolog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		QueueName,
		true, false, false, false,
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	return &Publisher{
		conn:    conn,
		channel: ch,
		logger:  logger.With().Str("component", "rabbit-publisher").Logger(),
	}, nil
}

// MessageStored implements the listener's Notifier interface.
func (p *Publisher) MessageStored(id int64, sourceAddress string, sourcePort int, payload []byte) {
	event := StoredMessage{
		ID:            id,
		SourceAddress: sourceAddress,
		SourcePort:    sourcePort,
		Payload:       payload,
		PayloadSize:   len(payload),
	}
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Int64("id", id).Msg("failed to encode stored-message event")
		return
	}

	err = p.channel.Publish(
		"",        // default exchange
		QueueName, // routing key (queue name)
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			MessageId:   uuid.New().String(),
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		metrics.PublishFailures.Inc()
		p.logger.Warn().Err(err).Int64("id", id).Msg("failed to publish stored-message event")
	}
}

// Close cleans up connection and channel
func (p *Publisher) Close() error {
	if err := p.channel.Close(); err != nil {
		return err
	}
	return p.conn.Close()
}
