// Package events publishes job lifecycle events to a RabbitMQ topic exchange.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"interview-insights-go/internal/types"
)

// JobEvent is emitted when a job reaches a terminal stage.
type JobEvent struct {
	JobID       string      `json:"jobId"`
	Stage       types.Stage `json:"status"`
	SubjectName string      `json:"personName,omitempty"`
	RecordURL   string      `json:"notionUrl,omitempty"`
	Error       string      `json:"error,omitempty"`
	At          time.Time   `json:"at"`
}

// RoutingKey is job.<stage>, e.g. job.done.
func (e JobEvent) RoutingKey() string {
	return "job." + string(e.Stage)
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
}

// Dial connects to the broker and declares a durable topic exchange.
func Dial(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *Publisher) Publish(ctx context.Context, e JobEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode job event: %w", err)
	}
	return p.channel.PublishWithContext(ctx, p.exchange, e.RoutingKey(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.JobID,
		Timestamp:    e.At,
		Body:         body,
	})
}

func (p *Publisher) Close() error {
	if err := p.channel.Close(); err != nil {
		return err
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
