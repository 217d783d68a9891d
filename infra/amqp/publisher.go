// Package amqp publishes finished planning runs to RabbitMQ.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kilianp07/foundry/core/events"
	"github.com/kilianp07/foundry/core/logger"
	"github.com/kilianp07/foundry/core/planner"
)

// MessageType is the type of an envelope on the plans exchange.
type MessageType string

const (
	MessagePlanCompleted MessageType = "plan.completed"
	MessagePlanFailed    MessageType = "plan.failed"
)

// Config defines the broker connection.
type Config struct {
	URL      string `json:"url"`
	Exchange string `json:"exchange"`
	// Declare creates the exchange on connect.
	Declare bool `json:"declare"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Exchange == "" {
		c.Exchange = "foundry.plans"
	}
}

// Message is the envelope published for every run.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// PlanPayload carries a run outcome.
type PlanPayload struct {
	RunID    string            `json:"run_id"`
	Scenario string            `json:"scenario"`
	Solver   string            `json:"solver"`
	Status   events.PlanStatus `json:"status"`
	Error    string            `json:"error,omitempty"`
	Schedule *planner.Schedule `json:"schedule,omitempty"`
}

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// PlanPublisher implements planner.ResultPublisher.
type PlanPublisher struct {
	exchange string
	logger   logger.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   channel
}

// Dial connects to the broker and optionally declares a durable topic exchange.
func Dial(cfg Config, log logger.Logger) (*PlanPublisher, error) {
	cfg.SetDefaults()
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if cfg.Declare {
		if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
		}
	}
	p := NewPlanPublisher(ch, cfg.Exchange, log)
	p.conn = conn
	return p, nil
}

// NewPlanPublisher wraps an open channel.
func NewPlanPublisher(ch channel, exchange string, log logger.Logger) *PlanPublisher {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &PlanPublisher{exchange: exchange, logger: log, ch: ch}
}

// Publish sends msg with a routing key equal to its type.
func (p *PlanPublisher) Publish(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()
	if ch == nil {
		return errors.New("no channel available")
	}
	err = ch.PublishWithContext(ctx, p.exchange, string(msg.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", p.exchange, msg.Type, err)
	}
	p.logger.Debugf("published %s message %s", msg.Type, msg.ID)
	return nil
}

// PublishPlan implements planner.ResultPublisher.
func (p *PlanPublisher) PublishPlan(ctx context.Context, st planner.RunStatus) error {
	typ := MessagePlanCompleted
	if st.Status == events.PlanFailed {
		typ = MessagePlanFailed
	}
	return p.Publish(ctx, &Message{
		ID:   uuid.NewString(),
		Type: typ,
		Payload: PlanPayload{
			RunID:    st.ID,
			Scenario: st.Scenario,
			Solver:   st.Solver,
			Status:   st.Status,
			Error:    st.Error,
			Schedule: st.Schedule,
		},
		Timestamp: time.Now(),
	})
}

// Close closes the channel and connection.
func (p *PlanPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
		p.ch = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
		p.conn = nil
	}
	return errors.Join(errs...)
}
