// Package events publishes order lifecycle events to Kafka. The Publisher
// is a bookstore plugin: register it with bookstore.WithPlugin and every
// committed order transition becomes one message keyed by order id, so a
// consumer sees each order's events in commit order.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/xraph/bookstore/id"
	"github.com/xraph/bookstore/order"
	"github.com/xraph/bookstore/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin           = (*Publisher)(nil)
	_ plugin.OnOrderCreated   = (*Publisher)(nil)
	_ plugin.OnOrderPaid      = (*Publisher)(nil)
	_ plugin.OnOrderShipped   = (*Publisher)(nil)
	_ plugin.OnOrderDelivered = (*Publisher)(nil)
	_ plugin.OnOrderCancelled = (*Publisher)(nil)
	_ plugin.OnShutdown       = (*Publisher)(nil)
)

// EventType names an order event.
type EventType string

const (
	EventOrderCreated   EventType = "order.created"
	EventOrderPaid      EventType = "order.paid"
	EventOrderShipped   EventType = "order.shipped"
	EventOrderDelivered EventType = "order.delivered"
	EventOrderCancelled EventType = "order.cancelled"
	EventOrderExpired   EventType = "order.expired"
)

// OrderEvent is the message value.
type OrderEvent struct {
	ID        id.ID        `json:"id"`
	Type      EventType    `json:"type"`
	OrderID   string       `json:"order_id"`
	BuyerID   string       `json:"buyer_id"`
	StoreID   string       `json:"store_id"`
	Order     *order.Order `json:"order"`
	Timestamp time.Time    `json:"timestamp"`
}

// Header keys set on every message.
const (
	HeaderEventType = "event_type"
	HeaderEventID   = "event_id"
)

// Decode parses a message written by the Publisher. The payload id must
// be an event id and agree with the event_id header.
func Decode(msg kafka.Message) (*OrderEvent, error) {
	var evt OrderEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return nil, fmt.Errorf("events: decode: %w", err)
	}
	if evt.ID.Prefix() != id.PrefixEvent {
		return nil, fmt.Errorf("events: decode: %q is not an event id", evt.ID)
	}

	for _, h := range msg.Headers {
		if h.Key != HeaderEventID {
			continue
		}
		hid, err := id.ParseEventID(string(h.Value))
		if err != nil {
			return nil, fmt.Errorf("events: decode header: %w", err)
		}
		if hid.String() != evt.ID.String() {
			return nil, fmt.Errorf("events: header id %s does not match payload id %s", hid, evt.ID)
		}
	}

	return &evt, nil
}

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures a Kafka writer.
type Config struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// NewWriter builds a Kafka writer for cfg.
func NewWriter(cfg Config) *kafka.Writer {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           timeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// Publisher turns order hooks into Kafka messages.
type Publisher struct {
	writer MessageWriter
	logger *slog.Logger
	clock  func() time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.clock = now }
}

// NewPublisher creates a publisher writing through w.
func NewPublisher(w MessageWriter, opts ...Option) *Publisher {
	p := &Publisher{
		writer: w,
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements plugin.Plugin.
func (p *Publisher) Name() string { return "kafka-events" }

// OnOrderCreated implements plugin.OnOrderCreated.
func (p *Publisher) OnOrderCreated(ctx context.Context, o *order.Order) error {
	return p.publish(ctx, EventOrderCreated, o)
}

// OnOrderPaid implements plugin.OnOrderPaid.
func (p *Publisher) OnOrderPaid(ctx context.Context, o *order.Order) error {
	return p.publish(ctx, EventOrderPaid, o)
}

// OnOrderShipped implements plugin.OnOrderShipped.
func (p *Publisher) OnOrderShipped(ctx context.Context, o *order.Order) error {
	return p.publish(ctx, EventOrderShipped, o)
}

// OnOrderDelivered implements plugin.OnOrderDelivered.
func (p *Publisher) OnOrderDelivered(ctx context.Context, o *order.Order) error {
	return p.publish(ctx, EventOrderDelivered, o)
}

// OnOrderCancelled implements plugin.OnOrderCancelled. Sweeper
// cancellations are published as order.expired.
func (p *Publisher) OnOrderCancelled(ctx context.Context, o *order.Order) error {
	if o.TimeoutAt != nil {
		return p.publish(ctx, EventOrderExpired, o)
	}
	return p.publish(ctx, EventOrderCancelled, o)
}

// OnShutdown implements plugin.OnShutdown.
func (p *Publisher) OnShutdown(_ context.Context) error {
	return p.writer.Close()
}

func (p *Publisher) publish(ctx context.Context, typ EventType, o *order.Order) error {
	evt := OrderEvent{
		ID:        id.NewEventID(),
		Type:      typ,
		OrderID:   o.ID,
		BuyerID:   o.BuyerID,
		StoreID:   o.StoreID,
		Order:     o,
		Timestamp: p.clock().UTC(),
	}
	value, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(o.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(typ)},
			{Key: HeaderEventID, Value: []byte(evt.ID.String())},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("events: publish failed",
			"event_id", evt.ID,
			"event_type", typ,
			"order_id", o.ID,
			"error", err,
		)
		return err
	}

	p.logger.Debug("events: published", "event_id", evt.ID, "event_type", typ, "order_id", o.ID)
	return nil
}
