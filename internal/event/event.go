// Package event defines the order lifecycle envelopes carried on the messaging bus.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/paygate/internal/entity"
	"github.com/Additional-Code/paygate/internal/messaging"
)

// Type names an envelope.
type Type string

const (
	OrderCreated        Type = "order.created"
	OrderSettled        Type = "order.settled"
	EnrollmentRequested Type = "enrollment.requested"
)

// HeaderType carries the envelope type so consumers can route without decoding.
const HeaderType = "event-type"

// Envelope is the JSON body of every order event.
type Envelope struct {
	Type       Type               `json:"type"`
	OrderUID   string             `json:"order_uid"`
	CourseID   string             `json:"course_id"`
	Mode       string             `json:"mode"`
	Username   string             `json:"username"`
	Status     entity.OrderStatus `json:"status"`
	Amount     string             `json:"amount"`
	Currency   string             `json:"currency"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// FromOrder builds an envelope of the given type for the order.
func FromOrder(t Type, order *entity.Order, at time.Time) Envelope {
	return Envelope{
		Type:       t,
		OrderUID:   order.UID.String(),
		CourseID:   order.CourseID,
		Mode:       order.Mode,
		Username:   order.Username,
		Status:     order.Status,
		Amount:     order.AmountString(),
		Currency:   order.Currency,
		OccurredAt: at.UTC(),
	}
}

// Decode parses a message body. The header type wins over an empty body type.
func Decode(msg messaging.Message) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode event: %w", err)
	}
	if env.Type == "" {
		env.Type = Type(msg.Headers[HeaderType])
	}
	return env, nil
}

// ContextFrom restores the trace context injected by Publisher.
func ContextFrom(ctx context.Context, msg messaging.Message) context.Context {
	if len(msg.Headers) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Headers))
}

// Module provides the event publisher to Fx.
var Module = fx.Provide(NewPublisher)

// Publisher writes envelopes to the order topic.
type Publisher struct {
	client messaging.Client
	logger *zap.Logger
}

// NewPublisher wraps the messaging client.
func NewPublisher(client messaging.Client, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// Publish sends the envelope keyed by order uid, so events of one order stay ordered.
func (p *Publisher) Publish(ctx context.Context, env Envelope) error {
	if p == nil || p.client == nil {
		return nil
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", env.Type, err)
	}
	headers := map[string]string{HeaderType: string(env.Type)}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))

	if err := p.client.Publish(ctx, []byte(env.OrderUID), payload, headers); err != nil {
		return fmt.Errorf("publish %s: %w", env.Type, err)
	}
	return nil
}

// PublishBestEffort publishes and only logs failures.
func (p *Publisher) PublishBestEffort(ctx context.Context, env Envelope) {
	if err := p.Publish(ctx, env); err != nil && p.logger != nil {
		p.logger.Warn("order event not published",
			zap.String("type", string(env.Type)),
			zap.String("order_uid", env.OrderUID),
			zap.Error(err),
		)
	}
}
