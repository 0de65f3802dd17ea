package order

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/paygate/internal/config"
	"github.com/Additional-Code/paygate/internal/enrollment"
	"github.com/Additional-Code/paygate/internal/event"
	"github.com/Additional-Code/paygate/internal/lms"
	"github.com/Additional-Code/paygate/internal/messaging"
	"github.com/Additional-Code/paygate/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/paygate/worker/order")

const enrollAttempts = 3

// Module registers the order event handler with the worker engine.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewEventHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// Params collects handler dependencies.
type Params struct {
	fx.In

	Enroller enrollment.Enroller
	Logger   *zap.Logger
	Config   config.Config
}

// NewEventHandler consumes the order topic: lifecycle events are logged and
// enrollment requests are executed against the LMS.
func NewEventHandler(p Params) worker.HandlerRegistration {
	h := &eventHandler{enroller: p.Enroller, logger: p.Logger, backoff: time.Second}
	return worker.HandlerRegistration{
		Topic:   p.Config.Messaging.Kafka.Topic,
		Handler: h.handle,
	}
}

type eventHandler struct {
	enroller enrollment.Enroller
	logger   *zap.Logger
	backoff  time.Duration
}

func (h *eventHandler) handle(ctx context.Context, msg messaging.Message) error {
	ctx = event.ContextFrom(ctx, msg)
	ctx, span := workerTracer.Start(ctx, "worker.orders.process", trace.WithAttributes(
		attribute.String("messaging.topic", msg.Topic),
		attribute.Int64("messaging.offset", msg.Offset),
	))
	defer span.End()

	env, err := event.Decode(msg)
	if err != nil {
		// Undecodable payloads are never going to succeed; skip them.
		h.logger.Error("failed to decode order event", zap.Int64("offset", msg.Offset), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode error")
		return nil
	}
	span.SetAttributes(
		attribute.String("event.type", string(env.Type)),
		attribute.String("order.uid", env.OrderUID),
	)

	fields := []zap.Field{
		zap.String("type", string(env.Type)),
		zap.String("order_uid", env.OrderUID),
		zap.String("course_id", env.CourseID),
		zap.String("status", string(env.Status)),
	}

	switch env.Type {
	case event.OrderCreated, event.OrderSettled:
		h.logger.Info("order event processed", fields...)
		return nil
	case event.EnrollmentRequested:
		if err := h.enroll(ctx, env); err != nil {
			h.logger.Error("enrollment failed", append(fields, zap.Error(err))...)
			span.RecordError(err)
			span.SetStatus(codes.Error, "enrollment failed")
			return err
		}
		h.logger.Info("enrollment completed", append(fields, zap.String("username", env.Username), zap.String("mode", env.Mode))...)
		return nil
	default:
		h.logger.Warn("unknown order event", fields...)
		return nil
	}
}

func (h *eventHandler) enroll(ctx context.Context, env event.Envelope) error {
	wait := h.backoff
	var err error
	for attempt := 1; attempt <= enrollAttempts; attempt++ {
		err = h.enroller.Enroll(ctx, env.Username, env.CourseID, env.Mode)
		if err == nil || errors.Is(err, lms.ErrNotConfigured) || attempt == enrollAttempts {
			return err
		}
		h.logger.Warn("retrying enrollment", zap.String("order_uid", env.OrderUID), zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
