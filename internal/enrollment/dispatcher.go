// Package enrollment turns paid orders into LMS enrollments.
package enrollment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/paygate/internal/config"
	"github.com/Additional-Code/paygate/internal/entity"
	"github.com/Additional-Code/paygate/internal/event"
	"github.com/Additional-Code/paygate/internal/lms"
)

// Enroller performs the actual enrollment call.
type Enroller interface {
	Enroll(ctx context.Context, username, courseID, mode string) error
}

// EventPublisher hands envelopes to the messaging bus.
type EventPublisher interface {
	Publish(ctx context.Context, env event.Envelope) error
}

// Dispatcher is invoked once per order, inside the settlement transaction.
// An error aborts the settlement.
type Dispatcher interface {
	Dispatch(ctx context.Context, order *entity.Order) error
}

// Module provides the configured dispatcher to Fx.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(func(c *lms.Client) *lms.Client { return c }, fx.As(new(Enroller))),
		fx.Annotate(func(p *event.Publisher) *event.Publisher { return p }, fx.As(new(EventPublisher))),
		New,
	),
)

// New selects the dispatcher from ENROLLMENT_DISPATCH.
func New(cfg config.Config, enroller Enroller, publisher EventPublisher, logger *zap.Logger) (Dispatcher, error) {
	switch cfg.Enrollment.Dispatch {
	case config.EnrollmentDirect, "":
		if cfg.LMS.ClientID == "" || cfg.LMS.ClientSecret == "" {
			logger.Warn("direct enrollment without LMS client credentials, every successful payment callback will be rejected")
		}
		return Direct{Enroller: enroller}, nil
	case config.EnrollmentQueue:
		logger.Info("enrollments are queued for the worker")
		return Queue{Publisher: publisher, Now: time.Now}, nil
	default:
		return nil, fmt.Errorf("unsupported enrollment dispatch: %s", cfg.Enrollment.Dispatch)
	}
}

// Direct enrolls synchronously through the LMS.
type Direct struct {
	Enroller Enroller
}

// Dispatch calls the LMS enrollment API.
func (d Direct) Dispatch(ctx context.Context, order *entity.Order) error {
	if err := d.Enroller.Enroll(ctx, order.Username, order.CourseID, order.Mode); err != nil {
		return fmt.Errorf("enroll order %s: %w", order.UID, err)
	}
	return nil
}

// Queue publishes an enrollment.requested event; the worker performs the call.
type Queue struct {
	Publisher EventPublisher
	Now       func() time.Time
}

// Dispatch publishes the request and fails when the broker does not accept it.
func (q Queue) Dispatch(ctx context.Context, order *entity.Order) error {
	now := time.Now
	if q.Now != nil {
		now = q.Now
	}
	if err := q.Publisher.Publish(ctx, event.FromOrder(event.EnrollmentRequested, order, now())); err != nil {
		return fmt.Errorf("queue enrollment for order %s: %w", order.UID, err)
	}
	return nil
}
