package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/paygate/internal/dto"
	"github.com/Additional-Code/paygate/internal/entity"
	repo "github.com/Additional-Code/paygate/internal/repository/order"
	"github.com/Additional-Code/paygate/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/paygate/service/order")

// Learner-facing return page messages.
const (
	MessagePaid       = "Payment successful. You are now enrolled in the course."
	MessageFailed     = "Payment failed or was canceled. No charge was made; you can try again."
	MessageProcessing = "Your payment is still being processed. Please refresh this page in a moment."
)

// Store reads orders.
type Store interface {
	GetByUID(ctx context.Context, uid uuid.UUID) (*entity.Order, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]entity.Order, error)
}

// Service answers read-only questions about orders.
type Service struct {
	repo   Store
	logger *zap.Logger
	now    func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Logger     *zap.Logger
}

// NewService wires a Service from the Fx graph.
func NewService(p Params) *Service {
	return New(p.Repository, p.Logger, time.Now)
}

// New builds a Service from explicit collaborators.
func New(store Store, logger *zap.Logger, now func() time.Time) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Service{repo: store, logger: logger, now: now}
}

// ReturnStatus resolves the page shown when the learner comes back from the processor.
func (s *Service) ReturnStatus(ctx context.Context, rawUID string) (*dto.OrderStatusResponse, error) {
	uid, err := uuid.Parse(rawUID)
	if err != nil {
		return nil, errorbank.NotFound("order not found")
	}

	ctx, span := serviceTracer.Start(ctx, "OrderService.ReturnStatus", trace.WithAttributes(attribute.String("order.uid", uid.String())))
	defer span.End()

	order, err := s.repo.GetByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}

	return &dto.OrderStatusResponse{
		OrderUID:  order.UID.String(),
		CourseID:  order.CourseID,
		Mode:      order.Mode,
		Status:    string(order.Status),
		Message:   StatusMessage(order.Status),
		UpdatedAt: order.UpdatedAt,
	}, nil
}

// StatusMessage maps an order status to the return page message.
func StatusMessage(status entity.OrderStatus) string {
	switch status {
	case entity.OrderPaid:
		return MessagePaid
	case entity.OrderFailed, entity.OrderCanceled:
		return MessageFailed
	default:
		return MessageProcessing
	}
}

// StalePending lists PENDING orders untouched for longer than olderThan.
func (s *Service) StalePending(ctx context.Context, olderThan time.Duration, limit int) ([]dto.StaleOrder, error) {
	if olderThan <= 0 {
		return nil, errorbank.BadRequest("older-than must be positive")
	}
	orders, err := s.repo.ListStalePending(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return nil, errorbank.Internal("failed to list stale orders", errorbank.WithCause(err))
	}

	out := make([]dto.StaleOrder, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		out = append(out, dto.StaleOrder{
			OrderUID:      o.UID.String(),
			Username:      o.Username,
			CourseID:      o.CourseID,
			Mode:          o.Mode,
			Amount:        o.AmountString(),
			Currency:      o.Currency,
			ExternalTxnID: o.ExternalTxnID,
			CreatedAt:     o.CreatedAt,
			UpdatedAt:     o.UpdatedAt,
		})
	}
	return out, nil
}
