package confirmation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/paygate/internal/config"
	"github.com/Additional-Code/paygate/internal/dto"
	"github.com/Additional-Code/paygate/internal/enrollment"
	"github.com/Additional-Code/paygate/internal/entity"
	"github.com/Additional-Code/paygate/internal/event"
	orderrepo "github.com/Additional-Code/paygate/internal/repository/order"
	"github.com/Additional-Code/paygate/pkg/errorbank"
	"github.com/Additional-Code/paygate/pkg/signature"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/paygate/service/confirmation")
	serviceMeter  = otel.Meter("github.com/Additional-Code/paygate/service/confirmation")
)

// Webhook status values sent by the processor.
const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

var targetStatus = map[string]entity.OrderStatus{
	StatusSuccess:  entity.OrderPaid,
	StatusFailed:   entity.OrderFailed,
	StatusCanceled: entity.OrderCanceled,
}

// Module provides the confirmation service to Fx.
var Module = fx.Provide(NewService)

// OrderStore resolves and settles orders.
type OrderStore interface {
	GetByUID(ctx context.Context, uid uuid.UUID) (*entity.Order, error)
	Settle(ctx context.Context, uid uuid.UUID, to entity.OrderStatus, txnID string, fn orderrepo.TransitionFunc) (bool, *entity.Order, error)
}

// Events receives lifecycle envelopes.
type Events interface {
	PublishBestEffort(ctx context.Context, env event.Envelope)
}

// Service applies signed processor callbacks to orders.
type Service struct {
	orders    OrderStore
	enroller  enrollment.Dispatcher
	events    Events
	secret    []byte
	logger    *zap.Logger
	now       func() time.Time
	confirmed metric.Int64Counter
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Orders     *orderrepo.Repository
	Dispatcher enrollment.Dispatcher
	Events     *event.Publisher
	Config     config.Config
	Logger     *zap.Logger
}

// NewService wires a Service from the Fx graph.
func NewService(p Params) *Service {
	return New(p.Orders, p.Dispatcher, p.Events, []byte(p.Config.Payment.SharedSecret), p.Logger, time.Now)
}

// New builds a Service from explicit collaborators.
func New(orders OrderStore, enroller enrollment.Dispatcher, events Events, secret []byte, logger *zap.Logger, now func() time.Time) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	confirmed, err := serviceMeter.Int64Counter("paygate.confirmations",
		metric.WithDescription("Processor callbacks by resulting status and outcome"),
	)
	if err != nil {
		confirmed = noop.Int64Counter{}
	}
	return &Service{
		orders:    orders,
		enroller:  enroller,
		events:    events,
		secret:    secret,
		logger:    logger,
		now:       now,
		confirmed: confirmed,
	}
}

// Confirm verifies and applies one callback. The signature is checked over
// the raw body before anything is parsed. Internal failures surface as client
// errors so the processor never sees a 5xx.
func (s *Service) Confirm(ctx context.Context, rawBody []byte, sig string) error {
	ctx, span := serviceTracer.Start(ctx, "ConfirmationService.Confirm")
	defer span.End()

	err := s.confirm(ctx, span, rawBody, sig)
	if err != nil {
		outcome := string(errorbank.From(err).Kind())
		s.confirmed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		span.SetStatus(codes.Error, outcome)
	}
	return downgrade(err)
}

func (s *Service) confirm(ctx context.Context, span trace.Span, rawBody []byte, sig string) error {
	if len(s.secret) == 0 {
		return errorbank.BadRequest("payment gateway is not configured")
	}
	if !signature.Verify(s.secret, rawBody, sig) {
		return errorbank.Forbidden("invalid signature")
	}

	var req dto.ConfirmationRequest
	if err := json.Unmarshal(rawBody, &req); err != nil {
		return errorbank.BadRequest("invalid JSON", errorbank.WithCause(err))
	}
	span.SetAttributes(
		attribute.String("order.uid", req.OrderUID),
		attribute.String("webhook.status", req.Status),
	)

	uid, err := uuid.Parse(req.OrderUID)
	if err != nil {
		return errorbank.NotFound("order not found")
	}
	order, err := s.orders.GetByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		return errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}

	if req.Amount != order.AmountString() || req.Currency != order.Currency {
		s.logger.Warn("callback amount mismatch",
			zap.String("order_uid", req.OrderUID),
			zap.String("amount", req.Amount),
			zap.String("expected_amount", order.AmountString()),
			zap.String("currency", req.Currency),
			zap.String("expected_currency", order.Currency),
		)
		return errorbank.BadRequest("amount/currency mismatch")
	}

	to, ok := targetStatus[req.Status]
	if !ok {
		return errorbank.BadRequest("unknown status", errorbank.WithDetail("status", req.Status))
	}

	var (
		txnID string
		fn    orderrepo.TransitionFunc
	)
	if to == entity.OrderPaid {
		txnID = req.TxnID
		if s.enroller != nil {
			fn = s.enroller.Dispatch
		}
	}

	changed, settled, err := s.orders.Settle(ctx, uid, to, txnID, fn)
	switch {
	case errors.Is(err, orderrepo.ErrConflict):
		opts := []errorbank.Option{errorbank.WithCause(err)}
		if settled != nil {
			opts = append(opts, errorbank.WithDetail("status", string(settled.Status)))
		}
		return errorbank.Conflict("order already settled", opts...)
	case errors.Is(err, orderrepo.ErrNotFound):
		return errorbank.NotFound("order not found")
	case err != nil:
		span.RecordError(err)
		s.logger.Error("settlement failed; order left pending",
			zap.String("order_uid", req.OrderUID),
			zap.String("status", string(to)),
			zap.Error(err),
		)
		return errorbank.Internal("failed to settle order", errorbank.WithCause(err))
	}

	result := "duplicate"
	if changed {
		result = "settled"
		if s.events != nil {
			s.events.PublishBestEffort(ctx, event.FromOrder(event.OrderSettled, settled, s.now()))
		}
		s.logger.Info("order settled",
			zap.String("order_uid", req.OrderUID),
			zap.String("status", string(to)),
			zap.String("txn_id", txnID),
		)
	}
	s.confirmed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", result),
		attribute.String("status", string(to)),
	))
	return nil
}

// Ack is the body answered for every accepted callback.
func Ack() dto.Ack {
	return dto.Ack{OK: true}
}

func downgrade(err error) error {
	if err == nil {
		return nil
	}
	appErr := errorbank.From(err)
	if appErr.Kind() != errorbank.KindInternal {
		return appErr
	}
	return errorbank.BadRequest(appErr.Message(), errorbank.WithCause(appErr))
}
