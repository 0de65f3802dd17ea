package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/paygate/internal/config"
	"github.com/Additional-Code/paygate/internal/coursekey"
	"github.com/Additional-Code/paygate/internal/entity"
	"github.com/Additional-Code/paygate/internal/event"
	"github.com/Additional-Code/paygate/internal/processor"
	catalogrepo "github.com/Additional-Code/paygate/internal/repository/catalog"
	orderrepo "github.com/Additional-Code/paygate/internal/repository/order"
	"github.com/Additional-Code/paygate/pkg/errorbank"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/paygate/service/checkout")
	serviceMeter  = otel.Meter("github.com/Additional-Code/paygate/service/checkout")
)

// maxAmount is the first value that no longer fits NUMERIC(12,2).
var maxAmount = decimal.New(1, 10)

// Module provides the checkout service to Fx.
var Module = fx.Provide(NewService)

// OrderStore persists new orders.
type OrderStore interface {
	Create(ctx context.Context, order *entity.Order) error
	AttachExternalTxnID(ctx context.Context, uid uuid.UUID, txnID string) (bool, error)
}

// ModeCatalog resolves the authoritative price of a course mode.
type ModeCatalog interface {
	Mode(ctx context.Context, courseID, slug string) (*entity.CourseMode, error)
}

// Gateway creates payments on the external processor.
type Gateway interface {
	Configured() bool
	Create(ctx context.Context, req processor.CreateRequest) (*processor.CreateResponse, error)
}

// Events receives lifecycle envelopes.
type Events interface {
	PublishBestEffort(ctx context.Context, env event.Envelope)
}

// Input describes one checkout attempt by an authenticated learner.
type Input struct {
	UserID   int64
	Username string
	Email    string
	CourseID string
	Mode     string
	// ReturnBaseURL is the origin the learner came from; the configured
	// PAYMENT_RETURN_BASE_URL takes precedence.
	ReturnBaseURL string
}

// Result carries the created order and where to send the learner.
type Result struct {
	Order       *entity.Order
	CheckoutURL string
}

// Service creates PENDING orders and hands learners to the processor.
type Service struct {
	orders    OrderStore
	catalog   ModeCatalog
	gateway   Gateway
	events    Events
	logger    *zap.Logger
	now       func() time.Time
	provider  string
	currency  string
	returnURL string
	basePath  string
	started   metric.Int64Counter
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Orders    *orderrepo.Repository
	Catalog   *catalogrepo.Repository
	Processor *processor.Client
	Events    *event.Publisher
	Config    config.Config
	Logger    *zap.Logger
}

// NewService wires a Service from the Fx graph.
func NewService(p Params) *Service {
	return New(p.Orders, p.Catalog, p.Processor, p.Events, p.Config, p.Logger, time.Now)
}

// New builds a Service from explicit collaborators.
func New(orders OrderStore, catalog ModeCatalog, gateway Gateway, events Events, cfg config.Config, logger *zap.Logger, now func() time.Time) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	started, err := serviceMeter.Int64Counter("paygate.checkouts",
		metric.WithDescription("Checkout attempts by outcome"),
	)
	if err != nil {
		started = noop.Int64Counter{}
	}
	return &Service{
		orders:    orders,
		catalog:   catalog,
		gateway:   gateway,
		events:    events,
		logger:    logger,
		now:       now,
		provider:  cfg.Payment.Provider,
		currency:  cfg.Payment.DefaultCurrency,
		returnURL: cfg.Payment.ReturnBaseURL,
		basePath:  cfg.HTTP.BasePath,
		started:   started,
	}
}

// Start creates a PENDING order and asks the processor for a checkout page.
// Every call creates a new order.
func (s *Service) Start(ctx context.Context, in Input) (*Result, error) {
	courseID := coursekey.Normalize(in.CourseID)
	if courseID == "" {
		return nil, s.fail(ctx, "invalid_input", errorbank.BadRequest("Missing course_id"))
	}
	key, err := coursekey.Parse(courseID)
	if err != nil {
		return nil, s.fail(ctx, "invalid_input", errorbank.BadRequest("Invalid course_id", errorbank.WithCause(err)))
	}
	courseID = key.String()
	modeSlug := in.Mode
	if modeSlug == "" {
		modeSlug = entity.DefaultMode
	}

	ctx, span := serviceTracer.Start(ctx, "CheckoutService.Start", trace.WithAttributes(
		attribute.String("course.id", courseID),
		attribute.String("course.mode", modeSlug),
	))
	defer span.End()

	mode, err := s.catalog.Mode(ctx, courseID, modeSlug)
	if err != nil {
		if errors.Is(err, catalogrepo.ErrNotFound) {
			return nil, s.fail(ctx, "invalid_input", errorbank.BadRequest("Invalid mode"))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog error")
		return nil, s.fail(ctx, "error", errorbank.Internal("failed to load course mode", errorbank.WithCause(err)))
	}
	if mode.Expired(s.now()) {
		return nil, s.fail(ctx, "invalid_input", errorbank.BadRequest("Mode expired"))
	}

	amount := mode.MinPrice.Round(2)
	if amount.IsNegative() || amount.GreaterThanOrEqual(maxAmount) {
		return nil, s.fail(ctx, "invalid_input", errorbank.BadRequest("Invalid price for mode",
			errorbank.WithDetail("min_price", mode.MinPrice.String()),
		))
	}

	if s.gateway == nil || !s.gateway.Configured() {
		return nil, s.fail(ctx, "not_configured", errorbank.BadRequest(processor.ErrNotConfigured.Error()))
	}

	currency := mode.Currency
	if currency == "" {
		currency = s.currency
	}

	order := &entity.Order{
		UID:      uuid.New(),
		UserID:   in.UserID,
		Username: in.Username,
		CourseID: courseID,
		Mode:     modeSlug,
		Amount:   amount,
		Currency: currency,
		Status:   entity.OrderPending,
		Provider: s.provider,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, s.fail(ctx, "error", errorbank.Internal("failed to create order", errorbank.WithCause(err)))
	}
	span.SetAttributes(attribute.String("order.uid", order.UID.String()))

	resp, err := s.gateway.Create(ctx, processor.CreateRequest{
		OrderUID:  order.UID.String(),
		Amount:    order.AmountString(),
		Currency:  order.Currency,
		Provider:  order.Provider,
		ReturnURL: s.returnPageURL(in.ReturnBaseURL, order.UID),
		Customer:  processor.Customer{Username: in.Username, Email: in.Email},
		Metadata:  processor.Metadata{CourseID: order.CourseID, Mode: order.Mode},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway error")
		s.logger.Warn("payment creation failed; order left pending",
			zap.String("order_uid", order.UID.String()),
			zap.Error(err),
		)
		if errors.Is(err, processor.ErrNotConfigured) {
			return nil, s.fail(ctx, "not_configured", errorbank.BadRequest(err.Error()))
		}
		return nil, s.fail(ctx, "gateway_error", errorbank.BadGateway("payment gateway error",
			errorbank.WithCause(err),
			errorbank.WithDetail("order_uid", order.UID.String()),
		))
	}

	if resp.TxnID != "" {
		attached, err := s.orders.AttachExternalTxnID(ctx, order.UID, resp.TxnID)
		switch {
		case err != nil:
			s.logger.Warn("provisional txn id not stored", zap.String("order_uid", order.UID.String()), zap.Error(err))
		case attached:
			order.ExternalTxnID = resp.TxnID
		}
	}

	if s.events != nil {
		s.events.PublishBestEffort(ctx, event.FromOrder(event.OrderCreated, order, s.now()))
	}
	s.started.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "redirected")))
	s.logger.Info("checkout started",
		zap.String("order_uid", order.UID.String()),
		zap.String("course_id", order.CourseID),
		zap.String("amount", order.AmountString()),
		zap.String("currency", order.Currency),
	)

	return &Result{Order: order, CheckoutURL: resp.CheckoutURL}, nil
}

func (s *Service) returnPageURL(requestBase string, uid uuid.UUID) string {
	base := s.returnURL
	if base == "" {
		base = requestBase
	}
	return base + s.basePath + "/return/" + uid.String() + "/"
}

func (s *Service) fail(ctx context.Context, outcome string, err error) error {
	s.started.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return err
}
