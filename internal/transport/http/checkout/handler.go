package checkout

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"

	"github.com/Additional-Code/paygate/internal/presentation/http/response"
	service "github.com/Additional-Code/paygate/internal/service/checkout"
	"github.com/Additional-Code/paygate/internal/transport/http/middleware"
	"github.com/Additional-Code/paygate/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/paygate/transport/http/checkout")

// Module wires the learner checkout endpoint.
var Module = fx.Options(
	fx.Provide(func(svc *service.Service) *Handler { return NewHandler(svc) }),
	fx.Invoke(Register),
)

// Starter begins a checkout.
type Starter interface {
	Start(ctx context.Context, in service.Input) (*service.Result, error)
}

// Handler redirects authenticated learners to the processor checkout page.
type Handler struct {
	svc Starter
}

// NewHandler constructs a checkout Handler.
func NewHandler(svc Starter) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the checkout route.
func Register(g *echo.Group, h *Handler, auth *middleware.Authenticator) {
	g.GET("/api/checkout", h.start, auth.RequireUser())
	g.GET("/api/checkout/", h.start, auth.RequireUser())
}

func (h *Handler) start(c echo.Context) error {
	user, ok := middleware.UserFrom(c)
	if !ok {
		return response.New(c).WithError(errorbank.Unauthorized("authentication required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "checkout.start")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", user.UserID))

	res, err := h.svc.Start(ctx, service.Input{
		UserID:        user.UserID,
		Username:      user.Username,
		Email:         user.Email,
		CourseID:      c.QueryParam("course_id"),
		Mode:          c.QueryParam("mode"),
		ReturnBaseURL: c.Scheme() + "://" + c.Request().Host,
	})
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	return c.Redirect(http.StatusFound, res.CheckoutURL)
}
