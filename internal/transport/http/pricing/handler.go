package pricing

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"

	"github.com/Additional-Code/paygate/internal/dto"
	"github.com/Additional-Code/paygate/internal/presentation/http/response"
	service "github.com/Additional-Code/paygate/internal/service/pricing"
	"github.com/Additional-Code/paygate/internal/transport/http/middleware"
	"github.com/Additional-Code/paygate/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/paygate/transport/http/pricing")

const priceSuffix = "/price"

// Module wires the staff pricing endpoints.
var Module = fx.Options(
	fx.Provide(func(svc *service.Service) *Handler { return NewHandler(svc) }),
	fx.Invoke(Register),
)

// Querier answers pricing queries.
type Querier interface {
	Query(ctx context.Context, rawCourseID string) (*dto.CoursePricing, error)
}

// Handler exposes course pricing over HTTP.
type Handler struct {
	svc Querier
}

// NewHandler constructs a pricing Handler.
func NewHandler(svc Querier) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the staff-only pricing routes.
func Register(g *echo.Group, h *Handler, auth *middleware.Authenticator) {
	staff := []echo.MiddlewareFunc{auth.RequireUser(), auth.RequireStaff()}
	g.GET("/api/course-price", h.byQuery, staff...)
	g.GET("/api/course-price/", h.byQuery, staff...)
	g.GET("/api/course/*", h.byPath, staff...)
}

func (h *Handler) byQuery(c echo.Context) error {
	raw := c.QueryParam("course_id")
	if raw == "" {
		raw = c.QueryParam("course")
	}
	return h.respond(c, raw)
}

// byPath serves /api/course/<course_id>/price; the course id may contain slashes.
func (h *Handler) byPath(c echo.Context) error {
	rest := strings.TrimSuffix(c.Param("*"), "/")
	if !strings.HasSuffix(rest, priceSuffix) {
		return response.New(c).WithError(errorbank.NotFound("route not found")).Build()
	}
	raw := strings.TrimSuffix(rest, priceSuffix)
	if strings.TrimSpace(raw) == "" {
		return response.New(c).WithError(errorbank.BadRequest("Invalid course_id")).Build()
	}
	return h.respond(c, raw)
}

func (h *Handler) respond(c echo.Context, raw string) error {
	ctx, span := httpTracer.Start(c.Request().Context(), "pricing.query")
	defer span.End()

	report, err := h.svc.Query(ctx, raw)
	if err != nil {
		return response.New(c).WithError(err).Build()
	}
	return response.New(c).WithStatus(http.StatusOK).WithData(report).Raw().Build()
}
