package order

import (
	"bytes"
	"context"
	"html/template"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/paygate/internal/dto"
	"github.com/Additional-Code/paygate/internal/presentation/http/response"
	"github.com/Additional-Code/paygate/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/paygate/transport/http/order")

var returnPage = template.Must(template.New("return").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>Payment status</title></head>
<body>
<p data-status="{{.Status}}">{{.Message}}</p>
</body>
</html>
`))

// StatusResolver maps an order uid to its return page.
type StatusResolver interface {
	ReturnStatus(ctx context.Context, uid string) (*dto.OrderStatusResponse, error)
}

// Handler serves the page learners land on after the processor checkout.
type Handler struct {
	svc StatusResolver
}

// NewHandler constructs an order Handler.
func NewHandler(svc StatusResolver) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the return page. The uid is unguessable, so no session is required.
func Register(g *echo.Group, h *Handler) {
	g.GET("/return/:uid", h.returnPage)
	g.GET("/return/:uid/", h.returnPage)
}

func (h *Handler) returnPage(c echo.Context) error {
	uid := c.Param("uid")
	ctx, span := httpTracer.Start(c.Request().Context(), "orders.returnPage", trace.WithAttributes(attribute.String("order.uid", uid)))
	defer span.End()

	status, err := h.svc.ReturnStatus(ctx, uid)
	if err != nil {
		if wantsJSON(c) {
			return response.New(c).WithError(err).Build()
		}
		appErr := errorbank.From(err)
		return c.String(appErr.StatusCode(), appErr.Message())
	}

	if wantsJSON(c) {
		return response.New(c).WithData(status).Raw().Build()
	}

	var buf bytes.Buffer
	if err := returnPage.Execute(&buf, status); err != nil {
		return response.New(c).WithError(errorbank.Internal("render failed", errorbank.WithCause(err))).Build()
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

func wantsJSON(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}
