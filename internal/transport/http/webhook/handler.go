package webhook

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/Additional-Code/paygate/internal/config"
	"github.com/Additional-Code/paygate/internal/presentation/http/response"
	service "github.com/Additional-Code/paygate/internal/service/confirmation"
	"github.com/Additional-Code/paygate/pkg/errorbank"
)

// maxBodyBytes bounds a processor callback.
const maxBodyBytes = 64 << 10

// Module wires the processor webhook.
var Module = fx.Options(
	fx.Provide(func(svc *service.Service, cfg config.Config) *Handler {
		return NewHandler(svc, cfg.Payment.SignatureHeader)
	}),
	fx.Invoke(Register),
)

// Confirmer applies a signed callback.
type Confirmer interface {
	Confirm(ctx context.Context, rawBody []byte, signature string) error
}

// Handler receives processor callbacks. It carries no session auth; the HMAC is the credential.
type Handler struct {
	svc    Confirmer
	header string
}

// NewHandler constructs a webhook Handler reading the signature from header.
func NewHandler(svc Confirmer, header string) *Handler {
	if header == "" {
		header = config.DefaultSignatureHeader
	}
	return &Handler{svc: svc, header: header}
}

// Register mounts the confirmation route.
func Register(g *echo.Group, h *Handler) {
	g.POST("/internal/confirm", h.confirm)
	g.POST("/internal/confirm/", h.confirm)
}

func (h *Handler) confirm(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes+1))
	if err != nil {
		return response.New(c).WithError(errorbank.BadRequest("unreadable body", errorbank.WithCause(err))).Build()
	}
	if len(body) > maxBodyBytes {
		return response.New(c).WithError(errorbank.BadRequest("body too large")).Build()
	}

	if err := h.svc.Confirm(c.Request().Context(), body, c.Request().Header.Get(h.header)); err != nil {
		return response.New(c).WithError(err).Build()
	}
	return response.New(c).WithStatus(http.StatusOK).WithData(service.Ack()).Raw().Build()
}
