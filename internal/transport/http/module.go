package http

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/Additional-Code/paygate/internal/config"
	checkouttransport "github.com/Additional-Code/paygate/internal/transport/http/checkout"
	"github.com/Additional-Code/paygate/internal/transport/http/middleware"
	ordertransport "github.com/Additional-Code/paygate/internal/transport/http/order"
	pricingtransport "github.com/Additional-Code/paygate/internal/transport/http/pricing"
	webhooktransport "github.com/Additional-Code/paygate/internal/transport/http/webhook"
)

// Module aggregates all HTTP transport handlers under the configured base path.
var Module = fx.Options(
	fx.Provide(NewBaseGroup),
	middleware.Module,
	pricingtransport.Module,
	checkouttransport.Module,
	webhooktransport.Module,
	ordertransport.Module,
)

// NewBaseGroup mounts every payment route below HTTP_BASE_PATH.
func NewBaseGroup(e *echo.Echo, cfg config.Config) *echo.Group {
	return e.Group(cfg.HTTP.BasePath)
}
