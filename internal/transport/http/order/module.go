package order

import (
	"go.uber.org/fx"

	service "github.com/Additional-Code/paygate/internal/service/order"
)

// Module wires the learner return page.
var Module = fx.Options(
	fx.Provide(func(svc *service.Service) *Handler { return NewHandler(svc) }),
	fx.Invoke(Register),
)
