package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/paygate/internal/cache"
	"github.com/Additional-Code/paygate/internal/config"
	"github.com/Additional-Code/paygate/internal/database"
	"github.com/Additional-Code/paygate/internal/enrollment"
	"github.com/Additional-Code/paygate/internal/event"
	"github.com/Additional-Code/paygate/internal/lms"
	"github.com/Additional-Code/paygate/internal/logger"
	"github.com/Additional-Code/paygate/internal/messaging"
	"github.com/Additional-Code/paygate/internal/observability"
	"github.com/Additional-Code/paygate/internal/processor"
	repositorycatalog "github.com/Additional-Code/paygate/internal/repository/catalog"
	repositoryorder "github.com/Additional-Code/paygate/internal/repository/order"
	grpcserver "github.com/Additional-Code/paygate/internal/server/grpc"
	httpserver "github.com/Additional-Code/paygate/internal/server/http"
	servicecheckout "github.com/Additional-Code/paygate/internal/service/checkout"
	serviceconfirmation "github.com/Additional-Code/paygate/internal/service/confirmation"
	serviceorder "github.com/Additional-Code/paygate/internal/service/order"
	servicepricing "github.com/Additional-Code/paygate/internal/service/pricing"
	transporthttp "github.com/Additional-Code/paygate/internal/transport/http"
	"github.com/Additional-Code/paygate/internal/worker"
	workerorder "github.com/Additional-Code/paygate/internal/worker/order"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	fx.WithLogger(logger.FxLogger),
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	event.Module,
	repositoryorder.Module,
	repositorycatalog.Module,
	serviceorder.Module,
)

// Payments adds the outbound clients and the order lifecycle services.
var Payments = fx.Options(
	processor.Module,
	lms.Module,
	enrollment.Module,
	servicepricing.Module,
	servicecheckout.Module,
	serviceconfirmation.Module,
)

// HTTP wires the HTTP and gRPC health transports on top of the core modules.
var HTTP = fx.Options(
	Core,
	Payments,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker consumes order events and performs queued enrollments.
var Worker = fx.Options(
	Core,
	lms.Module,
	enrollment.Module,
	worker.Module,
	workerorder.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
