package app

import (
	"go.uber.org/fx"

	"github.com/gavelhouse/gavel/internal/cache"
	"github.com/gavelhouse/gavel/internal/config"
	"github.com/gavelhouse/gavel/internal/database"
	"github.com/gavelhouse/gavel/internal/eventbus"
	"github.com/gavelhouse/gavel/internal/logger"
	"github.com/gavelhouse/gavel/internal/notification"
	"github.com/gavelhouse/gavel/internal/observability"
	auctionrepo "github.com/gavelhouse/gavel/internal/repository/auction"
	bidrepo "github.com/gavelhouse/gavel/internal/repository/bid"
	httpserver "github.com/gavelhouse/gavel/internal/server/http"
	auctionsvc "github.com/gavelhouse/gavel/internal/service/auction"
	"github.com/gavelhouse/gavel/internal/sweeper"
	transporthttp "github.com/gavelhouse/gavel/internal/transport/http"
	"github.com/gavelhouse/gavel/internal/worker"
	workerdelivery "github.com/gavelhouse/gavel/internal/worker/delivery"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	logger.Module,
	observability.Module,
	database.Module,
	cache.Module,
	eventbus.Module,
	notification.Module,
	auctionrepo.Module,
	bidrepo.Module,
	auctionsvc.Module,
)

// HTTP wires the HTTP transport plus the lifecycle sweeper on top of the
// core modules. The sweeper runs in the API process so a single-binary
// deployment still advances auctions.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	transporthttp.Module,
	sweeper.Module,
)

// Sweep runs only the lifecycle sweeper, for deployments that separate
// request serving from background processing.
var Sweep = fx.Options(
	Core,
	sweeper.Module,
)

// Worker exposes the notification delivery worker.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerdelivery.Module,
)

// Module is the default application wiring (HTTP + sweeper).
var Module = HTTP
