package router

import (
	userapp "github.com/usagelab/mobile-usage-api/internal/application"
	"github.com/usagelab/mobile-usage-api/internal/container"
	pginfra "github.com/usagelab/mobile-usage-api/internal/infrastructure/postgres"
	handlers "github.com/usagelab/mobile-usage-api/internal/interface/http"
	"github.com/usagelab/mobile-usage-api/internal/router/modules"
)

// InitModules wires repository, service, and handlers from the container
// singletons and registers every feature module. Called once at startup.
func InitModules(r *Registry) {
	cfg := container.GetConfig()

	repo := pginfra.NewUserRepository(container.GetPGPool(), cfg.DBAcquireTimeout)
	service := userapp.NewService(
		repo,
		container.GetRedis(),
		cfg.CacheTTL,
		container.GetLogger(),
		container.GetEvents(),
		container.GetES(),
		cfg.ESUsersIndex,
		container.GetGCS(),
		cfg.GCSBucket,
	)

	userHandler := handlers.NewUserHandler(service, container.GetLogger())
	telemetryHandler := handlers.NewTelemetryHandler(service, container.GetLogger())

	r.Add(modules.NewUserModule(userHandler))
	r.Add(modules.NewTelemetryModule(telemetryHandler))
	if cfg.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule())
	}
}
