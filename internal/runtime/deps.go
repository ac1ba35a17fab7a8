package runtime

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/architeacher/svc-device-manager/internal/adapters"
	"github.com/architeacher/svc-device-manager/internal/adapters/middleware"
	"github.com/architeacher/svc-device-manager/internal/adapters/repos"
	"github.com/architeacher/svc-device-manager/internal/config"
	"github.com/architeacher/svc-device-manager/internal/infrastructure"
	"github.com/architeacher/svc-device-manager/internal/ports"
	"github.com/architeacher/svc-device-manager/internal/service"
	"github.com/architeacher/svc-device-manager/internal/shared/backoff"
	"github.com/architeacher/svc-device-manager/internal/worker"
	"github.com/architeacher/svc-device-manager/internal/worker/sagas"
)

type (
	Repos struct {
		DeviceRepo    ports.DeviceRepository
		OutboxRepo    ports.OutboxRepository
		SagaRepo      ports.SagaStateRepository
		ReadModelRepo ports.DeviceReadModelRepository
	}

	Clients struct {
		Tenancy       ports.TenancyClient
		EmailSender   ports.EmailSender
		DeviceService ports.DeviceServiceClient
	}

	InfrastructureDeps struct {
		HTTPServer    *http.Server
		StorageClient *infrastructure.Storage
		Metrics       *infrastructure.Metrics
	}

	Dependencies struct {
		cfg    *config.ServiceConfig
		logger infrastructure.Logger

		Infra   InfrastructureDeps
		Repos   Repos
		Clients Clients

		DeviceService service.DeviceService
		OutboxPoller  *worker.Poller
	}
)

func initializeDependencies(opts ...DependencyOption) (*Dependencies, error) {
	cfg, err := config.Init()
	if err != nil {
		return nil, fmt.Errorf("unable to load service configuration: %w", err)
	}

	appLogger := infrastructure.New(cfg.Logging)

	appLogger.Info().Msg("initializing dependencies...")

	storageClient, err := infrastructure.NewStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to storage: %w", err)
	}

	deps := &Dependencies{
		cfg:    cfg,
		logger: appLogger,
		Infra: InfrastructureDeps{
			StorageClient: storageClient,
			Metrics:       infrastructure.NewMetrics(),
		},
		Repos: Repos{
			DeviceRepo:    repos.NewDeviceRepository(storageClient.DB),
			OutboxRepo:    repos.NewOutboxRepository(storageClient.DB),
			SagaRepo:      repos.NewSagaStateRepository(storageClient.DB),
			ReadModelRepo: repos.NewDeviceReadModelRepository(storageClient.DB),
		},
		Clients: Clients{
			Tenancy:       adapters.NewTenancyClient(cfg.Tenancy, cfg.HTTPClient, cfg.Breaker, appLogger),
			EmailSender:   adapters.NewResendEmailSender(cfg.Email, cfg.HTTPClient, cfg.Breaker, appLogger),
			DeviceService: adapters.NewDeviceServiceClient(cfg.DeviceService, cfg.HTTPClient, appLogger),
		},
	}

	deps.DeviceService = service.NewDeviceService(
		storageClient,
		deps.Repos.DeviceRepo,
		deps.Repos.OutboxRepo,
		deps.Repos.ReadModelRepo,
		appLogger,
	)

	for _, opt := range opts {
		if err := opt(deps); err != nil {
			return nil, fmt.Errorf("failed to apply dependency option: %w", err)
		}
	}

	appLogger.Info().Msg("dependencies initialized successfully")

	return deps, nil
}

func initOutboxPoller(deps *Dependencies) *worker.Poller {
	projector := worker.NewProjector(deps.Repos.ReadModelRepo, deps.Clients.Tenancy, deps.logger)
	retirement := sagas.NewRetirementSaga(
		deps.Repos.SagaRepo,
		deps.Clients.Tenancy,
		deps.Clients.EmailSender,
		deps.Clients.DeviceService,
		deps.Infra.Metrics,
		deps.logger,
	)
	dispatcher := worker.NewDispatcher(projector, retirement, deps.Clients.Tenancy, deps.Clients.EmailSender, deps.logger)

	return worker.NewPoller(
		deps.Infra.StorageClient,
		deps.Repos.OutboxRepo,
		dispatcher,
		backoff.NewFullJitterStrategy(deps.cfg.Retry),
		deps.cfg.Worker,
		deps.cfg.Retry,
		deps.Infra.Metrics,
		deps.logger,
	)
}

func initHTTPServer(deps *Dependencies) (*http.Server, error) {
	cfg := deps.cfg

	router := chi.NewRouter()
	router.Use(
		chimiddleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		chimiddleware.Timeout(cfg.HTTPServer.WriteTimeout),
	)

	if cfg.Logging.AccessLog.Enabled {
		accessLogger := middleware.NewAccessLogger(deps.logger.Logger, cfg.Logging.AccessLog.LogHealthChecks)
		router.Use(accessLogger.Middleware)
	}

	if cfg.Metrics.Enabled {
		router.Use(middleware.NewMetricsMiddleware(deps.Infra.Metrics).Middleware)
		router.Method(http.MethodGet, "/metrics", deps.Infra.Metrics.Handler())
	}

	if cfg.RateLimiting.Enabled {
		rateLimiter, err := middleware.NewRateLimiter(cfg.RateLimiting)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}

		router.Use(rateLimiter.Middleware)
		deps.logger.Info().Msg("rate limiting enabled")
	}

	router.Get("/health", healthHandler(deps))

	router.Group(func(r chi.Router) {
		auth := middleware.NewInternalAuth(cfg.Auth, deps.logger)
		r.Use(auth.Middleware)

		adapters.NewRequestHandler(deps.DeviceService, deps.logger).RegisterRoutes(r)
	})

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.HTTPServer.Host, fmt.Sprintf("%d", cfg.HTTPServer.Port)),
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	deps.logger.Info().Str("addr", server.Addr).Msg("HTTP server created")

	return server, nil
}

func healthHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "UP"
		statusCode := http.StatusOK

		if err := deps.Infra.StorageClient.Ping(r.Context()); err != nil {
			status = "DOWN"
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(map[string]string{
			"status":  status,
			"version": deps.cfg.AppConfig.ServiceVersion,
		})
	}
}
