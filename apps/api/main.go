package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	deliverieshandler "github.com/alltowndelivery/platform/domains/deliveries/be/handler"
	deliveriesrepo "github.com/alltowndelivery/platform/domains/deliveries/be/repo"
	deliveriesservice "github.com/alltowndelivery/platform/domains/deliveries/be/service"
	tenantshandler "github.com/alltowndelivery/platform/domains/tenants/be/handler"
	tenantsrepo "github.com/alltowndelivery/platform/domains/tenants/be/repo"
	tenantsservice "github.com/alltowndelivery/platform/domains/tenants/be/service"
	usershandler "github.com/alltowndelivery/platform/domains/users/be/handler"
	usersrepo "github.com/alltowndelivery/platform/domains/users/be/repo"
	usersservice "github.com/alltowndelivery/platform/domains/users/be/service"
	"github.com/alltowndelivery/platform/platform/go/cache"
	"github.com/alltowndelivery/platform/platform/go/failover"
	"github.com/alltowndelivery/platform/platform/go/identity"
	platformlogging "github.com/alltowndelivery/platform/platform/go/logging"
	"github.com/alltowndelivery/platform/platform/go/metrics"
	platformmiddleware "github.com/alltowndelivery/platform/platform/go/middleware"
	"github.com/alltowndelivery/platform/platform/go/persistence"
	"github.com/alltowndelivery/platform/platform/go/pricing"
	"github.com/alltowndelivery/platform/platform/go/tenant"
	tenantmiddleware "github.com/alltowndelivery/platform/platform/go/tenant/middleware"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	PlatformHosts   []string      `env:"PLATFORM_HOSTS" envDefault:"alltowndelivery.com,www.alltowndelivery.com,localhost,127.0.0.1"`
	TenantCacheTTL  time.Duration `env:"TENANT_CACHE_TTL" envDefault:"5m"`
	HealthCacheTTL  time.Duration `env:"HEALTH_CACHE_TTL" envDefault:"30s"`
	BootstrapSchema bool          `env:"BOOTSTRAP_SCHEMA" envDefault:"true"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger("api-server", cfg.LogLevel)
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	metrics.Init()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	// The process must come up while the database is down: the façade serves
	// degraded from memory until the gate sees the primary again. Bootstrap
	// failure is therefore a warning, not a startup abort.
	if cfg.BootstrapSchema {
		bootstrapCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := persistence.Bootstrap(bootstrapCtx, pool); err != nil {
			logger.Warn("database bootstrap failed, starting degraded", zap.Error(err))
		}
		cancel()
	}

	tenantStore, err := persistence.NewTenantStore(pool)
	if err != nil {
		logger.Fatal("init tenant store", zap.Error(err))
	}
	settingsStore, err := persistence.NewSettingsStore(pool)
	if err != nil {
		logger.Fatal("init settings store", zap.Error(err))
	}
	deliveryStore, err := persistence.NewDeliveryStore(pool)
	if err != nil {
		logger.Fatal("init delivery store", zap.Error(err))
	}
	profileStore, err := persistence.NewProfileStore(pool)
	if err != nil {
		logger.Fatal("init profile store", zap.Error(err))
	}

	gate := failover.NewGate(cfg.HealthCacheTTL, nil)
	runner := failover.NewRunner(gate, logger,
		tenantsservice.ErrNotFound,
		tenantsservice.ErrDomainConflict,
		tenantsservice.ErrInvalidInput,
		usersservice.ErrNotFound,
		deliveriesservice.ErrNotFound,
		deliveriesservice.ErrStateConflict,
		deliveriesservice.ErrNotClaimOwner,
	)

	tenantsPrimary := tenantsrepo.NewPostgresRepository(tenantStore, settingsStore)
	tenantsFallback := tenantsrepo.NewMemoryRepository()
	tenantsResilient := tenantsrepo.NewResilientRepository(tenantsPrimary, tenantsFallback, runner)
	tenantsService := tenantsservice.New(tenantsResilient, tenantsResilient, persistence.NewSettingsValidator())

	usersPrimary := usersrepo.NewPostgresRepository(profileStore)
	usersFallback := usersrepo.NewMemoryRepository()
	usersResilient := usersrepo.NewResilientRepository(usersPrimary, usersFallback, runner)
	usersService := usersservice.New(usersResilient)

	deliveriesPrimary := deliveriesrepo.NewPostgresRepository(deliveryStore)
	deliveriesFallback := deliveriesrepo.NewMemoryRepository(usersFallback)
	deliveriesResilient := deliveriesrepo.NewResilientRepository(deliveriesPrimary, deliveriesFallback, runner)
	deliveriesService := deliveriesservice.New(deliveriesResilient, tenantsService, usersService, pricing.Standard)

	usersService.SetReleaser(deliveriesService)

	resolver := tenant.NewResolver(
		tenantsService,
		cache.NewTTL[tenant.Context](cfg.TenantCacheTTL, nil),
		cfg.PlatformHosts,
	)

	tenantsHTTPHandler := tenantshandler.New(tenantsService, logger)
	usersHTTPHandler := usershandler.New(usersService, logger)
	deliveriesHTTPHandler := deliverieshandler.New(deliveriesService, logger)

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Method(http.MethodGet, "/metrics", promhttp.Handler())

	apiRouter := chi.NewRouter()
	apiRouter.Use(identity.TrustedHeaders())
	apiRouter.Use(tenantmiddleware.WithTenant(resolver, logger))

	apiRouter.Get("/tenant/context", tenantsHTTPHandler.TenantContext)
	apiRouter.Mount("/admin/tenants", tenantsHTTPHandler.AdminRoutes())

	apiRouter.Group(func(r chi.Router) {
		r.Use(tenantmiddleware.RequireTenant)

		r.With(identity.RequireRole(identity.RoleAdmin, identity.RoleDispatcher)).
			Get("/settings", tenantsHTTPHandler.GetSettings)
		r.With(identity.RequireRole(identity.RoleAdmin)).
			Put("/settings", tenantsHTTPHandler.PutSettings)

		r.Get("/profile", usersHTTPHandler.Profile)
		r.Get("/loyalty", usersHTTPHandler.Loyalty)
		r.With(identity.RequireRole(identity.RoleDriver)).
			Post("/drivers/duty", usersHTTPHandler.SetDuty)

		r.Mount("/deliveries", deliveriesHTTPHandler.Routes())
	})

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
