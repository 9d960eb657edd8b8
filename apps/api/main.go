package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	synchandler "github.com/robotika-cloud/nekazari-erp-bridge/domains/sync/be/handler"
	syncrepo "github.com/robotika-cloud/nekazari-erp-bridge/domains/sync/be/repo"
	syncservice "github.com/robotika-cloud/nekazari-erp-bridge/domains/sync/be/service"
	tenantshandler "github.com/robotika-cloud/nekazari-erp-bridge/domains/tenants/be/handler"
	tenantsrepo "github.com/robotika-cloud/nekazari-erp-bridge/domains/tenants/be/repo"
	tenantsservice "github.com/robotika-cloud/nekazari-erp-bridge/domains/tenants/be/service"
	workflowshandler "github.com/robotika-cloud/nekazari-erp-bridge/domains/workflows/be/handler"
	workflowsservice "github.com/robotika-cloud/nekazari-erp-bridge/domains/workflows/be/service"
	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/contextgraph"
	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/erp"
	platformlogging "github.com/robotika-cloud/nekazari-erp-bridge/platform/go/logging"
	platformmiddleware "github.com/robotika-cloud/nekazari-erp-bridge/platform/go/middleware"
	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/persistence"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`

	ERPURL             string        `env:"ERP_URL,required"`
	ERPServiceLogin    string        `env:"ERP_SERVICE_LOGIN,required"`
	ERPServicePassword string        `env:"ERP_SERVICE_PASSWORD,required"`
	ERPMasterPassword  string        `env:"ERP_MASTER_PASSWORD,required"`
	ERPTimeout         time.Duration `env:"ERP_TIMEOUT" envDefault:"30s"`
	ERPSessionTTL      time.Duration `env:"ERP_SESSION_TTL" envDefault:"10m"`
	TemplateDatabase   string        `env:"ERP_TEMPLATE_DATABASE" envDefault:"nkz_odoo_template"`

	BrokerURL     string        `env:"CONTEXT_BROKER_URL,required"`
	BrokerTimeout time.Duration `env:"CONTEXT_BROKER_TIMEOUT" envDefault:"15s"`

	// NotificationEndpoint is the public URL of this service's
	// /webhooks/ngsi route, handed to the broker on subscription.
	NotificationEndpoint string `env:"NOTIFICATION_ENDPOINT,required"`

	WebhookSecret string `env:"WORKFLOW_WEBHOOK_SECRET"`

	SyncWorkers   int `env:"SYNC_WORKERS" envDefault:"8"`
	SyncPageLimit int `env:"SYNC_PAGE_LIMIT" envDefault:"1000"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "erp-bridge",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	if err := persistence.Bootstrap(ctx, pool); err != nil {
		logger.Fatal("apply schema", zap.Error(err))
	}

	tenantStore, err := persistence.NewTenantStore(pool)
	if err != nil {
		logger.Fatal("init tenant store", zap.Error(err))
	}
	mappingStore, err := persistence.NewMappingStore(pool)
	if err != nil {
		logger.Fatal("init mapping store", zap.Error(err))
	}
	statusStore, err := persistence.NewSyncStatusStore(pool)
	if err != nil {
		logger.Fatal("init sync status store", zap.Error(err))
	}

	erpClient := erp.NewClient(erp.Config{
		URL:             cfg.ERPURL,
		ServiceLogin:    cfg.ERPServiceLogin,
		ServicePassword: cfg.ERPServicePassword,
		MasterPassword:  cfg.ERPMasterPassword,
		Timeout:         cfg.ERPTimeout,
		SessionTTL:      cfg.ERPSessionTTL,
	}, logger)

	broker := contextgraph.NewClient(cfg.BrokerURL, cfg.BrokerTimeout, logger)

	syncRepo := syncrepo.NewPostgres(mappingStore, statusStore)

	tenantRepo := tenantsrepo.NewPostgres(tenantStore)
	tenantService := tenantsservice.New(tenantRepo, erpClient, broker, syncRepo, tenantsservice.Config{
		TemplateDatabase:     cfg.TemplateDatabase,
		NotificationEndpoint: cfg.NotificationEndpoint,
	}, logger)
	tenantHTTPHandler := tenantshandler.New(tenantService, logger)

	directory := &tenantDirectory{tenants: tenantService}
	syncService := syncservice.New(syncRepo, directory, erpClient, broker, syncservice.Config{
		FullSyncWorkers: cfg.SyncWorkers,
		PageLimit:       cfg.SyncPageLimit,
	}, logger)
	syncHTTPHandler := synchandler.New(syncService, logger)

	workflowService, err := workflowsservice.New(directory, erpClient, syncService, syncService, logger)
	if err != nil {
		logger.Fatal("init workflows service", zap.Error(err))
	}
	workflowHTTPHandler := workflowshandler.New(workflowService, cfg.WebhookSecret, logger)

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.CORS(cfg.CORSAllowedOrigins),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	rootRouter.Post("/webhooks/ngsi", syncHTTPHandler.Notification)
	rootRouter.Post("/webhooks/workflow", workflowHTTPHandler.Event)

	apiRouter := chi.NewRouter()
	apiRouter.Mount("/tenants", tenantHTTPHandler.Routes())
	apiRouter.Mount("/sync", syncHTTPHandler.Routes())
	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting erp bridge", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// tenantDirectory adapts the tenants service to the lookup shape the sync and
// workflows domains consume. Only active tenants resolve.
type tenantDirectory struct {
	tenants *tenantsservice.Service
}

func (d *tenantDirectory) Lookup(ctx context.Context, tenantID string) (syncservice.TenantInfo, error) {
	t, err := d.tenants.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, tenantsservice.ErrNotFound) {
			return syncservice.TenantInfo{}, fmt.Errorf("%w: %s", syncservice.ErrTenantNotProvisioned, tenantID)
		}
		return syncservice.TenantInfo{}, err
	}
	if t.Status != tenantsservice.StatusActive {
		return syncservice.TenantInfo{}, fmt.Errorf("%w: %s is %s", syncservice.ErrTenantNotProvisioned, tenantID, t.Status)
	}
	return syncservice.TenantInfo{DatabaseName: t.DatabaseName, Active: true}, nil
}
