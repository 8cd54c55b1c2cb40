package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/siteplan/internal/cache"
	"github.com/stwalsh4118/siteplan/internal/config"
	"github.com/stwalsh4118/siteplan/internal/database"
	"github.com/stwalsh4118/siteplan/internal/envelope"
	"github.com/stwalsh4118/siteplan/internal/geom"
	"github.com/stwalsh4118/siteplan/internal/handlers"
	"github.com/stwalsh4118/siteplan/internal/ingest"
	"github.com/stwalsh4118/siteplan/internal/logger"
	"github.com/stwalsh4118/siteplan/internal/metrics"
	"github.com/stwalsh4118/siteplan/internal/middleware"
	"github.com/stwalsh4118/siteplan/internal/models"
	"github.com/stwalsh4118/siteplan/internal/repository"
	"github.com/stwalsh4118/siteplan/internal/resolver"
	"github.com/stwalsh4118/siteplan/internal/rules"
	"github.com/stwalsh4118/siteplan/internal/services"
	"github.com/stwalsh4118/siteplan/internal/store"
)

const (
	shutdownTimeout = 30 * time.Second
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithLevel(cfg.Server.Env, cfg.Server.LogLevel)
	log.Info("Starting siteplan API", map[string]interface{}{
		"version":     handlers.APIVersion,
		"environment": cfg.Server.Env,
		"port":        cfg.Server.Port,
	})

	// Background loops stop with the signal context; the HTTP server is
	// drained separately below.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", err, map[string]interface{}{
			"host": cfg.Database.Host,
			"port": cfg.Database.Port,
			"name": cfg.Database.Name,
		})
	}
	defer db.Close()

	log.Info("Database connection established", map[string]interface{}{
		"host":     cfg.Database.Host,
		"port":     cfg.Database.Port,
		"database": cfg.Database.Name,
		"pool_min": cfg.Database.PoolMin,
		"pool_max": cfg.Database.PoolMax,
	})

	if err := db.Migrate(ctx, log); err != nil {
		log.Fatal("Failed to migrate schema", err, nil)
	}

	geometryRepo := repository.NewGeometryRepository(db)
	ruleRepo := repository.NewRuleRepository(db)
	tol := geom.NewTolerance(cfg.Resolver.Epsilon)

	// Read-through cache: in-process LRU, backed by Redis when configured
	local := cache.NewLocal(cfg.Cache.LocalSize, cfg.Cache.TTL)
	var remote *cache.Redis
	if cfg.Redis.Enabled() {
		client := cache.OpenRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer client.Close()
		remote = cache.NewRedis(client, cfg.Cache.TTL, log)
		if err := remote.Ping(ctx); err != nil {
			log.Warn("Redis unreachable, shared cache tier will miss until it recovers", map[string]interface{}{
				"addr":  cfg.Redis.Addr,
				"error": err.Error(),
			})
		}
	}
	readCache := cache.NewTiered(local, remote)

	st := store.New(geometryRepo, log)
	st.OnPromote(func(scope models.Scope, version int64) {
		readCache.InvalidateRegion(context.Background(), scope.Region)
		metrics.StoreVersion.Set(float64(st.Current().Version))
	})
	if err := st.Load(ctx); err != nil {
		log.Fatal("Failed to load geometry store", err, nil)
	}

	resolve := resolver.New(resolver.Config{
		MajorityThreshold: cfg.Resolver.MajorityThreshold,
		Tolerance:         tol,
	}, log)
	aggregator := rules.NewAggregator(ruleRepo, log)
	calculator := envelope.New(envelope.Config{
		PrecisionPenalty:  cfg.Envelope.PrecisionPenalty,
		UnknownConfidence: cfg.Envelope.UnknownConfidence,
		Tolerance:         tol,
	})
	buildability := services.NewBuildabilityService(st, resolve, aggregator, calculator, readCache, log)

	// Upstream sync runs in-process only when a source is configured
	var runner services.ScopeRunner
	if cfg.Sync.SourceURL != "" {
		reconciler := ingest.NewReconciler(st, ingest.ReconcilerConfig{
			AnomalyThreshold: cfg.Sync.AnomalyThreshold,
			Tolerance:        tol,
		}, log)
		r := ingest.NewRunner(ingest.NewArcGISSource(cfg.Sync.SourceURL, cfg.Sync.PageSize, nil, log), reconciler, cfg.Sync.Workers, log)
		runner = r
		scheduler := ingest.NewScheduler(r, []models.Layer{models.LayerParcel, models.LayerAddress}, cfg.Sync.Regions, cfg.Sync.Interval, log)
		go scheduler.Run(ctx)
	}
	syncService := services.NewSyncService(st, runner, log)

	go refreshStore(ctx, st, cfg.Sync.RefreshInterval, log)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware in order: RequestID -> Logger -> Metrics -> Recovery -> CORS
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log, cfg.Server.SlowRequest))
	router.Use(middleware.Metrics())
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.CORS.Origins))

	healthHandler := handlers.NewHealthHandler(db, st, cfg.Server.Env)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	parcelHandler := handlers.NewParcelHandler(buildability)
	rulesHandler := handlers.NewRulesHandler(buildability)
	syncHandler := handlers.NewSyncHandler(syncService)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/info", healthHandler.Info)

		parcels := v1.Group("/parcels")
		{
			parcels.GET("/context", parcelHandler.Context)
			parcels.GET("/envelope", parcelHandler.Envelope)
		}

		v1.GET("/rules", rulesHandler.Get)

		sync := v1.Group("/sync")
		{
			sync.GET("/status", syncHandler.Status)
			sync.GET("/staged", syncHandler.Staged)
			sync.POST("/staged/:region/:layer/confirm", syncHandler.Confirm)
			sync.DELETE("/staged/:region/:layer", syncHandler.Discard)
			sync.POST("/run/:region/:layer", syncHandler.Run)
		}
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info("Server listening", map[string]interface{}{
			"port": cfg.Server.Port,
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", err, nil)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
	}

	log.Info("Server exited", nil)
}

// refreshStore picks up promotions made by other processes, such as a
// CLI sync, until ctx is done.
func refreshStore(ctx context.Context, st *store.Store, interval time.Duration, log *logger.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.Refresh(ctx)
			if err != nil {
				log.Error("Store refresh failed", err, nil)
				continue
			}
			if n > 0 {
				log.Info("Store refreshed", map[string]interface{}{"scopes": n, "version": st.Current().Version})
			}
		}
	}
}
