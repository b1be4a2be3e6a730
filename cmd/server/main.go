package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoPolymarket/polylend/internal/config"
	"github.com/GoPolymarket/polylend/internal/handler"
	"github.com/GoPolymarket/polylend/internal/middleware"
	"github.com/GoPolymarket/polylend/internal/oracle"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/GoPolymarket/polylend/internal/repository"
	"github.com/GoPolymarket/polylend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type ledgerStore interface {
	service.RegistryRepo
	service.ObligationRepo
}

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize Logger
	logger.InitWithOptions(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	// 3. Initialize Persistence
	var store ledgerStore = repository.NewMemoryStore()
	var auditRepo service.AuditRepo
	var gormStore *repository.GormStore
	if cfg.Database.Driver != "" && cfg.Database.Driver != "memory" {
		db, err := repository.NewDB(cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		gormStore, err = repository.NewGormStore(db)
		if err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		store = gormStore
		auditRepo = gormStore
		logger.Info("Connected to database", "driver", cfg.Database.Driver)
	} else {
		logger.Warn("Using in-memory storage, state is lost on restart")
	}

	// Redis (optional): price cache + idempotency
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = repository.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Error("Failed to connect to Redis, falling back to memory", "error", err)
			rdb = nil
		} else {
			logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)
		}
	}

	// 4. Price feeds
	feeds, stopFeeds := newFeedReader(cfg, rdb)
	defer stopFeeds()
	resolver := oracle.NewResolver(feeds, cfg.Oracle.PriceDecimals)

	// 5. Initialize Core Services
	registrySvc := service.NewRegistryService(store, resolver, cfg.Oracle.RefreshMaxAge(), cfg.Oracle.Timeout())
	if err := registrySvc.Load(context.Background()); err != nil {
		log.Fatalf("Failed to load asset registry: %v", err)
	}

	auditSvc, err := service.NewAuditService(cfg.Audit.Dir, cfg.Audit.BufferSize, auditRepo)
	if err != nil {
		log.Fatalf("Failed to initialize audit service: %v", err)
	}

	riskEngine := service.NewRiskEngine(resolver, cfg.Oracle.HealthMaxAge(), cfg.Oracle.Timeout())
	obligationSvc := service.NewObligationService(store, registrySvc, riskEngine, auditSvc)

	idemTTL := time.Duration(cfg.Redis.IdempotencyTTLSeconds) * time.Second
	var idempotencyStore middleware.IdempotencyStore = middleware.NewInMemIdempotencyStore(idemTTL)
	if rdb != nil {
		idempotencyStore = repository.NewRedisIdempotencyStore(rdb, idemTTL)
	}

	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	defer stopCleanup()
	if gormStore != nil && cfg.Audit.RetentionDays > 0 {
		go runAuditCleanup(cleanupCtx, gormStore, cfg.Audit)
	}

	readOnly := middleware.NewReadOnlySwitch(cfg.Server.ReadOnly)
	// SIGUSR1 切换只读模式，用于维护窗口
	maint := make(chan os.Signal, 1)
	signal.Notify(maint, syscall.SIGUSR1)
	go func() {
		for range maint {
			readOnly.Set(!readOnly.Enabled())
		}
	}()

	// 6. Setup Router
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RequestLogMiddleware())
	r.Use(middleware.MetricsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "polylend"})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/v1")
	v1.Use(middleware.CallerMiddleware(cfg.Auth.CallerHeader))
	v1.Use(middleware.RateLimitMiddleware(middleware.NewCallerLimiters(cfg.RateLimit.QPS, cfg.RateLimit.Burst)))
	v1.Use(middleware.ReadOnlyMiddleware(readOnly))
	v1.Use(middleware.IdempotencyMiddleware(idempotencyStore))
	handler.RegisterRoutes(v1, handler.Handlers{
		Registry:   handler.NewRegistryHandler(registrySvc),
		Obligation: handler.NewObligationHandler(obligationSvc),
		Oracle:     handler.NewOracleHandler(feeds),
		Audit:      handler.NewAuditHandler(auditSvc),
	})

	// 7. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("PolyLend started", "port", cfg.Server.Port, "read_only", cfg.Server.ReadOnly, "oracle", cfg.Oracle.Source)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	auditSvc.Close()

	logger.Info("Server exiting")
}

// newFeedReader picks the price source named by oracle.source.
func newFeedReader(cfg *config.Config, rdb *redis.Client) (oracle.FeedReader, func()) {
	switch cfg.Oracle.Source {
	case "stream":
		if cfg.Oracle.StreamURL == "" {
			log.Fatalf("oracle.source=stream requires oracle.stream_url")
		}
		stream := oracle.NewStreamFeed(cfg.Oracle.StreamURL, cfg.Oracle.Feeds)
		stream.Start()
		return stream, stream.Stop
	case "redis":
		if rdb == nil {
			log.Fatalf("oracle.source=redis requires a reachable redis.addr")
		}
		return repository.NewRedisPriceCache(rdb, cfg.Redis.PriceKeyPrefix), func() {}
	default:
		// manual: 只用 registry 价格
		return oracle.NewFeedBook(), func() {}
	}
}

func runAuditCleanup(ctx context.Context, store *repository.GormStore, cfg config.AuditConfig) {
	interval := time.Duration(cfg.CleanupIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Cleanup(ctx, retention); err != nil {
				logger.Error("audit cleanup failed", "error", err)
			}
		}
	}
}
