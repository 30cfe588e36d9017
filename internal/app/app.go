package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/formdeck/core/internal/config"
	"github.com/formdeck/core/internal/database"
	"github.com/formdeck/core/internal/middleware"
	"github.com/formdeck/core/internal/modules/lookup"
	pkgcron "github.com/formdeck/core/internal/pkg/cron"
	"github.com/formdeck/core/internal/pkg/jwt"
	pkgredis "github.com/formdeck/core/internal/pkg/redis"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// anonymousRateLimit is the per-IP request budget per second for unauthenticated callers.
const anonymousRateLimit = 50

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	db     *gorm.DB
	rc     *pkgredis.Client
	signer *jwt.Signer
	loc    *time.Location
	logger *zap.Logger
	cancel context.CancelFunc
	sched  *pkgcron.Scheduler

	registry *lookup.Registry
	lookups  *lookup.Service
	linker   *lookup.Linker
}

// New initializes the application: config → DB → Redis → lookup → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	loc, err := applyRuntimeSettings(cfg)
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg, logger, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	var rc *pkgredis.Client
	if cfg.Redis.Enable {
		rc, err = pkgredis.Connect(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
	}

	signer := jwt.NewSigner(cfg.JWTSecret)
	if signer.UsesDefaultSecret() {
		logger.Warn("jwt_secret is empty, using built-in default secret")
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(corsConfig(cfg)))
	router.Use(middleware.OptionalAuth(signer))
	if rc != nil {
		router.Use(middleware.RateLimit(rc.Raw(), anonymousRateLimit))
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		cfg:    cfg,
		router: router,
		db:     db,
		rc:     rc,
		signer: signer,
		loc:    loc,
		logger: logger,
		cancel: cancel,
		sched:  pkgcron.New(logger),
	}
	app.initLookup()

	if cfg.ShouldSeedStatic() {
		if err := app.registry.SeedStaticSources(ctx); err != nil {
			cancel()
			return nil, fmt.Errorf("seed static sources: %w", err)
		}
	}

	app.registerCronJobs()
	go app.sched.Start(ctx)
	app.registerRoutes()

	return app, nil
}

func (a *App) initLookup() {
	opts := []lookup.Option{
		lookup.WithLogger(a.logger),
		lookup.WithCatalogDir(a.cfg.CatalogDir()),
		lookup.WithLimits(a.cfg.Lookup.DefaultLimit, a.cfg.Lookup.MaxLimit),
		lookup.WithLocation(a.loc),
	}
	if a.rc != nil {
		opts = append(opts, lookup.WithCache(a.rc, a.cfg.Lookup.CatalogCacheTTL))
	}
	a.registry = lookup.NewRegistry(a.db, opts...)
	a.lookups = lookup.NewService(a.db, a.registry, opts...)
	a.linker = lookup.NewLinker(a.db, a.registry, opts...)
}

func corsConfig(cfg *config.AppConfig) cors.Config {
	conf := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "x-formdeck-cache"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		patterns := cfg.AllowedOrigins
		conf.AllowOriginFunc = func(origin string) bool {
			host := extractOriginHost(origin)
			for _, pattern := range patterns {
				if matchOriginPattern(pattern, host) {
					return true
				}
			}
			return false
		}
	} else {
		conf.AllowOriginFunc = func(origin string) bool { return true }
	}
	return conf
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops the scheduler and releases the Redis pool.
func (a *App) Shutdown() {
	a.cancel()
	if a.rc != nil {
		if err := a.rc.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
}
