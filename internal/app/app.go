package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tripfare/payments/internal/module/payment"
	"github.com/tripfare/payments/internal/module/payment/threeds"
	"github.com/tripfare/payments/internal/shared/cache"
	"github.com/tripfare/payments/internal/shared/config"
	"github.com/tripfare/payments/internal/shared/database"
	"github.com/tripfare/payments/internal/shared/logger"
	"github.com/tripfare/payments/internal/shared/middleware"
	"github.com/tripfare/payments/internal/utils/metrics"
)

// App holds the assembled application: one payment gateway behind an HTTP
// router, with its backing stores. All wiring is explicit; nothing here is
// package-level state.
type App struct {
	cfg       *config.Config
	log       *logger.Logger
	zlog      *zap.Logger
	db        *gorm.DB
	redis     redis.UniversalClient
	challenge *threeds.CallbackTransport
	router    *gin.Engine
}

// New builds the application from configuration.
func New(cfg *config.Config) (*App, error) {
	log := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	zlog, err := newZapLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	m := metrics.New("tripfare")
	challenge := threeds.NewCallbackTransport(64)

	factory, err := payment.NewFactory(payment.FactoryConfig{
		Environment:     payment.Environment(cfg.Payment.Environment),
		DuffelAPIKey:    cfg.Payment.DuffelAPIKey,
		StripeAPIKey:    cfg.Payment.StripeAPIKey,
		DefaultCurrency: cfg.Payment.DefaultCurrency,
		ReturnURL:       cfg.Payment.ReturnURL,
		EnableLogging:   cfg.Payment.EnableLogging,
		Metrics:         m,
		ThreeDS: threeds.Config{
			ChallengeTimeout: cfg.ThreeDS.ChallengeTimeout,
			WindowSize:       cfg.ThreeDS.WindowSize,
			AllowedOrigins:   cfg.ThreeDS.AllowedOrigins,
		},
	}, challenge, threeds.RedirectOpener{}, zlog)
	if err != nil {
		return nil, fmt.Errorf("build payment factory: %w", err)
	}

	svc, err := factory.BuildService(context.Background())
	if err != nil {
		return nil, fmt.Errorf("build payment service: %w", err)
	}

	repo := payment.NewRepository(db)
	idem := cache.NewIdempotencyStore(redisClient, cfg.Payment.IdempotencyTTL)
	gateway := payment.NewGateway(svc, repo, idem, m, cfg.Payment.Environment, zlog)

	a := &App{
		cfg:       cfg,
		log:       log,
		zlog:      zlog,
		db:        db,
		redis:     redisClient,
		challenge: challenge,
	}
	a.router = a.buildRouter(gateway, m)

	log.Info("application initialized",
		logger.String("environment", cfg.Payment.Environment),
		logger.String("processor", factory.ActiveProcessorName()),
	)
	return a, nil
}

func (a *App) buildRouter(gateway *payment.Gateway, m *metrics.Metrics) *gin.Engine {
	if a.cfg.Payment.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery(a.log))
	r.Use(middleware.Metrics(m))
	r.Use(middleware.CORS(a.cfg.Server.AllowedOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	handler := payment.NewHandler(gateway, a.challenge, a.cfg.Payment.WebhookSecret)
	handler.RegisterRoutes(api, middleware.Auth(a.cfg.Auth.JWTSecret))

	return r
}

// Router returns the HTTP handler.
func (a *App) Router() http.Handler {
	return a.router
}

// Stop releases the application's resources.
func (a *App) Stop() {
	a.challenge.Close()
	if err := cache.Close(a.redis); err != nil {
		a.log.Warn("redis close failed", logger.Err(err))
	}
	if err := database.Close(a.db); err != nil {
		a.log.Warn("database close failed", logger.Err(err))
	}
	_ = a.zlog.Sync()
}

func newZapLogger(cfg config.LogConfig) (*zap.Logger, error) {
	if cfg.Format == "text" {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	if level, err := zap.ParseAtomicLevel(cfg.Level); err == nil {
		zcfg.Level = level
	}
	return zcfg.Build()
}
