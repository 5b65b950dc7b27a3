package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/gogotex/membership/handlers"
	"github.com/gogotex/membership/internal/bootstrap"
	"github.com/gogotex/membership/internal/config"
	"github.com/gogotex/membership/internal/users"
	"github.com/gogotex/membership/pkg/logger"
	"github.com/gogotex/membership/pkg/metrics"
	"github.com/gogotex/membership/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// bootstrap logging from the process env until config (including .env) is loaded
	logger.Configure(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Format)
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())
	logger.Infof("config loaded: mongo=%v redis=%v rate_limit=%v", cfg.MongoDB.URI != "", cfg.Redis.Addr() != "", cfg.RateLimit.Enabled)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := bootstrap.OpenBackend(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to open store: %v", err)
	}
	defer backend.Close(context.Background())

	policy := bootstrap.NewPolicy(cfg.Membership)
	lifecycle := users.NewLifecycleService(backend.Store, policy, logger.Component("users"))
	svc := users.NewValidator(lifecycle, policy)
	dir := users.NewDirectory(backend.Store, policy)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, "+middleware.ApplicationHeader)
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	// Redis backs the shared rate limiter when configured
	var redisClient *redis.Client
	if addr := cfg.Redis.Addr(); addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisClient.Ping(pctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s), falling back to in-memory rate limiting: %v", addr, err)
			_ = redisClient.Close()
			redisClient = nil
		} else {
			logger.Infof("connected to Redis for rate limiting: %s", addr)
			defer redisClient.Close()
		}
		cancel()
	}

	var limit gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		limit = middleware.RedisRateLimitMiddlewareWithKey(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.Window, middleware.UsernameKey)
	}
	if cfg.Server.AdminAPIKey == "" {
		logger.Warnf("ADMIN_API_KEY is not set; management and directory routes are unauthenticated")
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness endpoint: 200 only when the store (and Redis, when configured) answer
	r.GET("/ready", func(c *gin.Context) {
		pctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		ready := true
		deps := map[string]bool{}

		deps[backend.Kind] = backend.Ping(pctx) == nil
		if !deps[backend.Kind] {
			ready = false
		}
		if redisClient != nil {
			deps["redis"] = redisClient.Ping(pctx).Err() == nil
			if !deps["redis"] {
				ready = false
			}
		}

		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	handlers.RegisterSwagger(r)

	api := r.Group("/api/v1", middleware.ApplicationMiddleware(policy.ApplicationName()))
	handlers.NewMembershipHandler(svc, dir, logger.Component("http")).
		Register(api, limit, middleware.AdminKeyMiddleware(cfg.Server.AdminAPIKey))

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting membership service on %s (store=%s)", addr, backend.Kind)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}
