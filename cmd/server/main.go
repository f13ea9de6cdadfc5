package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/osiDTDr/ai-contract-review/common/id"
	"github.com/osiDTDr/ai-contract-review/common/logger"
	"github.com/osiDTDr/ai-contract-review/common/otel"
	"github.com/osiDTDr/ai-contract-review/core/config"
	"github.com/osiDTDr/ai-contract-review/core/db"
	"github.com/osiDTDr/ai-contract-review/internal/events"
	"github.com/osiDTDr/ai-contract-review/internal/http/handler"
	"github.com/osiDTDr/ai-contract-review/internal/http/middleware"
	httprouter "github.com/osiDTDr/ai-contract-review/internal/http/router"
	"github.com/osiDTDr/ai-contract-review/internal/metrics"
	"github.com/osiDTDr/ai-contract-review/internal/service"
	"github.com/osiDTDr/ai-contract-review/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "contract review starting",
		"env", cfg.Env,
		"analyzer", cfg.Review.AnalyzerMode,
		"compliance", cfg.Review.ComplianceMode,
		"retriever", cfg.Review.RetrieverMode)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	checks := map[string]handler.Check{}
	deps := service.ReviewDeps{}

	if cfg.DB.Enabled() {
		database, err := db.New(ctx, cfg.DB)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
		if err := store.Migrate(ctx, database.Conn()); err != nil {
			slog.ErrorContext(ctx, "failed to migrate database", "error", err)
			os.Exit(1)
		}
		deps.Store = store.NewReviewStore(database)
		checks["database"] = database.Ping
		slog.InfoContext(ctx, "database connected")
	} else {
		slog.InfoContext(ctx, "persistence disabled (no DATABASE_URL)")
	}

	var eventReader handler.EventReader
	if cfg.Redis.Enabled() {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
			os.Exit(1)
		}

		stream := events.New(redisClient, events.Config{
			Prefix: cfg.Redis.StreamPrefix,
			MaxLen: cfg.Redis.MaxLen,
			TTL:    cfg.Redis.EventTTL,
		}, slog.Default())
		deps.Events = stream
		eventReader = stream
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		slog.InfoContext(ctx, "redis connected", "stream_prefix", cfg.Redis.StreamPrefix)
	} else {
		slog.InfoContext(ctx, "progress events disabled (no REDIS_URL)")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	deps.Metrics = metrics.New(registry)

	builder, err := service.NewPipelineBuilder(ctx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build review pipeline", "error", err)
		os.Exit(1)
	}
	set, err := builder.Rules()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load review rules", "path", cfg.Review.RulesPath, "error", err)
		os.Exit(1)
	}
	orch, err := builder.Build(set)
	if err != nil {
		slog.ErrorContext(ctx, "invalid review pipeline", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "review pipeline ready", "stages", orch.Stages(), "rules", len(set.Compliance), "risk_patterns", len(set.Risks))

	deps.Reviewer = orch
	deps.Builder = builder
	reviews := service.NewReviewService(deps)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, httprouter.Handlers{
		Reviews: handler.NewReviewHandler(reviews, cfg.Review.MaxUploadBytes),
		Events:  handler.NewEventsHandler(eventReader, 0),
		Health:  handler.NewHealthHandler(checks),
	}, registry)

	// Reviews with LLM stages can take minutes; the write timeout has to
	// cover the whole pipeline.
	writeTimeout := 2 * time.Minute
	if d := pipelineBudget(cfg.Review, orch.Stages()); d > writeTimeout {
		writeTimeout = d
	}
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, h httprouter.Handlers, registry *prometheus.Registry) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, h, httprouter.RouterConfig{
		MaxUploadBytes: cfg.Review.MaxUploadBytes,
		Gatherer:       registry,
	})

	return router
}

// pipelineBudget is the worst case time for one review: every stage running
// to its timeout.
func pipelineBudget(rc config.ReviewConfig, stages []string) time.Duration {
	var total time.Duration
	for _, name := range stages {
		if d, ok := rc.StageTimeouts[name]; ok {
			total += d
			continue
		}
		total += rc.StageTimeout
	}
	return total
}

const banner = `
  ____ ___  _   _ _____ ____      _    ____ _____   ____  _______     _____ _______        __
 / ___/ _ \| \ | |_   _|  _ \    / \  / ___|_   _| |  _ \| ____\ \   / /_ _| ____\ \      / /
| |  | | | |  \| | | | | |_) |  / _ \| |     | |   | |_) |  _|  \ \ / / | ||  _|  \ \ /\ / /
| |__| |_| | |\  | | | |  _ <  / ___ \ |___  | |   |  _ <| |___  \ V /  | || |___  \ V  V /
 \____\___/|_| \_| |_| |_| \_\/_/   \_\____| |_|   |_| \_\_____|  \_/  |___|_____|  \_/\_/
`
