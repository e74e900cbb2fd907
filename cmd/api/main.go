package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"certmill/internal/httpapi"
	"certmill/internal/pkg/logger"
	"certmill/internal/pkg/shutdown"
	"certmill/internal/render"
	"certmill/internal/repositories"
	"certmill/internal/scheduler"
	"certmill/internal/storage"
)

func main() {
	// Initialize logger
	log := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Format:      getEnv("LOG_FORMAT", "json"),
		ServiceName: "certmill-api",
		AddSource:   getEnv("LOG_SOURCE", "false") == "true",
	})

	log.Info("starting certmill API",
		"version", "0.1.0",
	)

	// Load configuration
	httpPort := getEnv("HTTP_PORT", "8080")
	dbURL := mustEnv(log, "DATABASE_URL")
	redisAddr := getEnv("REDIS_ADDR", "")
	assetRoot := getEnv("ASSET_ROOT", "/data/assets")
	queueName := getEnv("JOB_QUEUE_NAME", "certmill:batches")

	ctx := context.Background()

	// Initialize shutdown manager
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	// Connect to PostgreSQL
	log.Info("connecting to PostgreSQL")
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	shutdownMgr.Register("postgres", func(ctx context.Context) error {
		pool.Close()
		return nil
	})

	if err := pool.Ping(ctx); err != nil {
		log.LogFatal("failed to ping PostgreSQL", err)
	}
	log.Info("PostgreSQL connected")

	// Redis is optional; without it the bulk handoff endpoint is disabled.
	var rdb *redis.Client
	if redisAddr != "" {
		log.Info("connecting to Redis")
		rdb = redis.NewClient(&redis.Options{Addr: redisAddr})
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.LogFatal("failed to ping Redis", err)
		}
		log.Info("Redis connected")
	}

	// Initialize artifact storage provider
	log.Info("initializing storage provider")
	sp, err := storage.NewProvider()
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	log.Info("storage provider initialized", "provider", sp.Provider())

	// Render engine and job scheduler
	engine := render.NewEngine(render.Config{
		AssetRoot:   assetRoot,
		Parallelism: intEnv("RENDER_PARALLELISM", 0),
		Log:         log,
	})
	shutdownMgr.Register("render-engine", func(ctx context.Context) error {
		return engine.Shutdown()
	})

	sched := scheduler.New(scheduler.Config{
		MaxQueueSize:    intEnv("JOB_QUEUE_SIZE", 0),
		MaxRetainedJobs: intEnv("JOB_STORE_SIZE", 0),
		Concurrency:     intEnv("JOB_CONCURRENCY", 0),
		JobTTL:          time.Duration(intEnv("JOB_TTL_MINUTES", 0)) * time.Minute,
	}, scheduler.Deps{
		Engine:    engine,
		Templates: repositories.NewTemplateRepository(pool),
		Records:   repositories.NewRecordRepository(pool),
		Artifacts: sp,
		Log:       log,
	})
	shutdownMgr.RegisterSimple("scheduler", sched.Stop)

	// Create HTTP router
	router := httpapi.NewRouter(httpapi.Deps{
		Scheduler: sched,
		Engine:    engine,
		RDB:       rdb,
		QueueName: queueName,
		Log:       log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         "0.0.0.0:" + httpPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	// Start server in goroutine
	go func() {
		log.Info("HTTP server listening",
			"addr", server.Addr,
			"port", httpPort,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	// Wait for shutdown signal
	shutdownMgr.Wait()
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	return v
}

// intEnv reads an integer env var, returning def when unset or invalid.
func intEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// mustEnv gets a required environment variable or exits.
func mustEnv(log *logger.Logger, key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		log.Error("missing required environment variable", "key", key)
		os.Exit(1)
	}
	return v
}
