package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"certmill/internal/pkg/logger"
	"certmill/internal/pkg/shutdown"
	"certmill/internal/render"
	"certmill/internal/storage"
	"certmill/internal/worker"
	"certmill/internal/worker/util"
)

func main() {
	ctx := context.Background()

	log := logger.New(logger.Config{
		Level:       util.Env("LOG_LEVEL", "info"),
		Format:      util.Env("LOG_FORMAT", "json"),
		ServiceName: "certmill-worker",
	})

	dbURL := util.MustEnv("DATABASE_URL")
	redisAddr := util.MustEnv("REDIS_ADDR")
	assetRoot := util.Env("ASSET_ROOT", "/data/assets")
	queueName := util.Env("JOB_QUEUE_NAME", "certmill:batches")

	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

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

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	shutdownMgr.Register("redis", func(ctx context.Context) error {
		return rdb.Close()
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}

	sp, err := storage.NewProvider()
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}

	// The worker is the bulk path, so it gets the full slot budget instead of
	// the API's interactive default.
	engine := render.NewEngine(render.Config{
		AssetRoot:   assetRoot,
		Parallelism: render.MaxParallelism,
		Log:         log,
	})
	shutdownMgr.Register("render-engine", func(ctx context.Context) error {
		return engine.Shutdown()
	})

	runCtx, cancel := context.WithCancel(ctx)
	shutdownMgr.RegisterSimple("worker-loop", cancel)

	go shutdownMgr.Wait()

	log.Info("certmill worker started",
		"queue", queueName,
		"storage", sp.Provider(),
	)

	err = worker.Run(runCtx, worker.Deps{
		Pool:      pool,
		RDB:       rdb,
		Engine:    engine,
		SP:        sp,
		QueueName: queueName,
		Log:       log,
	})
	if err != nil && err != context.Canceled {
		log.LogFatal("worker stopped", err)
	}
	log.Info("worker stopped")
}
