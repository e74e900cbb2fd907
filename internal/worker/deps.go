package worker

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"certmill/internal/pkg/logger"
	"certmill/internal/ports"
	"certmill/internal/render"
)

type Deps struct {
	Pool      *pgxpool.Pool
	RDB       *redis.Client
	Engine    *render.Engine
	SP        ports.StorageProvider
	QueueName string
	Log       *logger.Logger
}
