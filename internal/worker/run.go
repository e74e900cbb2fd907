// Package worker consumes bulk certificate batches from a Redis list and
// renders them through the bulk orchestrator. Large batches are handed off
// here so the API process' scheduler stays responsive for single renders.
package worker

import (
	"context"
	"time"

	"certmill/internal/pkg/logger"
	"certmill/internal/repositories"
	"certmill/internal/worker/queue"
)

func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	q := queue.NewRedisQueue(d.RDB, d.QueueName)

	p := newBatchProcessor(batchDeps{
		Engine:    d.Engine,
		Templates: repositories.NewTemplateRepository(d.Pool),
		Records:   repositories.NewRecordRepository(d.Pool),
		SP:        d.SP,
		Log:       log,
	})

	for {
		select {
		case <-ctx.Done():
			log.Info("worker context canceled, stopping")
			return ctx.Err()
		default:
		}

		// Use a separate context with timeout for queue operations
		popCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		payload, err := q.Pop(popCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping due to context cancellation")
				return ctx.Err()
			}

			log.Warn("queue pop error, retrying",
				"error", err.Error(),
			)
			time.Sleep(1 * time.Second)
			continue
		}

		if payload == "" {
			continue
		}

		startTime := time.Now()
		batchID, err := p.Process(ctx, payload)

		batchLog := log.WithFields(map[string]any{"batch_id": batchID})
		if err != nil {
			batchLog.LogError(ctx, "batch failed", err,
				"duration_ms", time.Since(startTime).Milliseconds(),
			)
		} else {
			batchLog.Info("batch completed",
				"duration_ms", time.Since(startTime).Milliseconds(),
			)
		}
	}
}
