package handlers

import (
	"net/http"

	"github.com/redis/go-redis/v9"

	"certmill/internal/httpkit"
	"certmill/internal/pkg/errors"
	"certmill/internal/pkg/logger"
	"certmill/internal/render"
	"certmill/internal/scheduler"
)

type Deps struct {
	Scheduler *scheduler.Scheduler
	Engine    *render.Engine
	// RDB and QueueName feed the bulk worker; optional.
	RDB       *redis.Client
	QueueName string
	Log       *logger.Logger
}

type Handler struct {
	scheduler *scheduler.Scheduler
	engine    *render.Engine
	rdb       *redis.Client
	queueName string
	log       *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		scheduler: d.Scheduler,
		engine:    d.Engine,
		rdb:       d.RDB,
		queueName: d.QueueName,
		log:       log.WithComponent("httpapi"),
	}
}

// writeError maps a coded error onto the JSON error envelope. Transient
// backpressure carries a retryable hint so clients can tell it apart from
// permanent failures.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	details := map[string]any{}
	for k, v := range errors.GetFields(err) {
		details[k] = v
	}
	if errors.IsTransient(err) {
		details["retryable"] = true
	}
	if len(details) == 0 {
		details = nil
	}
	httpkit.WriteErr(w, errors.GetHTTPStatus(err), string(code), err.Error(), details)
}
