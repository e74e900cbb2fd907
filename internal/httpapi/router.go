package httpapi

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"certmill/internal/httpapi/handlers"
	"certmill/internal/httpkit"
	"certmill/internal/pkg/logger"
	"certmill/internal/pkg/middleware"
	"certmill/internal/render"
	"certmill/internal/scheduler"
)

type Deps struct {
	Scheduler *scheduler.Scheduler
	Engine    *render.Engine
	RDB       *redis.Client
	QueueName string
	Log       *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log))
	// Generous bound; synchronous bulk renders are the slowest path.
	r.Use(middleware.Timeout(2 * time.Minute))

	allowedOrigins := envCSV("CORS_ALLOWED_ORIGINS", []string{
		"http://localhost:8081",
		"http://localhost:5173",
	})
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAgeSeconds:    600,
	}))

	h := handlers.New(handlers.Deps{
		Scheduler: d.Scheduler,
		Engine:    d.Engine,
		RDB:       d.RDB,
		QueueName: d.QueueName,
		Log:       log,
	})

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	// ---- ASYNC JOBS ----
	r.Post("/certificates", h.PostCertificate)
	r.Post("/certificates/bulk", h.PostCertificateBatch)
	r.Get("/jobs/{jobId}", h.GetJob)
	r.Get("/jobs/{jobId}/artifact", h.GetJobArtifact)

	// ---- SYNC RENDER ----
	r.Post("/render", h.PostRender)
	r.Post("/render/bulk", h.PostRenderBulk)

	return r
}

func envCSV(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
