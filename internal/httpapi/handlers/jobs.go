package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"certmill/internal/httpkit"
	"certmill/internal/models"
	"certmill/internal/worker"
)

type CreateCertificateRequest struct {
	TemplateID string `json:"template_id"`
	RecordID   string `json:"record_id"`
	OwnerID    string `json:"owner_id"`
}

// PostCertificate enqueues one async certificate render.
func (h *Handler) PostCertificate(w http.ResponseWriter, r *http.Request) {
	var req CreateCertificateRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid json body", nil)
		return
	}
	req.TemplateID = strings.TrimSpace(req.TemplateID)
	req.RecordID = strings.TrimSpace(req.RecordID)
	if req.TemplateID == "" || req.RecordID == "" {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "template_id and record_id are required", nil)
		return
	}

	job, err := h.scheduler.Enqueue(r.Context(), req.TemplateID, req.RecordID, strings.TrimSpace(req.OwnerID))
	if err != nil {
		h.writeError(w, err)
		return
	}

	httpkit.WriteJSON(w, 202, map[string]any{"job": job})
}

// PostCertificateBatch hands a large batch off to the Redis-fed bulk worker.
func (h *Handler) PostCertificateBatch(w http.ResponseWriter, r *http.Request) {
	if h.rdb == nil {
		httpkit.WriteErr(w, 503, "UNAVAILABLE", "bulk queue is not configured", nil)
		return
	}

	var req worker.BatchRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid json body", nil)
		return
	}
	if strings.TrimSpace(req.TemplateID) == "" || len(req.RecordIDs) == 0 {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "template_id and record_ids are required", nil)
		return
	}
	if req.BatchID == "" {
		req.BatchID = uuid.NewString()
	}

	payload, _ := json.Marshal(req)
	if err := h.rdb.LPush(r.Context(), h.queueName, string(payload)).Err(); err != nil {
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "queue push failed", nil)
		return
	}

	httpkit.WriteJSON(w, 202, map[string]any{
		"batch_id": req.BatchID,
		"total":    len(req.RecordIDs),
	})
}

// GetJob returns the job's current status.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.scheduler.GetJob(chi.URLParam(r, "jobId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpkit.WriteJSON(w, 200, map[string]any{"job": job})
}

// GetJobArtifact streams the rendered PDF of a DONE job.
func (h *Handler) GetJobArtifact(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	job, err := h.scheduler.GetJob(jobID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if job.Status == models.JobStatusFailed {
		httpkit.WriteErr(w, 404, "NOT_FOUND", "job failed, no artifact", map[string]any{
			"job_id": jobID,
			"error":  job.ErrorMessage,
		})
		return
	}

	data, name, err := h.scheduler.Artifact(r.Context(), jobID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(200)
	_, _ = w.Write(data)
}
