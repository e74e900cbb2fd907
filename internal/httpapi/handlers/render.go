package handlers

import (
	"encoding/json"
	"net/http"

	"certmill/internal/httpkit"
	"certmill/internal/models"
	"certmill/internal/render"
	"certmill/internal/template"
)

type RenderRequest struct {
	Template json.RawMessage `json:"template"`
	Record   models.Record   `json:"record"`
}

// PostRender renders one certificate synchronously, bypassing the scheduler.
// Meant for small interactive requests like template previews.
func (h *Handler) PostRender(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid json body", nil)
		return
	}

	tpl, err := template.Parse(req.Template)
	if err != nil {
		h.writeError(w, err)
		return
	}

	data, err := h.engine.Render(tpl, []models.Record{req.Record})
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(200)
	_, _ = w.Write(data)
}

type RenderBulkRequest struct {
	Template    json.RawMessage `json:"template"`
	Records     []models.Record `json:"records"`
	Concurrency int             `json:"concurrency,omitempty"`
}

// PostRenderBulk renders a batch synchronously and reports per-record
// outcomes. Documents are returned inline as base64; large batches belong on
// the async worker path instead.
func (h *Handler) PostRenderBulk(w http.ResponseWriter, r *http.Request) {
	var req RenderBulkRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid json body", nil)
		return
	}
	if len(req.Records) == 0 {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "records must not be empty", nil)
		return
	}

	tpl, err := template.Parse(req.Template)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result := h.engine.RenderBulk(tpl, req.Records, render.BulkOptions{
		Concurrency: req.Concurrency,
		Jitter:      true,
	})

	type item struct {
		Index       int    `json:"index"`
		Key         string `json:"key"`
		OK          bool   `json:"ok"`
		Error       string `json:"error,omitempty"`
		DocumentB64 []byte `json:"document_b64,omitempty"`
	}
	items := make([]item, len(result.Outcomes))
	for i, out := range result.Outcomes {
		items[i] = item{
			Index:       out.Index,
			Key:         out.Key,
			OK:          out.OK,
			Error:       out.Error,
			DocumentB64: out.Bytes, // []byte marshals as base64
		}
	}

	httpkit.WriteJSON(w, 200, map[string]any{
		"success":  result.Success,
		"failed":   result.Failed,
		"total":    result.Total,
		"outcomes": items,
	})
}
