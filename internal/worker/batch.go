package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"certmill/internal/models"
	"certmill/internal/pkg/errors"
	"certmill/internal/pkg/logger"
	"certmill/internal/ports"
	"certmill/internal/render"
	"certmill/internal/scheduler"
)

// BatchRequest is the queue payload for one bulk render.
type BatchRequest struct {
	BatchID     string   `json:"batch_id"`
	TemplateID  string   `json:"template_id"`
	RecordIDs   []string `json:"record_ids"`
	OwnerID     string   `json:"owner_id"`
	Concurrency int      `json:"concurrency,omitempty"`
}

type batchDeps struct {
	Engine    *render.Engine
	Templates scheduler.TemplateSource
	Records   scheduler.RecordSource
	SP        ports.StorageProvider
	Log       *logger.Logger
}

type batchProcessor struct {
	engine    *render.Engine
	templates scheduler.TemplateSource
	records   scheduler.RecordSource
	sp        ports.StorageProvider
	log       *logger.Logger
}

func newBatchProcessor(d batchDeps) *batchProcessor {
	return &batchProcessor{
		engine:    d.Engine,
		templates: d.Templates,
		records:   d.Records,
		sp:        d.SP,
		log:       d.Log.WithComponent("batch"),
	}
}

// Process renders one batch payload. Per-record failures are reported in the
// aggregate, not returned; only batch-level faults (bad payload, unknown
// template) produce an error.
func (p *batchProcessor) Process(ctx context.Context, payload string) (string, error) {
	var req BatchRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", errors.WrapWithCode(err, errors.CodeValidation, "worker.batch", "invalid batch payload")
	}
	if req.BatchID == "" {
		req.BatchID = uuid.NewString()
	}
	if strings.TrimSpace(req.TemplateID) == "" || len(req.RecordIDs) == 0 {
		return req.BatchID, errors.Validation("batch requires template_id and record_ids")
	}

	tpl, err := p.templates.TemplateByID(ctx, req.TemplateID, req.OwnerID)
	if err != nil {
		return req.BatchID, err
	}

	// Record lookups that fail become failed outcomes, not batch faults:
	// one deleted participant must not sink the rest of the batch.
	records := make([]models.Record, len(req.RecordIDs))
	for i, id := range req.RecordIDs {
		record, err := p.records.RecordByID(ctx, id)
		if err != nil {
			p.log.Warn("record lookup failed", "record_id", id, "error", err.Error())
			records[i] = nil
			continue
		}
		if _, ok := record["id"]; !ok {
			record["id"] = id
		}
		records[i] = record
	}

	result := p.engine.RenderBulk(tpl, records, render.BulkOptions{
		Concurrency: req.Concurrency,
		Jitter:      true,
		Sink: func(index int, data []byte) (string, error) {
			key := fmt.Sprintf("certificates/bulk/%s/%s.pdf", req.BatchID, req.RecordIDs[index])
			put, err := p.sp.PutObject(ctx, ports.PutObjectInput{
				ObjectKey:   key,
				ContentType: "application/pdf",
				Reader:      bytes.NewReader(data),
				Size:        int64(len(data)),
			})
			if err != nil {
				return "", err
			}
			return put.ObjectKey, nil
		},
	})

	p.log.Info("batch rendered",
		"batch_id", req.BatchID,
		"template_id", req.TemplateID,
		"success", result.Success,
		"failed", result.Failed,
		"total", result.Total,
	)
	return req.BatchID, nil
}
