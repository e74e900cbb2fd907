package render

import (
	"math/rand"
	"strconv"
	"sync"
	"time"

	"certmill/internal/models"
)

// DefaultBulkConcurrency is the per-batch fan-out when none is configured.
const DefaultBulkConcurrency = 10

// maxStartJitter bounds the random pre-start delay applied to each unit to
// desynchronize simultaneous render-slot acquisition. Load shaping only; the
// orchestrator is correct with jitter disabled.
const maxStartJitter = 100 * time.Millisecond

// Outcome is the result of rendering one record.
type Outcome struct {
	// Index is the record's position in the submitted batch.
	Index int `json:"index"`
	// Key identifies the record: its "id" field when present, else the index.
	Key string `json:"key"`
	OK  bool   `json:"ok"`
	// ArtifactKey is set when a sink persisted the render.
	ArtifactKey string `json:"artifact_key,omitempty"`
	Error       string `json:"error,omitempty"`

	// Bytes holds the rendered document when no sink is configured.
	Bytes []byte `json:"-"`
}

// BulkResult aggregates a whole batch. Outcomes are in submission order
// regardless of completion order.
type BulkResult struct {
	Success  int       `json:"success"`
	Failed   int       `json:"failed"`
	Total    int       `json:"total"`
	Outcomes []Outcome `json:"outcomes"`
}

// Sink persists one rendered document and returns its artifact reference.
type Sink func(index int, data []byte) (string, error)

// BulkOptions tunes RenderBulk.
type BulkOptions struct {
	// Concurrency caps in-flight renders. Defaults to
	// DefaultBulkConcurrency, clamped to [1, len(records)].
	Concurrency int
	// Sink, when set, persists each successful render.
	Sink Sink
	// Jitter enables the bounded random pre-start delay.
	Jitter bool
}

// RenderBulk renders each record as its own single-record document, at most
// c at a time, in fixed-size batches in submission order. One failing record
// neither cancels nor blocks its siblings; the batch always completes and
// reports per-record outcomes.
func (e *Engine) RenderBulk(tpl *models.Template, records []models.Record, opts BulkOptions) *BulkResult {
	c := opts.Concurrency
	if c <= 0 {
		c = DefaultBulkConcurrency
	}
	if c > len(records) {
		c = len(records)
	}
	if c < 1 {
		c = 1
	}

	result := &BulkResult{
		Total:    len(records),
		Outcomes: make([]Outcome, len(records)),
	}

	for start := 0; start < len(records); start += c {
		end := start + c
		if end > len(records) {
			end = len(records)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if opts.Jitter {
					time.Sleep(time.Duration(rand.Int63n(int64(maxStartJitter))))
				}
				result.Outcomes[i] = e.renderUnit(tpl, records[i], i, opts.Sink)
			}(i)
		}
		wg.Wait()
	}

	for _, out := range result.Outcomes {
		if out.OK {
			result.Success++
		} else {
			result.Failed++
		}
	}
	return result
}

// renderUnit renders one record and optionally persists it.
func (e *Engine) renderUnit(tpl *models.Template, record models.Record, index int, sink Sink) Outcome {
	out := Outcome{Index: index, Key: recordKey(record, index)}

	data, err := e.Render(tpl, []models.Record{record})
	if err != nil {
		out.Error = err.Error()
		return out
	}

	if sink != nil {
		ref, err := sink(index, data)
		if err != nil {
			out.Error = err.Error()
			return out
		}
		out.ArtifactKey = ref
	} else {
		out.Bytes = data
	}

	out.OK = true
	return out
}

func recordKey(record models.Record, index int) string {
	if record != nil {
		if key := record.Text("id"); key != "" {
			return key
		}
	}
	return strconv.Itoa(index)
}
