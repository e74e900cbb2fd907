package render

import (
	"bytes"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"certmill/internal/models"
)

func TestRenderBulkAllSucceed(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Shutdown()

	records := make([]models.Record, 5)
	for i := range records {
		records[i] = models.Record{"name": "recipient " + strconv.Itoa(i)}
	}

	result := engine.RenderBulk(testTemplate(), records, BulkOptions{})
	if result.Success != 5 || result.Failed != 0 || result.Total != 5 {
		t.Fatalf("result = %d/%d of %d, want 5/0 of 5", result.Success, result.Failed, result.Total)
	}
	for i, out := range result.Outcomes {
		if out.Index != i {
			t.Errorf("outcome %d has index %d, want submission order", i, out.Index)
		}
		if !out.OK {
			t.Errorf("outcome %d failed: %s", i, out.Error)
		}
		if got := pageCount(out.Bytes); got != 1 {
			t.Errorf("outcome %d has %d pages, want 1", i, got)
		}
	}
}

func TestRenderBulkOneBadRecordDoesNotAbortBatch(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Shutdown()

	tpl := testTemplate()
	tpl.Background = "{bg}"

	records := make([]models.Record, 10)
	for i := range records {
		records[i] = models.Record{"name": "r" + strconv.Itoa(i), "bg": "background.png"}
	}
	records[5]["bg"] = "missing.png"

	result := engine.RenderBulk(tpl, records, BulkOptions{Concurrency: 4})
	if result.Success != 9 || result.Failed != 1 {
		t.Fatalf("result = %d/%d, want 9/1", result.Success, result.Failed)
	}
	for i, out := range result.Outcomes {
		wantOK := i != 5
		if out.OK != wantOK {
			t.Errorf("outcome %d OK = %v, want %v", i, out.OK, wantOK)
		}
	}
	if result.Outcomes[5].Error == "" {
		t.Error("failed outcome carries no error message")
	}
}

func TestRenderBulkMatchesSingleRender(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Shutdown()

	record := models.Record{"course": "Go 101", "name": "Ann"}

	single, err := engine.Render(testTemplate(), []models.Record{record})
	if err != nil {
		t.Fatal(err)
	}
	result := engine.RenderBulk(testTemplate(), []models.Record{record}, BulkOptions{})
	if result.Failed != 0 {
		t.Fatalf("bulk render failed: %s", result.Outcomes[0].Error)
	}
	if !bytes.Equal(single, result.Outcomes[0].Bytes) {
		t.Error("bulk outcome bytes differ from single render of the same record")
	}
}

func TestRenderBulkSink(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Shutdown()

	records := []models.Record{
		{"id": "alpha", "name": "Ann"},
		{"id": "beta", "name": "Ben"},
	}

	var mu sync.Mutex
	persisted := map[int]int{}
	sink := func(index int, data []byte) (string, error) {
		mu.Lock()
		persisted[index] = len(data)
		mu.Unlock()
		return "bulk/" + strconv.Itoa(index) + ".pdf", nil
	}

	result := engine.RenderBulk(testTemplate(), records, BulkOptions{Sink: sink})
	if result.Success != 2 {
		t.Fatalf("success = %d, want 2", result.Success)
	}
	for i, out := range result.Outcomes {
		if out.ArtifactKey != "bulk/"+strconv.Itoa(i)+".pdf" {
			t.Errorf("outcome %d artifact key = %q", i, out.ArtifactKey)
		}
		if out.Bytes != nil {
			t.Errorf("outcome %d retains bytes despite sink", i)
		}
		if persisted[i] == 0 {
			t.Errorf("sink saw no data for outcome %d", i)
		}
	}
	if result.Outcomes[0].Key != "alpha" || result.Outcomes[1].Key != "beta" {
		t.Errorf("outcome keys = %q, %q, want record ids", result.Outcomes[0].Key, result.Outcomes[1].Key)
	}
}

func TestRenderBulkSinkFailureFailsOutcome(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Shutdown()

	sink := func(index int, data []byte) (string, error) {
		if index == 1 {
			return "", fmt.Errorf("disk full")
		}
		return strconv.Itoa(index), nil
	}

	records := []models.Record{{"name": "a"}, {"name": "b"}, {"name": "c"}}
	result := engine.RenderBulk(testTemplate(), records, BulkOptions{Sink: sink})
	if result.Success != 2 || result.Failed != 1 {
		t.Fatalf("result = %d/%d, want 2/1", result.Success, result.Failed)
	}
	if out := result.Outcomes[1]; out.OK || out.Error != "disk full" {
		t.Errorf("outcome 1 = %+v, want sink error", out)
	}
}

func TestRenderBulkEmptyBatch(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Shutdown()

	result := engine.RenderBulk(testTemplate(), nil, BulkOptions{})
	if result.Total != 0 || result.Success != 0 || result.Failed != 0 {
		t.Errorf("empty batch result = %+v", result)
	}
}

func TestRenderBulkNilRecordFailsOnlyThatOutcome(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Shutdown()

	records := []models.Record{{"name": "a"}, nil, {"name": "c"}}
	result := engine.RenderBulk(testTemplate(), records, BulkOptions{Concurrency: 1})
	if result.Success != 2 || result.Failed != 1 {
		t.Fatalf("result = %d/%d, want 2/1", result.Success, result.Failed)
	}
	if result.Outcomes[1].OK {
		t.Error("nil record rendered successfully")
	}
	if result.Outcomes[1].Key != "1" {
		t.Errorf("nil record key = %q, want index fallback", result.Outcomes[1].Key)
	}
}
