package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"certmill/internal/models"
	"certmill/internal/pkg/errors"
	"certmill/internal/ports"
	"certmill/internal/render"
	"certmill/internal/scheduler"
)

type fakeTemplates struct{}

func (fakeTemplates) TemplateByID(ctx context.Context, templateID, ownerID string) (*models.Template, error) {
	if templateID == "unknown" {
		return nil, errors.NotFound("template", templateID)
	}
	return &models.Template{
		ID:     templateID,
		Width:  400,
		Height: 300,
		Elements: []models.Element{
			{Text: "Hello {name}", FontSizePx: 14, BoxWidthPx: 400},
		},
	}, nil
}

type fakeRecords struct{}

func (fakeRecords) RecordByID(ctx context.Context, recordID string) (models.Record, error) {
	return models.Record{"name": "Ann"}, nil
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeStore) Provider() string { return "fake" }

func (f *fakeStore) PutObject(_ context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Reader)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	f.mu.Lock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[in.ObjectKey] = data
	f.mu.Unlock()
	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: int64(len(data))}, nil
}

func (f *fakeStore) GetObject(_ context.Context, key string) (io.ReadCloser, string, int64, error) {
	f.mu.Lock()
	data, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		return nil, "", 0, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), "application/pdf", int64(len(data)), nil
}

func (f *fakeStore) DeleteObject(context.Context, string) error { return nil }

func (f *fakeStore) GetSignedURL(context.Context, string, time.Duration) (ports.SignedURLOutput, error) {
	return ports.SignedURLOutput{}, fmt.Errorf("fake: signed URLs not supported")
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	engine := render.NewEngine(render.Config{})
	sched := scheduler.New(scheduler.Config{}, scheduler.Deps{
		Engine:    engine,
		Templates: fakeTemplates{},
		Records:   fakeRecords{},
		Artifacts: &fakeStore{},
	})
	t.Cleanup(func() {
		sched.Stop()
		engine.Shutdown()
	})
	return NewRouter(Deps{Scheduler: sched, Engine: engine})
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(t, router, "GET", "/health", "")
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Status    string          `json:"status"`
		Scheduler scheduler.Stats `json:"scheduler"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q", body.Status)
	}
}

func TestCertificateLifecycle(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/certificates",
		`{"template_id": "tpl-1", "record_id": "rec-1", "owner_id": "o-1"}`)
	if rec.Code != 202 {
		t.Fatalf("enqueue status = %d: %s", rec.Code, rec.Body.String())
	}

	var created struct {
		Job models.Job `json:"job"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Job.ID == "" || created.Job.Status != models.JobStatusQueued {
		t.Fatalf("created job = %+v", created.Job)
	}

	var job models.Job
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = doJSON(t, router, "GET", "/jobs/"+created.Job.ID, "")
		if rec.Code != 200 {
			t.Fatalf("get job status = %d", rec.Code)
		}
		var got struct {
			Job models.Job `json:"job"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		job = got.Job
		if job.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job stuck in %s", job.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if job.Status != models.JobStatusDone {
		t.Fatalf("status = %s (%s)", job.Status, job.ErrorMessage)
	}

	rec = doJSON(t, router, "GET", "/jobs/"+created.Job.ID+"/artifact", "")
	if rec.Code != 200 {
		t.Fatalf("artifact status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, created.Job.ID) {
		t.Errorf("content disposition = %q", cd)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Error("artifact body is not a PDF")
	}
}

func TestCertificateValidation(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"missing record", `{"template_id": "tpl"}`},
		{"blank fields", `{"template_id": "  ", "record_id": "  "}`},
		{"not json", `{{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, "POST", "/certificates", tt.body)
			if rec.Code != 400 {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestJobNotFound(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(t, router, "GET", "/jobs/nope", "")
	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Error.Code != "NOT_FOUND" {
		t.Errorf("error code = %q", env.Error.Code)
	}
}

func TestFailedJobHasNoArtifact(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/certificates",
		`{"template_id": "unknown", "record_id": "rec-1"}`)
	if rec.Code != 202 {
		t.Fatalf("enqueue status = %d", rec.Code)
	}
	var created struct {
		Job models.Job `json:"job"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = doJSON(t, router, "GET", "/jobs/"+created.Job.ID, "")
		var got struct {
			Job models.Job `json:"job"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if got.Job.Terminal() {
			if got.Job.Status != models.JobStatusFailed {
				t.Fatalf("status = %s, want %s", got.Job.Status, models.JobStatusFailed)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never finished")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec = doJSON(t, router, "GET", "/jobs/"+created.Job.ID+"/artifact", "")
	if rec.Code != 404 {
		t.Errorf("artifact status = %d, want 404", rec.Code)
	}
}

func TestSyncRender(t *testing.T) {
	router := newTestRouter(t)

	body := `{
	  "template": {
	    "width": 400, "height": 300,
	    "elements": [{"text": "Hi {name}", "fontSizePx": 14}]
	  },
	  "record": {"name": "Ann"}
	}`
	rec := doJSON(t, router, "POST", "/render", body)
	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Error("body is not a PDF")
	}
}

func TestSyncRenderBadTemplate(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/render",
		`{"template": {"width": 0, "height": 300, "elements": []}, "record": {}}`)
	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSyncRenderBulk(t *testing.T) {
	router := newTestRouter(t)

	body := `{
	  "template": {
	    "width": 400, "height": 300,
	    "elements": [{"text": "Hi {name}", "fontSizePx": 14}]
	  },
	  "records": [{"name": "Ann"}, {"name": "Ben"}]
	}`
	rec := doJSON(t, router, "POST", "/render/bulk", body)
	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var result struct {
		Success  int `json:"success"`
		Failed   int `json:"failed"`
		Total    int `json:"total"`
		Outcomes []struct {
			OK          bool   `json:"ok"`
			DocumentB64 []byte `json:"document_b64"`
		} `json:"outcomes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Success != 2 || result.Failed != 0 || result.Total != 2 {
		t.Fatalf("result = %d/%d of %d", result.Success, result.Failed, result.Total)
	}
	for i, out := range result.Outcomes {
		if !out.OK || !bytes.HasPrefix(out.DocumentB64, []byte("%PDF-")) {
			t.Errorf("outcome %d = %+v", i, out)
		}
	}
}

func TestCertificateBatchWithoutQueue(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(t, router, "POST", "/certificates/bulk",
		`{"template_id": "tpl", "record_ids": ["r1"]}`)
	if rec.Code != 503 {
		t.Errorf("status = %d, want 503 when no queue is configured", rec.Code)
	}
}
