// Package scheduler queues certificate render jobs and drains them into the
// render engine under a concurrency limit. Job metadata is in-memory only
// and reclaimed after a TTL; artifacts are persisted through the storage
// provider. Losing job metadata on restart is accepted.
package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"certmill/internal/models"
	"certmill/internal/pkg/errors"
	"certmill/internal/pkg/logger"
	"certmill/internal/ports"
	"certmill/internal/render"
)

// TemplateSource resolves a template for an owner. Authorization beyond the
// owner match happens before the scheduler is invoked.
type TemplateSource interface {
	TemplateByID(ctx context.Context, templateID, ownerID string) (*models.Template, error)
}

// RecordSource resolves one participant record.
type RecordSource interface {
	RecordByID(ctx context.Context, recordID string) (models.Record, error)
}

// Config tunes the scheduler. Zero values take the defaults; concurrency is
// hard-capped so a misconfigured deployment cannot starve the host.
type Config struct {
	MaxQueueSize    int           // default 100
	MaxRetainedJobs int           // default 250
	Concurrency     int           // default 2, capped at 16
	JobTTL          time.Duration // default 30m
	SweepInterval   time.Duration // default 60s
}

const (
	defaultMaxQueueSize    = 100
	defaultMaxRetainedJobs = 250
	defaultConcurrency     = 2
	maxConcurrency         = 16
	defaultJobTTL          = 30 * time.Minute
	defaultSweepInterval   = 60 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = defaultMaxQueueSize
	}
	if c.MaxRetainedJobs <= 0 {
		c.MaxRetainedJobs = defaultMaxRetainedJobs
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.Concurrency > maxConcurrency {
		c.Concurrency = maxConcurrency
	}
	if c.JobTTL <= 0 {
		c.JobTTL = defaultJobTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	return c
}

// Deps are the scheduler's collaborators.
type Deps struct {
	Engine    *render.Engine
	Templates TemplateSource
	Records   RecordSource
	Artifacts ports.StorageProvider
	Log       *logger.Logger
}

// Scheduler owns the job store and FIFO queue. All mutation goes through its
// mutex; enqueue, drain completion and the sweep tick can fire concurrently.
type Scheduler struct {
	cfg       Config
	engine    *render.Engine
	templates TemplateSource
	records   RecordSource
	artifacts ports.StorageProvider
	log       *logger.Logger
	now       func() time.Time

	mu       sync.Mutex
	jobs     map[string]*models.Job
	queue    []string
	active   int
	sweeping bool
	stopped  bool

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a scheduler and starts its background sweeper.
func New(cfg Config, d Deps) *Scheduler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}

	s := &Scheduler{
		cfg:       cfg.withDefaults(),
		engine:    d.Engine,
		templates: d.Templates,
		records:   d.Records,
		artifacts: d.Artifacts,
		log:       log.WithComponent("scheduler"),
		now:       time.Now,
		jobs:      make(map[string]*models.Job),
		stop:      make(chan struct{}),
	}

	go s.sweepLoop()
	return s
}

// Stop halts the sweeper and stops launching queued jobs. In-flight jobs run
// to completion; there is no job cancellation.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// Enqueue accepts one render job. It fails fast with QUEUE_FULL when the
// queue is at capacity, and with STORE_BUSY when the job store stays full
// after a synchronous expiry sweep.
func (s *Scheduler) Enqueue(ctx context.Context, templateID, recordID, ownerID string) (*models.Job, error) {
	now := s.now()

	s.mu.Lock()
	if len(s.queue) >= s.cfg.MaxQueueSize {
		s.mu.Unlock()
		return nil, errors.QueueFull(s.cfg.MaxQueueSize)
	}

	var sweptArtifacts []string
	if len(s.jobs) >= s.cfg.MaxRetainedJobs {
		sweptArtifacts = s.expireLocked(now)
		if len(s.jobs) >= s.cfg.MaxRetainedJobs {
			s.mu.Unlock()
			s.deleteArtifacts(ctx, sweptArtifacts)
			return nil, errors.StoreBusy(s.cfg.MaxRetainedJobs)
		}
	}

	job := &models.Job{
		ID:         uuid.NewString(),
		Kind:       models.JobKindCertificate,
		TemplateID: templateID,
		RecordID:   recordID,
		OwnerID:    ownerID,
		Status:     models.JobStatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.jobs[job.ID] = job
	s.queue = append(s.queue, job.ID)
	snapshot := *job
	s.mu.Unlock()

	s.deleteArtifacts(ctx, sweptArtifacts)

	s.log.WithJobID(job.ID).Info("job enqueued",
		"template_id", templateID,
		"record_id", recordID,
	)
	s.drain()
	return &snapshot, nil
}

// GetJob returns a copy of the job. No side effects.
func (s *Scheduler) GetJob(id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, errors.NotFound("job", id)
	}
	snapshot := *job
	return &snapshot, nil
}

// Artifact returns the rendered document for a DONE job.
func (s *Scheduler) Artifact(ctx context.Context, id string) ([]byte, string, error) {
	job, err := s.GetJob(id)
	if err != nil {
		return nil, "", err
	}
	if job.Status != models.JobStatusDone {
		return nil, "", errors.NotFound("artifact", id).WithField("status", string(job.Status))
	}

	rc, _, _, err := s.artifacts.GetObject(ctx, job.ArtifactKey)
	if err != nil {
		return nil, "", errors.Wrap(err, "scheduler.artifact", "artifact read failed")
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", errors.Wrap(err, "scheduler.artifact", "artifact read failed")
	}
	return data, job.ArtifactName, nil
}

// drain launches queued jobs while worker slots are free. Re-invoked after
// every job completion.
func (s *Scheduler) drain() {
	s.mu.Lock()
	for !s.stopped && s.active < s.cfg.Concurrency && len(s.queue) > 0 {
		id := s.queue[0]
		s.queue = s.queue[1:]

		job, ok := s.jobs[id]
		if !ok {
			// Swept while queued.
			continue
		}
		job.Status = models.JobStatusRunning
		job.UpdatedAt = s.now()
		s.active++
		go s.execute(job.ID, job.TemplateID, job.RecordID, job.OwnerID)
	}
	s.mu.Unlock()
}

// execute runs one job to a terminal state. Failures are captured into the
// job record and never escape this goroutine.
func (s *Scheduler) execute(jobID, templateID, recordID, ownerID string) {
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
		s.drain()
	}()

	ctx := logger.ContextWithJobID(context.Background(), jobID)
	log := s.log.WithJobID(jobID)
	started := s.now()

	tpl, err := s.templates.TemplateByID(ctx, templateID, ownerID)
	if err != nil {
		s.fail(jobID, errors.Wrap(err, "scheduler.execute", "template lookup failed"))
		return
	}

	record, err := s.records.RecordByID(ctx, recordID)
	if err != nil {
		s.fail(jobID, errors.Wrap(err, "scheduler.execute", "record lookup failed"))
		return
	}

	data, err := s.engine.Render(tpl, []models.Record{record})
	if err != nil {
		s.fail(jobID, err)
		return
	}

	name := fmt.Sprintf("certificate-%s.pdf", jobID)
	key := "certificates/" + jobID + ".pdf"
	put, err := s.artifacts.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   key,
		ContentType: "application/pdf",
		Reader:      bytes.NewReader(data),
		Size:        int64(len(data)),
	})
	if err != nil {
		s.fail(jobID, errors.Wrap(err, "scheduler.execute", "artifact write failed"))
		return
	}

	s.complete(jobID, put.ObjectKey, name)
	log.Info("job completed",
		"artifact_key", put.ObjectKey,
		"bytes", len(data),
		"duration_ms", s.now().Sub(started).Milliseconds(),
	)
}

func (s *Scheduler) complete(jobID, artifactKey, artifactName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Terminal() {
		return
	}
	job.Status = models.JobStatusDone
	job.ArtifactKey = artifactKey
	job.ArtifactName = artifactName
	job.UpdatedAt = s.now()
}

func (s *Scheduler) fail(jobID string, cause error) {
	msg := cause.Error()
	if len(msg) > 2000 {
		msg = msg[:2000]
	}
	s.log.WithJobID(jobID).Error("job failed", "error", msg)

	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Terminal() {
		return
	}
	job.Status = models.JobStatusFailed
	job.ErrorMessage = msg
	job.UpdatedAt = s.now()
}

// sweepLoop runs the recurring TTL sweep until Stop.
func (s *Scheduler) sweepLoop() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep(context.Background())
		}
	}
}

// Sweep removes jobs whose updatedAt age exceeds the TTL, deleting their
// artifacts best-effort. At most one sweep runs at a time; overlapping calls
// return immediately.
func (s *Scheduler) Sweep(ctx context.Context) {
	s.mu.Lock()
	if s.sweeping {
		s.mu.Unlock()
		return
	}
	s.sweeping = true
	keys := s.expireLocked(s.now())
	s.mu.Unlock()

	s.deleteArtifacts(ctx, keys)

	s.mu.Lock()
	s.sweeping = false
	s.mu.Unlock()
}

// expireLocked removes expired job records and returns their artifact keys.
// Running jobs are never expired; TTL reclaims retained results only.
func (s *Scheduler) expireLocked(now time.Time) []string {
	var keys []string
	expired := make(map[string]bool)

	for id, job := range s.jobs {
		if job.Status == models.JobStatusRunning {
			continue
		}
		if now.Sub(job.UpdatedAt) <= s.cfg.JobTTL {
			continue
		}
		if job.ArtifactKey != "" {
			keys = append(keys, job.ArtifactKey)
		}
		delete(s.jobs, id)
		expired[id] = true
	}

	if len(expired) > 0 {
		kept := s.queue[:0]
		for _, id := range s.queue {
			if !expired[id] {
				kept = append(kept, id)
			}
		}
		s.queue = kept
		s.log.Info("sweep reclaimed jobs", "count", len(expired))
	}
	return keys
}

// deleteArtifacts removes artifact objects, ignoring missing-file errors.
func (s *Scheduler) deleteArtifacts(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.artifacts.DeleteObject(ctx, key); err != nil {
			s.log.Debug("artifact delete skipped", "key", key, "error", err.Error())
		}
	}
}

// Stats is a point-in-time view of scheduler load.
type Stats struct {
	Queued   int `json:"queued"`
	Active   int `json:"active"`
	Retained int `json:"retained"`
}

// Snapshot reports current queue depth, active workers and retained jobs.
func (s *Scheduler) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Queued: len(s.queue), Active: s.active, Retained: len(s.jobs)}
}
