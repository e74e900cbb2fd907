package models

import "time"

// JobStatus enumerates the job lifecycle states. Transitions are
// QUEUED → RUNNING → DONE|FAILED; terminal states are never re-entered and
// there is no cancelled state.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "QUEUED"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusDone    JobStatus = "DONE"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobKind enumerates the work a job carries.
type JobKind string

// JobKindCertificate renders one template+record pair into a PDF.
const JobKindCertificate JobKind = "certificate"

// Job is one asynchronous render unit. ArtifactKey/ArtifactName are set only
// on DONE, ErrorMessage only on FAILED. Job metadata lives in memory and is
// reclaimed by the scheduler's sweeper after its TTL.
type Job struct {
	ID           string    `json:"id"`
	Kind         JobKind   `json:"kind"`
	TemplateID   string    `json:"template_id"`
	RecordID     string    `json:"record_id"`
	OwnerID      string    `json:"owner_id"`
	Status       JobStatus `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ArtifactKey  string    `json:"artifact_key,omitempty"`
	ArtifactName string    `json:"artifact_name,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// Terminal reports whether the job reached DONE or FAILED.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusFailed
}
