package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an AnalysisJob.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusComplete   JobStatus = "COMPLETE"
	JobStatusFailed     JobStatus = "FAILED"
)

// validTransitions lists every forward move the job state machine allows.
// Terminal states have no entry.
var validTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusComplete, JobStatusFailed},
}

// Valid reports whether s is one of the four known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusComplete, JobStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are permitted from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to JobStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SourceStatuses returns the statuses from which a job may move into to.
func SourceStatuses(to JobStatus) []JobStatus {
	var out []JobStatus
	for from, nexts := range validTransitions {
		for _, n := range nexts {
			if n == to {
				out = append(out, from)
			}
		}
	}
	return out
}

// AnalysisJob tracks one uploaded call recording through transcription and
// insight generation. The client uploads to POST /api/v1/analyses and polls
// GET /api/v1/analyses/{id}; each poll advances the job.
type AnalysisJob struct {
	ID                uuid.UUID   `db:"id"                  json:"id"`
	OwnerID           uuid.UUID   `db:"owner_id"            json:"owner_id"`
	SourceArtifactRef string      `db:"source_artifact_ref" json:"source_artifact_ref"`
	ContentType       string      `db:"content_type"        json:"content_type"`
	Description       *string     `db:"description"         json:"description,omitempty"`
	ExternalJobRef    *string     `db:"external_job_ref"    json:"external_job_ref,omitempty"`
	Status            JobStatus   `db:"status"              json:"status"`
	Transcript        *Transcript `db:"transcript"          json:"transcript"`
	Analysis          *Analysis   `db:"analysis"            json:"analysis"`
	ErrorDetail       *string     `db:"error_detail"        json:"error_detail"`
	CreatedAt         time.Time   `db:"created_at"          json:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"          json:"updated_at"`

	// Stage-two claim lease; never serialized.
	ClaimToken     *uuid.UUID `db:"claim_token"      json:"-"`
	ClaimExpiresAt *time.Time `db:"claim_expires_at" json:"-"`
}

// CheckInvariants reports the first record-level invariant the job violates.
func (j *AnalysisJob) CheckInvariants() error {
	if !j.Status.Valid() {
		return invariantError("unknown status %q", j.Status)
	}
	if j.Status != JobStatusPending && j.Status != JobStatusFailed && j.ExternalJobRef == nil {
		return invariantError("%s job has no external job reference", j.Status)
	}
	switch j.Status {
	case JobStatusComplete:
		if j.Transcript == nil || j.Analysis == nil {
			return invariantError("complete job is missing transcript or analysis")
		}
		if j.ErrorDetail != nil {
			return invariantError("complete job carries an error detail")
		}
	case JobStatusFailed:
		if j.ErrorDetail == nil {
			return invariantError("failed job has no error detail")
		}
	}
	return nil
}
