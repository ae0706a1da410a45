package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/convointel/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrForbidden = errors.New("resource belongs to another owner")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrConflict is returned by conditional writes whose guard no longer holds:
// the row moved to another status, or another caller holds the claim.
var ErrConflict = errors.New("conditional update lost")

// ErrInvalidPayload wraps a transcript, analysis or feedback document that
// failed validation on its way into or out of the database.
var ErrInvalidPayload = errors.New("invalid stored payload")

// ErrInvalidRecord marks an analysis job whose fields disagree with its
// status, such as a COMPLETE job without an analysis.
var ErrInvalidRecord = errors.New("analysis job record violates its status invariants")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultUser(ctx context.Context) (*models.User, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, ownerID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) error

	JobStore
	SimulationStore
}

// JobStore persists AnalysisJob records. Every method is scoped by owner.
type JobStore interface {
	CreateAnalysisJob(ctx context.Context, job *models.AnalysisJob) error
	// GetAnalysisJob returns ErrNotFound for an unknown id and ErrForbidden
	// when the job exists under a different owner.
	GetAnalysisJob(ctx context.Context, id, ownerID uuid.UUID) (*models.AnalysisJob, error)
	ListAnalysisJobs(ctx context.Context, filter JobFilter) ([]*models.AnalysisJob, int, error)
	MarkAnalysisProcessing(ctx context.Context, id, ownerID uuid.UUID, externalRef string) (*models.AnalysisJob, error)
	// ClaimAnalysisJob grants exclusive rights to run insight generation on a
	// PROCESSING job for the lease duration.
	ClaimAnalysisJob(ctx context.Context, id, ownerID uuid.UUID, lease time.Duration) (uuid.UUID, error)
	SaveTranscript(ctx context.Context, id, ownerID, claimToken uuid.UUID, transcript *models.Transcript) error
	CompleteAnalysisJob(ctx context.Context, id, ownerID, claimToken uuid.UUID, analysis *models.Analysis) (*models.AnalysisJob, error)
	// FailAnalysisJob accepts uuid.Nil as claimToken for failures raised
	// outside a claim; the row must then be unclaimed or its lease expired.
	FailAnalysisJob(ctx context.Context, id, ownerID, claimToken uuid.UUID, detail string) (*models.AnalysisJob, error)
}

// SimulationStore persists call simulations and their feedback.
type SimulationStore interface {
	CreateCallSimulation(ctx context.Context, sim *models.CallSimulation) error
	GetCallSimulation(ctx context.Context, id, ownerID uuid.UUID) (*models.CallSimulation, error)
	AppendSimulationTurns(ctx context.Context, id, ownerID uuid.UUID, turns []models.Turn) (*models.CallSimulation, error)
	// SaveSimulationFeedback writes feedback only if none is stored yet.
	SaveSimulationFeedback(ctx context.Context, id, ownerID uuid.UUID, feedback *models.Feedback) (*models.CallSimulation, error)
}

type JobFilter struct {
	OwnerID uuid.UUID
	Status  models.JobStatus
	Page    int
	Limit   int
}

// normalize clamps pagination the same way for every list query.
func (f JobFilter) normalize() (limit, offset int) {
	limit = f.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}
