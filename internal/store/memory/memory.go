// Package memory is an in-memory store.Store for tests and local runs. Its
// conditional writes follow the same guards as the Postgres store, and records
// are copied in and out so callers never share state with the store.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/convointel/internal/store"
	"github.com/kiranshivaraju/convointel/pkg/models"
)

// Store is safe for concurrent use.
type Store struct {
	// CreateJobErr, when set, is returned by CreateAnalysisJob.
	CreateJobErr error
	// MarkProcessingErr, when set, is returned by MarkAnalysisProcessing.
	MarkProcessingErr error
	// BeforeSaveFeedback runs just before SaveSimulationFeedback takes effect.
	BeforeSaveFeedback func(id uuid.UUID)
	// PingErr is returned by Ping.
	PingErr error

	mu     sync.Mutex
	users  map[uuid.UUID]models.User
	keys   map[uuid.UUID]models.APIKey
	jobs   map[uuid.UUID]models.AnalysisJob
	sims   map[uuid.UUID]models.CallSimulation
	defUID uuid.UUID
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store with a seeded default user.
func New() *Store {
	now := time.Now().UTC()
	u := models.User{ID: uuid.New(), Email: store.DefaultUserEmail, DisplayName: "Default User", CreatedAt: now, UpdatedAt: now}
	return &Store{
		users:  map[uuid.UUID]models.User{u.ID: u},
		keys:   map[uuid.UUID]models.APIKey{},
		jobs:   map[uuid.UUID]models.AnalysisJob{},
		sims:   map[uuid.UUID]models.CallSimulation{},
		defUID: u.ID,
	}
}

func (s *Store) Ping(context.Context) error { return s.PingErr }

func (s *Store) GetDefaultUser(context.Context) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[s.defUID]
	return &u, nil
}

// --- API keys ---

func (s *Store) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix && !k.Revoked() {
			k := k
			out = append(out, &k)
		}
	}
	return out, nil
}

func (s *Store) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[id]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
		s.keys[id] = k
	}
	return nil
}

func (s *Store) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key.ID]; ok {
		return store.ErrDuplicateKey
	}
	for _, k := range s.keys {
		if k.OwnerID == key.OwnerID && k.Name == key.Name && !k.Revoked() {
			return store.ErrDuplicateKey
		}
	}
	s.keys[key.ID] = *key
	return nil
}

func (s *Store) ListAPIKeys(_ context.Context, ownerID uuid.UUID) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.OwnerID == ownerID && !k.Revoked() {
			k := k
			out = append(out, &k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) RevokeAPIKey(_ context.Context, id, ownerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok || k.OwnerID != ownerID || k.Revoked() {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	s.keys[id] = k
	return nil
}

// --- Analysis jobs ---

func (s *Store) CreateAnalysisJob(_ context.Context, job *models.AnalysisJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateJobErr != nil {
		return s.CreateJobErr
	}
	if job.Status != models.JobStatusPending {
		return fmt.Errorf("create analysis job: status must be %s, got %s", models.JobStatusPending, job.Status)
	}
	if _, ok := s.jobs[job.ID]; ok {
		return store.ErrDuplicateKey
	}
	s.jobs[job.ID] = cloneJob(*job)
	return nil
}

func (s *Store) GetAnalysisJob(_ context.Context, id, ownerID uuid.UUID) (*models.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if j.OwnerID != ownerID {
		return nil, store.ErrForbidden
	}
	j = cloneJob(j)
	return &j, nil
}

func (s *Store) ListAnalysisJobs(_ context.Context, f store.JobFilter) ([]*models.AnalysisJob, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*models.AnalysisJob
	for _, j := range s.jobs {
		if j.OwnerID == f.OwnerID && (f.Status == "" || j.Status == f.Status) {
			j := cloneJob(j)
			all = append(all, &j)
		}
	}
	sort.Slice(all, func(i, k int) bool { return all[i].CreatedAt.After(all[k].CreatedAt) })

	limit, page := f.Limit, f.Page
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	start := min((page-1)*limit, len(all))
	end := min(start+limit, len(all))
	return append([]*models.AnalysisJob{}, all[start:end]...), len(all), nil
}

// update applies fn to an owned job. fn reports whether the guard held.
// A result that breaks the job's status invariants is not stored.
func (s *Store) update(id, ownerID uuid.UUID, fn func(j *models.AnalysisJob) bool) (*models.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.OwnerID != ownerID {
		return nil, store.ErrConflict
	}
	j = cloneJob(j)
	if !fn(&j) {
		return nil, store.ErrConflict
	}
	if err := j.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("job %s: %w: %v", id, store.ErrInvalidRecord, err)
	}
	j.UpdatedAt = time.Now().UTC()
	s.jobs[id] = cloneJob(j)
	return &j, nil
}

func claimLive(j *models.AnalysisJob) bool {
	return j.ClaimToken != nil && j.ClaimExpiresAt != nil && j.ClaimExpiresAt.After(time.Now())
}

func (s *Store) MarkAnalysisProcessing(_ context.Context, id, ownerID uuid.UUID, ref string) (*models.AnalysisJob, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, fmt.Errorf("mark analysis processing: external reference is empty")
	}
	if s.MarkProcessingErr != nil {
		return nil, s.MarkProcessingErr
	}
	return s.update(id, ownerID, func(j *models.AnalysisJob) bool {
		if !models.CanTransition(j.Status, models.JobStatusProcessing) {
			return false
		}
		j.Status = models.JobStatusProcessing
		j.ExternalJobRef = &ref
		return true
	})
}

func (s *Store) ClaimAnalysisJob(_ context.Context, id, ownerID uuid.UUID, lease time.Duration) (uuid.UUID, error) {
	token := uuid.New()
	_, err := s.update(id, ownerID, func(j *models.AnalysisJob) bool {
		if j.Status != models.JobStatusProcessing || claimLive(j) {
			return false
		}
		exp := time.Now().Add(lease)
		j.ClaimToken = &token
		j.ClaimExpiresAt = &exp
		return true
	})
	if err != nil {
		return uuid.Nil, err
	}
	return token, nil
}

func (s *Store) SaveTranscript(_ context.Context, id, ownerID, token uuid.UUID, t *models.Transcript) error {
	if err := models.Validate(t); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidPayload, err)
	}
	_, err := s.update(id, ownerID, func(j *models.AnalysisJob) bool {
		if j.Status != models.JobStatusProcessing || j.ClaimToken == nil || *j.ClaimToken != token {
			return false
		}
		j.Transcript = t
		return true
	})
	return err
}

func (s *Store) CompleteAnalysisJob(_ context.Context, id, ownerID, token uuid.UUID, a *models.Analysis) (*models.AnalysisJob, error) {
	if err := models.Validate(a); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidPayload, err)
	}
	return s.update(id, ownerID, func(j *models.AnalysisJob) bool {
		if !models.CanTransition(j.Status, models.JobStatusComplete) ||
			j.ClaimToken == nil || *j.ClaimToken != token || j.Transcript == nil {
			return false
		}
		j.Status = models.JobStatusComplete
		j.Analysis = a
		j.ErrorDetail = nil
		j.ClaimToken, j.ClaimExpiresAt = nil, nil
		return true
	})
}

func (s *Store) FailAnalysisJob(_ context.Context, id, ownerID, token uuid.UUID, detail string) (*models.AnalysisJob, error) {
	if strings.TrimSpace(detail) == "" {
		detail = "unknown failure"
	}
	return s.update(id, ownerID, func(j *models.AnalysisJob) bool {
		if !models.CanTransition(j.Status, models.JobStatusFailed) {
			return false
		}
		if claimLive(j) && *j.ClaimToken != token {
			return false
		}
		j.Status = models.JobStatusFailed
		j.ErrorDetail = &detail
		j.ClaimToken, j.ClaimExpiresAt = nil, nil
		return true
	})
}

// PutJob stores job as-is, bypassing every guard.
func (s *Store) PutJob(job models.AnalysisJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
}

// JobCount reports how many jobs exist.
func (s *Store) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// --- Call simulations ---

func (s *Store) CreateCallSimulation(_ context.Context, sim *models.CallSimulation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sims[sim.ID]; ok {
		return store.ErrDuplicateKey
	}
	s.sims[sim.ID] = cloneSim(*sim)
	return nil
}

func (s *Store) getSim(id, ownerID uuid.UUID) (models.CallSimulation, error) {
	sim, ok := s.sims[id]
	if !ok {
		return sim, store.ErrNotFound
	}
	if sim.OwnerID != ownerID {
		return sim, store.ErrForbidden
	}
	return cloneSim(sim), nil
}

func (s *Store) GetCallSimulation(_ context.Context, id, ownerID uuid.UUID) (*models.CallSimulation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sim, err := s.getSim(id, ownerID)
	if err != nil {
		return nil, err
	}
	return &sim, nil
}

func (s *Store) AppendSimulationTurns(_ context.Context, id, ownerID uuid.UUID, turns []models.Turn) (*models.CallSimulation, error) {
	for i := range turns {
		if err := models.Validate(&turns[i]); err != nil {
			return nil, fmt.Errorf("%w: turn %d: %v", store.ErrInvalidPayload, i, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sim, err := s.getSim(id, ownerID)
	if err != nil {
		return nil, err
	}
	if sim.Feedback != nil {
		return nil, store.ErrConflict
	}
	sim.Turns = append(sim.Turns, turns...)
	sim.UpdatedAt = time.Now().UTC()
	s.sims[id] = cloneSim(sim)
	return &sim, nil
}

func (s *Store) SaveSimulationFeedback(_ context.Context, id, ownerID uuid.UUID, fb *models.Feedback) (*models.CallSimulation, error) {
	if err := models.Validate(fb); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidPayload, err)
	}
	if s.BeforeSaveFeedback != nil {
		s.BeforeSaveFeedback(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sim, ok := s.sims[id]
	if !ok || sim.OwnerID != ownerID || sim.Feedback != nil {
		return nil, store.ErrConflict
	}
	sim = cloneSim(sim)
	sim.Feedback = clonePayload(fb)
	sim.UpdatedAt = time.Now().UTC()
	s.sims[id] = cloneSim(sim)
	return &sim, nil
}

// PutFeedback sets a simulation's feedback, bypassing the write-once guard.
func (s *Store) PutFeedback(id uuid.UUID, fb *models.Feedback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sim, ok := s.sims[id]; ok {
		sim.Feedback = clonePayload(fb)
		s.sims[id] = sim
	}
}

func cloneJob(j models.AnalysisJob) models.AnalysisJob {
	j.Description = clonePtr(j.Description)
	j.ExternalJobRef = clonePtr(j.ExternalJobRef)
	j.ErrorDetail = clonePtr(j.ErrorDetail)
	j.ClaimToken = clonePtr(j.ClaimToken)
	j.ClaimExpiresAt = clonePtr(j.ClaimExpiresAt)
	j.Transcript = clonePayload(j.Transcript)
	j.Analysis = clonePayload(j.Analysis)
	return j
}

func cloneSim(sim models.CallSimulation) models.CallSimulation {
	sim.Persona = clonePtr(sim.Persona)
	sim.Turns = append([]models.Turn{}, sim.Turns...)
	sim.Feedback = clonePayload(sim.Feedback)
	return sim
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// clonePayload copies a JSONB-backed payload the way a database round trip
// would.
func clonePayload[T any](p *T) *T {
	if p == nil {
		return nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		panic(fmt.Sprintf("memory: copy %T: %v", p, err))
	}
	out := new(T)
	if err := json.Unmarshal(b, out); err != nil {
		panic(fmt.Sprintf("memory: copy %T: %v", p, err))
	}
	return out
}
