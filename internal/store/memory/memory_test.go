package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/convointel/internal/store"
	"github.com/kiranshivaraju/convointel/internal/store/memory"
	"github.com/kiranshivaraju/convointel/pkg/models"
)

func newJob(owner uuid.UUID) *models.AnalysisJob {
	now := time.Now().UTC()
	return &models.AnalysisJob{
		ID:                uuid.New(),
		OwnerID:           owner,
		SourceArtifactRef: "http://media/a.mp3",
		ContentType:       "audio/mpeg",
		Status:            models.JobStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	owner := uuid.New()
	job := newJob(owner)
	require.NoError(t, s.CreateAnalysisJob(ctx, job))

	_, err := s.GetAnalysisJob(ctx, job.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrForbidden)
	_, err = s.GetAnalysisJob(ctx, uuid.New(), owner)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.ClaimAnalysisJob(ctx, job.ID, owner, time.Minute)
	assert.ErrorIs(t, err, store.ErrConflict, "pending jobs cannot be claimed")

	_, err = s.MarkAnalysisProcessing(ctx, job.ID, owner, "ext-1")
	require.NoError(t, err)
	_, err = s.MarkAnalysisProcessing(ctx, job.ID, owner, "ext-2")
	assert.ErrorIs(t, err, store.ErrConflict)

	token, err := s.ClaimAnalysisJob(ctx, job.ID, owner, time.Minute)
	require.NoError(t, err)
	_, err = s.ClaimAnalysisJob(ctx, job.ID, owner, time.Minute)
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.CompleteAnalysisJob(ctx, job.ID, owner, token, &models.Analysis{Summary: "ok"})
	assert.ErrorIs(t, err, store.ErrConflict, "complete requires a transcript")

	require.NoError(t, s.SaveTranscript(ctx, job.ID, owner, token, &models.Transcript{FullText: "hello"}))
	_, err = s.FailAnalysisJob(ctx, job.ID, owner, uuid.Nil, "late")
	assert.ErrorIs(t, err, store.ErrConflict, "live claim blocks unclaimed failure")

	done, err := s.CompleteAnalysisJob(ctx, job.ID, owner, token, &models.Analysis{Summary: "ok"})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusComplete, done.Status)
	assert.Nil(t, done.ClaimToken)

	_, err = s.FailAnalysisJob(ctx, job.ID, owner, token, "after the fact")
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestFailAfterLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	owner := uuid.New()
	job := newJob(owner)
	require.NoError(t, s.CreateAnalysisJob(ctx, job))
	_, err := s.MarkAnalysisProcessing(ctx, job.ID, owner, "ext-1")
	require.NoError(t, err)
	_, err = s.ClaimAnalysisJob(ctx, job.ID, owner, -time.Second)
	require.NoError(t, err)

	failed, err := s.FailAnalysisJob(ctx, job.ID, owner, uuid.Nil, "  ")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorDetail)
	assert.Equal(t, "unknown failure", *failed.ErrorDetail)
}

func TestReturnedJobsDoNotAliasStoredRecords(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	owner := uuid.New()
	job := newJob(owner)
	require.NoError(t, s.CreateAnalysisJob(ctx, job))
	_, err := s.MarkAnalysisProcessing(ctx, job.ID, owner, "ext-1")
	require.NoError(t, err)
	token, err := s.ClaimAnalysisJob(ctx, job.ID, owner, time.Minute)
	require.NoError(t, err)
	transcript := &models.Transcript{FullText: "hello"}
	require.NoError(t, s.SaveTranscript(ctx, job.ID, owner, token, transcript))
	done, err := s.CompleteAnalysisJob(ctx, job.ID, owner, token, &models.Analysis{Summary: "ok", KeyTopics: []string{"pricing"}})
	require.NoError(t, err)

	transcript.FullText = "caller edit"
	done.Analysis.Summary = "mutated"
	done.Analysis.KeyTopics[0] = "mutated"
	*done.ExternalJobRef = "ext-2"

	got, err := s.GetAnalysisJob(ctx, job.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Transcript.FullText)
	assert.Equal(t, "ok", got.Analysis.Summary)
	assert.Equal(t, []string{"pricing"}, got.Analysis.KeyTopics)
	assert.Equal(t, "ext-1", *got.ExternalJobRef)

	got.Transcript.FullText = "mutated"
	again, err := s.GetAnalysisJob(ctx, job.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Transcript.FullText)
}

func TestUpdateRejectsRecordBreakingInvariants(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	owner := uuid.New()
	job := newJob(owner)
	job.Status = models.JobStatusProcessing
	s.PutJob(*job)

	_, err := s.ClaimAnalysisJob(ctx, job.ID, owner, time.Minute)
	assert.ErrorIs(t, err, store.ErrInvalidRecord)

	got, err := s.GetAnalysisJob(ctx, job.ID, owner)
	require.NoError(t, err)
	assert.Nil(t, got.ClaimToken, "rejected update must not be stored")

	failed, err := s.FailAnalysisJob(ctx, job.ID, owner, uuid.Nil, "no reference")
	require.NoError(t, err)
	assert.NoError(t, failed.CheckInvariants())
}

func TestListAnalysisJobs(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	owner := uuid.New()
	for i := 0; i < 5; i++ {
		job := newJob(owner)
		job.CreatedAt = job.CreatedAt.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.CreateAnalysisJob(ctx, job))
	}
	require.NoError(t, s.CreateAnalysisJob(ctx, newJob(uuid.New())))

	page, total, err := s.ListAnalysisJobs(ctx, store.JobFilter{OwnerID: owner, Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt))

	none, total, err := s.ListAnalysisJobs(ctx, store.JobFilter{OwnerID: owner, Status: models.JobStatusComplete})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, none)
}

func TestSimulationFeedbackIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	owner := uuid.New()
	sim := &models.CallSimulation{ID: uuid.New(), OwnerID: owner, Scenario: "Renewal", Turns: []models.Turn{}}
	require.NoError(t, s.CreateCallSimulation(ctx, sim))

	_, err := s.AppendSimulationTurns(ctx, sim.ID, owner, []models.Turn{{Role: "narrator", Content: "x"}})
	assert.ErrorIs(t, err, store.ErrInvalidPayload)

	got, err := s.AppendSimulationTurns(ctx, sim.ID, owner, []models.Turn{{Role: models.TurnRoleRep, Content: "Hi"}})
	require.NoError(t, err)
	assert.Len(t, got.Turns, 1)

	_, err = s.SaveSimulationFeedback(ctx, sim.ID, owner, &models.Feedback{Summary: "first"})
	require.NoError(t, err)
	_, err = s.SaveSimulationFeedback(ctx, sim.ID, owner, &models.Feedback{Summary: "second"})
	assert.ErrorIs(t, err, store.ErrConflict)
	_, err = s.AppendSimulationTurns(ctx, sim.ID, owner, []models.Turn{{Role: models.TurnRoleRep, Content: "More"}})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestReturnedSimulationsDoNotAliasStoredRecords(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	owner := uuid.New()
	sim := &models.CallSimulation{ID: uuid.New(), OwnerID: owner, Scenario: "Renewal", Turns: []models.Turn{}}
	require.NoError(t, s.CreateCallSimulation(ctx, sim))

	turns := []models.Turn{{Role: models.TurnRoleRep, Content: "Hi"}}
	got, err := s.AppendSimulationTurns(ctx, sim.ID, owner, turns)
	require.NoError(t, err)
	turns[0].Content = "caller edit"
	got.Turns[0].Content = "mutated"

	fb := &models.Feedback{Summary: "solid", Strengths: []string{"rapport"}}
	withFeedback, err := s.SaveSimulationFeedback(ctx, sim.ID, owner, fb)
	require.NoError(t, err)
	fb.Strengths[0] = "caller edit"
	withFeedback.Feedback.Summary = "mutated"

	stored, err := s.GetCallSimulation(ctx, sim.ID, owner)
	require.NoError(t, err)
	require.Len(t, stored.Turns, 1)
	assert.Equal(t, "Hi", stored.Turns[0].Content)
	require.NotNil(t, stored.Feedback)
	assert.Equal(t, "solid", stored.Feedback.Summary)
	assert.Equal(t, []string{"rapport"}, stored.Feedback.Strengths)
}

func TestAPIKeys(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	user, err := s.GetDefaultUser(ctx)
	require.NoError(t, err)

	key := &models.APIKey{ID: uuid.New(), OwnerID: user.ID, Name: "cli", KeyPrefix: "ci_abcde", Scopes: []string{"read"}}
	require.NoError(t, s.CreateAPIKey(ctx, key))
	dup := *key
	dup.ID = uuid.New()
	assert.ErrorIs(t, s.CreateAPIKey(ctx, &dup), store.ErrDuplicateKey)

	found, err := s.GetAPIKeyByPrefix(ctx, "ci_abcde")
	require.NoError(t, err)
	require.Len(t, found, 1)

	require.NoError(t, s.RevokeAPIKey(ctx, key.ID, user.ID))
	assert.ErrorIs(t, s.RevokeAPIKey(ctx, key.ID, user.ID), store.ErrNotFound)
	found, err = s.GetAPIKeyByPrefix(ctx, "ci_abcde")
	require.NoError(t, err)
	assert.Empty(t, found)
}
