package models_test

import (
	"testing"
	"time"

	"github.com/kiranshivaraju/convointel/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.JobStatus
		want     bool
	}{
		{models.JobStatusPending, models.JobStatusProcessing, true},
		{models.JobStatusPending, models.JobStatusFailed, true},
		{models.JobStatusPending, models.JobStatusComplete, false},
		{models.JobStatusProcessing, models.JobStatusComplete, true},
		{models.JobStatusProcessing, models.JobStatusFailed, true},
		{models.JobStatusProcessing, models.JobStatusPending, false},
		{models.JobStatusComplete, models.JobStatusFailed, false},
		{models.JobStatusFailed, models.JobStatusProcessing, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, models.CanTransition(tt.from, tt.to))
		})
	}
}

func TestSourceStatuses(t *testing.T) {
	assert.ElementsMatch(t,
		[]models.JobStatus{models.JobStatusPending, models.JobStatusProcessing},
		models.SourceStatuses(models.JobStatusFailed))
	assert.Equal(t, []models.JobStatus{models.JobStatusProcessing}, models.SourceStatuses(models.JobStatusComplete))
	assert.Empty(t, models.SourceStatuses(models.JobStatusPending))
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.True(t, models.JobStatusComplete.IsTerminal())
	assert.True(t, models.JobStatusFailed.IsTerminal())
	assert.False(t, models.JobStatusPending.IsTerminal())
	assert.False(t, models.JobStatusProcessing.IsTerminal())
	assert.False(t, models.JobStatus("weird").Valid())
}

func TestCheckInvariants(t *testing.T) {
	ref := strPtr("ext-1")
	tr := &models.Transcript{FullText: "hi"}
	an := &models.Analysis{Summary: "ok"}

	tests := []struct {
		name    string
		job     models.AnalysisJob
		wantErr bool
	}{
		{"pending without ref", models.AnalysisJob{Status: models.JobStatusPending}, false},
		{"processing without ref", models.AnalysisJob{Status: models.JobStatusProcessing}, true},
		{"complete with payloads", models.AnalysisJob{Status: models.JobStatusComplete, ExternalJobRef: ref, Transcript: tr, Analysis: an}, false},
		{"complete without analysis", models.AnalysisJob{Status: models.JobStatusComplete, ExternalJobRef: ref, Transcript: tr}, true},
		{"complete with error", models.AnalysisJob{Status: models.JobStatusComplete, ExternalJobRef: ref, Transcript: tr, Analysis: an, ErrorDetail: strPtr("x")}, true},
		{"failed without detail", models.AnalysisJob{Status: models.JobStatusFailed}, true},
		{"failed at submission", models.AnalysisJob{Status: models.JobStatusFailed, ErrorDetail: strPtr("boom")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.CheckInvariants()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_Transcript(t *testing.T) {
	ok := &models.Transcript{
		FullText: "hello world",
		Utterances: []models.Utterance{
			{Speaker: "A", Text: "hello", StartMs: 0, EndMs: 400},
			{Speaker: "B", Text: "world", StartMs: 400, EndMs: 900},
		},
	}
	require.NoError(t, models.Validate(ok))

	assert.Error(t, models.Validate(&models.Transcript{}))
	assert.Error(t, models.Validate(&models.Transcript{
		FullText:   "x",
		Utterances: []models.Utterance{{Speaker: "A", Text: "x", StartMs: 500, EndMs: 100}},
	}))
	assert.Error(t, models.Validate(&models.Transcript{
		FullText:   "x",
		Utterances: []models.Utterance{{Text: "no speaker"}},
	}))
}

func TestValidate_Analysis(t *testing.T) {
	score := 72
	require.NoError(t, models.Validate(&models.Analysis{Summary: "ok"}))
	require.NoError(t, models.Validate(&models.Analysis{Summary: "ok", Sentiment: "positive", Score: &score}))

	bad := 140
	assert.Error(t, models.Validate(&models.Analysis{}))
	assert.Error(t, models.Validate(&models.Analysis{Summary: "ok", Sentiment: "ecstatic"}))
	assert.Error(t, models.Validate(&models.Analysis{Summary: "ok", Score: &bad}))
	assert.Error(t, models.Validate(&models.Analysis{Summary: "ok", Objections: []models.Objection{{}}}))
}

func TestValidateTurns(t *testing.T) {
	require.NoError(t, models.ValidateTurns([]models.Turn{{Role: "rep", Content: "Hi"}}))
	assert.Error(t, models.ValidateTurns(nil))
	assert.Error(t, models.ValidateTurns([]models.Turn{{Role: "narrator", Content: "Hi"}}))
	assert.Error(t, models.ValidateTurns([]models.Turn{{Role: "rep"}}))
}

func TestFeedback_IsEmpty(t *testing.T) {
	var nilFeedback *models.Feedback
	assert.True(t, nilFeedback.IsEmpty())
	assert.True(t, (&models.Feedback{Summary: "  "}).IsEmpty())
	assert.False(t, (&models.Feedback{Summary: "Solid discovery"}).IsEmpty())
}

func TestScopes(t *testing.T) {
	for _, s := range models.AllScopes {
		assert.True(t, models.ValidScope(s), s)
	}
	assert.False(t, models.ValidScope("root"))
	assert.False(t, models.ValidScope("READ"))
	assert.Subset(t, models.AllScopes, models.DefaultScopes)
	assert.NotContains(t, models.DefaultScopes, models.ScopeAdmin)
}

func TestAPIKeyRevoked(t *testing.T) {
	k := &models.APIKey{}
	assert.False(t, k.Revoked())
	now := time.Now()
	k.DeletedAt = &now
	assert.True(t, k.Revoked())
}
