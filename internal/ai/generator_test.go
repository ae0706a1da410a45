package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kiranshivaraju/convointel/internal/ai"
	"github.com/kiranshivaraju/convointel/internal/ai/mock"
	"github.com/kiranshivaraju/convointel/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transcript() *models.Transcript {
	return &models.Transcript{
		FullText: "hello world",
		Utterances: []models.Utterance{
			{Speaker: "A", Text: "hello world", StartMs: 0, EndMs: 900},
		},
	}
}

func ptr[T any](v T) *T { return &v }

func TestAnalyzeConversation_Success(t *testing.T) {
	var seen models.GenerateRequest
	p := &mock.MockProvider{
		Name_: "capture",
		GenerateFunc: func(_ context.Context, req models.GenerateRequest) (json.RawMessage, error) {
			seen = req
			return json.RawMessage(`{"summary":"ok"}`), nil
		},
	}
	g := ai.NewGenerator(p, time.Second)

	a, err := g.AnalyzeConversation(context.Background(), transcript(), ptr("renewal call"))
	require.NoError(t, err)
	assert.Equal(t, "ok", a.Summary)

	assert.Equal(t, models.SchemaConversationAnalysis, seen.Schema.Name)
	assert.Contains(t, seen.Prompt, "Call context: renewal call")
	assert.Contains(t, seen.Prompt, "Speaker A: hello world")
	assert.NotEmpty(t, seen.System)
	assert.Equal(t, "capture", g.ProviderName())
}

func TestAnalyzeConversation_ProviderError(t *testing.T) {
	g := ai.NewGenerator(mock.NewFailingProvider(errors.New("rate limited")), time.Second)

	_, err := g.AnalyzeConversation(context.Background(), transcript(), nil)
	require.Error(t, err)
	assert.Equal(t, "rate limited", err.Error())
}

func TestAnalyzeConversation_Timeout(t *testing.T) {
	g := ai.NewGenerator(mock.NewTimeoutProvider(), 20*time.Millisecond)

	_, err := g.AnalyzeConversation(context.Background(), transcript(), nil)
	assert.ErrorIs(t, err, ai.ErrInferenceTimeout)
}

func TestAnalyzeConversation_TimeoutWrapsForeignError(t *testing.T) {
	p := &mock.MockProvider{GenerateFunc: func(ctx context.Context, _ models.GenerateRequest) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	g := ai.NewGenerator(p, 20*time.Millisecond)

	_, err := g.AnalyzeConversation(context.Background(), transcript(), nil)
	assert.ErrorIs(t, err, ai.ErrInferenceTimeout)
}

func TestAnalyzeConversation_InvalidReplies(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"missing summary", `{"sentiment":"positive"}`},
		{"bad sentiment", `{"summary":"ok","sentiment":"ecstatic"}`},
		{"wrong shape", `["summary"]`},
		{"empty objection", `{"summary":"ok","objections":[{"objection":""}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := ai.NewGenerator(mock.NewStaticProvider(tt.reply), time.Second)
			_, err := g.AnalyzeConversation(context.Background(), transcript(), nil)
			assert.ErrorIs(t, err, ai.ErrInvalidResponse)
		})
	}
}

func TestAnalyzeConversation_ClampsScore(t *testing.T) {
	g := ai.NewGenerator(mock.NewStaticProvider(`{"summary":"ok","score":140}`), time.Second)

	a, err := g.AnalyzeConversation(context.Background(), transcript(), nil)
	require.NoError(t, err)
	require.NotNil(t, a.Score)
	assert.Equal(t, 100, *a.Score)
}

func TestAnalyzeConversation_EmptyTranscript(t *testing.T) {
	p := mock.NewMockProvider()
	g := ai.NewGenerator(p, time.Second)

	_, err := g.AnalyzeConversation(context.Background(), &models.Transcript{}, nil)
	require.Error(t, err)
	assert.Equal(t, 0, p.Calls())
}

func TestSimulationFeedback(t *testing.T) {
	p := mock.NewMockProvider()
	g := ai.NewGenerator(p, time.Second)
	sim := &models.CallSimulation{
		Scenario: "cold call",
		Turns:    []models.Turn{{Role: models.TurnRoleRep, Content: "Hi"}},
	}

	f, err := g.SimulationFeedback(context.Background(), sim)
	require.NoError(t, err)
	assert.NotEmpty(t, f.Summary)
	assert.Equal(t, 1, p.Calls())
}

func TestSimulationFeedback_EmptyConversation(t *testing.T) {
	p := mock.NewMockProvider()
	g := ai.NewGenerator(p, time.Second)

	_, err := g.SimulationFeedback(context.Background(), &models.CallSimulation{Scenario: "x"})
	require.Error(t, err)
	assert.Equal(t, 0, p.Calls())
}

func TestBuildAnalysisPrompt_FallsBackToFullText(t *testing.T) {
	prompt := ai.BuildAnalysisPrompt(&models.Transcript{FullText: "just text"}, "")
	assert.Contains(t, prompt, "just text")
	assert.NotContains(t, prompt, "Call context")
}

func TestBuildAnalysisPrompt_Truncates(t *testing.T) {
	long := strings.Repeat("é", 40000)
	prompt := ai.BuildAnalysisPrompt(&models.Transcript{FullText: long}, "")
	assert.Less(t, len(prompt), 61000)
	assert.True(t, strings.HasSuffix(prompt, "é"))
}

func TestFormatConversation(t *testing.T) {
	out := ai.FormatConversation([]models.Turn{
		{Role: models.TurnRoleRep, Content: "Hi there "},
		{Role: models.TurnRoleProspect, Content: "Who is this?"},
	})
	assert.Equal(t, "Rep: Hi there\nProspect: Who is this?\n", out)
}

func TestBuildFeedbackPrompt_IncludesPersona(t *testing.T) {
	prompt := ai.BuildFeedbackPrompt(&models.CallSimulation{
		Scenario: "renewal",
		Persona:  ptr("skeptical CFO"),
		Turns:    []models.Turn{{Role: models.TurnRoleRep, Content: "Hello"}},
	})
	assert.Contains(t, prompt, "Scenario: renewal")
	assert.Contains(t, prompt, "Prospect persona: skeptical CFO")
	assert.Contains(t, prompt, "Rep: Hello")
}

func TestSchemas(t *testing.T) {
	assert.Equal(t, models.SchemaConversationAnalysis, ai.AnalysisSchema.Name)
	assert.Equal(t, models.SchemaSimulationFeedback, ai.FeedbackSchema.Name)
	_, err := json.Marshal(ai.AnalysisSchema.Definition)
	assert.NoError(t, err)
}
