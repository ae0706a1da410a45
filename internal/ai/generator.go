package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kiranshivaraju/convointel/pkg/models"
)

var tracer = otel.Tracer("github.com/kiranshivaraju/convointel/internal/ai")

// Generator turns transcripts and simulated calls into validated structured
// insights using an InsightProvider.
type Generator struct {
	provider models.InsightProvider
	timeout  time.Duration
}

// NewGenerator creates a Generator. Each provider call is bounded by timeout.
func NewGenerator(provider models.InsightProvider, timeout time.Duration) *Generator {
	return &Generator{provider: provider, timeout: timeout}
}

func (g *Generator) ProviderName() string {
	return g.provider.Name()
}

// AnalyzeConversation produces the Analysis for a transcribed call.
func (g *Generator) AnalyzeConversation(ctx context.Context, transcript *models.Transcript, description *string) (*models.Analysis, error) {
	if transcript == nil || transcript.FullText == "" {
		return nil, fmt.Errorf("analyze conversation: empty transcript")
	}
	desc := ""
	if description != nil {
		desc = *description
	}

	return generate[models.Analysis](ctx, g, models.GenerateRequest{
		System: analysisSystemPrompt,
		Prompt: BuildAnalysisPrompt(transcript, desc),
		Schema: AnalysisSchema,
	}, func(a *models.Analysis) {
		a.Summary = truncateString(a.Summary, maxSummaryBytes)
		a.Score = clampScore(a.Score)
	})
}

// SimulationFeedback produces coaching feedback for a practice call.
func (g *Generator) SimulationFeedback(ctx context.Context, sim *models.CallSimulation) (*models.Feedback, error) {
	if len(sim.Turns) == 0 {
		return nil, fmt.Errorf("simulation feedback: empty conversation")
	}

	return generate[models.Feedback](ctx, g, models.GenerateRequest{
		System: feedbackSystemPrompt,
		Prompt: BuildFeedbackPrompt(sim),
		Schema: FeedbackSchema,
	}, func(f *models.Feedback) {
		f.Summary = truncateString(f.Summary, maxSummaryBytes)
		f.Score = clampScore(f.Score)
	})
}

// generate calls the provider once, decodes the reply into T, applies fix
// and validates the result.
func generate[T any](ctx context.Context, g *Generator, req models.GenerateRequest, fix func(*T)) (*T, error) {
	ctx, span := tracer.Start(ctx, "ai.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.provider", g.provider.Name()),
		attribute.String("ai.schema", req.Schema.Name),
	)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.provider.Generate(callCtx, req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrInferenceTimeout) {
			err = fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		err = fmt.Errorf("%w: decoding %s: %v", ErrInvalidResponse, req.Schema.Name, err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if fix != nil {
		fix(&out)
	}
	if err := models.Validate(&out); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &out, nil
}

func clampScore(score *int) *int {
	if score == nil {
		return nil
	}
	v := *score
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return &v
}
