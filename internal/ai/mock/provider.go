package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/kiranshivaraju/convointel/internal/ai/aihttp"
	"github.com/kiranshivaraju/convointel/pkg/models"
)

// MockProvider satisfies models.InsightProvider for testing.
type MockProvider struct {
	Name_        string
	GenerateFunc func(ctx context.Context, req models.GenerateRequest) (json.RawMessage, error)

	calls atomic.Int64
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Generate(ctx context.Context, req models.GenerateRequest) (json.RawMessage, error) {
	m.calls.Add(1)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return json.RawMessage(`{}`), nil
}

// Calls reports how many times Generate was invoked.
func (m *MockProvider) Calls() int {
	return int(m.calls.Load())
}

// NewMockProvider returns a MockProvider with canned replies for each known
// schema.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		GenerateFunc: func(_ context.Context, req models.GenerateRequest) (json.RawMessage, error) {
			switch req.Schema.Name {
			case models.SchemaConversationAnalysis:
				return json.RawMessage(`{
					"summary": "Mock analysis: the rep opened the call and the prospect agreed to listen.",
					"sentiment": "positive",
					"key_topics": ["introduction"],
					"action_items": ["Send follow-up email"],
					"next_steps": ["Book a demo"],
					"score": 72
				}`), nil
			case models.SchemaSimulationFeedback:
				return json.RawMessage(`{
					"summary": "Mock feedback: clear opener, ask more discovery questions.",
					"strengths": ["Confident introduction"],
					"improvements": ["Ask open-ended questions"],
					"score": 65
				}`), nil
			}
			return nil, fmt.Errorf("%w: mock has no reply for schema %q", aihttp.ErrInvalidResponse, req.Schema.Name)
		},
	}
}

// NewStaticProvider returns a MockProvider that always replies with doc.
func NewStaticProvider(doc string) *MockProvider {
	return &MockProvider{
		Name_: "mock-static",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (json.RawMessage, error) {
			return json.RawMessage(doc), nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (json.RawMessage, error) {
			return nil, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		GenerateFunc: func(ctx context.Context, _ models.GenerateRequest) (json.RawMessage, error) {
			<-ctx.Done()
			return nil, aihttp.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements InsightProvider.
var _ models.InsightProvider = (*MockProvider)(nil)
