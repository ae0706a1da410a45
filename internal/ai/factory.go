package ai

import (
	"fmt"

	"github.com/kiranshivaraju/convointel/internal/ai/anthropic"
	"github.com/kiranshivaraju/convointel/internal/ai/mock"
	"github.com/kiranshivaraju/convointel/internal/ai/ollama"
	"github.com/kiranshivaraju/convointel/internal/ai/openai"
	"github.com/kiranshivaraju/convointel/internal/ai/vllm"
	"github.com/kiranshivaraju/convointel/internal/config"
	"github.com/kiranshivaraju/convointel/pkg/models"
)

// NewProvider constructs the appropriate insight provider based on config.
// Called once at server startup.
func NewProvider(cfg config.AIConfig) (models.InsightProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewProvider(cfg.Ollama), nil
	case "vllm":
		return vllm.NewProvider(cfg.VLLM), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic), nil
	case "mock":
		return mock.NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai, anthropic, mock", cfg.Provider)
	}
}
