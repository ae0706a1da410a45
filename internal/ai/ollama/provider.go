package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/convointel/internal/ai/aihttp"
	"github.com/kiranshivaraju/convointel/internal/config"
	"github.com/kiranshivaraju/convointel/pkg/models"
)

// Provider implements models.InsightProvider using Ollama's chat API with a
// structured-output format schema.
type Provider struct {
	cfg    config.OllamaConfig
	client *http.Client
}

func NewProvider(cfg config.OllamaConfig) *Provider {
	return &Provider{cfg: cfg, client: &http.Client{}}
}

func (p *Provider) Name() string { return "ollama" }

type chatRequest struct {
	Model    string               `json:"model"`
	Messages []aihttp.ChatMessage `json:"messages"`
	Format   map[string]any       `json:"format"`
	Stream   bool                 `json:"stream"`
}

type chatResponse struct {
	Message aihttp.ChatMessage `json:"message"`
	Done    bool               `json:"done"`
	Error   string             `json:"error,omitempty"`
}

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (json.RawMessage, error) {
	body := chatRequest{
		Model:    p.cfg.Model,
		Messages: aihttp.Messages(req.System, req.Prompt),
		Format:   req.Schema.Definition,
		Stream:   false,
	}

	var resp chatResponse
	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/api/chat"
	if err := aihttp.PostJSON(ctx, p.client, url, nil, body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", aihttp.ErrProviderUnavailable, resp.Error)
	}
	return aihttp.JSONDocument(resp.Message.Content)
}

var _ models.InsightProvider = (*Provider)(nil)
