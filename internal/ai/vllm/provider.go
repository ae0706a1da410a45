package vllm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/convointel/internal/ai/aihttp"
	"github.com/kiranshivaraju/convointel/internal/config"
	"github.com/kiranshivaraju/convointel/pkg/models"
)

// Provider implements models.InsightProvider against a vLLM server's
// OpenAI-compatible endpoint, constraining decoding with guided_json.
type Provider struct {
	cfg    config.VLLMConfig
	client *http.Client
}

func NewProvider(cfg config.VLLMConfig) *Provider {
	return &Provider{cfg: cfg, client: &http.Client{}}
}

func (p *Provider) Name() string { return "vllm" }

type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []aihttp.ChatMessage `json:"messages"`
	GuidedJSON  map[string]any       `json:"guided_json"`
	Temperature float64              `json:"temperature"`
}

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (json.RawMessage, error) {
	body := chatRequest{
		Model:       p.cfg.Model,
		Messages:    aihttp.Messages(req.System, req.Prompt),
		GuidedJSON:  req.Schema.Definition,
		Temperature: 0.2,
	}

	var resp aihttp.ChatCompletionResponse
	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/chat/completions"
	if err := aihttp.PostJSON(ctx, p.client, url, nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.FirstChoice()
}

var _ models.InsightProvider = (*Provider)(nil)
