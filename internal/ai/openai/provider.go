package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/convointel/internal/ai/aihttp"
	"github.com/kiranshivaraju/convointel/internal/config"
	"github.com/kiranshivaraju/convointel/pkg/models"
)

// Provider implements models.InsightProvider using OpenAI chat completions
// with a strict JSON schema response format.
type Provider struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

func NewProvider(cfg config.OpenAIConfig) *Provider {
	return &Provider{cfg: cfg, client: &http.Client{}}
}

func (p *Provider) Name() string { return "openai" }

type chatRequest struct {
	Model          string               `json:"model"`
	Messages       []aihttp.ChatMessage `json:"messages"`
	ResponseFormat responseFormat       `json:"response_format"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema"`
}

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (json.RawMessage, error) {
	body := chatRequest{
		Model:    p.cfg.Model,
		Messages: aihttp.Messages(req.System, req.Prompt),
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchema{
				Name:        req.Schema.Name,
				Description: req.Schema.Description,
				Schema:      req.Schema.Definition,
			},
		},
	}

	var resp aihttp.ChatCompletionResponse
	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + p.cfg.APIKey}
	if err := aihttp.PostJSON(ctx, p.client, url, headers, body, &resp); err != nil {
		return nil, err
	}
	return resp.FirstChoice()
}

var _ models.InsightProvider = (*Provider)(nil)
