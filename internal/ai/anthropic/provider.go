package anthropic

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

const apiVersion = "2023-06-01"

// Provider implements models.InsightProvider using the Anthropic messages
// API. The schema is offered as the only tool and the model is forced to
// call it, so the tool input is the structured reply.
type Provider struct {
	cfg    config.AnthropicConfig
	client *http.Client
}

func NewProvider(cfg config.AnthropicConfig) *Provider {
	return &Provider{cfg: cfg, client: &http.Client{}}
}

func (p *Provider) Name() string { return "anthropic" }

type messagesRequest struct {
	Model      string     `json:"model"`
	MaxTokens  int        `json:"max_tokens"`
	System     string     `json:"system,omitempty"`
	Messages   []message  `json:"messages"`
	Tools      []tool     `json:"tools"`
	ToolChoice toolChoice `json:"tool_choice"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type toolChoice struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type messagesResponse struct {
	Content []struct {
		Type  string          `json:"type"`
		Name  string          `json:"name,omitempty"`
		Input json.RawMessage `json:"input,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (json.RawMessage, error) {
	maxTokens := p.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body := messagesRequest{
		Model:     p.cfg.Model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  []message{{Role: "user", Content: req.Prompt}},
		Tools: []tool{{
			Name:        req.Schema.Name,
			Description: req.Schema.Description,
			InputSchema: req.Schema.Definition,
		}},
		ToolChoice: toolChoice{Type: "tool", Name: req.Schema.Name},
	}

	var resp messagesResponse
	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/messages"
	headers := map[string]string{
		"x-api-key":         p.cfg.APIKey,
		"anthropic-version": apiVersion,
	}
	if err := aihttp.PostJSON(ctx, p.client, url, headers, body, &resp); err != nil {
		return nil, err
	}

	if resp.StopReason == "max_tokens" {
		return nil, fmt.Errorf("%w: reply truncated at token limit", aihttp.ErrInvalidResponse)
	}
	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == req.Schema.Name && len(block.Input) > 0 {
			return block.Input, nil
		}
	}
	return nil, fmt.Errorf("%w: no %s tool call in reply", aihttp.ErrInvalidResponse, req.Schema.Name)
}

var _ models.InsightProvider = (*Provider)(nil)
