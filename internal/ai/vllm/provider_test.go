package vllm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/convointel/internal/ai/vllm"
	"github.com/kiranshivaraju/convointel/internal/config"
	"github.com/kiranshivaraju/convointel/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_UsesGuidedJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "mistral-7b", body["model"])
		assert.Equal(t, map[string]any{"type": "object"}, body["guided_json"])

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" {\"summary\":\"ok\"} "}}]}`))
	}))
	defer ts.Close()

	p := vllm.NewProvider(config.VLLMConfig{BaseURL: ts.URL, Model: "mistral-7b"})
	raw, err := p.Generate(context.Background(), models.GenerateRequest{
		Prompt: "p",
		Schema: models.OutputSchema{Name: "s", Definition: map[string]any{"type": "object"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"ok"}`, string(raw))
	assert.Equal(t, "vllm", p.Name())
}
