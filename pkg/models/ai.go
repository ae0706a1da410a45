// Package models contains shared data models used across the convointel codebase.
package models

import (
	"context"
	"encoding/json"
)

// InsightProvider is the interface every LLM integration implements.
// Services never call a provider's API directly; they receive this interface.
type InsightProvider interface {
	// Generate returns a JSON document conforming to req.Schema.
	Generate(ctx context.Context, req GenerateRequest) (json.RawMessage, error)
	// Name returns the provider identifier (e.g., "openai", "ollama").
	Name() string
}

// GenerateRequest is one structured-output call.
type GenerateRequest struct {
	System string
	Prompt string
	Schema OutputSchema
}

// OutputSchema names a JSON Schema the reply must satisfy.
type OutputSchema struct {
	Name        string
	Description string
	Definition  map[string]any
}

// Schema names used by the insight generator.
const (
	SchemaConversationAnalysis = "conversation_analysis"
	SchemaSimulationFeedback   = "simulation_feedback"
)
