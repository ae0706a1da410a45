package ai

import "github.com/kiranshivaraju/convointel/pkg/models"

func stringArray() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

// AnalysisSchema mirrors models.Analysis.
var AnalysisSchema = models.OutputSchema{
	Name:        models.SchemaConversationAnalysis,
	Description: "Structured insights for one recorded sales conversation.",
	Definition: map[string]any{
		"type":     "object",
		"required": []string{"summary"},
		"properties": map[string]any{
			"summary":      map[string]any{"type": "string", "description": "Three to five sentence recap of the call."},
			"sentiment":    map[string]any{"type": "string", "enum": []string{"positive", "neutral", "negative", "mixed"}},
			"key_topics":   stringArray(),
			"action_items": stringArray(),
			"next_steps":   stringArray(),
			"objections": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"objection", "handled"},
					"properties": map[string]any{
						"objection": map[string]any{"type": "string"},
						"response":  map[string]any{"type": "string"},
						"handled":   map[string]any{"type": "boolean"},
					},
				},
			},
			"speaker_insights": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"speaker"},
					"properties": map[string]any{
						"speaker":      map[string]any{"type": "string"},
						"role":         map[string]any{"type": "string", "enum": []string{"rep", "prospect", "other"}},
						"talk_ratio":   map[string]any{"type": "number", "minimum": 0, "maximum": 1},
						"observations": stringArray(),
					},
				},
			},
			"score": map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
		},
	},
}

// FeedbackSchema mirrors models.Feedback.
var FeedbackSchema = models.OutputSchema{
	Name:        models.SchemaSimulationFeedback,
	Description: "Coaching feedback for a practice sales call.",
	Definition: map[string]any{
		"type":     "object",
		"required": []string{"summary"},
		"properties": map[string]any{
			"summary":      map[string]any{"type": "string"},
			"strengths":    stringArray(),
			"improvements": stringArray(),
			"score":        map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
		},
	},
}
