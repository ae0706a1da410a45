package models

// Analysis is the structured insight object produced for a transcribed call.
type Analysis struct {
	Summary         string           `json:"summary"                    validate:"required"`
	Sentiment       string           `json:"sentiment,omitempty"        validate:"omitempty,oneof=positive neutral negative mixed"`
	KeyTopics       []string         `json:"key_topics,omitempty"       validate:"omitempty,dive,required"`
	Objections      []Objection      `json:"objections,omitempty"       validate:"omitempty,dive"`
	ActionItems     []string         `json:"action_items,omitempty"     validate:"omitempty,dive,required"`
	NextSteps       []string         `json:"next_steps,omitempty"       validate:"omitempty,dive,required"`
	SpeakerInsights []SpeakerInsight `json:"speaker_insights,omitempty" validate:"omitempty,dive"`
	Score           *int             `json:"score,omitempty"            validate:"omitempty,gte=0,lte=100"`
}

// Objection is a prospect objection raised during the call and how it was met.
type Objection struct {
	Objection string `json:"objection"          validate:"required"`
	Response  string `json:"response,omitempty"`
	Handled   bool   `json:"handled"`
}

// SpeakerInsight summarizes one diarized speaker.
type SpeakerInsight struct {
	Speaker      string   `json:"speaker"                validate:"required"`
	Role         string   `json:"role,omitempty"         validate:"omitempty,oneof=rep prospect other"`
	TalkRatio    *float64 `json:"talk_ratio,omitempty"   validate:"omitempty,gte=0,lte=1"`
	Observations []string `json:"observations,omitempty"`
}
