package models

// Transcript is the diarized text of a call recording.
type Transcript struct {
	FullText   string      `json:"full_text"  validate:"required"`
	Utterances []Utterance `json:"utterances" validate:"dive"`
}

// Utterance is one speaker-labelled segment. Times are milliseconds from the
// start of the recording.
type Utterance struct {
	Speaker string `json:"speaker"  validate:"required"`
	Text    string `json:"text"     validate:"required"`
	StartMs int64  `json:"start_ms" validate:"gte=0"`
	EndMs   int64  `json:"end_ms"   validate:"gtefield=StartMs"`
}
