package ai

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kiranshivaraju/convointel/pkg/models"
)

const (
	maxTranscriptBytes = 60000
	maxSummaryBytes    = 4000
)

const analysisSystemPrompt = `You are a sales conversation analyst. Read the call transcript and return
structured insights: a concise summary, overall sentiment, key topics, prospect objections and how the rep
handled them, action items, next steps, per-speaker observations and a 0-100 call quality score.
Only use information present in the transcript.`

const feedbackSystemPrompt = `You are a sales coach reviewing a practice call between a sales rep and a
simulated prospect. Return a short summary, concrete strengths, concrete improvements and a 0-100 score.`

// BuildAnalysisPrompt renders a transcript and optional context for insight
// generation. Diarized utterances are preferred over the flat text.
func BuildAnalysisPrompt(t *models.Transcript, description string) string {
	var b strings.Builder
	if d := strings.TrimSpace(description); d != "" {
		fmt.Fprintf(&b, "Call context: %s\n\n", d)
	}
	b.WriteString("Transcript:\n")

	body := t.FullText
	if len(t.Utterances) > 0 {
		var lines strings.Builder
		for _, u := range t.Utterances {
			fmt.Fprintf(&lines, "[%s] Speaker %s: %s\n", formatOffset(u.StartMs), u.Speaker, u.Text)
		}
		body = lines.String()
	}
	b.WriteString(truncateString(body, maxTranscriptBytes))
	return b.String()
}

// FormatConversation renders simulation turns as a labelled transcript.
func FormatConversation(turns []models.Turn) string {
	var b strings.Builder
	for _, turn := range turns {
		label := "Prospect"
		if turn.Role == models.TurnRoleRep {
			label = "Rep"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, strings.TrimSpace(turn.Content))
	}
	return b.String()
}

// BuildFeedbackPrompt renders a call simulation for coaching feedback.
func BuildFeedbackPrompt(sim *models.CallSimulation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scenario: %s\n", sim.Scenario)
	if sim.Persona != nil && *sim.Persona != "" {
		fmt.Fprintf(&b, "Prospect persona: %s\n", *sim.Persona)
	}
	b.WriteString("\nConversation:\n")
	b.WriteString(truncateString(FormatConversation(sim.Turns), maxTranscriptBytes))
	return b.String()
}

func formatOffset(ms int64) string {
	secs := ms / 1000
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
