package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/convointel/pkg/models"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status models.JobStatus) string {
	switch status {
	case models.JobStatusComplete:
		return colorGreen + "✓" + colorReset
	case models.JobStatusFailed:
		return colorRed + "✗" + colorReset
	case models.JobStatusProcessing:
		return colorYellow + "⏳" + colorReset
	case models.JobStatusPending:
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func statusColor(status models.JobStatus) string {
	switch status {
	case models.JobStatusComplete:
		return colorGreen
	case models.JobStatusFailed:
		return colorRed
	case models.JobStatusProcessing:
		return colorYellow
	case models.JobStatusPending:
		return colorCyan
	}
	return ""
}

func colorizeStatus(status models.JobStatus) string {
	c := statusColor(status)
	if c == "" {
		return string(status)
	}
	return statusIcon(status) + " " + c + string(status) + colorReset
}

func label(name string) string {
	return fmt.Sprintf("%s%-12s%s", colorDim, name+":", colorReset)
}

func printAnalysis(cmd *cobra.Command, job *models.AnalysisJob, showTranscript bool) {
	cmd.Printf("%s %sAnalysis%s\n", statusIcon(job.Status), colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%s %s\n", label("ID"), job.ID)
	cmd.Printf("%s %s\n", label("Status"), colorizeStatus(job.Status))
	if job.Description != nil {
		cmd.Printf("%s %s\n", label("Description"), *job.Description)
	}
	if !job.CreatedAt.IsZero() {
		cmd.Printf("%s %s\n", label("Created"), formatTimeWithRelative(job.CreatedAt))
	}
	if !job.CreatedAt.IsZero() && job.Status.IsTerminal() && !job.UpdatedAt.IsZero() {
		cmd.Printf("%s %s%s%s\n", label("Took"), colorCyan, formatDuration(job.UpdatedAt.Sub(job.CreatedAt)), colorReset)
	}

	if job.ErrorDetail != nil {
		cmd.Printf("%s %s%s%s\n", label("Error"), colorRed, *job.ErrorDetail, colorReset)
	}

	if a := job.Analysis; a != nil {
		cmd.Println()
		cmd.Printf("%sSummary%s\n", colorBold, colorReset)
		cmd.Println(a.Summary)
		if a.Sentiment != "" {
			cmd.Printf("%s %s\n", label("Sentiment"), a.Sentiment)
		}
		if a.Score != nil {
			cmd.Printf("%s %s\n", label("Score"), formatScore(*a.Score))
		}
		printList(cmd, "Key topics", a.KeyTopics)
		printList(cmd, "Action items", a.ActionItems)
		printList(cmd, "Next steps", a.NextSteps)
		if len(a.Objections) > 0 {
			cmd.Printf("\n%sObjections%s\n", colorBold, colorReset)
			for _, o := range a.Objections {
				mark := colorRed + "✗" + colorReset
				if o.Handled {
					mark = colorGreen + "✓" + colorReset
				}
				cmd.Printf("  %s %s\n", mark, o.Objection)
				if o.Response != "" {
					cmd.Printf("    %s%s%s\n", colorDim, o.Response, colorReset)
				}
			}
		}
	}

	if showTranscript && job.Transcript != nil {
		cmd.Printf("\n%sTranscript%s\n", colorBold, colorReset)
		if len(job.Transcript.Utterances) == 0 {
			cmd.Println(job.Transcript.FullText)
			return
		}
		for _, u := range job.Transcript.Utterances {
			cmd.Printf("%s[%s]%s %s%s:%s %s\n", colorDim, formatOffset(u.StartMs), colorReset, colorCyan, u.Speaker, colorReset, u.Text)
		}
	}
}

func printFeedback(cmd *cobra.Command, simulationID string, fb *models.Feedback) {
	cmd.Printf("%s %sFeedback%s %s(simulation %s)%s\n", colorGreen+"✓"+colorReset, colorBold, colorReset, colorDim, simulationID, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Println(fb.Summary)
	if fb.Score != nil {
		cmd.Printf("%s %s\n", label("Score"), formatScore(*fb.Score))
	}
	printList(cmd, "Strengths", fb.Strengths)
	printList(cmd, "Improvements", fb.Improvements)
}

func printList(cmd *cobra.Command, title string, items []string) {
	if len(items) == 0 {
		return
	}
	cmd.Printf("\n%s%s%s\n", colorBold, title, colorReset)
	for _, item := range items {
		cmd.Printf("  • %s\n", item)
	}
}

func formatScore(score int) string {
	c := colorRed
	switch {
	case score >= 75:
		c = colorGreen
	case score >= 50:
		c = colorYellow
	}
	return fmt.Sprintf("%s%d%s/100", c, score, colorReset)
}

func formatOffset(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func formatTimeWithRelative(t time.Time) string {
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relativeTime(t), colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// truncate shortens s to n runes for table cells.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
