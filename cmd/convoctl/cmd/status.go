package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/convointel/pkg/client"
	"github.com/kiranshivaraju/convointel/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status <analysis-id>",
	Short: "Poll an analysis once",
	Long: `Poll an analysis once and print its state. Polling advances the analysis,
so a PROCESSING analysis may complete as a result of this call. Transcript and
insights are shown once the analysis is COMPLETE.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("analysis", args[0])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}

		job, err := c.GetAnalysis(cmd.Context(), id)
		if err != nil {
			return err
		}
		showTranscript, _ := cmd.Flags().GetBool("transcript")
		printAnalysis(cmd, job, showTranscript)
		return nil
	},
}

var waitCmd = &cobra.Command{
	Use:   "wait <analysis-id>",
	Short: "Poll an analysis until it is COMPLETE or FAILED",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("analysis", args[0])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		interval, _ := flags.GetDuration("interval")
		timeout, _ := flags.GetDuration("timeout")
		showTranscript, _ := flags.GetBool("transcript")
		return waitAndPrint(cmd, c, id, interval, timeout, showTranscript)
	},
}

// waitAndPrint polls until the analysis is terminal, printing each status
// change, then prints the final record. A FAILED analysis is an error so the
// exit code reflects it.
func waitAndPrint(cmd *cobra.Command, c *client.Client, id uuid.UUID, interval, timeout time.Duration, showTranscript bool) error {
	ctx := cmd.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var last models.JobStatus
	job, err := c.WaitForAnalysis(ctx, id, interval, func(j *models.AnalysisJob) {
		if j.Status != last && !j.Status.IsTerminal() {
			cmd.Printf("%s %s\n", colorizeStatus(j.Status), id)
		}
		last = j.Status
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			if last == "" {
				return fmt.Errorf("analysis %s: no response within %s", id, timeout)
			}
			return fmt.Errorf("analysis %s still %s after %s", id, last, timeout)
		}
		return err
	}

	cmd.Println()
	printAnalysis(cmd, job, showTranscript)
	if job.Status == models.JobStatusFailed {
		return fmt.Errorf("analysis %s failed", id)
	}
	return nil
}

func parseID(kind, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q", kind, raw)
	}
	return id, nil
}

func init() {
	statusCmd.Flags().Bool("transcript", false, "print the transcript of a completed analysis")
	rootCmd.AddCommand(statusCmd)

	waitCmd.Flags().Duration("interval", client.DefaultPollInterval, "time between polls")
	waitCmd.Flags().Duration("timeout", 30*time.Minute, "give up after this long (0 waits forever)")
	waitCmd.Flags().Bool("transcript", false, "print the transcript once complete")
	rootCmd.AddCommand(waitCmd)
}
