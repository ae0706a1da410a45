package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Upload a call recording for analysis",
	Long: `Upload an audio file and start transcription. The command returns as soon
as the upload is accepted; pass --wait to keep polling until the analysis is
COMPLETE or FAILED.

Example:
  convoctl submit call.wav
  convoctl submit call.mp3 --description "Renewal with Acme" --wait --interval 5s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		flags := cmd.Flags()
		description, _ := flags.GetString("description")
		wait, _ := flags.GetBool("wait")
		interval, _ := flags.GetDuration("interval")
		timeout, _ := flags.GetDuration("timeout")

		c, err := newClient()
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open audio: %w", err)
		}
		defer f.Close()

		sub, err := c.SubmitAudio(cmd.Context(), path, f, description)
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}

		cmd.Printf("%s✓%s Submitted %s\n", colorGreen, colorReset, path)
		cmd.Printf("%s %s\n", label("Analysis ID"), sub.AnalysisID)
		cmd.Printf("%s %s\n", label("Status"), colorizeStatus(sub.Status))

		if !wait {
			cmd.Printf("\n%sCheck progress with: convoctl wait %s%s\n", colorDim, sub.AnalysisID, colorReset)
			return nil
		}
		cmd.Println()
		return waitAndPrint(cmd, c, sub.AnalysisID, interval, timeout, false)
	},
}

func init() {
	submitCmd.Flags().StringP("description", "d", "", "free-text description stored with the analysis")
	submitCmd.Flags().BoolP("wait", "w", false, "poll until the analysis is COMPLETE or FAILED")
	submitCmd.Flags().Duration("interval", 0, "time between polls with --wait (default 2s)")
	submitCmd.Flags().Duration("timeout", 0, "give up waiting after this long (0 waits forever)")
	rootCmd.AddCommand(submitCmd)
}
