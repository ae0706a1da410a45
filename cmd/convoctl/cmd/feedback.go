package cmd

import (
	"github.com/spf13/cobra"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <simulation-id>",
	Short: "Get coaching feedback for a practice call",
	Long: `Generate coaching feedback for a practice call. Feedback is generated once
and returned unchanged on later calls; after that the conversation can no
longer be extended.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("simulation", args[0])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}

		fb, err := c.GenerateFeedback(cmd.Context(), id)
		if err != nil {
			return err
		}
		printFeedback(cmd, id.String(), fb)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(feedbackCmd)
}
