package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/convointel/pkg/client"
	"github.com/kiranshivaraju/convointel/pkg/models"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List analyses, newest first",
	Long: `List stored analyses without polling them. Statuses shown here may lag
until an analysis is polled with 'status' or 'wait'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		flags := cmd.Flags()
		status, _ := flags.GetString("status")
		page, _ := flags.GetInt("page")
		limit, _ := flags.GetInt("limit")

		opts := client.ListOptions{Page: page, Limit: limit}
		if status != "" {
			opts.Status = models.JobStatus(strings.ToUpper(status))
			if !opts.Status.Valid() {
				return fmt.Errorf("invalid status %q: use PENDING, PROCESSING, COMPLETE or FAILED", status)
			}
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		result, err := c.ListAnalyses(cmd.Context(), opts)
		if err != nil {
			return err
		}

		if len(result.Items) == 0 {
			cmd.Println("No analyses found.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tDESCRIPTION")
		for _, job := range result.Items {
			desc := "-"
			if job.Description != nil && *job.Description != "" {
				desc = truncate(*job.Description, 40)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s ago\t%s\n", job.ID, job.Status, relativeTime(job.CreatedAt), desc)
		}
		tw.Flush()

		m := result.Meta
		cmd.Printf("\n%sPage %d, %d of %d total%s\n", colorDim, m.Page, len(result.Items), m.Total, colorReset)
		if m.HasNext {
			cmd.Printf("%sNext page: convoctl list --page %d%s\n", colorDim, m.Page+1, colorReset)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().String("status", "", "only show analyses in this status")
	listCmd.Flags().Int("page", 0, "page number (default 1)")
	listCmd.Flags().Int("limit", 0, "page size, at most 100 (default 20)")
	rootCmd.AddCommand(listCmd)
}
