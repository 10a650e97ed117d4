package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"alterego/core"
	"alterego/models"
	"alterego/webui"

	"github.com/spf13/cobra"
)

func newActivityCmd() *cobra.Command {
	var (
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent transform calls from the activity log",
		Example: `  alterego activity --limit 50
  alterego activity --run 7c9e6679-7425-40de-944b-e07fc1f90ae7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := core.ReadConfig()
			st, err := openStorage(cfg, false, false, cliLogger(cfg))
			if err != nil {
				return err
			}
			defer st.Close()

			var events []models.TransformEvent
			if runID != "" {
				events, err = st.repo.QueryTransformEventsByRun(cmd.Context(), runID)
			} else {
				events, err = st.repo.QueryRecentTransformEvents(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(events) == 0 {
				dim.Fprintln(out, "No activity recorded.")
				return nil
			}

			now := time.Now()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AGE\tRUN\tKIND\tSTYLE\tTARGET\tSTATUS\tDURATION")
			for _, ev := range events {
				status := ev.Status
				if ev.ErrorMessage != "" {
					status += ": " + ev.ErrorMessage
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					webui.FormatDuration(now.Sub(ev.CreatedAt)),
					shortID(ev.RunID),
					ev.Kind,
					ev.Style,
					ev.Target,
					status,
					time.Duration(ev.DurationMS)*time.Millisecond,
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show")
	cmd.Flags().StringVar(&runID, "run", "", "Show only the calls of one run")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
