package cmd

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"time"

	"alterego/core"
	"alterego/export"
	"alterego/history"
	"alterego/models"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or clear archived sessions",
	}
	cmd.AddCommand(newHistoryListCmd(), newHistoryClearCmd(), newHistoryExportCmd())
	return cmd
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, closeFn, err := openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			entries := h.List()
			if len(entries) == 0 {
				dim.Fprintln(out, "No archived sessions.")
				return nil
			}
			heading.Fprintf(out, "History (%d)\n", len(entries))
			for _, e := range entries {
				done, failed := countImages(e.Images)
				fmt.Fprintf(out, "  %d  %s  ", e.Timestamp, time.UnixMilli(e.Timestamp).Format(time.DateTime))
				good.Fprintf(out, "%d done", done)
				if failed > 0 {
					fmt.Fprint(out, ", ")
					bad.Fprintf(out, "%d failed", failed)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func newHistoryClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every archived session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, closeFn, err := openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			n := h.Len()
			if err := h.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d sessions.\n", n)
			return nil
		},
	}
}

func newHistoryExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <timestamp>",
		Short: "Write the finished images of an archived session to a zip file",
		Example: `  alterego history list
  alterego history export 1718000000000 -o noir.zip`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid timestamp %q: %w", args[0], err)
			}

			h, closeFn, err := openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			entry, ok := h.Get(ts)
			if !ok {
				return fmt.Errorf("no archived session with timestamp %d", ts)
			}
			modified := time.UnixMilli(ts)
			if output == "" {
				output = export.ArchiveName(modified)
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			session := models.Session{
				SourceImage:    entry.SourceImage,
				SelectedStyles: slices.Sorted(maps.Keys(entry.Images)),
				Images:         entry.Images,
			}
			n, err := export.WriteZip(f, session, modified)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(output)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d images to %s\n", n, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Archive path (default alterego-<date>.zip)")
	return cmd
}

func openHistory(ctx context.Context) (*history.History, func(), error) {
	cfg := core.ReadConfig()
	logger := cliLogger(cfg)
	st, err := openStorage(cfg, false, false, logger)
	if err != nil {
		return nil, nil, err
	}
	return history.New(ctx, st.store, logger), func() { st.Close() }, nil
}

func countImages(images map[string]models.GeneratedImage) (done, failed int) {
	for _, img := range images {
		switch img.Status() {
		case models.StatusDone:
			done++
		case models.StatusError:
			failed++
		}
	}
	return done, failed
}
