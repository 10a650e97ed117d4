package cmd

import (
	"fmt"
	"strings"

	"alterego/core"
	"alterego/styles"

	"github.com/spf13/cobra"
)

func newStylesCmd() *cobra.Command {
	var showPool bool

	cmd := &cobra.Command{
		Use:   "styles",
		Short: "List the style catalog",
		Long: `Prints the styles offered on a fresh session. With --pool it also lists
the shuffle pool and the names "Surprise Me!" picks from.

Set STYLES_FILE to use a YAML catalog instead of the built-in one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := core.ReadConfig()
			catalog, err := styles.LoadCatalog(cfg.StylesFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printStyles(cmd, "Default styles", catalog.Defaults())
			if showPool {
				printStyles(cmd, "Shuffle pool", catalog.Pool())
				heading.Fprintln(out, styles.Wildcard+" picks from")
				fmt.Fprintf(out, "  %s\n\n", strings.Join(catalog.SurprisePool(), ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showPool, "pool", false, "Also list the shuffle pool and wildcard targets")
	return cmd
}

func printStyles(cmd *cobra.Command, title string, list []styles.Style) {
	out := cmd.OutOrStdout()
	heading.Fprintf(out, "%s (%d)\n", title, len(list))
	for _, s := range list {
		fmt.Fprintf(out, "  %-16s ", s.Caption)
		dim.Fprintln(out, s.Description)
	}
	fmt.Fprintln(out)
}
