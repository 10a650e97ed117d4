package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"alterego/webui/auth"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the web API token",
	}
	cmd.AddCommand(newTokenHashCmd())
	return cmd
}

func newTokenHashCmd() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash [token]",
		Short: "Print a bcrypt hash to use as API_TOKEN",
		Long: `Hashes a token with bcrypt so API_TOKEN never holds the plaintext.
Without an argument the token is read from the first line of stdin.`,
		Example: `  alterego token hash s3cret
  echo s3cret | alterego token hash`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no token on stdin")
				}
				token = strings.TrimRight(line, "\r\n")
			}

			hash, err := auth.HashTokenWithCost(token, cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", auth.DefaultCost, "bcrypt cost")
	return cmd
}
