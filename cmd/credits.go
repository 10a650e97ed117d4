package cmd

import (
	"context"
	"fmt"
	"strconv"

	"alterego/core"
	"alterego/credits"

	"github.com/spf13/cobra"
)

func newCreditsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Show or change the credit balance",
	}
	cmd.AddCommand(newCreditsShowCmd(), newCreditsAddCmd(), newCreditsProCmd())
	return cmd
}

func newCreditsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the balance and the pro flag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(l *credits.Ledger) error {
				printLedger(cmd, l.State())
				return nil
			})
		},
	}
}

func newCreditsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "add <pack>",
		Short:     "Apply a purchased pack",
		Long:      "Applies one of: credits_30, credits_100, credits_500, pro_monthly.",
		Example:   "  alterego credits add credits_100",
		Args:      cobra.ExactArgs(1),
		ValidArgs: packNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(l *credits.Ledger) error {
				if err := l.AddPack(credits.Pack(args[0])); err != nil {
					return err
				}
				printLedger(cmd, l.State())
				return nil
			})
		},
	}
}

func newCreditsProCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pro <on|off>",
		Short: "Turn unlimited generation on or off",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseSwitch(args[0])
			if err != nil {
				return err
			}
			return withLedger(cmd.Context(), func(l *credits.Ledger) error {
				l.SetUnlimited(on)
				printLedger(cmd, l.State())
				return nil
			})
		},
	}
}

func withLedger(ctx context.Context, fn func(*credits.Ledger) error) error {
	cfg := core.ReadConfig()
	logger := cliLogger(cfg)
	st, err := openStorage(cfg, false, false, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(credits.NewLedger(ctx, st.store, logger, credits.Config{StartingCredits: cfg.StartingCredits}))
}

func printLedger(cmd *cobra.Command, s credits.State) {
	out := cmd.OutOrStdout()
	if s.Unlimited {
		good.Fprintln(out, "Pro: unlimited generation")
		return
	}
	fmt.Fprint(out, "Balance: ")
	if s.Balance > 0 {
		good.Fprintln(out, s.Balance)
	} else {
		bad.Fprintln(out, s.Balance)
	}
}

func packNames() []string {
	packs := credits.Packs()
	names := make([]string, len(packs))
	for i, p := range packs {
		names[i] = string(p)
	}
	return names
}

func parseSwitch(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	on, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
	return on, nil
}
