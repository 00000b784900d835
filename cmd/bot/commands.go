package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	envFile    string
	expiration string
	cycles     int
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "condor-bot",
		Short:        "Trade same-day iron condors",
		Long:         "condor-bot runs one trading session, entering 0DTE iron condors and closing losing spreads.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSession(ctx, opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "Path to configuration file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Optional dotenv file loaded before the config")
	root.PersistentFlags().StringVar(&opts.expiration, "expiration", "", "Option expiration (YYYY-MM-DD), defaults to today in the schedule timezone")
	root.Flags().IntVar(&opts.cycles, "cycles", 0, "Override schedule.max_cycles")

	root.AddCommand(newCheckCmd(opts), newStatusCmd(opts))
	return root
}

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Price the condor the bot would enter, without submitting it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			return runCheck(ctx, opts, cmd.OutOrStdout())
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session snapshot saved by a running bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(opts, cmd.OutOrStdout())
		},
	}
}

func resolveExpiration(flag string, fallback string) (string, error) {
	if flag == "" {
		return fallback, nil
	}
	if _, err := time.Parse("2006-01-02", flag); err != nil {
		return "", fmt.Errorf("invalid --expiration %q: %w", flag, err)
	}
	return flag, nil
}
