// Package cli provides the scheduler daemon's command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cronsentinel/cronsentinel/internal/config"
	"github.com/cronsentinel/cronsentinel/internal/obslog"
	"github.com/cronsentinel/cronsentinel/internal/scheduler"
	"github.com/cronsentinel/cronsentinel/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "cronsentinel",
	Short:   "GitOps cron supervisor for a Git-synced jobs directory",
	Long:    `cronsentinel keeps a jobs directory in sync with a Git repository and runs its cron-scheduled jobs, tracking execution history and resolving secrets into each job's environment.`,
	Version: version.Version,
	RunE:    runScheduler,
}

func init() {
	rootCmd.Flags().StringP("repo", "r", "", "Git repository URL to sync jobs from (required)")
	rootCmd.Flags().StringP("jobs-dir", "d", "./jobs", "directory to sync the jobs repository into")
	rootCmd.Flags().BoolP("verbose", "v", false, "enable verbose (debug) logging")
	rootCmd.Flags().BoolP("force-sync", "f", false, "perform one sync and reload, then exit")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	v := config.LoadViper()
	if err := v.BindPFlag("repo_url", cmd.Flags().Lookup("repo")); err != nil {
		return err
	}
	if err := v.BindPFlag("jobs_dir", cmd.Flags().Lookup("jobs-dir")); err != nil {
		return err
	}
	if err := v.BindPFlag("verbose", cmd.Flags().Lookup("verbose")); err != nil {
		return err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger := obslog.New(cmd.OutOrStdout(), "scheduler", cfg.Verbose)

	sched, err := scheduler.New(cfg.RepoURL, cfg.JobsDir, cfg.HistoryFile, cfg.SecretsFile, cfg.SecretsKeyFile, cfg.Interpreter, logger)
	if err != nil {
		return err
	}

	forceSync, _ := cmd.Flags().GetBool("force-sync")
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if forceSync {
		sched.ForceSync(ctx)
		return nil
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}
	logger.Info().Str("jobs_dir", cfg.JobsDir).Msg("scheduler started")

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	sched.Stop()
	return nil
}
