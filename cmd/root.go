// Package cmd implements the newsroom command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsroom-builder/internal/app"
)

const shutdownTimeout = 10 * time.Second

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory; tests swap it.
var newApp = app.New

// cli owns the application built for the executing command, so it can be
// closed even when the command fails.
type cli struct {
	cfgFile string
	app     *app.App
}

func (c *cli) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "newsroom",
		Short: "Builds the Newsroom summarization dataset from archived news pages.",
		Long: `newsroom downloads archive.org snapshots of news articles, extracts
their text and summaries, and scores each pair with extractive fragment
metrics. Every stage is resumable: rerunning a command only processes what
its output store does not already hold.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), app.Options{ConfigPath: c.cfgFile, Flags: cmd.Flags()})
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			c.app = a
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (YAML, JSON or TOML)")
	cmd.AddCommand(newScrapeCmd(), newExtractCmd(), newPublishCmd())
	return cmd
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := c.app.Close(ctx)
	c.app = nil
	return err
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// run executes args and returns the command error.
func run(ctx context.Context, args []string) error {
	c := &cli{}
	root := c.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil && c.app != nil {
		c.app.Logger().Error("Command execution failed", zap.Error(err))
	}
	if closeErr := c.close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Execute runs the CLI with SIGINT/SIGTERM cancelling the command context
// and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "newsroom:", err)
		return 1
	}
	return 0
}
