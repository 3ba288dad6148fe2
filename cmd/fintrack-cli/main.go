package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fintrack/internal/cli"
	applog "fintrack/internal/log"
)

var version = "dev"

// runtime carries the bootstrapped application between cobra hooks and
// command bodies.
type runtime struct {
	app      *cli.App
	logLevel string
	jsonOut  bool
}

func newRootCmd(rt *runtime) *cobra.Command {
	root := &cobra.Command{
		Use:   "fintrack-cli",
		Short: "Personal finance tracker",
		Long: `fintrack-cli manages the same ledger as the fintrack server: record
income and expenses, check budgets, import bank statements and export
transactions to CSV or Google Sheets.

Configuration comes from the environment and an optional .env file.`,
		SilenceUsage:      true,
		PersistentPreRunE: rt.setup,
	}

	root.PersistentFlags().StringVar(&rt.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	root.PersistentFlags().BoolVar(&rt.jsonOut, "json", false, "print JSON instead of tables")

	root.AddCommand(summaryCmd(rt))
	root.AddCommand(budgetsCmd(rt))
	root.AddCommand(categoriesCmd(rt))
	root.AddCommand(transactionsCmd(rt))
	root.AddCommand(accountsCmd(rt))
	root.AddCommand(importOFXCmd(rt))
	root.AddCommand(importCSVCmd(rt))
	root.AddCommand(exportCmd(rt))
	root.AddCommand(syncCmd(rt))
	root.AddCommand(versionCmd())
	return root
}

// setup loads configuration and bootstraps the application. Logs go to
// stderr so command output stays parseable.
func (rt *runtime) setup(cmd *cobra.Command, _ []string) error {
	cli.LoadEnvFile()
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}
	if rt.logLevel != "" {
		cfg.LogLevel = rt.logLevel
	}
	level, err := applog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := applog.New(applog.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: applog.ComponentApp,
		Output:    cmd.ErrOrStderr(),
	})
	applog.SetDefault(logger)

	app, err := cli.Bootstrap(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	rt.app = app
	return nil
}

func (rt *runtime) close(ctx context.Context) error {
	if rt.app == nil {
		return nil
	}
	err := rt.app.Close(ctx)
	rt.app = nil
	return err
}

// execute runs the command tree with args and always releases the
// application afterwards, including when a command fails.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	rt := &runtime{}
	root := newRootCmd(rt)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if cerr := rt.close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	err := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// No configuration needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fintrack-cli %s\n", version)
		},
	}
}
