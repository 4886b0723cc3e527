package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/hive/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the global persistent flags.
type CLIFlags struct {
	ConfigPath string
	Backend    string
	Location   string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext is built once in PersistentPreRunE and handed to every
// subcommand through the command context.
type CLIContext struct {
	Flags   *CLIFlags
	Cfg     *config.Config
	Logger  *slog.Logger
	Out     io.Writer
	Err     io.Writer
	In      io.Reader
	logFile *os.File
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext stored by the root pre-run. Every
// subcommand runs after it, so a missing value is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("hive: CLIContext missing from command context")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered.
func newRootCmd() *cobra.Command {
	flags := &CLIFlags{}

	cmd := &cobra.Command{
		Use:     "hive",
		Short:   "One client for local, IPFS, OneDrive, ownCloud, and S3 storage",
		Version: version,
		// Errors are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupCLIContext(cmd, flags)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			if cc.logFile != nil {
				return cc.logFile.Close()
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file path (.toml or .yaml)")
	cmd.PersistentFlags().StringVar(&flags.Backend, "backend", "", "backend: native, ipfs, onedrive, owncloud, s3")
	cmd.PersistentFlags().StringVar(&flags.Location, "location", "", "directory for tokens and account state")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newDriveCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newStatCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newMvCmd())
	cmd.AddCommand(newCpCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newCatCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// setupCLIContext resolves the effective configuration from the four-layer
// override chain, builds the logger, and installs the CLIContext plus a
// signal-aware context on cmd.
func setupCLIContext(cmd *cobra.Command, flags *CLIFlags) error {
	cli := config.CLIOverrides{
		ConfigPath:         flags.ConfigPath,
		Backend:            flags.Backend,
		PersistentLocation: flags.Location,
	}

	switch {
	case flags.Verbose:
		cli.LogLevel = "debug"
	case flags.Quiet:
		cli.LogLevel = "error"
	}

	cfg, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cc := &CLIContext{
		Flags: flags,
		Cfg:   cfg,
		Out:   cmd.OutOrStdout(),
		Err:   cmd.ErrOrStderr(),
		In:    cmd.InOrStdin(),
	}

	logger, logFile, err := buildLogger(&cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	cc.Logger = logger
	cc.logFile = logFile

	logger.Debug("config resolved",
		slog.String("backend", cfg.Backend),
		slog.String("persistent_location", cfg.PersistentLocation),
	)

	ctx := context.WithValue(cmd.Context(), cliContextKey{}, cc)
	cmd.SetContext(shutdownContext(ctx, logger))

	return nil
}

// buildLogger creates an slog.Logger from the logging config. The level
// already reflects -v/-q through the CLI override layer. Format "auto"
// writes text to a terminal and JSON otherwise; a log file is always JSON.
func buildLogger(lc *config.LoggingConfig, stderr io.Writer) (*slog.Logger, *os.File, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", lc.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}

	if lc.File != "" {
		f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}

		return slog.New(slog.NewJSONHandler(f, opts)), f, nil
	}

	if useTextLogs(lc.Format, stderr) {
		return slog.New(slog.NewTextHandler(stderr, opts)), nil, nil
	}

	return slog.New(slog.NewJSONHandler(stderr, opts)), nil, nil
}

func useTextLogs(format string, w io.Writer) bool {
	switch format {
	case "text":
		return true
	case "json":
		return false
	}

	f, ok := w.(*os.File)

	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
