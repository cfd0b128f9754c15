package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudvfs/internal/config"
	"github.com/tonimelisma/cloudvfs/internal/resolver"
	"github.com/tonimelisma/cloudvfs/internal/storage"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagAccount    string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// skipConfigAnnotation marks commands that load config themselves because
// they must work before any account resolves (accounts, token).
const skipConfigAnnotation = "skipConfig"

// openProvider is swapped out in tests.
var openProvider = resolver.OpenResolved

// CLIFlags is a snapshot of the global flags for one invocation.
type CLIFlags struct {
	ConfigPath string
	Account    string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext carries per-invocation state from the root pre-run to the
// subcommands.
type CLIContext struct {
	Flags    CLIFlags
	Logger   *slog.Logger
	Resolved *config.ResolvedAccount
	Out      io.Writer
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext returns the CLIContext stored by the root pre-run. A
// missing context is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("cli context missing: command ran without root pre-run")
	}

	return cc
}

// Provider opens the storage back end of the resolved account.
func (cc *CLIContext) Provider(ctx context.Context) (storage.Provider, error) {
	if cc.Resolved == nil {
		return nil, errors.New("no account resolved")
	}

	return openProvider(ctx, cc.Resolved, cc.Logger)
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cloudvfs",
		Short:   "One file API over several cloud storage back ends",
		Long:    "Browse and manage files on S3, Dropbox, Box, Google Drive, and OneDrive accounts through one set of commands.",
		Version: version,
		// Errors are printed by exitOnError.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			flags := CLIFlags{
				ConfigPath: flagConfigPath,
				Account:    flagAccount,
				JSON:       flagJSON,
				Verbose:    flagVerbose,
				Quiet:      flagQuiet,
			}

			cc := &CLIContext{Flags: flags, Out: cmd.OutOrStdout()}

			if cmd.Annotations[skipConfigAnnotation] == "" {
				resolved, err := loadConfig(flags)
				if err != nil {
					return err
				}

				cc.Resolved = resolved
			}

			cc.Logger = buildLogger(cc.Resolved, flags, cmd.ErrOrStderr())
			cmd.SetContext(withCLIContext(cmd.Context(), cc))

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagAccount, "account", "", "account name from the config file")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newStatCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newMvCmd())
	cmd.AddCommand(newCpCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newLinkCmd())
	cmd.AddCommand(newInfoCmd())
	cmd.AddCommand(newAccountsCmd())
	cmd.AddCommand(newTokenCmd())

	return cmd
}

// loadConfig resolves the active account from the four-layer override chain.
func loadConfig(flags CLIFlags) (*config.ResolvedAccount, error) {
	cli := config.CLIOverrides{
		ConfigPath: flags.ConfigPath,
		Account:    flags.Account,
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return resolved, nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger(resolved *config.ResolvedAccount, flags CLIFlags, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	format := "auto"

	if resolved != nil {
		switch resolved.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		if resolved.Logging.LogFormat != "" {
			format = resolved.Logging.LogFormat
		}
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if useJSONLogs(format, w) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// useJSONLogs resolves log_format. "auto" picks text on a terminal and JSON
// when stderr is redirected.
func useJSONLogs(format string, w io.Writer) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	}

	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
