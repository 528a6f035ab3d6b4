// Package cli implements the hwclaim command-line interface.
//
// This package uses global variables to manage CLI state, which is the standard
// pattern for Cobra-based CLI applications. The globals are initialized in
// PersistentPreRunE and cleaned up in PersistentPostRun.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"context"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/mrz1836/hwclaim/internal/config"
	"github.com/mrz1836/hwclaim/internal/metrics"
	"github.com/mrz1836/hwclaim/internal/output"
	"github.com/mrz1836/hwclaim/internal/session"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

var (
	// Global flags
	homeDir      string
	outputFormat string
	verbose      bool
	metricsAddr  string
	bridgeURL    string
	explorerName string

	// Global state initialized in PersistentPreRunE
	cfg       *config.Config
	logger    *config.Logger
	formatter *output.Formatter
	store     *session.Store

	stopMetrics context.CancelFunc
	helpOnce    sync.Once
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "hwclaim",
	Short: "Claim Komodo rewards held on a hardware wallet",
	Long: `hwclaim finds the Komodo (KMD) accounts of a Ledger or Trezor, shows
their balances and accrued rewards, and claims the rewards with a single
transaction per account that you confirm on the device.

Private keys never leave the hardware wallet. hwclaim only asks it for
extended public keys and signatures.

Example:
  hwclaim vendor ledger
  hwclaim discover
  hwclaim claim --account 0`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := initGlobals(cmd.Root(), !skipsValidation(cmd)); err != nil {
			return err
		}
		startMetrics(cmd)
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// Execute runs the root command.
func Execute() error {
	helpOnce.Do(finalizeHelp)
	err := rootCmd.Execute()
	if err != nil {
		if formatter != nil {
			_ = output.FormatErrorThemed(os.Stderr, err, formatter.Format(), formatter.Theme())
		} else {
			_ = output.FormatError(os.Stderr, err, output.FormatText)
		}
		return err
	}
	return nil
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	return hwerr.ExitCode(err)
}

// initGlobals initializes configuration, logger, session store and formatter.
// With validate unset an invalid config is tolerated so it can be repaired.
func initGlobals(root *cobra.Command, validate bool) error {
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}
	home = config.ExpandHome(home)

	var err error
	cfg, err = config.LoadOrDefaults(config.Path(home))
	if err != nil {
		if validate {
			return err
		}
		cfg = config.Defaults()
	}
	cfg.Home = home

	config.ApplyEnvironment(cfg)

	// Flags win over the environment.
	if homeDir != "" {
		cfg.Home = config.ExpandHome(homeDir)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if outputFormat != "" && outputFormat != string(output.FormatAuto) {
		cfg.Output.DefaultFormat = outputFormat
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if bridgeURL != "" {
		cfg.Device.BridgeURL = config.SanitizeURL(bridgeURL)
	}
	if explorerName != "" {
		cfg.Explorer.Preferred = explorerName
	}
	if err := cfg.Validate(); err != nil && validate {
		return err
	}

	logger, err = config.NewLogger(config.ParseLogLevel(cfg.Logging.Level), cfg.LogFile())
	if err != nil {
		logger = config.NullLogger()
	}

	store = session.NewStore(cfg.Home)
	settings, err := store.LoadSettings()
	if err != nil {
		logger.Error("loading settings: %v", err)
	}

	explicit := output.ParseFormat(cfg.Output.DefaultFormat)
	w := root.OutOrStdout()
	format := output.DetectFormat(w, explicit)
	plain := cfg.Output.Color == "never" || (cfg.Output.Color != "always" && !output.IsTerminal(w))
	formatter = output.NewFormatter(format, w).
		WithErrWriter(root.ErrOrStderr()).
		WithTheme(output.ThemeByName(settings.Theme, plain))
	return nil
}

// skipsValidation reports whether cmd is one of the config commands.
func skipsValidation(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c == configCmd || c == versionCmd || c == completionCmd {
			return true
		}
	}
	return false
}

// startMetrics serves Prometheus metrics for the lifetime of the command.
func startMetrics(cmd *cobra.Command) {
	if cfg == nil || cfg.Metrics.Addr == "" {
		return
	}
	ctx, cancel := context.WithCancel(commandContext(cmd))
	stopMetrics = cancel
	go func() {
		if err := metrics.Global.Serve(ctx, cfg.Metrics.Addr); err != nil {
			logger.Error("metrics listener on %s: %v", cfg.Metrics.Addr, err)
		}
	}()
}

// cleanup releases resources.
func cleanup() {
	if stopMetrics != nil {
		stopMetrics()
		stopMetrics = nil
	}
	if logger != nil {
		_ = logger.Close()
	}
}

// Config returns the global configuration.
func Config() *config.Config {
	return cfg
}

// Logger returns the global logger.
func Logger() *config.Logger {
	return logger
}

// Formatter returns the global output formatter.
func Formatter() *output.Formatter {
	return formatter
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&homeDir, "home", "", "hwclaim data directory (default: ~/.hwclaim)")
	pf.StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")
	pf.StringVar(&bridgeURL, "bridge", "", "hardware wallet bridge URL")
	pf.StringVar(&explorerName, "explorer", "", "explorer endpoint to use instead of probing")
}
