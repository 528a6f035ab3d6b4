package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/hwclaim/internal/config"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and modify hwclaim configuration settings.`,
}

// configInitCmd writes the default configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a default configuration file at ~/.hwclaim/config.yaml.

An existing file is kept unless --force is given.

Example:
  hwclaim config init
  hwclaim config init --force`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// configShowCmd prints the effective configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the effective configuration: the file, then environment
variables, then command-line flags.

Example:
  hwclaim config show
  hwclaim config show -o json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

// configGetCmd prints one value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Long: `Get a configuration value by its dotted key.

Examples:
  hwclaim config get claim.tx_fee
  hwclaim config get explorer.preferred`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeConfigKeys,
	RunE:              runConfigGet,
}

// configSetCmd stores one value in the config file.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value by its dotted key. The file is rewritten
immediately and the new value is validated first.

Examples:
  hwclaim config set explorer.preferred alt1
  hwclaim config set claim.tx_fee 20000
  hwclaim config set logging.level debug`,
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeConfigKeys,
	RunE:              runConfigSet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configGetCmd, configSetCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path := config.Path(cfg.Home)

	if _, err := os.Stat(path); err == nil && !configForce {
		return hwerr.WithSuggestion(
			hwerr.ErrGeneral,
			fmt.Sprintf("configuration already exists at %s. Use --force to overwrite.", path),
		)
	}

	def := config.Defaults()
	def.Home = cfg.Home
	if err := config.Save(def, path); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	w := cmd.OutOrStdout()
	if formatter.IsJSON() {
		return writeJSON(w, map[string]string{"path": path})
	}
	out(w, "Configuration initialized at %s\n", path)
	outln(w)
	outln(w, "Settings you may want to change:")
	outln(w, "  - explorer.endpoints: Insight explorer backends")
	outln(w, "  - device.bridge_url: hardware wallet bridge")
	outln(w, "  - claim.tx_fee: network fee in satoshis")
	outln(w, "  - logging.level: off, error or debug")
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	if formatter.IsJSON() {
		return writeJSON(w, cfg)
	}
	out(w, "# %s\n", config.Path(cfg.Home))
	out(w, "%s", cfg.String())
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	value, err := cfg.Get(args[0])
	if err != nil {
		return err
	}
	if formatter.IsJSON() {
		return writeJSON(cmd.OutOrStdout(), map[string]string{"key": args[0], "value": value})
	}
	outln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	path := config.Path(cfg.Home)

	// Edit the file as written, not the environment-merged view.
	current, err := config.LoadOrDefaults(path)
	if err != nil {
		return err
	}
	if current.Home == "" {
		current.Home = cfg.Home
	}
	if err := current.Set(key, value); err != nil {
		return err
	}
	if err := config.Save(current, path); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	logger.WithField("key", key).Debug("config updated")

	stored, _ := current.Get(key)
	if formatter.IsJSON() {
		return writeJSON(cmd.OutOrStdout(), map[string]string{"key": key, "value": stored})
	}
	out(cmd.OutOrStdout(), "%s = %s\n", key, stored)
	return nil
}

func completeConfigKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return config.Keys(), cobra.ShellCompDirectiveNoFileComp
}
