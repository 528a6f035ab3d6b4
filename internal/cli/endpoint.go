package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrz1836/hwclaim/internal/endpoint"
	"github.com/mrz1836/hwclaim/internal/output"
)

// endpointCmd is the parent command for explorer endpoint operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var endpointCmd = &cobra.Command{
	Use:   "endpoint",
	Short: "Manage explorer endpoints",
	Long: `hwclaim reads the blockchain through Insight explorers. By default every
configured endpoint is probed and the fastest healthy one is used.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var endpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List explorer endpoints",
	Args:  cobra.NoArgs,
	RunE:  runEndpointList,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var endpointUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Switch to an endpoint and keep using it",
	Long: `Check that the named endpoint is healthy, make it active and pin it so
later commands use it without probing.

Example:
  hwclaim endpoint use alt1`,
	Args: cobra.ExactArgs(1),
	RunE: runEndpointUse,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var endpointProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe every endpoint and pick the fastest",
	Long:  `Probe every endpoint, activate the fastest healthy one and drop any pin.`,
	Args:  cobra.NoArgs,
	RunE:  runEndpointProbe,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(endpointCmd)
	endpointCmd.AddCommand(endpointListCmd, endpointUseCmd, endpointProbeCmd)
}

type endpointOutput struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	Active  bool   `json:"active"`
	Pinned  bool   `json:"pinned"`
}

func runEndpointList(cmd *cobra.Command, _ []string) error {
	cc, err := NewCommandContext(nil)
	if err != nil {
		return err
	}
	state, err := cc.loadState()
	if err != nil {
		return err
	}

	list := make([]endpointOutput, 0)
	for _, ep := range cc.Service.Endpoints() {
		active := ep.Name == state.ExplorerEndpoint
		list = append(list, endpointOutput{
			Name:    ep.Name,
			BaseURL: ep.BaseURL,
			Active:  active,
			Pinned:  active && state.ExplorerPinned,
		})
	}

	f := cc.Formatter
	if f.IsJSON() {
		return writeJSON(cmd.OutOrStdout(), list)
	}
	table := output.NewTable("", "NAME", "URL").WithTheme(f.Theme())
	for _, ep := range list {
		mark := ""
		switch {
		case ep.Pinned:
			mark = "*"
		case ep.Active:
			mark = ">"
		}
		table.AddRow(mark, ep.Name, ep.BaseURL)
	}
	return f.Print(table)
}

func runEndpointUse(cmd *cobra.Command, args []string) error {
	return switchEndpoint(cmd, func(cc *CommandContext) (endpoint.Endpoint, error) {
		state, err := cc.loadState()
		if err != nil {
			return endpoint.Endpoint{}, err
		}
		ctx, cancel := contextWithTimeout(cmd, seconds(cc.Config.Explorer.ProbeTimeoutSeconds)*2)
		defer cancel()

		next, ep, err := cc.Service.UseEndpoint(ctx, state, args[0])
		if err != nil {
			return ep, err
		}
		return ep, cc.saveState(next)
	})
}

func runEndpointProbe(cmd *cobra.Command, _ []string) error {
	return switchEndpoint(cmd, func(cc *CommandContext) (endpoint.Endpoint, error) {
		state, err := cc.loadState()
		if err != nil {
			return endpoint.Endpoint{}, err
		}
		ctx, cancel := contextWithTimeout(cmd, seconds(cc.Config.Explorer.ProbeTimeoutSeconds)*2)
		defer cancel()

		next, ep, err := cc.Service.ProbeEndpoints(ctx, state)
		if err != nil {
			return ep, err
		}
		return ep, cc.saveState(next)
	})
}

func switchEndpoint(cmd *cobra.Command, fn func(*CommandContext) (endpoint.Endpoint, error)) error {
	cc, err := NewCommandContext(nil)
	if err != nil {
		return err
	}
	ep, err := fn(cc)
	if err != nil {
		return err
	}
	if cc.Formatter.IsJSON() {
		return writeJSON(cmd.OutOrStdout(), ep)
	}
	cc.Formatter.Successf("Using explorer %s (%s)", ep.Name, ep.BaseURL)
	return nil
}
