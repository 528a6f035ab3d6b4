package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrz1836/hwclaim/internal/device"
	"github.com/mrz1836/hwclaim/internal/output"
	"github.com/mrz1836/hwclaim/internal/session"
)

// vendorCmd selects the hardware wallet vendor.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var vendorCmd = &cobra.Command{
	Use:   "vendor [ledger|trezor]",
	Short: "Select the hardware wallet vendor",
	Long: `Select the hardware wallet used for this session. Without an argument the
current selection is shown.

The vendor is chosen once per session; run 'hwclaim reset' to switch.

Examples:
  hwclaim vendor ledger
  hwclaim vendor`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(device.Ledger), string(device.Trezor)},
	RunE:      runVendor,
}

// statusCmd reports whether the selected device is ready.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check that the hardware wallet is connected",
	Long: `Ask the selected hardware wallet whether it is connected, unlocked and
running the Komodo app.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

// resetCmd drops the session.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the vendor, accounts and claim state",
	Long: `Reset the session to its initial state: the vendor selection, discovered
accounts, claim results and pinned explorer are dropped and the device
connection is closed. The theme setting is kept.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var resetYes bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(vendorCmd, statusCmd, resetCmd)
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "do not ask for confirmation")
}

type vendorOutput struct {
	Vendor   device.Vendor `json:"vendor"`
	Selected bool          `json:"selected"`
}

func runVendor(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(nil)
	if err != nil {
		return err
	}
	state, err := cc.loadState()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return displayVendor(cc.Formatter, state)
	}

	vendor, err := device.ParseVendor(args[0])
	if err != nil {
		return err
	}
	next, err := cc.Service.SelectVendor(state, vendor)
	if err != nil {
		return err
	}
	if err := cc.saveState(next); err != nil {
		return err
	}
	cc.Logger.WithField("vendor", vendor).Debug("vendor selected")

	if cc.Formatter.IsJSON() {
		return writeJSON(cmd.OutOrStdout(), vendorOutput{Vendor: vendor, Selected: true})
	}
	cc.Formatter.Successf("%s selected. Connect and unlock it, then run 'hwclaim discover'.", vendor.DisplayName())
	return nil
}

func displayVendor(f *output.Formatter, state *session.State) error {
	if f.IsJSON() {
		return writeJSON(f.Writer(), vendorOutput{Vendor: state.Vendor, Selected: state.HasVendor()})
	}
	if !state.HasVendor() {
		f.Info("No vendor selected. Run 'hwclaim vendor ledger' or 'hwclaim vendor trezor'.")
		return nil
	}
	return f.Field("Vendor", state.Vendor.DisplayName())
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc, err := NewCommandContext(nil)
	if err != nil {
		return err
	}
	state, err := cc.loadState()
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, seconds(cc.Config.Device.StatusTimeoutSeconds))
	defer cancel()

	status, err := cc.Service.Status(ctx, state)
	if err != nil {
		return err
	}

	f := cc.Formatter
	if f.IsJSON() {
		return writeJSON(cmd.OutOrStdout(), status)
	}
	_ = f.Field("Vendor", status.Vendor.DisplayName())
	_ = f.Field("Connected", yesNo(status.Connected))
	_ = f.Field("Ready", yesNo(status.Ready))
	if status.Model != "" {
		_ = f.Field("Model", status.Model)
	}
	if status.Firmware != "" {
		_ = f.Field("Firmware", status.Firmware)
	}
	if status.AppName != "" {
		_ = f.Field("App", status.AppName+" "+status.AppVersion)
	}
	if status.Message != "" {
		f.Warn(status.Message)
	}
	return nil
}

func runReset(cmd *cobra.Command, _ []string) error {
	if err := confirm("Forget the vendor, discovered accounts and claim results?", resetYes); err != nil {
		return err
	}

	cc, err := NewCommandContext(nil)
	if err != nil {
		return err
	}
	state, err := cc.loadState()
	if err != nil {
		return err
	}

	next, resetErr := cc.Service.Reset(state)
	if err := cc.Store.Clear(); err != nil {
		return err
	}
	if resetErr != nil {
		cc.Formatter.Warnf("%v", resetErr)
	}
	cc.Logger.Debug("session reset (first run: %t)", next.IsFirstRun)

	return output.FormatSuccess(cmd.OutOrStdout(), "Session reset.", cc.Formatter.Format())
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
