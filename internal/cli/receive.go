package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mrz1836/hwclaim/internal/output"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// receiveAccount is the account to show an address for.
	receiveAccount int
	// receiveQR draws the address as a QR code.
	receiveQR bool
)

// receiveCmd shows a fresh receive address.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Show a receiving address",
	Long: `Display the first unused receive address of a discovered account. The
address is derived from the account's extended public key, so the device
does not need to be connected.

Examples:
  hwclaim receive
  hwclaim receive --account 1 --qr`,
	Args: cobra.NoArgs,
	RunE: runReceive,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(receiveCmd)

	receiveCmd.Flags().IntVarP(&receiveAccount, "account", "a", 0, "account index")
	receiveCmd.Flags().BoolVar(&receiveQR, "qr", false, "show the address as a QR code")
}

type receiveOutput struct {
	Account uint32 `json:"account"`
	Address string `json:"address"`
	Path    string `json:"path"`
	URI     string `json:"uri"`
}

func runReceive(cmd *cobra.Command, _ []string) error {
	if receiveAccount < 0 {
		return hwerr.WithSuggestion(hwerr.ErrInvalidInput, "--account must not be negative")
	}

	cc, err := NewCommandContext(nil)
	if err != nil {
		return err
	}
	state, err := cc.loadState()
	if err != nil {
		return err
	}

	account := uint32(receiveAccount) //nolint:gosec // G115: checked non-negative
	addr, err := cc.Service.ReceiveAddress(state, account)
	if err != nil {
		return err
	}

	res := receiveOutput{
		Account: account,
		Address: addr.Address,
		Path:    addr.Path,
		URI:     output.PaymentURI(addr.Address),
	}

	f := cc.Formatter
	if f.IsJSON() {
		return writeJSON(cmd.OutOrStdout(), res)
	}

	_ = f.Println(f.Theme().Title("Receive address for account " + strconv.FormatUint(uint64(account), 10)))
	_ = f.Field("Address", f.Theme().Value(res.Address))
	_ = f.Field("Path", res.Path)
	if receiveQR {
		_ = f.Println()
		if err := output.RenderQR(cmd.OutOrStdout(), res.URI, output.DefaultQRConfig()); err != nil {
			return err
		}
	}
	return nil
}
