package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/hwclaim/internal/report"
	"github.com/mrz1836/hwclaim/internal/session"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	exportRecipient string
	exportOpen      bool
	exportIdentity  string
)

// exportCmd writes an encrypted report of the session.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export an encrypted report of accounts and claims",
	Long: `Write the discovered accounts, their balances and the claim results to an
encrypted file. The report holds extended public keys, which reveal every
address of an account, so it is always encrypted with age: to a passphrase
by default, or to an age public key with --recipient.

With --open an existing report is decrypted and shown instead.

Examples:
  hwclaim export claims` + report.Extension + `
  hwclaim export claims` + report.Extension + ` --recipient age1...
  hwclaim export claims` + report.Extension + ` --open
  hwclaim export claims` + report.Extension + ` --open --identity AGE-SECRET-KEY-1...`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportRecipient, "recipient", "", "age public key to encrypt to instead of a passphrase")
	exportCmd.Flags().BoolVar(&exportOpen, "open", false, "decrypt and show an existing report")
	exportCmd.Flags().StringVar(&exportIdentity, "identity", "", "age secret key for --open instead of a passphrase")
	exportCmd.MarkFlagsMutuallyExclusive("recipient", "open")
}

func runExport(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(nil)
	if err != nil {
		return err
	}
	path := args[0]
	if exportOpen {
		return openExport(cmd, cc, path)
	}

	state, err := cc.loadState()
	if err != nil {
		return err
	}

	secret := strings.TrimSpace(exportRecipient)
	if secret == "" {
		if secret, err = newPassphrase(); err != nil {
			return err
		}
	}

	manifest, err := cc.Service.Export(state, path, secret)
	if err != nil {
		return err
	}

	f := cc.Formatter
	if f.IsJSON() {
		return writeJSON(cmd.OutOrStdout(), struct {
			Path     string           `json:"path"`
			Manifest *report.Manifest `json:"manifest"`
		}{path, manifest})
	}
	f.Successf("Exported %d accounts to %s", manifest.AccountCount, path)
	return nil
}

func openExport(cmd *cobra.Command, cc *CommandContext, path string) error {
	secret := strings.TrimSpace(exportIdentity)
	if secret == "" {
		if !stdinIsTerminal() {
			return hwerr.WithSuggestion(
				hwerr.Wrap(hwerr.ErrInvalidInput, "passphrase required"),
				"run in a terminal or pass --identity",
			)
		}
		b, err := promptSecretFn("Report passphrase: ")
		if err != nil {
			return err
		}
		secret = string(b)
	}

	r, contents, err := cc.Service.OpenExport(path, secret)
	if err != nil {
		return err
	}

	f := cc.Formatter
	if f.IsJSON() {
		return writeJSON(cmd.OutOrStdout(), contents)
	}
	_ = f.Field("Vendor", contents.Vendor.DisplayName())
	_ = f.Field("Exported", contents.ExportedAt.Local().Format(time.RFC1123))
	_ = f.Field("Encryption", r.Manifest.EncryptionMethod)
	if contents.Endpoint != "" {
		_ = f.Field("Explorer", contents.Endpoint)
	}
	_ = f.Println()
	return renderAccounts(f, &session.State{
		Vendor:   contents.Vendor,
		Accounts: contents.Accounts,
		Claims:   contents.Claims,
	})
}
