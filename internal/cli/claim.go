package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mrz1836/hwclaim/internal/claim"
	"github.com/mrz1836/hwclaim/internal/output"
	"github.com/mrz1836/hwclaim/internal/session"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// claimCmd claims the rewards of one account.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim the accrued rewards of an account",
	Long: `Build a transaction that spends every output of the account back to you,
collecting the accrued rewards, and sign it on the hardware wallet.

The principal returns to a fresh change address and the rewards go to a
fresh receive address. Paying the rewards to an address the account already
used links your addresses together; it needs --allow-address-reuse.

Each account can be claimed once per session. The transaction is shown
before the device is asked to sign.

Examples:
  hwclaim claim --account 0
  hwclaim claim --account 0 --dry-run
  hwclaim accounts --addresses 1
  hwclaim claim --account 1 --address <address> --allow-address-reuse`,
	Args: cobra.NoArgs,
	RunE: runClaim,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	claimAccount    int
	claimAddress    string
	claimAllowReuse bool
	claimDryRun     bool
	claimYes        bool
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(claimCmd)
	claimCmd.Flags().IntVarP(&claimAccount, "account", "a", -1, "account index (default: the only claimable account)")
	claimCmd.Flags().StringVar(&claimAddress, "address", "", "send rewards to one of the account's first 10 addresses")
	claimCmd.Flags().BoolVar(&claimAllowReuse, "allow-address-reuse", false, "allow --address to name an address already in use")
	claimCmd.Flags().BoolVar(&claimDryRun, "dry-run", false, "build the transaction without signing or broadcasting")
	claimCmd.Flags().BoolVarP(&claimYes, "yes", "y", false, "do not ask before signing")
}

func runClaim(cmd *cobra.Command, _ []string) error {
	cc, err := NewCommandContext(nil)
	if err != nil {
		return err
	}
	if !claimDryRun {
		// Held from load to save so a second process cannot sign the same
		// account from a stale session.
		unlock, err := cc.Store.Lock()
		if err != nil {
			return err
		}
		defer func() {
			if err := unlock(); err != nil {
				cc.Logger.Error("releasing claim lock: %v", err)
			}
		}()
	}
	state, err := cc.loadState()
	if err != nil {
		return err
	}

	account, err := pickClaimAccount(state, claimAccount)
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, 0)
	defer cancel()

	opts := claim.Options{Address: claimAddress, AllowAddressReuse: claimAllowReuse, DryRun: true}
	_, preview, err := cc.Service.Claim(ctx, state, account, opts)
	if err != nil {
		return err
	}

	f := cc.Formatter
	if claimDryRun {
		if f.IsJSON() {
			return writeJSON(cmd.OutOrStdout(), preview)
		}
		renderClaim(f, preview)
		_ = f.Println()
		_ = f.Field("Unsigned tx", preview.RawTx)
		return nil
	}

	if !f.IsJSON() {
		renderClaim(f, preview)
		_ = f.Println()
	}
	if err := confirm("Sign this claim on your "+state.Vendor.DisplayName()+"?", claimYes); err != nil {
		return err
	}
	f.Infof("Confirm the transaction on your %s...", state.Vendor.DisplayName())

	opts.DryRun = false
	next, res, err := cc.Service.Claim(ctx, state, account, opts)
	if err != nil {
		cc.Logger.WithField("account", account).Error("claim failed: %v", err)
		return err
	}
	if err := cc.saveState(next); err != nil {
		// The claim is on the network; the lost state only means the
		// account is not marked claimed locally.
		f.Warnf("claim %s was broadcast but the session could not be saved: %v", res.TxID, err)
	}
	cc.Logger.WithField("account", account).WithField("attempt", res.AttemptID).Debug("claim broadcast %s", res.TxID)

	if f.IsJSON() {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	f.Successf("Rewards claimed. Transaction %s", res.TxID)
	return nil
}

// pickClaimAccount resolves --account. Without it the single claimable
// account is chosen.
func pickClaimAccount(state *session.State, flag int) (uint32, error) {
	if flag >= 0 {
		return uint32(flag), nil //nolint:gosec // G115: checked non-negative
	}
	if len(state.Accounts) == 0 {
		return 0, hwerr.ErrNoAccounts
	}

	var candidates []uint32
	for _, a := range state.Accounts {
		if !state.ClaimFor(a.Index).IsClaimed && a.DisplayClaimable() > 0 {
			candidates = append(candidates, a.Index)
		}
	}
	switch len(candidates) {
	case 0:
		return 0, hwerr.ErrNothingToClaim
	case 1:
		return candidates[0], nil
	}
	return 0, hwerr.WithSuggestion(
		hwerr.WithDetails(hwerr.ErrInvalidInput, map[string]string{"claimable_accounts": strconv.Itoa(len(candidates))}),
		"choose one with --account",
	)
}

func renderClaim(f *output.Formatter, r *claim.Result) {
	t := f.Theme()
	_ = f.Println(t.Title("Claim for account " + strconv.FormatUint(uint64(r.Account), 10)))
	_ = f.Field("Rewards to", r.Destination)
	_ = f.Field("Principal to", r.ChangeAddress)
	_ = f.Field("Principal", kmd(r.Principal))
	_ = f.Field("Reward", t.Amount(kmd(r.Reward)))
	if r.ServiceFee > 0 {
		_ = f.Field("Service fee", kmd(r.ServiceFee))
	}
	_ = f.Field("Network fee", kmd(r.Fee))
	_ = f.Field("Locktime", strconv.FormatUint(uint64(r.LockTime), 10))
	for _, w := range r.Warnings {
		f.Warn(w)
	}
}
