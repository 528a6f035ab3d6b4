package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/hwclaim/internal/discovery"
	"github.com/mrz1836/hwclaim/internal/session"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// discoverCmd scans the device for accounts.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var discoverCmd = &cobra.Command{
	Use:     "discover",
	Aliases: []string{"sync", "check"},
	Short:   "Find accounts, balances and rewards",
	Long: `Derive the Komodo accounts of the selected hardware wallet and look up their
addresses, unspent outputs, history and accrued rewards on the explorer.

Accounts are scanned until one unused account is found; each address chain
is scanned until 20 consecutive unused addresses. Running it again rebuilds
the account list from scratch and keeps the claim results.

Examples:
  hwclaim discover
  hwclaim sync -o json`,
	Args: cobra.NoArgs,
	RunE: runDiscover,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var discoverQuiet bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().BoolVarP(&discoverQuiet, "quiet", "q", false, "do not print progress")
}

type discoverOutput struct {
	Vendor         string              `json:"vendor"`
	Explorer       string              `json:"explorer"`
	TipTime        int64               `json:"tip_time"`
	Accounts       []accountOutput     `json:"accounts"`
	TotalBalance   uint64              `json:"total_balance"`
	TotalClaimable uint64              `json:"total_claimable"`
	Scanned        int                 `json:"addresses_scanned"`
	DurationMS     int64               `json:"duration_ms"`
	Warnings       []string            `json:"warnings,omitempty"`
	Incomplete     []uint32            `json:"incomplete,omitempty"`
	Claims         map[uint32]claimRef `json:"claims,omitempty"`
}

type claimRef struct {
	TxID string `json:"txid"`
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	var progress discovery.ProgressCallback
	if !discoverQuiet && formatter != nil && !formatter.IsJSON() {
		progress = func(u discovery.ProgressUpdate) {
			if u.Phase == "account" {
				out(cmd.ErrOrStderr(), "scanning account %d...\n", u.Account)
			}
		}
	}

	cc, err := NewCommandContext(progress)
	if err != nil {
		return err
	}
	state, err := cc.loadState()
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, 0)
	defer cancel()

	next, result, syncErr := cc.Service.Sync(ctx, state)
	if syncErr != nil && !errors.Is(syncErr, hwerr.ErrDiscoveryPartial) {
		return syncErr
	}
	if err := cc.saveState(next); err != nil {
		return err
	}

	for _, w := range next.Warnings {
		cc.Formatter.Warn(w)
	}
	if err := displayDiscovery(cmd, next, result); err != nil {
		return err
	}
	return syncErr
}

func displayDiscovery(cmd *cobra.Command, state *session.State, result *discovery.Result) error {
	f := formatter
	if f.IsJSON() {
		o := discoverOutput{
			Vendor:         state.Vendor.String(),
			Explorer:       state.ExplorerEndpoint,
			TipTime:        state.TipTime,
			Accounts:       accountsOutput(state, -1),
			TotalBalance:   state.TotalBalance(),
			TotalClaimable: state.TotalClaimable(),
			Warnings:       state.Warnings,
			Claims:         claimRefs(state),
		}
		if result != nil {
			o.Scanned = result.Scanned
			o.DurationMS = result.Duration.Milliseconds()
			o.Incomplete = result.Incomplete
		}
		return writeJSON(cmd.OutOrStdout(), o)
	}

	if len(state.Accounts) == 0 {
		f.Info("No Komodo accounts with history were found on this device.")
		return nil
	}
	if err := renderAccounts(f, state); err != nil {
		return err
	}
	if result != nil {
		f.Infof("Scanned %d addresses in %s using explorer %q.", result.Scanned, result.Duration.Round(time.Millisecond), state.ExplorerEndpoint)
		if len(result.Incomplete) > 0 {
			f.Warn(fmt.Sprintf("accounts %v were not fully scanned; run 'hwclaim discover' again", result.Incomplete))
		}
	}
	return nil
}

func claimRefs(state *session.State) map[uint32]claimRef {
	if len(state.Claims) == 0 {
		return nil
	}
	refs := make(map[uint32]claimRef, len(state.Claims))
	for idx, c := range state.Claims {
		if c.IsClaimed {
			refs[idx] = claimRef{TxID: c.ClaimTxID}
		}
	}
	return refs
}
