package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/hwclaim/internal/discovery"
	"github.com/mrz1836/hwclaim/internal/output"
	"github.com/mrz1836/hwclaim/internal/session"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// accountsCmd shows the accounts found by the last discovery.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Show discovered accounts",
	Long: `Show the accounts found by the last 'hwclaim discover' without contacting
the device or the explorer.

Examples:
  hwclaim accounts
  hwclaim accounts --addresses 0
  hwclaim accounts --history 1
  hwclaim accounts --show-xpub 0`,
	Args: cobra.NoArgs,
	RunE: runAccounts,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	accountsShowXpub  int
	accountsAddresses int
	accountsHistory   int
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.Flags().IntVar(&accountsShowXpub, "show-xpub", -1, "reveal the extended public key of this account")
	accountsCmd.Flags().IntVar(&accountsAddresses, "addresses", -1, "list the used addresses of this account")
	accountsCmd.Flags().IntVar(&accountsHistory, "history", -1, "list the transactions of this account")
}

type accountOutput struct {
	Index      uint32                  `json:"index"`
	Balance    uint64                  `json:"balance"`
	Rewards    uint64                  `json:"rewards"`
	ServiceFee uint64                  `json:"service_fee"`
	Claimable  uint64                  `json:"claimable"`
	UTXOs      int                     `json:"utxo_count"`
	Addresses  []discovery.AddressInfo `json:"addresses,omitempty"`
	History    discovery.History       `json:"history,omitempty"`
	Incomplete bool                    `json:"incomplete,omitempty"`
	Claimed    bool                    `json:"claimed"`
	ClaimTxID  string                  `json:"claim_txid,omitempty"`
	Xpub       string                  `json:"xpub,omitempty"`
}

// accountsOutput converts the accounts of state. The xpub is only included
// for showXpub.
func accountsOutput(state *session.State, showXpub int) []accountOutput {
	list := make([]accountOutput, 0, len(state.Accounts))
	for _, a := range state.Accounts {
		claim := state.ClaimFor(a.Index)
		o := accountOutput{
			Index:      a.Index,
			Balance:    a.Balance,
			Rewards:    a.Rewards,
			ServiceFee: a.ServiceFee,
			Claimable:  a.DisplayClaimable(),
			UTXOs:      len(a.UTXOs),
			Addresses:  a.ExposedAddresses(),
			History:    a.History,
			Incomplete: a.Incomplete,
			Claimed:    claim.IsClaimed,
			ClaimTxID:  claim.ClaimTxID,
		}
		if claim.IsClaimed {
			o.Claimable = 0
		}
		if showXpub >= 0 && a.Index == uint32(showXpub) { //nolint:gosec // G115: checked non-negative
			o.Xpub = a.Xpub
		}
		list = append(list, o)
	}
	return list
}

func runAccounts(cmd *cobra.Command, _ []string) error {
	cc, err := NewCommandContext(nil)
	if err != nil {
		return err
	}
	state, err := cc.loadState()
	if err != nil {
		return err
	}
	if len(state.Accounts) == 0 {
		return hwerr.ErrNoAccounts
	}

	for _, idx := range []int{accountsShowXpub, accountsAddresses, accountsHistory} {
		if idx < 0 {
			continue
		}
		if _, ok := state.Account(uint32(idx)); !ok { //nolint:gosec // G115: checked non-negative
			return hwerr.WithDetails(hwerr.ErrNotFound, map[string]string{"account": strconv.Itoa(idx)})
		}
	}

	f := cc.Formatter
	if f.IsJSON() {
		return writeJSON(cmd.OutOrStdout(), accountsOutput(state, accountsShowXpub))
	}

	switch {
	case accountsShowXpub >= 0:
		acct, _ := state.Account(uint32(accountsShowXpub)) //nolint:gosec // G115: checked non-negative
		f.Warn("anyone with this key can see every address of the account")
		return f.Field("Account "+strconv.Itoa(accountsShowXpub)+" xpub", acct.Xpub)
	case accountsAddresses >= 0:
		acct, _ := state.Account(uint32(accountsAddresses)) //nolint:gosec // G115: checked non-negative
		return renderAddresses(f, acct)
	case accountsHistory >= 0:
		acct, _ := state.Account(uint32(accountsHistory)) //nolint:gosec // G115: checked non-negative
		return renderHistory(f, acct)
	}
	return renderAccounts(f, state)
}

// renderAccounts prints the account summary table and totals.
func renderAccounts(f *output.Formatter, state *session.State) error {
	t := f.Theme()
	table := output.NewTable("ACCOUNT", "BALANCE", "REWARDS", "CLAIMABLE", "STATUS").
		AlignRight(1, 2, 3).
		WithTheme(t)

	for _, a := range accountsOutput(state, -1) {
		status := "-"
		switch {
		case a.Claimed:
			status = t.Positive("claimed")
		case a.Incomplete:
			status = t.Warning("incomplete")
		case a.Claimable > 0:
			status = t.Amount("claimable")
		}
		table.AddRow(strconv.FormatUint(uint64(a.Index), 10), kmd(a.Balance), kmd(a.Rewards), kmd(a.Claimable), status)
	}
	if err := f.Print(table); err != nil {
		return err
	}
	_ = f.Println()
	_ = f.Field("Total balance", kmd(state.TotalBalance()))
	return f.Field("Total claimable", t.Amount(kmd(state.TotalClaimable())))
}

func renderAddresses(f *output.Formatter, acct *discovery.Account) error {
	table := output.NewTable("PATH", "ADDRESS", "BALANCE").AlignRight(2).WithTheme(f.Theme())
	for _, a := range acct.Addresses {
		table.AddRow(a.Path, a.Address, kmd(a.Balance))
	}
	return f.Print(table)
}

func renderHistory(f *output.Formatter, acct *discovery.Account) error {
	if len(acct.History) == 0 {
		f.Info("No transactions.")
		return nil
	}
	table := output.NewTable("DATE", "DIRECTION", "AMOUNT", "CONFIRMATIONS", "TXID").AlignRight(2, 3).WithTheme(f.Theme())
	for _, tx := range acct.History {
		date := "pending"
		if tx.Timestamp > 0 {
			date = time.Unix(tx.Timestamp, 0).UTC().Format("2006-01-02 15:04")
		}
		table.AddRow(date, string(tx.Direction), kmd(tx.Amount), strconv.FormatInt(tx.Confirmations, 10), tx.TxID)
	}
	return f.Print(table)
}
