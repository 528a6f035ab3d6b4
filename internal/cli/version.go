package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrz1836/hwclaim/internal/version"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// versionCmd prints build information.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Show the hwclaim version. With --check the latest GitHub release is
looked up as well.

Example:
  hwclaim version
  hwclaim version --check`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var versionCheck bool

// newChecker is replaced in tests.
//
//nolint:gochecknoglobals // swapped by tests
var newChecker = version.NewChecker

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "check GitHub for a newer release")
}

type versionOutput struct {
	version.Info

	Latest          string `json:"latest,omitempty"`
	UpdateAvailable bool   `json:"update_available,omitempty"`
	ReleaseURL      string `json:"release_url,omitempty"`
}

func runVersion(cmd *cobra.Command, _ []string) error {
	res := versionOutput{Info: version.Get()}

	if versionCheck {
		ctx, cancel := contextWithTimeout(cmd, 0)
		defer cancel()
		rel, err := newChecker().Latest(ctx)
		if err != nil {
			return hwerr.Wrap(hwerr.ErrNetworkError, "checking for updates: %v", err)
		}
		res.Latest = rel.TagName
		res.ReleaseURL = rel.HTMLURL
		res.UpdateAvailable = version.IsNewer(res.Version, rel.TagName)
	}

	w := cmd.OutOrStdout()
	if formatter.IsJSON() {
		return writeJSON(w, res)
	}
	outln(w, res.String())
	out(w, "go %s\n", res.GoVersion)
	if !versionCheck {
		return nil
	}
	if res.UpdateAvailable {
		formatter.Infof("%s is available: %s", res.Latest, res.ReleaseURL)
	} else {
		formatter.Info("You are running the latest release.")
	}
	return nil
}
