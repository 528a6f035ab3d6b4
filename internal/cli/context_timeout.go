package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// contextWithTimeout returns a timeout context rooted in the command context.
// A non-positive d means no timeout.
func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	base := commandContext(cmd)
	if d <= 0 {
		return context.WithCancel(base)
	}
	return context.WithTimeout(base, d)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
