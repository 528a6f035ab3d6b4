package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// walkCommands visits every command in the tree depth-first.
func walkCommands(cmd *cobra.Command, fn func(*cobra.Command)) {
	fn(cmd)
	for _, sub := range cmd.Commands() {
		walkCommands(sub, fn)
	}
}

// enrichParentLong appends the available subcommands to the Long text of
// commands that only group others, so their help lists what they hold.
func enrichParentLong(cmd *cobra.Command) {
	if !cmd.HasSubCommands() || cmd == rootCmd || cmd.Runnable() {
		return
	}

	var sb strings.Builder
	sb.WriteString(cmd.Long)
	sb.WriteString("\n\nSubcommands:\n")
	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() {
			sb.WriteString(fmt.Sprintf("  %-10s %s\n", sub.Name(), sub.Short))
		}
	}
	cmd.Long = strings.TrimRight(sb.String(), "\n")
}

// finalizeHelp runs once every command is registered.
func finalizeHelp() {
	walkCommands(rootCmd, enrichParentLong)
}
