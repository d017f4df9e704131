// internal/commands/list_commands.go
package edgebench

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

// commandsCmd implements 'list commands', which prints every runnable
// command with its arguments and short description.
var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List all runnable commands with their arguments",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		entries := commandEntries(rootCmd)
		fmt.Fprintf(cmd.OutOrStdout(), "%d commands:\n", len(entries))
		fmt.Fprintln(cmd.OutOrStdout(), renderCommandTable(entries))
	},
}

func init() {
	listCmd.AddCommand(commandsCmd)
}

// commandEntry is one row of the command listing.
type commandEntry struct {
	path, args, short string
}

// commandEntries walks the tree depth first and keeps the commands that do
// something when invoked. Group parents, help and completion are left out.
func commandEntries(cmd *cobra.Command) []commandEntry {
	var out []commandEntry
	if cmd.Runnable() && !cmd.Hidden && cmd.Name() != "help" && cmd.Name() != "completion" {
		usage := strings.TrimSpace(strings.TrimPrefix(cmd.Use, cmd.Name()))
		out = append(out, commandEntry{path: cmd.CommandPath(), args: usage, short: cmd.Short})
	}
	for _, sub := range cmd.Commands() {
		if sub.Name() == "completion" {
			continue
		}
		out = append(out, commandEntries(sub)...)
	}
	return out
}

func renderCommandTable(entries []commandEntry) string {
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("COMMAND", "ARGS", "DESCRIPTION")
	for _, e := range entries {
		t.Row(e.path, e.args, e.short)
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return tableHeaderStyle
		}
		return tableCellStyle
	})
	return t.Render()
}
