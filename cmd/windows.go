package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loomwm/loom/internal/ipc"
	"github.com/loomwm/loom/internal/ui"
)

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "List the compositor's windows",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := ipc.NewClient(socketPath())

		windows, err := client.ListWindows()
		if err != nil {
			return fmt.Errorf("failed to list windows: %w", err)
		}
		if len(windows) == 0 {
			fmt.Println(ui.MutedStyle.Render("No windows"))
			return nil
		}

		var sb strings.Builder
		sb.WriteString(ui.TableHeaderStyle.Render(fmt.Sprintf("%-6s %-20s %-12s %-12s %-12s %s",
			"ID", "APP", "OUTPUT", "POSITION", "SIZE", "TITLE")))
		sb.WriteString("\n")
		for _, w := range windows {
			row := fmt.Sprintf("%-6d %-20s %-12s %-12s %-12s %s",
				w.ID,
				truncate(w.AppID, 20),
				w.Output,
				fmt.Sprintf("%d,%d", w.X, w.Y),
				fmt.Sprintf("%dx%d", w.Width, w.Height),
				truncate(w.Title, 40))
			if w.Focused {
				sb.WriteString(ui.InfoStyle.Bold(true).Render(row))
				sb.WriteString(" " + ui.SuccessStyle.Render("◀ focused"))
			} else {
				sb.WriteString(ui.TableRowStyle.Render(row))
			}
			sb.WriteString("\n")
		}

		fmt.Print(sb.String())
		return nil
	},
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

func init() {
	rootCmd.AddCommand(windowsCmd)
}
