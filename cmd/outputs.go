package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loomwm/loom/internal/ipc"
	"github.com/loomwm/loom/internal/ui"
)

var outputsCmd = &cobra.Command{
	Use:   "outputs",
	Short: "List the compositor's outputs",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := ipc.NewClient(socketPath())

		outputs, err := client.ListOutputs()
		if err != nil {
			return fmt.Errorf("failed to list outputs: %w", err)
		}
		if len(outputs) == 0 {
			fmt.Println(ui.MutedStyle.Render("No outputs"))
			return nil
		}

		var sb strings.Builder
		sb.WriteString(ui.TableHeaderStyle.Render(fmt.Sprintf("%-12s %-12s %-12s %-8s %-8s %s",
			"NAME", "POSITION", "MODE", "REFRESH", "SCALE", "STATE")))
		sb.WriteString("\n")
		for _, out := range outputs {
			state := ui.SuccessStyle.Render("enabled")
			if !out.Enabled {
				state = ui.MutedStyle.Render("disabled")
			}
			sb.WriteString(ui.TableRowStyle.Render(fmt.Sprintf("%-12s %-12s %-12s %-8s %-8d",
				out.Name,
				fmt.Sprintf("%d,%d", out.X, out.Y),
				fmt.Sprintf("%dx%d", out.Width, out.Height),
				fmt.Sprintf("%.2fHz", float64(out.RefreshMHz)/1000.0),
				out.Scale)))
			sb.WriteString(" " + state)
			sb.WriteString("\n")
		}

		fmt.Print(sb.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(outputsCmd)
}
