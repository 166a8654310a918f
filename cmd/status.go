package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loomwm/loom/internal/ipc"
	"github.com/loomwm/loom/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the status of the running compositor",
	Long:  `Check the status of the running compositor including output count, window count and policy state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := ipc.NewClient(socketPath())

		status, err := client.Status()
		if err != nil {
			fmt.Println(ui.FormatStatus(false, "Compositor is not running"))
			return nil
		}

		var output strings.Builder

		output.WriteString(ui.FormatAppHeader("LOOM STATUS", fmt.Sprintf("version %s", status.Version)))
		output.WriteString("\n\n")

		content := strings.Builder{}
		content.WriteString(ui.FormatStatus(true, "Running"))
		content.WriteString("\n")
		content.WriteString(ui.SubheaderStyle.Render("Uptime: "))
		content.WriteString(ui.TextStyle.Render((time.Duration(status.UptimeSec) * time.Second).String()))
		content.WriteString("\n")
		content.WriteString(ui.SubheaderStyle.Render("Outputs: "))
		content.WriteString(ui.TextStyle.Render(fmt.Sprintf("%d", status.Outputs)))
		content.WriteString("\n")
		content.WriteString(ui.SubheaderStyle.Render("Windows: "))
		content.WriteString(ui.TextStyle.Render(fmt.Sprintf("%d", status.Windows)))
		content.WriteString("\n")
		content.WriteString(ui.SubheaderStyle.Render("Policy: "))
		if status.PolicyOK {
			content.WriteString(ui.SuccessStyle.Render("ok"))
		} else {
			content.WriteString(ui.ErrorStyle.Render(status.PolicyError))
		}

		output.WriteString(ui.BoxStyle.Render(content.String()))
		output.WriteString("\n\n")
		output.WriteString(ui.SubtleStyle.Render(fmt.Sprintf("Socket: %s", status.Socket)))

		fmt.Println(output.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
