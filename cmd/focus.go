package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/loomwm/loom/internal/ipc"
	"github.com/loomwm/loom/internal/ui"
)

var focusCmd = &cobra.Command{
	Use:   "focus <window-id>",
	Short: "Focus a window by ID",
	Long:  `Focus a window by its numeric ID. Use 'loom windows' to list IDs.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid window ID %q", args[0])
		}

		client := ipc.NewClient(socketPath())
		if err := client.Focus(id); err != nil {
			return err
		}

		fmt.Println(ui.SuccessStyle.Render(fmt.Sprintf("Focused window %d", id)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(focusCmd)
}
