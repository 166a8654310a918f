package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomwm/loom/internal/ipc"
	"github.com/loomwm/loom/internal/ui"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the policy script",
	Long: `Ask the running compositor to reload its policy script. On failure the
previous policy stays active and the error is reported here.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := ipc.NewClient(socketPath())
		if err := client.Reload(); err != nil {
			return err
		}

		fmt.Println(ui.SuccessStyle.Render("Policy reloaded"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reloadCmd)
}
