package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetFrom string

var resetCmd = &cobra.Command{
	Use:   "reset <login>",
	Short: "Reset ledger state so the next run redoes the work",
	Long: `Reset sets the login's work items back to pending and clears their
outputs. With --from, only the named stage and everything downstream of
it is reset; finished upstream work is kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		login := args[0]
		if resetFrom != "" {
			if err := app.orch.ResetFrom(login, resetFrom); err != nil {
				return err
			}
			fmt.Printf("reset %s from %s\n", login, resetFrom)
			return nil
		}
		if err := app.orch.ResetActor(login); err != nil {
			return err
		}
		fmt.Printf("reset %s\n", login)
		return nil
	},
}

func init() {
	resetCmd.Flags().StringVar(&resetFrom, "from", "", "stage kind to reset from (downstream included)")
}
