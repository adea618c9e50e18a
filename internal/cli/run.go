package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <login>",
	Short: "Run the enrichment pipeline for a login",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		res := app.orch.RunActor(cmd.Context(), args[0])
		fmt.Printf("run %s: %d stages, %d failed\n", res.RunID, len(res.Stages), res.Failed())
		for _, sr := range res.Stages {
			line := fmt.Sprintf("  %-28s %-16s %s", sr.Kind, sr.SubjectID, sr.Status)
			if sr.Error != "" {
				line += "  " + sr.Error
			}
			fmt.Println(line)
		}
		if res.Failed() > 0 {
			return fmt.Errorf("%d stages failed", res.Failed())
		}
		return nil
	},
}
