package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var feedLimit int

var feedCmd = &cobra.Command{
	Use:   "feed <login>",
	Short: "Print the login's ranked feed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		items, err := app.ranker.Serve(args[0], feedLimit)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("feed is empty (has the pipeline run for this login?)")
			return nil
		}
		for i, it := range items {
			fmt.Printf("%2d. %-40s score=%.4f sim=%.4f\n", i+1, it.ItemID, it.Score, it.Similarity)
		}
		return nil
	},
}

func init() {
	feedCmd.Flags().IntVar(&feedLimit, "limit", 0, "max items to serve (0 uses the configured default)")
}
