package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"metal-rates-alerts/internal/app"
)

var (
	showLimit        int
	showCompleteOnly bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent stored rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:        showLimit,
			CompleteOnly: showCompleteOnly,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of dates to display")
	showCmd.Flags().BoolVar(&showCompleteOnly, "complete", false, "Only show dates where all four metals are present")
}
