package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"metal-rates-alerts/internal/app"
)

var (
	datesYear  int
	datesLimit int
)

var datesCmd = &cobra.Command{
	Use:   "dates",
	Short: "List stored rate dates",
	RunE: func(cmd *cobra.Command, args []string) error {
		if datesYear == 0 && datesLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.DatesOptions{
			Year:  datesYear,
			Limit: datesLimit,
		}

		return getApp().Dates(cmd.Context(), opts)
	},
}

func init() {
	datesCmd.Flags().IntVar(&datesYear, "year", 0, "List every stored date in a calendar year")
	datesCmd.Flags().IntVar(&datesLimit, "limit", 30, "Number of recent dates to list when --year is not set")
}
