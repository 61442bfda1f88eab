package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/govbatch/govbatch/internal/output"
)

var (
	historyCategory string
	historyLimit    int
)

var rateLimitHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored rate window observations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		format, err := output.ParseFormat(cfg.Output)
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		observations, err := db.ListRateObservations(cmd.Context(), historyCategory, historyLimit)
		if err != nil {
			return err
		}

		if format == output.FormatJSON {
			payload, err := json.MarshalIndent(observations, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(payload))
			return nil
		}

		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Observed", "Category", "Ceiling/min", "In Window", "Used"})
		for _, obs := range observations {
			t.AppendRow(table.Row{
				obs.ObservedAt.Format(time.RFC3339),
				obs.Category,
				obs.Ceiling,
				obs.InWindow,
				fmt.Sprintf("%.1f%%", obs.Used*100),
			})
		}
		fmt.Println(t.Render())
		return nil
	},
}

func init() {
	rateLimitCmd.AddCommand(rateLimitHistoryCmd)
	rateLimitHistoryCmd.Flags().StringVar(&historyCategory, "category", "", "filter by endpoint category")
	rateLimitHistoryCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum observations to list")
}
