package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Inspect rate ceilings and recorded window usage",
}

var rateLimitShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective endpoint rate ceilings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Pattern", "Ceiling/min", "Paced At"})
		for _, category := range cfg.Categories() {
			pacedAt := int(float64(category.PerMinute) * cfg.Rate.SafetyThreshold)
			if pacedAt < 1 {
				pacedAt = 1
			}
			t.AppendRow(table.Row{category.Pattern, category.PerMinute, pacedAt})
		}
		t.AppendFooter(table.Row{"", "", fmt.Sprintf("threshold %.0f%%", cfg.Rate.SafetyThreshold*100)})

		fmt.Println(t.Render())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rateLimitCmd)
	rateLimitCmd.AddCommand(rateLimitShowCmd)
}
