package output

import (
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/govbatch/govbatch/internal/core"
	"github.com/govbatch/govbatch/internal/core/engine"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatBatch renders a batch result as a table.
func (f *TableFormatter) FormatBatch(result *core.BatchResult) (string, error) {
	if result == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Task", "Status", "Attempts", "Duration", "Notes"})

	for _, item := range result.Outcomes {
		t.AppendRow(table.Row{
			item.TaskID,
			statusLabel(item.Outcome),
			item.Outcome.Attempts,
			item.Outcome.Duration.Round(time.Millisecond).String(),
			notes(item.Outcome),
		})
	}

	if result.Summary.Total > 0 {
		t.AppendFooter(table.Row{
			"",
			summaryLine(result.Summary),
			"",
			result.Elapsed.Round(time.Millisecond).String(),
			"",
		})
	}

	return t.Render(), nil
}

// FormatRateSnapshot renders the live per-category window usage.
func FormatRateSnapshot(usages []engine.CategoryUsage) string {
	sorted := make([]engine.CategoryUsage, len(usages))
	copy(sorted, usages)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Category < sorted[j].Category })

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Category", "Ceiling/min", "In Window", "Used"})

	for _, usage := range sorted {
		t.AppendRow(table.Row{
			usage.Category,
			usage.Ceiling,
			usage.InWindow,
			fmt.Sprintf("%.1f%%", usage.Used*100),
		})
	}

	return t.Render()
}
