package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/govbatch/govbatch/internal/core"
)

// MarkdownFormatter renders results as a markdown table.
type MarkdownFormatter struct{}

// FormatBatch renders a batch result as Markdown.
func (f *MarkdownFormatter) FormatBatch(result *core.BatchResult) (string, error) {
	if result == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("## Batch results\n\n")
	sb.WriteString("| Task | Status | Attempts | Duration | Notes |\n")
	sb.WriteString("|------|--------|----------|----------|-------|\n")

	for _, item := range result.Outcomes {
		sb.WriteString(fmt.Sprintf("| %s | %s | %d | %s | %s |\n",
			escapeMarkdownCell(item.TaskID),
			escapeMarkdownCell(statusLabel(item.Outcome)),
			item.Outcome.Attempts,
			item.Outcome.Duration.Round(time.Millisecond).String(),
			escapeMarkdownCell(notes(item.Outcome)),
		))
	}

	if result.Summary.Total > 0 {
		sb.WriteString(fmt.Sprintf("\n**Summary**: %s in %s\n",
			summaryLine(result.Summary),
			result.Elapsed.Round(time.Millisecond).String(),
		))
	}

	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
