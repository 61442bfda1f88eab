// Package output renders batch results and rate snapshots in table,
// JSON, and markdown formats.
package output

import (
	"fmt"
	"strings"

	"github.com/govbatch/govbatch/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders batch results.
type Formatter interface {
	FormatBatch(result *core.BatchResult) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown):
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// statusLabel collapses an outcome into one display word.
func statusLabel(outcome core.Outcome) string {
	switch outcome.Status {
	case core.StatusSuccess:
		return "OK"
	case core.StatusTimeout:
		return "TIMEOUT"
	case core.StatusCancelled:
		return "CANCELLED"
	default:
		return strings.ToUpper(string(outcome.Kind))
	}
}

// notes returns the human column for one outcome: the failure message,
// or the HTTP status for successes.
func notes(outcome core.Outcome) string {
	if outcome.Status == core.StatusSuccess {
		return fmt.Sprintf("HTTP %d", outcome.StatusCode)
	}
	return outcome.Message
}

// summaryLine is the one-line reduction shared by table and markdown.
func summaryLine(summary core.Summary) string {
	line := fmt.Sprintf("%d/%d succeeded", summary.SuccessCount, summary.Total)
	if summary.TimedOutCount > 0 {
		line += fmt.Sprintf(", %d timed out", summary.TimedOutCount)
	}
	if summary.CancelledCount > 0 {
		line += fmt.Sprintf(", %d cancelled", summary.CancelledCount)
	}
	failed := summary.Total - summary.SuccessCount - summary.TimedOutCount - summary.CancelledCount
	if failed > 0 {
		line += fmt.Sprintf(", %d failed", failed)
	}
	return line
}
