package engine

import "github.com/govbatch/govbatch/internal/core"

// Summarize reduces an outcome sequence into success/failure counts and
// a diagnostic listing of every non-successful task. It is a pure
// reduction: running it twice over the same outcomes yields an
// identical summary, and callers may feed it a growing prefix to report
// live progress.
func Summarize(outcomes []core.TaskOutcome) core.Summary {
	summary := core.Summary{Total: len(outcomes)}

	for _, item := range outcomes {
		switch item.Outcome.Status {
		case core.StatusSuccess:
			summary.SuccessCount++
			continue
		case core.StatusTimeout:
			summary.TimedOutCount++
		case core.StatusCancelled:
			summary.CancelledCount++
		case core.StatusFailed:
			if summary.FailedByKind == nil {
				summary.FailedByKind = make(map[core.FailureKind]int)
			}
			summary.FailedByKind[item.Outcome.Kind]++
		}

		summary.FailedTasks = append(summary.FailedTasks, core.TaskFailure{
			TaskID:  item.TaskID,
			Kind:    item.Outcome.Kind,
			Message: item.Outcome.Message,
		})
	}

	return summary
}
