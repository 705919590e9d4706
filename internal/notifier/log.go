package notifier

import (
	"log/slog"

	"github.com/amishk599/jobscout/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes run summaries to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each finished run via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyRun logs the run counts. Returns nil (stdout logging does not fail).
func (n *LogNotifier) NotifyRun(run model.Run) error {
	args := []any{
		"run_id", run.ID,
		"status", run.Status,
		"query", run.Query.String(),
		"discovered", run.Discovered,
		"new", run.PersistedNew,
		"updated", run.PersistedUpdated,
		"unchanged", run.Unchanged,
		"failed", run.Failed,
	}
	if run.ErrorSummary != nil {
		args = append(args, "summary", *run.ErrorSummary)
	}
	if run.Status == model.RunFailed {
		n.logger.Error("run report", args...)
		return nil
	}
	n.logger.Info("run report", args...)
	return nil
}
