package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/charlesng35/invoicereminder/internal/monitoring"
)

const defaultDispatcherMaxAge = 15 * time.Minute

// Dispatcher reports whether reminder dispatch sweeps are completing on schedule.
// A sweep older than maxAge degrades the probe and repeated failures bring it down.
func Dispatcher(enabled bool, maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultDispatcherMaxAge
	}

	return monitoring.NewCheck("dispatcher", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if !enabled {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  "scheduler disabled",
				Duration: time.Since(start),
			}
		}

		summary := monitoring.Snapshot().Dispatch
		metadata := map[string]any{
			"total_runs":           summary.TotalRuns,
			"last_status":          summary.LastStatus,
			"consecutive_failures": summary.ConsecutiveFailures,
			"last_tick":            summary.LastTick,
		}
		if !summary.LastRunAt.IsZero() {
			metadata["last_run_at"] = summary.LastRunAt.UTC()
		}

		switch {
		case summary.TotalRuns == 0:
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  "pending first run",
				Duration: time.Since(start),
				Metadata: metadata,
			}
		case summary.ConsecutiveFailures >= 3:
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDown,
				Details:  fmt.Sprintf("%d consecutive failed sweeps: %s", summary.ConsecutiveFailures, summary.LastError),
				Duration: time.Since(start),
				Metadata: metadata,
			}
		case time.Since(summary.LastRunAt) > maxAge:
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "stale run " + summary.LastRunAt.UTC().Format(time.RFC3339),
				Duration: time.Since(start),
				Metadata: metadata,
			}
		case summary.ConsecutiveFailures > 0:
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  summary.LastError,
				Duration: time.Since(start),
				Metadata: metadata,
			}
		}

		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Duration: time.Since(start),
			Metadata: metadata,
		}
	})
}
