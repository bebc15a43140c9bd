package monitoring

import "time"

// Summary surfaces aggregated monitoring data for operators.
type Summary struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Dispatch    DispatchSummary    `json:"dispatch"`
	Realtime    RealtimeSummary    `json:"realtime"`
	Maintenance MaintenanceSummary `json:"maintenance"`
}

// DispatchTickStats carries the per-outcome counts of one dispatch sweep.
type DispatchTickStats struct {
	Due       int `json:"due"`
	Retried   int `json:"retried"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Exhausted int `json:"exhausted"`
	Cancelled int `json:"cancelled"`
	Skipped   int `json:"skipped"`
}

type DispatchSummary struct {
	TotalRuns           uint64            `json:"total_runs"`
	LastStatus          string            `json:"last_status"`
	LastRunAt           time.Time         `json:"last_run_at"`
	LastDuration        time.Duration     `json:"last_duration"`
	LastError           string            `json:"last_error,omitempty"`
	ConsecutiveFailures uint64            `json:"consecutive_failures"`
	LastTick            DispatchTickStats `json:"last_tick"`
	TotalSent           uint64            `json:"total_sent"`
	TotalFailed         uint64            `json:"total_failed"`
	TotalCancelled      uint64            `json:"total_cancelled"`
}

type RealtimeSummary struct {
	ActiveConnections int64  `json:"active_connections"`
	Events            uint64 `json:"events"`
}

type MaintenanceSummary struct {
	Jobs []MaintenanceJobSummary `json:"jobs"`
}

type MaintenanceJobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	ConsecutiveSuccess  uint64        `json:"consecutive_success"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	TotalRuns           uint64        `json:"total_runs"`
}

// Snapshot returns a point-in-time summary from the current module when configured.
func Snapshot() Summary {
	if module := ensureModule(); module != nil && module.stats != nil {
		return module.stats.summary()
	}
	return Summary{GeneratedAt: time.Now()}
}
