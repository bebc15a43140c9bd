package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultProbeTimeout bounds a single probe when the manager has no explicit timeout.
const DefaultProbeTimeout = 5 * time.Second

// ProbeStatus encodes the outcome of a health probe.
type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDown     ProbeStatus = "down"
	StatusDegraded ProbeStatus = "degraded"
)

// ProbeResult captures a single dependency check outcome.
type ProbeResult struct {
	Component string         `json:"component"`
	Status    ProbeStatus    `json:"status"`
	Details   string         `json:"details,omitempty"`
	Duration  time.Duration  `json:"duration"`
	Advisory  bool           `json:"advisory,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// HealthReport aggregates probe results for a liveness or readiness evaluation.
type HealthReport struct {
	Success bool          `json:"success"`
	Status  ProbeStatus   `json:"status"`
	Checks  []ProbeResult `json:"checks"`
}

// Check encapsulates a single dependency probe. A failing advisory check degrades the
// aggregate status without failing the report.
type Check struct {
	Name     string
	Run      func(ctx context.Context) ProbeResult
	Advisory bool
}

// NewCheck constructs a health check with the provided name and function.
func NewCheck(name string, fn func(ctx context.Context) ProbeResult) Check {
	if fn == nil {
		fn = func(context.Context) ProbeResult {
			return ProbeResult{
				Component: name,
				Status:    StatusDown,
				Details:   "probe not implemented",
			}
		}
	}
	return Check{Name: name, Run: fn}
}

// NewAdvisoryCheck constructs a check whose failures never fail the report. Housekeeping
// jobs use it so that a stalled prune does not get the dispatcher process restarted.
func NewAdvisoryCheck(name string, fn func(ctx context.Context) ProbeResult) Check {
	check := NewCheck(name, fn)
	check.Advisory = true
	return check
}

// HealthManager coordinates liveness and readiness probes.
type HealthManager struct {
	livenessChecks  []Check
	readinessChecks []Check
	probeTimeout    time.Duration
}

// NewHealthManager constructs an empty health manager.
func NewHealthManager() *HealthManager {
	return &HealthManager{probeTimeout: DefaultProbeTimeout}
}

// SetProbeTimeout changes how long a single probe may run before it is reported degraded.
func (m *HealthManager) SetProbeTimeout(timeout time.Duration) {
	if timeout > 0 {
		m.probeTimeout = timeout
	}
}

// RegisterLiveness appends a liveness probe.
func (m *HealthManager) RegisterLiveness(check Check) {
	if check.Name == "" {
		return
	}
	m.livenessChecks = append(m.livenessChecks, check)
}

// RegisterReadiness appends a readiness probe.
func (m *HealthManager) RegisterReadiness(check Check) {
	if check.Name == "" {
		return
	}
	m.readinessChecks = append(m.readinessChecks, check)
}

// EvaluateLiveness executes all configured liveness checks.
func (m *HealthManager) EvaluateLiveness(ctx context.Context) HealthReport {
	return m.evaluate(ctx, m.livenessChecks)
}

// EvaluateReadiness executes all configured readiness checks.
func (m *HealthManager) EvaluateReadiness(ctx context.Context) HealthReport {
	return m.evaluate(ctx, m.readinessChecks)
}

// evaluate runs every check concurrently and keeps results in registration order.
func (m *HealthManager) evaluate(ctx context.Context, checks []Check) HealthReport {
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]ProbeResult, len(checks))
	var group errgroup.Group
	for i, check := range checks {
		group.Go(func() error {
			results[i] = m.runWithTimeout(ctx, check)
			return nil
		})
	}
	_ = group.Wait()

	return aggregate(results)
}

func (m *HealthManager) runWithTimeout(ctx context.Context, check Check) ProbeResult {
	timeout := m.probeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan ProbeResult, 1)
	go func() {
		done <- runCheck(probeCtx, check)
	}()

	select {
	case result := <-done:
		return result
	case <-probeCtx.Done():
		return ProbeResult{
			Component: check.Name,
			Status:    StatusDegraded,
			Details:   fmt.Sprintf("probe timed out after %s", timeout),
			Duration:  timeout,
			Advisory:  check.Advisory,
		}
	}
}

func runCheck(ctx context.Context, check Check) (result ProbeResult) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			details := "panic recovered"
			switch v := rec.(type) {
			case string:
				details = v
			case error:
				details = v.Error()
			}
			result = ProbeResult{
				Status:   StatusDown,
				Details:  details,
				Duration: time.Since(start),
			}
		}
		result.Component = check.Name
		result.Advisory = check.Advisory
	}()

	result = check.Run(ctx)
	if result.Status == "" {
		result.Status = StatusDown
	}
	if result.Duration == 0 {
		result.Duration = time.Since(start)
	}
	return result
}

// aggregate folds probe results into a report. A failing advisory check marks the report
// degraded but leaves Success untouched, so probes keep answering 200.
func aggregate(checks []ProbeResult) HealthReport {
	report := HealthReport{
		Success: true,
		Status:  StatusUp,
		Checks:  checks,
	}
	if report.Checks == nil {
		report.Checks = []ProbeResult{}
	}

	for _, r := range checks {
		if r.Status == StatusUp {
			continue
		}
		if r.Advisory {
			if report.Status == StatusUp {
				report.Status = StatusDegraded
			}
			continue
		}

		report.Success = false
		switch r.Status {
		case StatusDown:
			report.Status = StatusDown
		case StatusDegraded:
			if report.Status != StatusDown {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

// MergeReports combines liveness and readiness results to a single payload.
func MergeReports(live, ready HealthReport) HealthReport {
	checks := make([]ProbeResult, 0, len(live.Checks)+len(ready.Checks))
	checks = append(checks, live.Checks...)
	checks = append(checks, ready.Checks...)
	return aggregate(checks)
}

// ResultFromError converts an error into a ProbeResult with sensible defaults.
func ResultFromError(component string, err error, duration time.Duration) ProbeResult {
	if duration < 0 {
		duration = 0
	}
	if err == nil {
		return ProbeResult{Component: component, Status: StatusUp, Duration: duration}
	}

	status := StatusDown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = StatusDegraded
	}

	return ProbeResult{
		Component: component,
		Status:    status,
		Details:   err.Error(),
		Duration:  duration,
	}
}
