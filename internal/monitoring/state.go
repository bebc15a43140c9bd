package monitoring

import (
	"sync"
	"sync/atomic"
	"time"
)

type statStore struct {
	dispatch dispatchStats

	realtimeConnections atomic.Int64
	realtimeEvents      atomic.Uint64

	maintenance sync.Map // string -> *maintenanceStats
}

func newStatStore() *statStore {
	return &statStore{}
}

func (s *statStore) cloneMaintenance() []MaintenanceJobSummary {
	summaries := []MaintenanceJobSummary{}
	s.maintenance.Range(func(key, value any) bool {
		job := key.(string)
		stats := value.(*maintenanceStats)
		summaries = append(summaries, stats.snapshot(job))
		return true
	})
	return summaries
}

func (s *statStore) summary() Summary {
	return Summary{
		GeneratedAt: time.Now(),
		Dispatch:    s.dispatch.snapshot(),
		Realtime: RealtimeSummary{
			ActiveConnections: s.realtimeConnections.Load(),
			Events:            s.realtimeEvents.Load(),
		},
		Maintenance: MaintenanceSummary{
			Jobs: s.cloneMaintenance(),
		},
	}
}

func (s *statStore) recordRealtimeConnection(delta int64) {
	newValue := s.realtimeConnections.Add(delta)
	if newValue < 0 {
		s.realtimeConnections.Store(0)
	}
}

func (s *statStore) maintenanceEntry(job string) *maintenanceStats {
	value, ok := s.maintenance.Load(job)
	if ok {
		return value.(*maintenanceStats)
	}
	stats := &maintenanceStats{}
	actual, _ := s.maintenance.LoadOrStore(job, stats)
	return actual.(*maintenanceStats)
}

type dispatchStats struct {
	mu                  sync.Mutex
	totalRuns           uint64
	lastStatus          string
	lastError           string
	lastRun             time.Time
	lastDuration        time.Duration
	consecutiveFailures uint64
	lastTick            DispatchTickStats
	totalSent           uint64
	totalFailed         uint64
	totalCancelled      uint64
}

func (d *dispatchStats) record(result, message string, tick DispatchTickStats, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.totalRuns++
	d.lastStatus = result
	d.lastError = message
	d.lastRun = time.Now()
	d.lastDuration = duration
	d.lastTick = tick
	d.totalSent += uint64(tick.Sent)
	d.totalFailed += uint64(tick.Failed + tick.Exhausted)
	d.totalCancelled += uint64(tick.Cancelled)

	if result == "success" {
		d.consecutiveFailures = 0
	} else {
		d.consecutiveFailures++
	}
}

func (d *dispatchStats) snapshot() DispatchSummary {
	d.mu.Lock()
	defer d.mu.Unlock()

	return DispatchSummary{
		TotalRuns:           d.totalRuns,
		LastStatus:          d.lastStatus,
		LastRunAt:           d.lastRun,
		LastDuration:        d.lastDuration,
		LastError:           d.lastError,
		ConsecutiveFailures: d.consecutiveFailures,
		LastTick:            d.lastTick,
		TotalSent:           d.totalSent,
		TotalFailed:         d.totalFailed,
		TotalCancelled:      d.totalCancelled,
	}
}

type maintenanceStats struct {
	lastStatus           atomic.Value // string
	lastError            atomic.Value // string
	lastRun              atomic.Int64 // unix nano
	lastDuration         atomic.Int64 // nanoseconds
	consecutiveFailures  atomic.Uint64
	totalRuns            atomic.Uint64
	lastSuccessfulRun    atomic.Int64
	consecutiveSuccesses atomic.Uint64
}

func (m *maintenanceStats) snapshot(job string) MaintenanceJobSummary {
	status, _ := m.lastStatus.Load().(string)
	errMsg, _ := m.lastError.Load().(string)
	lastRun := time.Unix(0, m.lastRun.Load())
	lastSuccess := time.Unix(0, m.lastSuccessfulRun.Load())

	return MaintenanceJobSummary{
		Job:                 job,
		LastStatus:          status,
		LastRunAt:           lastRun,
		LastDuration:        time.Duration(m.lastDuration.Load()),
		LastError:           errMsg,
		ConsecutiveFailures: m.consecutiveFailures.Load(),
		ConsecutiveSuccess:  m.consecutiveSuccesses.Load(),
		LastSuccessAt:       lastSuccess,
		TotalRuns:           m.totalRuns.Load(),
	}
}

func (m *maintenanceStats) record(result, message string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	now := time.Now()
	m.lastStatus.Store(result)
	m.lastError.Store(message)
	m.lastRun.Store(now.UnixNano())
	m.lastDuration.Store(int64(duration))
	m.totalRuns.Add(1)

	switch result {
	case "success":
		m.consecutiveFailures.Store(0)
		m.consecutiveSuccesses.Add(1)
		m.lastSuccessfulRun.Store(now.UnixNano())
	default:
		m.consecutiveFailures.Add(1)
		m.consecutiveSuccesses.Store(0)
	}
}
