package monitoring

import (
	"strings"
	"time"
)

// ObserveAPILatency captures the HTTP request latency for the supplied route.
func ObserveAPILatency(method, path, status string, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = "UNKNOWN"
	}
	path = sanitizePath(path)
	if path == "" {
		path = "unknown"
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = "unknown"
	}
	module.metrics.apiLatency.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordReminderScheduled counts a reminder row created by the given source (hook|reconcile).
func RecordReminderScheduled(source, reminderType string) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.remindersScheduled.WithLabelValues(normalizeLabel(source), normalizeLabel(reminderType)).Inc()
}

// RecordReminderDelivery counts a dispatch outcome (sent|failed|exhausted|cancelled|skipped).
func RecordReminderDelivery(reminderType, result string) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.reminderDeliveries.WithLabelValues(normalizeLabel(reminderType), normalizeLabel(result)).Inc()
}

// RecordRemindersCancelled counts reminders cancelled for a reason (paid|orphan).
func RecordRemindersCancelled(reason string, count int64) {
	module := ensureModule()
	if module == nil || count <= 0 {
		return
	}
	module.metrics.remindersCancelled.WithLabelValues(normalizeLabel(reason)).Add(float64(count))
}

// ObserveGatewayLatency records how long a notification gateway call took.
func ObserveGatewayLatency(gateway, result string, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	observeDuration(module.metrics.gatewayLatency.WithLabelValues(normalizeLabel(gateway), normalizeLabel(result)), duration)
}

// RecordDispatchTick records the completion of a dispatch sweep.
func RecordDispatchTick(result, message string, tick DispatchTickStats, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	result = normalizeLabel(result)
	module.metrics.dispatchTicks.WithLabelValues(result).Inc()
	observeDuration(module.metrics.dispatchDuration, duration)
	module.metrics.dispatchLastRun.Set(float64(time.Now().Unix()))
	module.stats.dispatch.record(result, strings.TrimSpace(message), tick, duration)
}

// RecordRealtimeConnection adjusts the websocket connection gauge.
func RecordRealtimeConnection(delta int64) {
	module := ensureModule()
	if module == nil {
		return
	}
	if delta == 0 {
		return
	}
	module.metrics.realtimeConnections.Add(float64(delta))
	module.stats.recordRealtimeConnection(delta)
	if module.stats.realtimeConnections.Load() == 0 {
		module.metrics.realtimeConnections.Set(0)
	}
}

// RecordRealtimeEvent counts an event published to subscribers.
func RecordRealtimeEvent(event string) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.realtimeEvents.WithLabelValues(normalizeLabel(event)).Inc()
	module.stats.realtimeEvents.Add(1)
}

// RecordMaintenanceRun records the completion of a maintenance job.
func RecordMaintenanceRun(job, result, message string, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	jobID := normalizeLabel(job)
	result = normalizeLabel(result)
	module.metrics.maintenanceRuns.WithLabelValues(jobID, result).Inc()
	observeDuration(module.metrics.maintenanceDuration.WithLabelValues(jobID), duration)
	if result == "success" {
		module.metrics.maintenanceLastRun.WithLabelValues(jobID).Set(float64(time.Now().Unix()))
	}
	stats := module.stats.maintenanceEntry(jobID)
	stats.record(result, strings.TrimSpace(message), duration)
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}

func sanitizePath(path string) string {
	if path == "" {
		return ""
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "/" {
		return "root"
	}
	return normalizePath(path)
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	path = strings.ReplaceAll(path, " ", "_")
	if path == "" {
		return "root"
	}
	return path
}
