package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type collectors struct {
	apiLatency          *prometheus.HistogramVec
	remindersScheduled  *prometheus.CounterVec
	reminderDeliveries  *prometheus.CounterVec
	remindersCancelled  *prometheus.CounterVec
	dispatchTicks       *prometheus.CounterVec
	dispatchDuration    prometheus.Histogram
	dispatchLastRun     prometheus.Gauge
	gatewayLatency      *prometheus.HistogramVec
	realtimeConnections prometheus.Gauge
	realtimeEvents      *prometheus.CounterVec
	maintenanceRuns     *prometheus.CounterVec
	maintenanceDuration *prometheus.HistogramVec
	maintenanceLastRun  *prometheus.GaugeVec
}

func newCollectors(namespace string) *collectors {
	buckets := prometheus.DefBuckets

	return &collectors{
		apiLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_latency_seconds",
				Help:      "API endpoint latency",
				Buckets:   buckets,
			},
			[]string{"method", "path", "status"},
		),
		remindersScheduled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_scheduled_total",
				Help:      "Total number of reminder records created",
			},
			[]string{"source", "type"},
		),
		reminderDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_deliveries_total",
				Help:      "Total number of reminder dispatch outcomes",
			},
			[]string{"type", "result"},
		),
		remindersCancelled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_cancelled_total",
				Help:      "Total number of reminders cancelled",
			},
			[]string{"reason"},
		),
		dispatchTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_ticks_total",
				Help:      "Total number of dispatch sweeps by result",
			},
			[]string{"result"},
		),
		dispatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_tick_duration_seconds",
				Help:      "Duration of dispatch sweeps",
				Buckets:   buckets,
			},
		),
		dispatchLastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dispatch_last_run_timestamp",
				Help:      "Unix timestamp of the last completed dispatch sweep",
			},
		),
		gatewayLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_latency_seconds",
				Help:      "Notification gateway latency",
				Buckets:   buckets,
			},
			[]string{"gateway", "result"},
		),
		realtimeConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "realtime_connections",
				Help:      "Number of active websocket connections",
			},
		),
		realtimeEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realtime_events_total",
				Help:      "Total number of events published to subscribers",
			},
			[]string{"event"},
		),
		maintenanceRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "maintenance_runs_total",
				Help:      "Total number of maintenance job executions",
			},
			[]string{"job", "result"},
		),
		maintenanceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "maintenance_duration_seconds",
				Help:      "Duration of maintenance jobs",
				Buckets:   buckets,
			},
			[]string{"job"},
		),
		maintenanceLastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "maintenance_last_success_timestamp",
				Help:      "Unix timestamp of the last successful maintenance run",
			},
			[]string{"job"},
		),
	}
}

func (c *collectors) all() []prometheus.Collector {
	return []prometheus.Collector{
		c.apiLatency,
		c.remindersScheduled,
		c.reminderDeliveries,
		c.remindersCancelled,
		c.dispatchTicks,
		c.dispatchDuration,
		c.dispatchLastRun,
		c.gatewayLatency,
		c.realtimeConnections,
		c.realtimeEvents,
		c.maintenanceRuns,
		c.maintenanceDuration,
		c.maintenanceLastRun,
	}
}

// observeDuration records a duration in seconds on the supplied histogram observer.
func observeDuration(observer prometheus.Observer, d time.Duration) {
	if observer == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	observer.Observe(d.Seconds())
}
