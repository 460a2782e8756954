package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "walletsync_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	pushMessages    *prometheus.CounterVec
	pollCycles      *prometheus.CounterVec
	pollLatency     *prometheus.HistogramVec
	reconnects      *prometheus.CounterVec
	fallbackPolling prometheus.Gauge
	openTopics      prometheus.Gauge

	transitions *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	effects     *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers synchronization metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		pushMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "push_messages_total",
				Help: "Total push envelopes received by topic",
			},
			[]string{"topic"},
		)
		pollCycles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "poll_cycles_total",
				Help: "Total poll cycles by result",
			},
			[]string{"result"},
		)
		pollLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "poll_latency_seconds",
				Help:    "Poll cycle latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		reconnects = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconnect_attempts_total",
				Help: "Total subscription reconnect attempts by topic",
			},
			[]string{"topic"},
		)
		fallbackPolling = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "fallback_polling",
				Help: "1 while the engine is fed by fallback polling",
			},
		)
		openTopics = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "open_topics",
				Help: "Number of push topics currently open",
			},
		)

		transitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "transitions_total",
				Help: "Total entity transitions by kind and entity",
			},
			[]string{"entity", "kind"},
		)
		dropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dropped_entities_total",
				Help: "Total entities dropped from merges by reason",
			},
			[]string{"reason"},
		)
		effects = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "effects_total",
				Help: "Total dispatched side effects by type",
			},
			[]string{"effect"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total transaction exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Transaction export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			pushMessages,
			pollCycles,
			pollLatency,
			reconnects,
			fallbackPolling,
			openTopics,
			transitions,
			dropped,
			effects,
			exportTotal,
			exportLatency,
		)
	})
}

// IncPushMessage counts one received push envelope.
func IncPushMessage(topic string) {
	if topic == "" {
		topic = "unknown"
	}
	if pushMessages != nil {
		pushMessages.WithLabelValues(topic).Inc()
	}
}

// ObservePoll records one poll cycle.
func ObservePoll(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if pollCycles != nil {
		pollCycles.WithLabelValues(result).Inc()
	}
	if pollLatency != nil {
		pollLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncReconnect counts one reconnect attempt.
func IncReconnect(topic string) {
	if topic == "" {
		topic = "unknown"
	}
	if reconnects != nil {
		reconnects.WithLabelValues(topic).Inc()
	}
}

// SetFallbackPolling flips the fallback-polling gauge.
func SetFallbackPolling(active bool) {
	if fallbackPolling == nil {
		return
	}
	if active {
		fallbackPolling.Set(1)
	} else {
		fallbackPolling.Set(0)
	}
}

// SetOpenTopics sets the number of currently open push topics.
func SetOpenTopics(count int) {
	if openTopics != nil {
		openTopics.Set(float64(count))
	}
}

// IncTransition counts one emitted transition.
func IncTransition(entity, kind string) {
	if transitions != nil {
		transitions.WithLabelValues(entity, kind).Inc()
	}
}

// IncDropped counts one entity dropped from a merge.
func IncDropped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if dropped != nil {
		dropped.WithLabelValues(reason).Inc()
	}
}

// IncEffect counts one dispatched side effect.
func IncEffect(effect string) {
	if effects != nil {
		effects.WithLabelValues(effect).Inc()
	}
}

// ObserveExport records one transaction export.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported result constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
