package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	invocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linerelay",
			Name:      "backend_invocations_total",
			Help:      "Total backend invocations by provider, model and result kind",
		},
		[]string{"provider", "model", "result"},
	)

	invocationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "linerelay",
			Name:      "backend_invocation_duration_seconds",
			Help:      "Caller-observed duration of backend invocations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "model"},
	)

	lateResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linerelay",
			Name:      "backend_late_results_total",
			Help:      "Backend results that arrived after the caller gave up and were discarded",
		},
		[]string{"provider", "model"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "linerelay",
			Name:      "invoker_queue_depth",
			Help:      "Invocations waiting for a free worker",
		},
	)

	workersBusy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "linerelay",
			Name:      "invoker_workers_busy",
			Help:      "Workers currently running a backend call",
		},
	)

	replies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linerelay",
			Name:      "replies_total",
			Help:      "Replies sent to users by outcome",
		},
		[]string{"outcome"},
	)

	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linerelay",
			Name:      "webhook_events_total",
			Help:      "Inbound webhook events by type and handling action",
		},
		[]string{"type", "action"},
	)

	talkingEnabled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "linerelay",
			Name:      "talking_enabled",
			Help:      "1 when the bot answers text messages, 0 when muted",
		},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(invocations, invocationLatency, lateResults, queueDepth, workersBusy, replies, webhookEvents, talkingEnabled)
}

func ObserveInvocation(provider, model, result string, dur time.Duration) {
	invocations.WithLabelValues(provider, model, result).Inc()
	invocationLatency.WithLabelValues(provider, model).Observe(dur.Seconds())
}

func IncLateResult(provider, model string) {
	lateResults.WithLabelValues(provider, model).Inc()
}

func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

func WorkerBusy(delta int) {
	workersBusy.Add(float64(delta))
}

func IncReply(outcome string) {
	replies.WithLabelValues(outcome).Inc()
}

func IncWebhookEvent(eventType, action string) {
	webhookEvents.WithLabelValues(eventType, action).Inc()
}

func SetTalking(enabled bool) {
	if enabled {
		talkingEnabled.Set(1)
		return
	}
	talkingEnabled.Set(0)
}
