package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "robocompute"

var (
	TasksSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_submitted_total",
		Help:      "Tasks accepted into the market, by task type.",
	}, []string{"type"})

	TasksFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_finished_total",
		Help:      "Tasks that reached a terminal status.",
	}, []string{"status"})

	SettledVolume = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settled_volume_total",
		Help:      "Amount charged to clients for completed tasks.",
	}, []string{"currency"})

	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_requests_total",
		Help:      "Requests rejected by the rate limiter.",
	})

	StreamSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stream_subscribers",
		Help:      "Open task event subscriptions.",
	})
)

func init() {
	prometheus.MustRegister(TasksSubmitted, TasksFinished, SettledVolume, RateLimited, StreamSubscribers)
}
