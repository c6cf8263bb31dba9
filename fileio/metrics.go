package fileio

import "github.com/prometheus/client_golang/prometheus"

const (
	resultSuccess   = "success"
	resultError     = "error"
	resultCancelled = "cancelled"
)

type metrics struct {
	operations *prometheus.CounterVec
	queueWait  *prometheus.HistogramVec
}

func newMetrics() metrics {
	return metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raftsnap",
			Subsystem: "io",
			Name:      "operations_total",
			Help:      "Number of filesystem operations processed by the scheduler.",
		}, []string{"class", "result"}),
		queueWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "raftsnap",
			Subsystem: "io",
			Name:      "queue_wait_seconds",
			Help:      "Time spent by operations in the queue before being executed.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"class"}),
	}
}

func (m metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.operations, m.queueWait}
}
