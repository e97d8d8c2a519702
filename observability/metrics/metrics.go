package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the prometheus collectors the daemon exposes.
type Metrics struct {
	PaymentsRecorded   *prometheus.CounterVec
	DepositsRejected   *prometheus.CounterVec
	RPCRequestDuration *prometheus.HistogramVec
}

var (
	once sync.Once
	inst *Metrics
)

// Default registers the collectors against the default prometheus registerer
// on first use and returns the shared instance.
func Default() *Metrics {
	once.Do(func() {
		inst = New(prometheus.DefaultRegisterer)
	})
	return inst
}

// New builds and registers the collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PaymentsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receipt",
			Name:      "payments_recorded_total",
			Help:      "Number of payments recorded, by token kind.",
		}, []string{"kind"}),
		DepositsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receipt",
			Name:      "deposits_rejected_total",
			Help:      "Number of deposits rejected, by reason.",
		}, []string{"reason"}),
		RPCRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "receipt",
			Name:      "rpc_request_duration_seconds",
			Help:      "JSON-RPC request handling latency, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(m.PaymentsRecorded, m.DepositsRejected, m.RPCRequestDuration)
	return m
}
