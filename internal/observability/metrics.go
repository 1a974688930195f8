package observability

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const (
	OutcomeOK      = "ok"
	OutcomeRetried = "retried"
	OutcomeError   = "error"
)

var (
	registerOnce sync.Once

	rpcCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "commandoctl",
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Commando RPC calls by method and outcome.",
		},
		[]string{"method", "outcome"},
	)
	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "commandoctl",
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Commando RPC call duration in seconds, including reconnect and retry.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	sessionReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "commandoctl",
			Subsystem: "session",
			Name:      "reconnects_total",
			Help:      "Session connect attempts by outcome.",
		},
		[]string{"outcome"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "commandoctl",
			Subsystem: "frames",
			Name:      "received_total",
			Help:      "Inbound frames by kind.",
		},
		[]string{"kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(rpcCalls, rpcDuration, sessionReconnects, framesReceived)
	})
}

func RecordCall(method, outcome string, duration time.Duration) {
	RegisterMetrics()
	rpcCalls.WithLabelValues(method, outcome).Inc()
	rpcDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func RecordConnect(outcome string) {
	RegisterMetrics()
	sessionReconnects.WithLabelValues(outcome).Inc()
}

func RecordFrame(kind string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(kind).Inc()
}

// WriteText dumps the commandoctl metric families in the prometheus text
// format.
func WriteText(w io.Writer) error {
	RegisterMetrics()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "commandoctl_") {
			continue
		}
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
