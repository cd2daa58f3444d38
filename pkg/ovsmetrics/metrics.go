// Package ovsmetrics exposes the datapath's counters to Prometheus,
// grounded on this corpus's churn telemetry module: package-level
// metric vars registered once in init, a standalone /metrics HTTP
// listener when configured, and label-free (or low-cardinality)
// series to keep the forwarding path allocation-free.
package ovsmetrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	rxPackets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ovsdp_vport_rx_packets_total",
		Help: "Packets received per vport.",
	}, []string{"vport"})
	txPackets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ovsdp_vport_tx_packets_total",
		Help: "Packets transmitted per vport.",
	}, []string{"vport"})
	rxDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ovsdp_vport_rx_dropped_total",
		Help: "Packets dropped on receive per vport.",
	}, []string{"vport"})
	txDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ovsdp_vport_tx_dropped_total",
		Help: "Packets dropped on transmit per vport.",
	}, []string{"vport"})

	flowTableEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ovsdp_flow_table_entries",
		Help: "Live flow-table entries per pipeline.",
	}, []string{"pipeline"})
	flowTableMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ovsdp_flow_table_misses_total",
		Help: "Exact-match lookups that found no flow, per pipeline.",
	}, []string{"pipeline"})

	bufpoolExhausted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ovsdp_bufpool_exhausted_total",
		Help: "Allocation attempts that found the buffer pool empty.",
	})

	ringFullDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ovsdp_ring_full_drops_total",
		Help: "Enqueue attempts rejected by a saturated ring.",
	}, []string{"ring"})

	pipelinePollLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ovsdp_pipeline_poll_seconds",
		Help:    "Time spent per poll-loop iteration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"pipeline"})
)

func init() {
	prometheus.MustRegister(
		rxPackets, txPackets, rxDropped, txDropped,
		flowTableEntries, flowTableMisses,
		bufpoolExhausted, ringFullDrops, pipelinePollLatency,
	)
}

// RecordRx accounts one receive-side observation for a named vport.
func RecordRx(vport string, packets, dropped uint64) {
	if packets > 0 {
		rxPackets.WithLabelValues(vport).Add(float64(packets))
	}
	if dropped > 0 {
		rxDropped.WithLabelValues(vport).Add(float64(dropped))
	}
}

// RecordTx accounts one transmit-side observation for a named vport.
func RecordTx(vport string, packets, dropped uint64) {
	if packets > 0 {
		txPackets.WithLabelValues(vport).Add(float64(packets))
	}
	if dropped > 0 {
		txDropped.WithLabelValues(vport).Add(float64(dropped))
	}
}

// SetFlowTableEntries publishes the current live-entry count for a
// pipeline's flow table.
func SetFlowTableEntries(pipeline string, n int) {
	flowTableEntries.WithLabelValues(pipeline).Set(float64(n))
}

// RecordFlowTableMiss counts one exact-match lookup that found nothing.
func RecordFlowTableMiss(pipeline string) {
	flowTableMisses.WithLabelValues(pipeline).Inc()
}

// RecordBufpoolExhausted counts one failed buffer allocation.
func RecordBufpoolExhausted() {
	bufpoolExhausted.Inc()
}

// RecordRingFullDrop counts one enqueue rejected by a saturated ring.
func RecordRingFullDrop(ring string) {
	ringFullDrops.WithLabelValues(ring).Inc()
}

// ObservePollLatency records one poll-loop iteration's duration in
// seconds for a pipeline.
func ObservePollLatency(pipeline string, seconds float64) {
	pipelinePollLatency.WithLabelValues(pipeline).Observe(seconds)
}

// Serve starts the /metrics HTTP endpoint on addr, blocking until ctx
// is canceled or the server fails. Mirrors the opt-in standalone
// metrics listener pattern this corpus's churn module offers as an
// alternative to registering promhttp on an existing mux.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}
