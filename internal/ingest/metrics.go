package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "sensilo_gateway_"

// Metrics holds the pipeline's delivery and error counters.
type Metrics struct {
	FramesDecoded    prometheus.Counter
	DecodeErrors     prometheus.Counter
	TruncatedFrames  prometheus.Counter
	UnknownDevices   prometheus.Counter
	SamplesBatched   prometheus.Counter
	BatchesDelivered prometheus.Counter
	BatchesDropped   prometheus.Counter
	SinkRetries      prometheus.Counter
}

// NewMetrics builds the pipeline counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "frames_decoded_total",
			Help: "Beacon frames decoded successfully",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "decode_errors_total",
			Help: "Beacon frames dropped due to decode errors",
		}),
		TruncatedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "truncated_frames_total",
			Help: "Frames partially decoded because of an unknown type tag",
		}),
		UnknownDevices: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "unknown_devices_total",
			Help: "Frames dropped because the source address is not registered",
		}),
		SamplesBatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "samples_batched_total",
			Help: "Decoded samples accepted into a batch",
		}),
		BatchesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "batches_delivered_total",
			Help: "Batches written to the sink",
		}),
		BatchesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "batches_dropped_total",
			Help: "Batches dropped after exhausting delivery retries",
		}),
		SinkRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "sink_retries_total",
			Help: "Sink writes retried after a failure",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.FramesDecoded, m.DecodeErrors, m.TruncatedFrames, m.UnknownDevices,
			m.SamplesBatched, m.BatchesDelivered, m.BatchesDropped, m.SinkRetries,
		)
	}
	return m
}
