// Package metrics provides optional Prometheus instrumentation for the
// storage layer, generalizing the teacher's own-registry pattern
// (pkg/metrics) down to the handful of histograms and counters a log store needs: append
// and read latency, frame flush activity, bytes compressed, and
// signature-verification failures.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder owns one Prometheus registry and the collectors isocore
// reports to. A nil *Recorder is valid everywhere it is accepted — every
// method is a no-op on a nil receiver, so instrumentation is opt-in.
type Recorder struct {
	Registry *prometheus.Registry

	appendLatency   *prometheus.HistogramVec
	readLatency     *prometheus.HistogramVec
	frameFlushes    prometheus.Counter
	bytesCompressed prometheus.Counter
	verifyFailures  prometheus.Counter
}

// New creates a Recorder with its own registry under the "isocore"
// namespace.
func New() *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		Registry: reg,
		appendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "isocore",
			Subsystem: "store",
			Name:      "append_duration_seconds",
			Help:      "Duration of append-path operations, labelled by the recording component.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{"component"}),
		readLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "isocore",
			Subsystem: "store",
			Name:      "read_duration_seconds",
			Help:      "Duration of read operations, labelled by the recording component.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{"component"}),
		frameFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "isocore",
			Subsystem: "neodisk",
			Name:      "frame_flushes_total",
			Help:      "Total number of frames flushed to disk.",
		}),
		bytesCompressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "isocore",
			Subsystem: "neodisk",
			Name:      "bytes_compressed_total",
			Help:      "Total compressed bytes written across all frames.",
		}),
		verifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "isocore",
			Subsystem: "store",
			Name:      "verify_failures_total",
			Help:      "Total number of integrity or signature verification failures.",
		}),
	}

	reg.MustRegister(r.appendLatency, r.readLatency, r.frameFlushes, r.bytesCompressed, r.verifyFailures)
	return r
}

// ObserveAppend records the latency of one append-path operation against
// component: "isocore" and "corelog" for appends, "neodisk" for Flush.
func (r *Recorder) ObserveAppend(component string, seconds float64) {
	if r == nil {
		return
	}
	r.appendLatency.WithLabelValues(component).Observe(seconds)
}

// ObserveRead records the latency of one read against component
// ("isocore", "corelog", "neodisk").
func (r *Recorder) ObserveRead(component string, seconds float64) {
	if r == nil {
		return
	}
	r.readLatency.WithLabelValues(component).Observe(seconds)
}

// IncFrameFlush records one frame flush.
func (r *Recorder) IncFrameFlush() {
	if r == nil {
		return
	}
	r.frameFlushes.Inc()
}

// AddBytesCompressed adds n bytes to the cumulative compressed-bytes
// counter.
func (r *Recorder) AddBytesCompressed(n int) {
	if r == nil {
		return
	}
	r.bytesCompressed.Add(float64(n))
}

// IncVerifyFailure records one integrity or signature verification
// failure.
func (r *Recorder) IncVerifyFailure() {
	if r == nil {
		return
	}
	r.verifyFailures.Inc()
}
