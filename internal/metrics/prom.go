package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "docling_gateway_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "gateway"},
		},
		[]string{"date", "sha", "version"},
	)

	readyFn atomic.Pointer[func() bool]

	modelReady = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "docling_gateway_model_ready",
			Help: "Whether all model artifacts are present (1) or not (0)",
		},
		func() float64 {
			if fn := readyFn.Load(); fn != nil {
				return boolToFloat((*fn)())
			}
			return 0
		},
	)

	modelLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docling_gateway_model_loaded",
			Help: "Whether the conversion engine is loaded (1) or not (0)",
		},
	)

	engineInits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docling_gateway_engine_init_total",
			Help: "Engine initialization attempts by outcome",
		},
		[]string{"outcome"},
	)

	conversions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docling_gateway_conversions_total",
			Help: "Conversion requests by outcome",
		},
		[]string{"outcome"},
	)

	conversionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docling_gateway_conversion_duration_seconds",
			Help:    "Time spent in the conversion engine",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	uploadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docling_gateway_upload_bytes_total",
			Help: "Bytes received for conversion",
		},
	)

	inflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docling_gateway_conversions_in_flight",
			Help: "Conversions currently running",
		},
	)
)

// Conversion outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeUnavailable = "unavailable"
	OutcomeBadRequest  = "bad_request"
	OutcomeDemo        = "demo"
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, modelReady, modelLoaded, engineInits, conversions, conversionDuration, uploadBytes, inflight)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// WatchModelReady makes the readiness gauge evaluate fn at scrape time.
func WatchModelReady(fn func() bool) { readyFn.Store(&fn) }

// SetModelLoaded records whether the engine is loaded.
func SetModelLoaded(v bool) { modelLoaded.Set(boolToFloat(v)) }

// RecordEngineInit counts an initialization attempt.
func RecordEngineInit(success bool) {
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeError
	}
	engineInits.WithLabelValues(outcome).Inc()
}

// RecordConversion counts a conversion request with the given outcome.
func RecordConversion(outcome string) {
	conversions.WithLabelValues(outcome).Inc()
}

// ObserveConversion records the engine time of one conversion.
func ObserveConversion(d time.Duration) {
	conversionDuration.Observe(d.Seconds())
}

// AddUploadBytes accounts received upload bytes.
func AddUploadBytes(n int) {
	uploadBytes.Add(float64(n))
}

// ConversionStarted and ConversionDone track in-flight conversions.
func ConversionStarted() { inflight.Inc() }

func ConversionDone() { inflight.Dec() }

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
