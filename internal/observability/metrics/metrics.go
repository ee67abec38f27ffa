package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	// HTTPRequestDurationSeconds is the duration histogram with the service
	// label curried in. MustCurryWith returns an ObserverVec, so the curried
	// view lives apart from the registered *HistogramVec.
	HTTPRequestDurationSeconds prometheus.ObserverVec = httpRequestDuration

	LicensesIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drm_licenses_issued_total",
			Help: "Licenses created (idempotent repeats not counted).",
		},
	)

	LicenseValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drm_license_validations_total",
			Help: "License validation outcomes.",
		},
		[]string{"result"}, // valid | invalid | expired
	)

	DownloadsPackagedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drm_downloads_packaged_total",
			Help: "Encrypted offline downloads produced.",
		},
	)

	StreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drm_stream_requests_total",
			Help: "Protected stream outcomes.",
		},
		[]string{"result"}, // ok | unauthorized | bad_range
	)
)

func MustRegister(serviceName string) {
	HTTPRequestsTotal = HTTPRequestsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	HTTPRequestDurationSeconds = httpRequestDuration.MustCurryWith(prometheus.Labels{"service": serviceName})

	prometheus.MustRegister(
		HTTPRequestsTotal,
		httpRequestDuration,
		LicensesIssuedTotal,
		LicenseValidationsTotal,
		DownloadsPackagedTotal,
		StreamRequestsTotal,
	)
}
