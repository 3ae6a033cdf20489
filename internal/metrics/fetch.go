package metrics

import "github.com/prometheus/client_golang/prometheus"

// Content fetcher Prometheus metrics.
var (
	FetchDownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "somnia",
			Name:      "fetch_downloads_total",
			Help:      "Total number of corpus file downloads",
		},
		[]string{"corpus"},
	)

	FetchCacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "somnia",
			Name:      "fetch_cache_hits_total",
			Help:      "Total number of fetches served from the local cache",
		},
		[]string{"corpus"},
	)

	FetchDownloadBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "somnia",
			Name:      "fetch_download_bytes_total",
			Help:      "Total bytes downloaded from upstream archives",
		},
	)

	FetchIntegrityFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "somnia",
			Name:      "fetch_integrity_failures_total",
			Help:      "Total downloads rejected for a content-hash mismatch",
		},
		[]string{"corpus"},
	)
)

var fetchMetricsRegistered bool

// RegisterFetchMetrics registers the fetcher metrics. Must be called once from main.
func RegisterFetchMetrics() {
	if fetchMetricsRegistered {
		return
	}
	prometheus.MustRegister(FetchDownloadsTotal)
	prometheus.MustRegister(FetchCacheHitsTotal)
	prometheus.MustRegister(FetchDownloadBytesTotal)
	prometheus.MustRegister(FetchIntegrityFailuresTotal)
	fetchMetricsRegistered = true
}
