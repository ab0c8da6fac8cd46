package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service's prometheus collectors.
type Metrics struct {
	DownloadsStarted   prometheus.Counter
	DownloadsCompleted prometheus.Counter
	DownloadsFailed    prometheus.Counter
	BytesDelivered     prometheus.Counter
}

// New registers the download pipeline collectors on the provided registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DownloadsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tubefetch_downloads_started_total",
			Help: "Download requests dispatched to the fetch pool.",
		}),
		DownloadsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tubefetch_downloads_completed_total",
			Help: "Download requests that ended in the completed status.",
		}),
		DownloadsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tubefetch_downloads_failed_total",
			Help: "Download requests that ended in the failed status.",
		}),
		BytesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tubefetch_bytes_delivered_total",
			Help: "Total size of files delivered back to users.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.DownloadsStarted, m.DownloadsCompleted, m.DownloadsFailed, m.BytesDelivered)
	}

	return m
}
