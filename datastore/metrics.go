package datastore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchRequestsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timesketch_search_requests",
			Help: "Number of search requests per type (e.g. search or stream)",
		}, []string{"type"})

	searchFilterTypeCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timesketch_search_filter_type",
			Help: "Number of filters per type (e.g. term, label etc)",
		}, []string{"type"})

	searchFilterLabelCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timesketch_search_filter_label",
			Help: "Number of filters per label (e.g. __ts_star etc)",
		}, []string{"label"})

	importedEventsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "timesketch_imported_events_total",
			Help: "Total number of events queued for import",
		})

	bulkFlushErrorsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "timesketch_bulk_flush_errors_total",
			Help: "Number of bulk uploads that reported document errors",
		})
)

func metricFilterType(chip_type string) {
	searchFilterTypeCounter.WithLabelValues(chip_type).Inc()
}

func metricFilterLabel(label string) {
	searchFilterLabelCounter.WithLabelValues(label).Inc()
}
