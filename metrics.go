package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mjl-/regdomain/metrics"
	"github.com/mjl-/regdomain/orgdomain"
	"github.com/mjl-/regdomain/pslfetch"
	"github.com/mjl-/regdomain/pslupdate"
)

func init() {
	orgdomain.MetricLookup = counterVec{promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regdomain_orgdomain_lookup_total",
			Help: "Registrable domain lookups by result.",
		},
		[]string{
			"result", // ok, notregistrable, empty, noindex
		},
	)}

	pslfetch.MetricFetch = histogramVec{promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "regdomain_pslfetch_duration_seconds",
			Help:    "Fetch of public suffix list, duration and result.",
			Buckets: []float64{0.01, 0.05, 0.100, 0.5, 1, 5, 10, 20, 30, 60},
		},
		[]string{
			"result", // ok, toolarge, error
		},
	)}
	pslfetch.HTTPClientObserve = metrics.HTTPClientObserve

	pslupdate.MetricRefresh = counterVec{promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regdomain_pslupdate_refresh_total",
			Help: "Refreshes of the public suffix list by result.",
		},
		[]string{
			"result", // ok, unchanged, shrunk, error
		},
	)}
	pslupdate.MetricRules = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "regdomain_pslupdate_rules",
			Help: "Number of rules in the public suffix list index in use.",
		},
	)
	pslupdate.MetricFetched = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "regdomain_pslupdate_fetched_timestamp_seconds",
			Help: "Time the public suffix list in use was last fetched, as unix timestamp.",
		},
	)
}

type counterVec struct {
	*prometheus.CounterVec
}

func (m counterVec) IncLabels(labels ...string) {
	m.CounterVec.WithLabelValues(labels...).Inc()
}

type histogramVec struct {
	*prometheus.HistogramVec
}

func (m histogramVec) ObserveLabels(v float64, labels ...string) {
	m.HistogramVec.WithLabelValues(labels...).Observe(v)
}
