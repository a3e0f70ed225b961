package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricPanic = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "regdomain_panic_total",
		Help: "Number of unhandled panics, by package.",
	},
	[]string{
		"pkg",
	},
)

type Panic string

const (
	Pslupdate Panic = "pslupdate"
	Webapi    Panic = "webapi"
	Serve     Panic = "serve"
)

func init() {
	// Make sure the panic counts are initialized to 0, so they show up in metrics.
	for _, p := range []Panic{Pslupdate, Webapi, Serve} {
		metricPanic.WithLabelValues(string(p)).Add(0)
	}
}

func PanicInc(name Panic) {
	metricPanic.WithLabelValues(string(name)).Inc()
}
