package stub

import (
	"context"
	"log/slog"
	"time"
)

// HTTPClientObserveIgnore is the default for the HTTPClientObserve hook of
// package pslfetch.
func HTTPClientObserveIgnore(ctx context.Context, log *slog.Logger, pkg, method string, statusCode int, err error, start time.Time) {
}

// CounterVec counts events by label values, e.g. lookup results.
type CounterVec interface {
	IncLabels(labels ...string)
}

type CounterVecIgnore struct{}

func (CounterVecIgnore) IncLabels(labels ...string) {}

// Gauge holds a current value, e.g. the number of rules in the index in use.
type Gauge interface {
	Set(float64)
}

type GaugeIgnore struct{}

func (GaugeIgnore) Set(float64) {}

// HistogramVec observes durations by label values.
type HistogramVec interface {
	ObserveLabels(v float64, labels ...string)
}

type HistogramVecIgnore struct{}

func (HistogramVecIgnore) ObserveLabels(v float64, labels ...string) {}
