package internaltelemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// IndexMetrics holds all the metric instruments for the name index.
type IndexMetrics struct {
	InsertsCounter         metric.Int64Counter
	DeletesCounter         metric.Int64Counter
	LookupsCounter         metric.Int64Counter
	PageSplitsCounter      metric.Int64Counter
	PageMergesCounter      metric.Int64Counter
	RedistributionsCounter metric.Int64Counter
	CorruptPagesCounter    metric.Int64Counter
	LookupLatencyHistogram metric.Int64Histogram
}

// NewIndexMetrics creates and registers all the metrics for the name index.
func NewIndexMetrics(meter metric.Meter) (*IndexMetrics, error) {
	insertsCounter, err := meter.Int64Counter(
		"namedex.index.inserts_total",
		metric.WithDescription("Total number of entries inserted."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	deletesCounter, err := meter.Int64Counter(
		"namedex.index.deletes_total",
		metric.WithDescription("Total number of entries deleted."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	lookupsCounter, err := meter.Int64Counter(
		"namedex.index.lookups_total",
		metric.WithDescription("Total number of lookups served."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	pageSplitsCounter, err := meter.Int64Counter(
		"namedex.index.page_splits_total",
		metric.WithDescription("Total number of page splits."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	pageMergesCounter, err := meter.Int64Counter(
		"namedex.index.page_merges_total",
		metric.WithDescription("Total number of page merges."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	redistributionsCounter, err := meter.Int64Counter(
		"namedex.index.redistributions_total",
		metric.WithDescription("Total number of entry redistributions between sibling pages."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	corruptPagesCounter, err := meter.Int64Counter(
		"namedex.index.corrupt_pages_total",
		metric.WithDescription("Total number of corrupt page detections."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	lookupLatencyHistogram, err := meter.Int64Histogram(
		"namedex.index.lookup.duration",
		metric.WithDescription("The latency of lookups."),
		metric.WithUnit("us"),
	)
	if err != nil {
		return nil, err
	}

	return &IndexMetrics{
		InsertsCounter:         insertsCounter,
		DeletesCounter:         deletesCounter,
		LookupsCounter:         lookupsCounter,
		PageSplitsCounter:      pageSplitsCounter,
		PageMergesCounter:      pageMergesCounter,
		RedistributionsCounter: redistributionsCounter,
		CorruptPagesCounter:    corruptPagesCounter,
		LookupLatencyHistogram: lookupLatencyHistogram,
	}, nil
}

// The record helpers are nil-safe so callers constructed without telemetry
// need no conditionals.

func (m *IndexMetrics) RecordInsert() {
	if m != nil {
		m.InsertsCounter.Add(context.Background(), 1)
	}
}

func (m *IndexMetrics) RecordDelete() {
	if m != nil {
		m.DeletesCounter.Add(context.Background(), 1)
	}
}

func (m *IndexMetrics) RecordLookup(latencyMicros int64) {
	if m != nil {
		m.LookupsCounter.Add(context.Background(), 1)
		m.LookupLatencyHistogram.Record(context.Background(), latencyMicros)
	}
}

func (m *IndexMetrics) RecordPageSplit() {
	if m != nil {
		m.PageSplitsCounter.Add(context.Background(), 1)
	}
}

func (m *IndexMetrics) RecordPageMerge() {
	if m != nil {
		m.PageMergesCounter.Add(context.Background(), 1)
	}
}

func (m *IndexMetrics) RecordRedistribution() {
	if m != nil {
		m.RedistributionsCounter.Add(context.Background(), 1)
	}
}

func (m *IndexMetrics) RecordCorruptPage() {
	if m != nil {
		m.CorruptPagesCounter.Add(context.Background(), 1)
	}
}
