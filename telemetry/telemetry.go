// Package telemetry wires OpenTelemetry tracing and metrics through the
// memory engine. All recording is optional: a nil *Telemetry (or one built
// without providers) is safe to call and does nothing, so instrumentation
// never gates the hot path.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// instruments holds the metric instruments, created once at construction
// and reused for every recording.
type instruments struct {
	// ingestCounter counts note ingestions, split by whether the note was
	// new or deduplicated.
	ingestCounter metric.Int64Counter

	// linkAccepted counts edges written by link discovery, by relation.
	linkAccepted metric.Int64Counter

	// linkRejected counts classification decisions that produced no edge,
	// by reason.
	linkRejected metric.Int64Counter

	// searchDuration records hybrid retrieval latency in milliseconds.
	searchDuration metric.Float64Histogram

	// reasonSearches records memory searches issued per reasoning session.
	reasonSearches metric.Int64Histogram

	// tokenOverhead counts tokens spent injecting search results into
	// reasoning sessions.
	tokenOverhead metric.Int64Counter
}

// Telemetry carries the tracer and metric instruments used across the
// engine.
type Telemetry struct {
	tracer  trace.Tracer
	metrics *instruments
}

// New builds a Telemetry from the given providers. Either provider may be
// nil, which disables that signal.
func New(tp trace.TracerProvider, mp metric.MeterProvider) (*Telemetry, error) {
	t := &Telemetry{}

	if tp != nil {
		t.tracer = tp.Tracer("github.com/zero-day-ai/engram")
	}

	if mp != nil {
		meter := mp.Meter("github.com/zero-day-ai/engram")
		m := &instruments{}
		var err error

		m.ingestCounter, err = meter.Int64Counter(
			"engram.ingest.count",
			metric.WithDescription("Notes ingested, by dedup outcome"),
			metric.WithUnit("1"),
		)
		if err != nil {
			return nil, fmt.Errorf("create ingest counter: %w", err)
		}

		m.linkAccepted, err = meter.Int64Counter(
			"engram.link.accepted",
			metric.WithDescription("Edges accepted by link discovery"),
			metric.WithUnit("1"),
		)
		if err != nil {
			return nil, fmt.Errorf("create link accepted counter: %w", err)
		}

		m.linkRejected, err = meter.Int64Counter(
			"engram.link.rejected",
			metric.WithDescription("Candidate pairs that produced no edge"),
			metric.WithUnit("1"),
		)
		if err != nil {
			return nil, fmt.Errorf("create link rejected counter: %w", err)
		}

		m.searchDuration, err = meter.Float64Histogram(
			"engram.search.duration",
			metric.WithDescription("Hybrid retrieval duration in milliseconds"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			return nil, fmt.Errorf("create search duration histogram: %w", err)
		}

		m.reasonSearches, err = meter.Int64Histogram(
			"engram.reason.searches",
			metric.WithDescription("Memory searches issued per reasoning session"),
			metric.WithUnit("1"),
		)
		if err != nil {
			return nil, fmt.Errorf("create reason searches histogram: %w", err)
		}

		m.tokenOverhead, err = meter.Int64Counter(
			"engram.reason.token_overhead",
			metric.WithDescription("Tokens spent injecting search results into reasoning"),
			metric.WithUnit("1"),
		)
		if err != nil {
			return nil, fmt.Errorf("create token overhead counter: %w", err)
		}

		t.metrics = m
	}

	return t, nil
}

// StartSpan begins a span when tracing is configured. Without a tracer it
// returns the span already on the context, which is a no-op span when none
// exists, so callers can always defer span.End().
func (t *Telemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	ctx, span := t.tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// RecordIngest counts one ingestion. existed marks deduplicated notes.
func (t *Telemetry) RecordIngest(ctx context.Context, existed bool) {
	if t == nil || t.metrics == nil {
		return
	}
	outcome := "stored"
	if existed {
		outcome = "deduplicated"
	}
	t.metrics.ingestCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordLinkAccepted counts one accepted edge.
func (t *Telemetry) RecordLinkAccepted(ctx context.Context, relation string) {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.linkAccepted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("relation", relation),
	))
}

// RecordLinkRejected counts one candidate pair that produced no edge.
func (t *Telemetry) RecordLinkRejected(ctx context.Context, reason string) {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.linkRejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordSearchDuration records one hybrid retrieval.
func (t *Telemetry) RecordSearchDuration(ctx context.Context, d time.Duration, depth int) {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.searchDuration.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(
		attribute.Int("link_depth", depth),
	))
}

// RecordReasonSearches records how many searches a reasoning session used.
func (t *Telemetry) RecordReasonSearches(ctx context.Context, n int) {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.reasonSearches.Record(ctx, int64(n))
}

// RecordTokenOverhead counts tokens spent on injected search results.
func (t *Telemetry) RecordTokenOverhead(ctx context.Context, tokens int) {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.tokenOverhead.Add(ctx, int64(tokens))
}
