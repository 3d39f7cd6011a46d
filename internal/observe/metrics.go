// Package observe provides the bot's observability primitives: OpenTelemetry
// metrics, tracing, trace-aware structured logging, and HTTP middleware that
// ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus via [InitProvider]. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all bot metrics.
const meterName = "github.com/MrWong99/mikubot"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// ── Reply generation ──

	// BackendRequests counts replies produced per backend. Attributes:
	//   backend, status ("ok" | "failed")
	BackendRequests metric.Int64Counter

	// BackendDuration tracks reply generation latency per backend.
	BackendDuration metric.Float64Histogram

	// DelegateFailures counts delegate failures. Attribute: kind
	// ("timeout" | "transport" | "malformed").
	DelegateFailures metric.Int64Counter

	// Intents counts classified intents. Attribute: intent.
	Intents metric.Int64Counter

	// WarmthTier records the warmth tier each rule-based reply used.
	WarmthTier metric.Int64Histogram

	// MediaCategories counts detected emotion categories. Attribute: category.
	MediaCategories metric.Int64Counter

	// ── Chat flow ──

	// StickersSent counts stickers attached to replies.
	StickersSent metric.Int64Counter

	// RateLimited counts messages rejected by the per-user rate limit.
	RateLimited metric.Int64Counter

	// BlockedMessages counts messages from blocked users.
	BlockedMessages metric.Int64Counter

	// Commands counts chat commands. Attributes: command, status.
	Commands metric.Int64Counter

	// ActiveUsers is the number of users the warmth tracker currently holds.
	ActiveUsers metric.Int64Gauge

	// ── HTTP middleware ──

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	//   method, path
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries in seconds. Local
// replies land in the first buckets; delegate calls may take up to the 30s
// timeout.
var latencyBuckets = []float64{
	0.001, 0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.BackendRequests, err = m.Int64Counter("mikubot.backend.requests",
		metric.WithDescription("Replies generated by backend and status."),
	); err != nil {
		return nil, err
	}
	if met.BackendDuration, err = m.Float64Histogram("mikubot.backend.duration",
		metric.WithDescription("Latency of reply generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DelegateFailures, err = m.Int64Counter("mikubot.delegate.failures",
		metric.WithDescription("Delegate backend failures by kind."),
	); err != nil {
		return nil, err
	}
	if met.Intents, err = m.Int64Counter("mikubot.intents",
		metric.WithDescription("Classified intents."),
	); err != nil {
		return nil, err
	}
	if met.WarmthTier, err = m.Int64Histogram("mikubot.warmth.tier",
		metric.WithDescription("Warmth tier used for rule-based replies."),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3),
	); err != nil {
		return nil, err
	}
	if met.MediaCategories, err = m.Int64Counter("mikubot.media.categories",
		metric.WithDescription("Detected emotion categories."),
	); err != nil {
		return nil, err
	}

	if met.StickersSent, err = m.Int64Counter("mikubot.stickers.sent",
		metric.WithDescription("Stickers attached to replies."),
	); err != nil {
		return nil, err
	}
	if met.RateLimited, err = m.Int64Counter("mikubot.messages.rate_limited",
		metric.WithDescription("Messages rejected by the rate limit."),
	); err != nil {
		return nil, err
	}
	if met.BlockedMessages, err = m.Int64Counter("mikubot.messages.blocked",
		metric.WithDescription("Messages from blocked users."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("mikubot.commands",
		metric.WithDescription("Chat commands by name and status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveUsers, err = m.Int64Gauge("mikubot.active_users",
		metric.WithDescription("Users tracked by the warmth tracker."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("mikubot.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordBackend records one generated reply and its latency in seconds.
func (m *Metrics) RecordBackend(ctx context.Context, backend string, failed bool, seconds float64) {
	status := "ok"
	if failed {
		status = "failed"
	}
	m.BackendRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("status", status),
	))
	m.BackendDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("backend", backend)))
}

// RecordDelegateFailure counts a delegate failure of the given kind.
func (m *Metrics) RecordDelegateFailure(ctx context.Context, kind string) {
	m.DelegateFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordIntent counts a classified intent and the tier its reply used.
func (m *Metrics) RecordIntent(ctx context.Context, intent string, tier int) {
	m.Intents.Add(ctx, 1, metric.WithAttributes(attribute.String("intent", intent)))
	if tier >= 0 {
		m.WarmthTier.Record(ctx, int64(tier))
	}
}

// RecordCategory counts a detected emotion category.
func (m *Metrics) RecordCategory(ctx context.Context, category string) {
	m.MediaCategories.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
}

// RecordCommand counts a chat command with its outcome.
func (m *Metrics) RecordCommand(ctx context.Context, command, status string) {
	m.Commands.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("status", status),
	))
}
