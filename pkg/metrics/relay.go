package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RelayMetrics records inbound authentication outcomes and outbound relayed calls.
type RelayMetrics interface {
	RecordAuthentication(ctx context.Context, result string)
	RecordOutbound(ctx context.Context, upstream string, relayed bool, status int, duration time.Duration)
}

type relayMetrics struct {
	authCounter     metric.Int64Counter
	outboundCounter metric.Int64Counter
	outboundHisto   metric.Float64Histogram
}

// NewRelayMetrics creates instruments prefixed with namespace.
func NewRelayMetrics(meterProvider metric.MeterProvider, namespace string) (RelayMetrics, error) {
	meter := meterProvider.Meter(namespace)

	authCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_authentications_total", namespace),
		metric.WithDescription("Inbound authentication attempts by result"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authentication counter: %w", err)
	}

	outboundCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_outbound_requests_total", namespace),
		metric.WithDescription("Outbound requests to upstream services"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create outbound counter: %w", err)
	}

	outboundHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_outbound_request_duration_seconds", namespace),
		metric.WithDescription("Duration of outbound requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create outbound histogram: %w", err)
	}

	return &relayMetrics{
		authCounter:     authCounter,
		outboundCounter: outboundCounter,
		outboundHisto:   outboundHisto,
	}, nil
}

func (m *relayMetrics) RecordAuthentication(ctx context.Context, result string) {
	m.authCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *relayMetrics) RecordOutbound(
	ctx context.Context,
	upstream string,
	relayed bool,
	status int,
	duration time.Duration,
) {
	attrs := metric.WithAttributes(
		attribute.String("upstream", upstream),
		attribute.Bool("relayed", relayed),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.outboundCounter.Add(ctx, 1, attrs)
	m.outboundHisto.Record(ctx, duration.Seconds(), attrs)
}

type noopRelayMetrics struct{}

// NewNoOpRelayMetrics is used when metrics are disabled.
func NewNoOpRelayMetrics() RelayMetrics {
	return noopRelayMetrics{}
}

func (noopRelayMetrics) RecordAuthentication(context.Context, string) {}

func (noopRelayMetrics) RecordOutbound(context.Context, string, bool, int, time.Duration) {}
