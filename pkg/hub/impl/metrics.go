package impl

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument"

	"github.com/fargraph/go-fargraph/pkg/metrics"
)

type clientMetrics struct {
	baseLabels []attribute.KeyValue
	mRequests  instrument.Int64Counter
	mRotations instrument.Int64Counter
}

func (c *Client) initMetrics() error {
	meter := global.MeterProvider().Meter("fargraph")

	c.metrics.baseLabels = metrics.BaseAttrs

	var err error
	c.metrics.mRequests, err = meter.Int64Counter("fargraph.hub.requests.count")
	if err != nil {
		return fmt.Errorf("creating requests counter: %s", err)
	}
	c.metrics.mRotations, err = meter.Int64Counter("fargraph.hub.rotations.count")
	if err != nil {
		return fmt.Errorf("creating rotations counter: %s", err)
	}

	return nil
}

func (m *clientMetrics) request(ctx context.Context, endpoint string, status int) {
	attrs := append([]attribute.KeyValue{
		attribute.String("endpoint", endpoint),
		attribute.Int("status", status),
	}, m.baseLabels...)
	m.mRequests.Add(ctx, 1, attrs...)
}

func (m *clientMetrics) rotation(ctx context.Context, endpoint string) {
	attrs := append([]attribute.KeyValue{attribute.String("endpoint", endpoint)}, m.baseLabels...)
	m.mRotations.Add(ctx, 1, attrs...)
}
