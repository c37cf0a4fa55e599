package processor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument"

	"github.com/fargraph/go-fargraph/pkg/metrics"
)

type workerMetrics struct {
	baseLabels []attribute.KeyValue
	mProcessed instrument.Int64Counter
	mTargets   instrument.Int64Counter
}

func (w *Worker) initMetrics() error {
	meter := global.MeterProvider().Meter("fargraph")

	w.metrics.baseLabels = metrics.BaseAttrs

	var err error
	w.metrics.mProcessed, err = meter.Int64Counter("fargraph.processor.events.count")
	if err != nil {
		return fmt.Errorf("creating processed events counter: %s", err)
	}
	w.metrics.mTargets, err = meter.Int64Counter("fargraph.processor.targets_added.count")
	if err != nil {
		return fmt.Errorf("creating targets added counter: %s", err)
	}

	return nil
}

func (m *workerMetrics) processed(ctx context.Context, typ, result string) {
	if m.mProcessed == nil {
		return
	}
	attrs := append([]attribute.KeyValue{
		attribute.String("type", typ),
		attribute.String("result", result),
	}, m.baseLabels...)
	m.mProcessed.Add(ctx, 1, attrs...)
}

func (m *workerMetrics) targetAdded(ctx context.Context, isRoot bool) {
	if m.mTargets == nil {
		return
	}
	attrs := append([]attribute.KeyValue{attribute.Bool("is_root", isRoot)}, m.baseLabels...)
	m.mTargets.Add(ctx, 1, attrs...)
}
