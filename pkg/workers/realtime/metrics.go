package realtime

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"

	"github.com/fargraph/go-fargraph/pkg/metrics"
)

func (w *Worker) initMetrics() error {
	meter := global.MeterProvider().Meter("fargraph")

	mCursor, err := meter.Int64ObservableGauge("fargraph.realtime.cursor")
	if err != nil {
		return fmt.Errorf("creating cursor gauge: %s", err)
	}
	if _, err := meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		o.ObserveInt64(mCursor, int64(w.cursor.Load()), metrics.BaseAttrs...)
		return nil
	}, mCursor); err != nil {
		return fmt.Errorf("registering cursor callback: %s", err)
	}
	return nil
}
