package impl

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument"

	"github.com/fargraph/go-fargraph/pkg/metrics"
)

func (s *PgStore) initMetrics() error {
	meter := global.MeterProvider().Meter("fargraph")

	mTotalConns, err := meter.Int64ObservableGauge("fargraph.store.pool.total_conns")
	if err != nil {
		return fmt.Errorf("creating total conns gauge: %s", err)
	}
	mIdleConns, err := meter.Int64ObservableGauge("fargraph.store.pool.idle_conns")
	if err != nil {
		return fmt.Errorf("creating idle conns gauge: %s", err)
	}
	mAcquiredConns, err := meter.Int64ObservableGauge("fargraph.store.pool.acquired_conns")
	if err != nil {
		return fmt.Errorf("creating acquired conns gauge: %s", err)
	}
	mMaxConns, err := meter.Int64ObservableGauge("fargraph.store.pool.max_conns")
	if err != nil {
		return fmt.Errorf("creating max conns gauge: %s", err)
	}

	instruments := []instrument.Asynchronous{mTotalConns, mIdleConns, mAcquiredConns, mMaxConns}
	if _, err := meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		stat := s.pool.Stat()
		o.ObserveInt64(mTotalConns, int64(stat.TotalConns()), metrics.BaseAttrs...)
		o.ObserveInt64(mIdleConns, int64(stat.IdleConns()), metrics.BaseAttrs...)
		o.ObserveInt64(mAcquiredConns, int64(stat.AcquiredConns()), metrics.BaseAttrs...)
		o.ObserveInt64(mMaxConns, int64(stat.MaxConns()), metrics.BaseAttrs...)
		return nil
	}, instruments...); err != nil {
		return fmt.Errorf("registering pool stats callback: %s", err)
	}
	return nil
}
