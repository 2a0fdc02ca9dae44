package history

import (
	"context"
	"time"
)

// OpRecorder 接收存储操作的耗时与结果，由 metrics.Collector 实现
type OpRecorder interface {
	RecordHistoryOp(backend, operation string, err error, duration time.Duration)
}

// instrumented 为每次操作记录指标
type instrumented struct {
	Store
	backend string
	metrics OpRecorder
}

// Instrument 用指标记录包装 store。m 为 nil 时原样返回。
func Instrument(s Store, m OpRecorder) Store {
	if s == nil || m == nil {
		return s
	}
	return &instrumented{Store: s, backend: BackendName(s), metrics: m}
}

func (i *instrumented) Backend() string { return i.backend }

func (i *instrumented) Save(ctx context.Context, rec Record) (Record, error) {
	start := time.Now()
	out, err := i.Store.Save(ctx, rec)
	i.metrics.RecordHistoryOp(i.backend, "save", err, time.Since(start))
	return out, err
}

func (i *instrumented) History(ctx context.Context, limit int) ([]Record, error) {
	start := time.Now()
	out, err := i.Store.History(ctx, limit)
	i.metrics.RecordHistoryOp(i.backend, "history", err, time.Since(start))
	return out, err
}

func (i *instrumented) Clear(ctx context.Context) error {
	start := time.Now()
	err := i.Store.Clear(ctx)
	i.metrics.RecordHistoryOp(i.backend, "clear", err, time.Since(start))
	return err
}
