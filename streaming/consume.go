package streaming

import (
	"context"
	"errors"
	"io"

	"github.com/BaSui01/naya/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🔄 解码 → 提取 → 重组 管线
// =============================================================================

const defaultReadSize = 4096

// Stats 一次回合的解析统计
type Stats struct {
	Bytes     int64
	Frames    int
	Fragments int
	Skipped   int
	PutBacks  int
	SawDone   bool
}

type consumeOptions struct {
	readSize int
	logger   *zap.Logger
	onStats  func(Stats)
}

// ConsumeOption 配置 Consume
type ConsumeOption func(*consumeOptions)

// WithReadSize 设置单次读取的缓冲区大小
func WithReadSize(n int) ConsumeOption {
	return func(o *consumeOptions) {
		if n > 0 {
			o.readSize = n
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *zap.Logger) ConsumeOption {
	return func(o *consumeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStatsHook 在回合结束时回调统计信息（无论成功与否）
func WithStatsHook(fn func(Stats)) ConsumeOption {
	return func(o *consumeOptions) {
		o.onStats = fn
	}
}

// Consume 读取 body 直到 [DONE] 或传输结束，把片段交给 r，返回最终内容。
//
// 读取失败时调用 r.Fail 并返回 STREAM_ABORTED 错误；ctx 取消时调用 r.Cancel
// 并返回 ctx.Err()。body 由调用方关闭。
func Consume(ctx context.Context, body io.Reader, r *Reassembler, opts ...ConsumeOption) (content string, err error) {
	o := consumeOptions{readSize: defaultReadSize, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	var stats Stats
	if o.onStats != nil {
		defer func() { o.onStats(stats) }()
	}

	dec := NewDecoder()
	buf := make([]byte, o.readSize)
	r.Begin()

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.Cancel()
			return "", ctxErr
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			stats.Bytes += int64(n)
			dec.Write(buf[:n])
			if drain(dec, r, &stats, o.logger) {
				stats.SawDone = true
				return r.Finish(), nil
			}
		}

		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.Cancel()
			return "", ctxErr
		}
		r.Fail()
		return "", types.NewError(types.ErrStreamAborted, "stream read failed").
			WithCause(readErr).
			WithRetryable(true)
	}

	// 传输正常结束：按相同规则重扫残余缓冲区
	for _, f := range dec.Flush() {
		stats.Frames++
		if f.Done {
			stats.SawDone = true
			break
		}
		d := Extract(f.Payload)
		switch d.Kind {
		case DeltaComplete:
			stats.Fragments++
			_ = r.Apply(d.Fragment)
		case DeltaIncomplete, DeltaMalformed:
			stats.Skipped++
			o.logger.Debug("dropping unparsable trailing frame",
				zap.String("kind", d.Kind.String()),
				zap.Int("payload_len", len(f.Payload)))
		}
	}

	return r.Finish(), nil
}

// drain 处理缓冲区中的完整帧，遇到 [DONE] 返回 true
func drain(dec *Decoder, r *Reassembler, stats *Stats, logger *zap.Logger) bool {
	for {
		f, ok := dec.Next()
		if !ok {
			return false
		}
		if f.Done {
			stats.Frames++
			return true
		}

		d := Extract(f.Payload)
		if d.Kind == DeltaIncomplete && dec.Hold(f) {
			stats.PutBacks++
			return false
		}

		stats.Frames++
		switch d.Kind {
		case DeltaComplete:
			stats.Fragments++
			_ = r.Apply(d.Fragment)
		case DeltaMalformed, DeltaIncomplete:
			stats.Skipped++
			logger.Debug("skipping malformed frame",
				zap.String("kind", d.Kind.String()), zap.Error(d.Err))
		}
	}
}
