package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 👀 人设文件监听
// =============================================================================
// 人设文件通常挂在 ConfigMap 或共享卷上，inotify 不可靠，所以按间隔
// 比较 mtime 和大小。同一路径在防抖窗口内的多次变化只回调最后一次。

// FileOp 文件变化类型
type FileOp int

const (
	FileOpCreate FileOp = iota
	FileOpWrite
	FileOpRemove
)

var fileOpNames = [...]string{"CREATE", "WRITE", "REMOVE"}

func (op FileOp) String() string {
	if op < 0 || int(op) >= len(fileOpNames) {
		return "UNKNOWN"
	}
	return fileOpNames[op]
}

// FileEvent 一次检测到的变化
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

type fileStamp struct {
	modTime time.Time
	size    int64
}

// FileWatcher 轮询式文件监听器
type FileWatcher struct {
	paths         []string
	debounceDelay time.Duration
	pollInterval  time.Duration
	logger        *zap.Logger

	// events 汇入 pending 的变化，轮询结果和测试注入都走这里
	events chan FileEvent

	mu        sync.RWMutex
	callbacks []func(FileEvent)
	running   bool
	done      chan struct{}

	// 仅由 run 访问
	seen map[string]fileStamp
}

// WatcherOption FileWatcher 选项
type WatcherOption func(*FileWatcher)

// WithDebounceDelay 合并窗口
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) { w.debounceDelay = d }
}

// WithPollInterval 检查间隔，<=0 时保持默认
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewFileWatcher 不存在的路径只告警，文件出现后产生 CREATE
func NewFileWatcher(paths []string, opts ...WatcherOption) (*FileWatcher, error) {
	w := &FileWatcher{
		paths:         append([]string(nil), paths...),
		debounceDelay: 100 * time.Millisecond,
		pollInterval:  time.Second,
		logger:        zap.NewNop(),
		events:        make(chan FileEvent, 64),
		seen:          make(map[string]fileStamp, len(paths)),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, p := range w.paths {
		_, err := os.Stat(p)
		switch {
		case err == nil:
		case errors.Is(err, os.ErrNotExist):
			w.logger.Warn("watched file does not exist yet", zap.String("path", p))
		default:
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
	}
	return w, nil
}

// OnChange 注册回调，回调在监听 goroutine 中串行执行
func (w *FileWatcher) OnChange(cb func(FileEvent)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, cb)
	w.mu.Unlock()
}

// Start 启动监听，ctx 取消或 Stop 后退出
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("watcher already running")
	}
	w.running = true
	w.done = make(chan struct{})

	for _, p := range w.paths {
		if st, ok := stampOf(p); ok {
			w.seen[p] = st
		}
	}
	go w.run(ctx, w.done)

	w.logger.Info("file watcher started",
		zap.Strings("paths", w.paths),
		zap.Duration("poll_interval", w.pollInterval),
		zap.Duration("debounce_delay", w.debounceDelay))
	return nil
}

// Stop 幂等
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	close(w.done)
	w.running = false
	w.logger.Info("file watcher stopped")
	return nil
}

func (w *FileWatcher) Paths() []string {
	return append([]string(nil), w.paths...)
}

func (w *FileWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *FileWatcher) run(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	debounce := time.NewTimer(w.debounceDelay)
	debounce.Stop()
	defer debounce.Stop()

	pending := make(map[string]FileEvent)
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			for _, ev := range w.poll() {
				pending[ev.Path] = ev
			}
			if len(pending) > 0 {
				debounce.Reset(w.debounceDelay)
			}
		case ev := <-w.events:
			pending[ev.Path] = ev
			debounce.Reset(w.debounceDelay)
		case <-debounce.C:
			w.dispatch(pending)
			clear(pending)
		}
	}
}

// poll 与上次状态对比
func (w *FileWatcher) poll() []FileEvent {
	now := time.Now()
	var out []FileEvent
	for _, p := range w.paths {
		st, exists := stampOf(p)
		prev, known := w.seen[p]
		var op FileOp
		switch {
		case !exists && known:
			delete(w.seen, p)
			op = FileOpRemove
		case exists && !known:
			w.seen[p] = st
			op = FileOpCreate
		case exists && st != prev:
			w.seen[p] = st
			op = FileOpWrite
		default:
			continue
		}
		out = append(out, FileEvent{Path: p, Op: op, Timestamp: now})
	}
	return out
}

func (w *FileWatcher) dispatch(pending map[string]FileEvent) {
	w.mu.RLock()
	cbs := append(([]func(FileEvent))(nil), w.callbacks...)
	w.mu.RUnlock()

	for _, ev := range pending {
		w.logger.Debug("file changed", zap.String("path", ev.Path), zap.Stringer("op", ev.Op))
		for _, cb := range cbs {
			cb(ev)
		}
	}
}

// stampOf 读取失败一律视为不存在
func stampOf(path string) (fileStamp, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, false
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size()}, true
}
