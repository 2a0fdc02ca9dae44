package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool queue is full")
)

// Task 一个后台任务，ctx 带有 TaskTimeout
type Task func(ctx context.Context) error

// Config 队列配置
type Config struct {
	Name        string        `json:"name"`
	Workers     int           `json:"workers"`
	QueueSize   int           `json:"queue_size"`
	TaskTimeout time.Duration `json:"task_timeout"`
	Logger      *zap.Logger   `json:"-"`
}

// DefaultConfig 单 worker 的串行队列
func DefaultConfig() Config {
	return Config{
		Name:        "default",
		Workers:     1,
		QueueSize:   8,
		TaskTimeout: 2 * time.Minute,
	}
}

// Pool 有界任务队列。worker 在第一次提交时启动。
type Pool struct {
	name    string
	workers int
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex // 保护 closed 与向 tasks 发送
	closed bool
	tasks  chan Task
	start  sync.Once
	wg     sync.WaitGroup

	active    atomic.Int32
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// New 创建队列，非法的字段回退到 DefaultConfig
func New(cfg Config) *Pool {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Pool{
		name:    cfg.Name,
		workers: cfg.Workers,
		timeout: cfg.TaskTimeout,
		logger:  cfg.Logger.With(zap.String("pool", cfg.Name)),
		tasks:   make(chan Task, cfg.QueueSize),
	}
}

// Submit 非阻塞提交
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.start.Do(p.spawn)
	select {
	case p.tasks <- task:
		p.submitted.Add(1)
		return nil
	default:
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

func (p *Pool) spawn() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.active.Add(1)
		err := p.execute(task)
		p.active.Add(-1)

		if err != nil {
			p.failed.Add(1)
			p.logger.Warn("pool task failed", zap.Error(err))
		} else {
			p.completed.Add(1)
		}
	}
}

func (p *Pool) execute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return task(ctx)
}

// Close 停止接收任务并等待队列排空，可重复调用
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats 返回队列统计
func (p *Pool) Stats() Stats {
	return Stats{
		Active:    int(p.active.Load()),
		Queued:    len(p.tasks),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// Stats 队列统计
type Stats struct {
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}
