package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/naya/config"
	glebarez "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	cgosqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrPoolClosed Close 之后的 Ping
var ErrPoolClosed = errors.New("database: pool is closed")

const pingTimeout = 5 * time.Second

// =============================================================================
// ⚙️ 连接池配置
// =============================================================================

// PoolConfig 连接池参数，HealthCheckInterval 为 0 时不探活
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns        int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime     time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultPoolConfig 聊天历史写入量很小，25 个连接足够
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        5,
		MaxOpenConns:        25,
		ConnMaxLifetime:     5 * time.Minute,
		ConnMaxIdleTime:     time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// PoolConfigFrom 只覆盖 database.* 中显式设置的项
func PoolConfigFrom(cfg config.DatabaseConfig) PoolConfig {
	pc := DefaultPoolConfig()
	pc.MaxOpenConns = positiveOr(cfg.MaxOpenConns, pc.MaxOpenConns)
	pc.MaxIdleConns = positiveOr(cfg.MaxIdleConns, pc.MaxIdleConns)
	pc.ConnMaxLifetime = positiveOr(cfg.ConnMaxLifetime, pc.ConnMaxLifetime)
	return pc
}

func positiveOr[T int | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}

func (c PoolConfig) Validate() error {
	switch {
	case c.MaxOpenConns <= 0:
		return fmt.Errorf("max_open_conns must be positive, got %d", c.MaxOpenConns)
	case c.MaxIdleConns <= 0:
		return fmt.Errorf("max_idle_conns must be positive, got %d", c.MaxIdleConns)
	case c.MaxIdleConns > c.MaxOpenConns:
		return fmt.Errorf("max_idle_conns (%d) exceeds max_open_conns (%d)", c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

func (c PoolConfig) apply(db *sql.DB) {
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetConnMaxLifetime(c.ConnMaxLifetime)
	db.SetConnMaxIdleTime(c.ConnMaxIdleTime)
}

// =============================================================================
// 🗄️ PoolManager
// =============================================================================

// PoolManager 持有 GORM 实例和底层 sql.DB，并负责后台探活
type PoolManager struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	config PoolConfig
	logger *zap.Logger
	report func(PoolStats)

	mu     sync.RWMutex
	closed bool
	stopHC context.CancelFunc
	hcDone chan struct{}
}

// PoolOption PoolManager 选项
type PoolOption func(*PoolManager)

// WithStatsReporter 每次探活成功后回调
func WithStatsReporter(fn func(PoolStats)) PoolOption {
	return func(pm *PoolManager) { pm.report = fn }
}

func NewPoolManager(db *gorm.DB, cfg PoolConfig, logger *zap.Logger, opts ...PoolOption) (*PoolManager, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	cfg.apply(sqlDB)

	pm := &PoolManager{
		db:     db,
		sqlDB:  sqlDB,
		config: cfg,
		logger: logger.With(zap.String("component", "db_pool")),
	}
	for _, opt := range opts {
		opt(pm)
	}

	if cfg.HealthCheckInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		pm.stopHC, pm.hcDone = cancel, make(chan struct{})
		go pm.probe(ctx)
	}

	pm.logger.Info("database pool initialized",
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Duration("conn_max_lifetime", cfg.ConnMaxLifetime))
	return pm, nil
}

// Dialector sqlite 走纯 Go 驱动，sqlite3 走 cgo 驱动
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	open, ok := map[string]func(string) gorm.Dialector{
		"postgres": postgres.Open,
		"mysql":    mysql.Open,
		"sqlite":   glebarez.Open,
		"sqlite3":  cgosqlite.Open,
	}[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	return open(dsn), nil
}

// Open 打开数据库并套上连接池管理；GORM 自身日志关闭，错误由调用方记录
func Open(cfg config.DatabaseConfig, logger *zap.Logger, opts ...PoolOption) (*PoolManager, error) {
	dialector, err := Dialector(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	pm, err := NewPoolManager(db, PoolConfigFrom(cfg), logger, opts...)
	if err != nil {
		if sqlDB, e := db.DB(); e == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	return pm, nil
}

func (pm *PoolManager) DB() *gorm.DB { return pm.db }

func (pm *PoolManager) Ping(ctx context.Context) error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	if pm.closed {
		return ErrPoolClosed
	}
	return pm.sqlDB.PingContext(ctx)
}

func (pm *PoolManager) Stats() sql.DBStats { return pm.sqlDB.Stats() }

// Close 幂等，先停探活再关连接
func (pm *PoolManager) Close() error {
	pm.mu.Lock()
	if pm.closed {
		pm.mu.Unlock()
		return nil
	}
	pm.closed = true
	pm.mu.Unlock()

	if pm.stopHC != nil {
		pm.stopHC()
		<-pm.hcDone
	}
	pm.logger.Info("closing database pool")
	return pm.sqlDB.Close()
}

func (pm *PoolManager) probe(ctx context.Context) {
	defer close(pm.hcDone)

	ticker := time.NewTicker(pm.config.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.probeOnce(ctx)
		}
	}
}

func (pm *PoolManager) probeOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := pm.Ping(ctx); err != nil {
		if !errors.Is(err, ErrPoolClosed) && ctx.Err() == nil {
			pm.logger.Error("database health check failed", zap.Error(err))
		}
		return
	}
	st := pm.GetStats()
	pm.logger.Debug("database health check passed",
		zap.Int("open_connections", st.OpenConnections),
		zap.Int("in_use", st.InUse),
		zap.Int("idle", st.Idle))
	if pm.report != nil {
		pm.report(st)
	}
}

// =============================================================================
// 📊 统计
// =============================================================================

// PoolStats sql.DBStats 的 JSON 友好版本
type PoolStats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
	MaxIdleClosed      int64         `json:"max_idle_closed"`
	MaxLifetimeClosed  int64         `json:"max_lifetime_closed"`
}

func (pm *PoolManager) GetStats() PoolStats {
	s := pm.Stats()
	return PoolStats{
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
		WaitDuration:       s.WaitDuration,
		MaxIdleClosed:      s.MaxIdleClosed,
		MaxLifetimeClosed:  s.MaxLifetimeClosed,
	}
}
