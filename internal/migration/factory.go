package migration

import (
	"errors"
	"fmt"

	"github.com/BaSui01/naya/config"
	"go.uber.org/zap"
)

// NewMigratorFromConfig 使用 cfg.Database
func NewMigratorFromConfig(cfg *config.Config, logger *zap.Logger) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	return NewMigratorFromDatabaseConfig(cfg.Database, logger)
}

// NewMigratorFromDatabaseConfig 由 history.backend=sql 的同一份数据库配置推导连接串
func NewMigratorFromDatabaseConfig(db config.DatabaseConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(db.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}
	return newDefaultMigrator(dt, databaseURL(dt, db), logger)
}

// NewMigratorFromURL 对应 `naya migrate --db-type --db-url`
func NewMigratorFromURL(dbType, dbURL string, logger *zap.Logger) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return newDefaultMigrator(dt, dbURL, logger)
}

func newDefaultMigrator(dt DatabaseType, url string, logger *zap.Logger) (*DefaultMigrator, error) {
	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  url,
		TableName:    DefaultTableName,
		Logger:       logger,
	})
}

// databaseURL sqlite 只用 Name（文件路径），mysql 不带 sslmode
func databaseURL(dt DatabaseType, db config.DatabaseConfig) string {
	switch dt {
	case DatabaseTypeSQLite:
		return BuildDatabaseURL(dt, "", 0, db.Name, "", "", "")
	case DatabaseTypeMySQL:
		return BuildDatabaseURL(dt, db.Host, db.Port, db.Name, db.User, db.Password, "")
	default:
		return BuildDatabaseURL(dt, db.Host, db.Port, db.Name, db.User, db.Password, db.SSLMode)
	}
}
