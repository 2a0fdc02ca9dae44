package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/BaSui01/naya/config"
	"github.com/BaSui01/naya/internal/migration"
	"go.uber.org/zap"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// errMigrateUsage 参数错误，已打印用法
var errMigrateUsage = errors.New("invalid migrate arguments")

// migrateFlags migrate 子命令共用的参数
type migrateFlags struct {
	configPath string
	dbType     string
	dbURL      string
	all        bool
}

func newMigrateFlagSet(name string, f *migrateFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("migrate "+name, flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "Path to config file")
	fs.StringVar(&f.dbType, "db-type", "", "Database type (postgres, mysql, sqlite)")
	fs.StringVar(&f.dbURL, "db-url", "", "Database connection URL")
	if name == "down" {
		fs.BoolVar(&f.all, "all", false, "Rollback all migrations")
	}
	return fs
}

// runMigrate handles the migrate command and its subcommands
func runMigrate(ctx context.Context, args []string) error {
	return migrateCommand(ctx, args, os.Stdout, openMigrator)
}

// migratorOpener 便于测试替换
type migratorOpener func(f migrateFlags, logger *zap.Logger) (migration.Migrator, error)

func migrateCommand(ctx context.Context, args []string, out io.Writer, open migratorOpener) error {
	if len(args) < 1 {
		printMigrateUsage(out)
		return errMigrateUsage
	}

	subcommand, subargs := args[0], args[1:]
	if subcommand == "help" || subcommand == "-h" || subcommand == "--help" {
		printMigrateUsage(out)
		return nil
	}

	// goto / force / steps 的第一个参数是数字
	var number int64
	switch subcommand {
	case "goto", "force", "steps":
		if len(subargs) < 1 {
			fmt.Fprintf(out, "Usage: naya migrate %s <n>\n", subcommand)
			return errMigrateUsage
		}
		n, err := strconv.ParseInt(subargs[0], 10, 32)
		if err != nil || (subcommand == "goto" && n < 0) {
			return fmt.Errorf("invalid number: %s", subargs[0])
		}
		number, subargs = n, subargs[1:]
	case "up", "down", "status", "version", "reset", "info":
	default:
		printMigrateUsage(out)
		return fmt.Errorf("unknown migrate subcommand: %s", subcommand)
	}

	var f migrateFlags
	if err := newMigrateFlagSet(subcommand, &f).Parse(subargs); err != nil {
		return err
	}

	logger := zap.NewNop()
	migrator, err := open(f, logger)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	cli.SetOutput(out)

	switch subcommand {
	case "up":
		return cli.RunUp(ctx)
	case "down":
		if f.all {
			return cli.RunDownAll(ctx)
		}
		return cli.RunDown(ctx)
	case "reset":
		return cli.RunDownAll(ctx)
	case "steps":
		return cli.RunSteps(ctx, int(number))
	case "goto":
		return cli.RunGoto(ctx, uint(number))
	case "force":
		return cli.RunForce(ctx, int(number))
	case "status":
		return cli.RunStatus(ctx)
	case "info":
		return cli.RunInfo(ctx)
	default: // version
		return cli.RunVersion(ctx)
	}
}

// openMigrator 优先使用 --db-type/--db-url，否则从配置读取
func openMigrator(f migrateFlags, logger *zap.Logger) (migration.Migrator, error) {
	if f.dbType != "" && f.dbURL != "" {
		m, err := migration.NewMigratorFromURL(f.dbType, f.dbURL, logger)
		if err != nil {
			return nil, err
		}
		return m, nil
	}

	loader := config.NewLoader().WithEnvPrefix(EnvPrefix)
	if f.configPath != "" {
		loader = loader.WithConfigPath(f.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if f.dbType != "" {
		cfg.Database.Driver = f.dbType
	}
	m, err := migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage(w io.Writer) {
	fmt.Fprintln(w, `Database Migration Commands

Usage:
  naya migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration (--all to rollback everything)
  steps <n> Apply (n > 0) or rollback (n < 0) n migrations
  status    Show migration status
  info      Show detailed migration info
  version   Show current migration version
  goto <v>  Migrate to a specific version
  force <v> Force set migration version (use with caution)
  reset     Rollback all migrations
  help      Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  naya migrate up
  naya migrate up --db-type sqlite --db-url "file:naya.db?mode=rwc"
  naya migrate down --all
  naya migrate status
  naya migrate goto 1
  naya migrate force 0`)
}
