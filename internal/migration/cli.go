package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// =============================================================================
// 🖥️ 迁移命令行输出
// =============================================================================

// CLI 在 Migrator 之上提供面向终端的格式化输出，供 `naya migrate` 使用
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI 创建 CLI，默认输出到 stdout
func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, output: os.Stdout}
}

// SetOutput 设置输出目标
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

func (c *CLI) printf(format string, args ...any) {
	fmt.Fprintf(c.output, format, args...)
}

// change 执行一次变更并打印变更后的版本
func (c *CLI) change(ctx context.Context, start, failed, done string, op func(context.Context) error) error {
	c.printf("%s\n", start)
	if err := op(ctx); err != nil {
		return fmt.Errorf("%s: %w", failed, err)
	}
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	c.printf("%s Current version: %d\n", done, info.CurrentVersion)
	return nil
}

// RunUp 应用所有待执行迁移
func (c *CLI) RunUp(ctx context.Context) error {
	return c.change(ctx, "Applying chat history migrations...", "migration failed",
		"Migrations complete.", c.migrator.Up)
}

// RunDown 回滚最近一个迁移
func (c *CLI) RunDown(ctx context.Context) error {
	return c.change(ctx, "Rolling back last migration...", "rollback failed",
		"Rollback complete.", c.migrator.Down)
}

// RunDownAll 回滚全部迁移（会删除 chat_history 表）
func (c *CLI) RunDownAll(ctx context.Context) error {
	c.printf("Rolling back all migrations...\n")
	if err := c.migrator.DownAll(ctx); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	c.printf("All migrations rolled back. chat_history has been dropped.\n")
	return nil
}

// RunSteps n>0 前进，n<0 回退
func (c *CLI) RunSteps(ctx context.Context, n int) error {
	if n == 0 {
		return errors.New("steps must not be zero")
	}
	start := fmt.Sprintf("Applying %d migration(s)...", n)
	if n < 0 {
		start = fmt.Sprintf("Rolling back %d migration(s)...", -n)
	}
	return c.change(ctx, start, "migration steps failed", "Complete.",
		func(ctx context.Context) error { return c.migrator.Steps(ctx, n) })
}

// RunGoto 迁移到指定版本
func (c *CLI) RunGoto(ctx context.Context, version uint) error {
	return c.change(ctx, fmt.Sprintf("Migrating to version %d...", version), "migration failed",
		"Migration complete.", func(ctx context.Context) error { return c.migrator.Goto(ctx, version) })
}

// RunForce 只改写版本号，用于修复 dirty 状态
func (c *CLI) RunForce(ctx context.Context, version int) error {
	c.printf("Forcing version to %d...\n", version)
	if err := c.migrator.Force(ctx, version); err != nil {
		return fmt.Errorf("force failed: %w", err)
	}
	c.printf("Version forced to %d\n", version)
	return nil
}

// RunVersion 打印当前版本
func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}
	switch {
	case version == 0:
		c.printf("No migrations applied yet.\n")
	case dirty:
		c.printf("Current version: %d (dirty)\n", version)
	default:
		c.printf("Current version: %d\n", version)
	}
	return nil
}

// RunStatus 每个迁移一行
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if len(statuses) == 0 {
		c.printf("No migrations found.\n")
		return nil
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, statusLabel(s))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	c.printf("\nTotal: %d, Applied: %d, Pending: %d\n",
		info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	return nil
}

func statusLabel(s MigrationStatus) string {
	switch {
	case s.Dirty:
		return "Dirty"
	case s.Applied:
		return "Applied"
	default:
		return "Pending"
	}
}

// RunInfo 打印状态摘要
func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get info: %w", err)
	}
	c.printf("Chat history schema:\n")
	c.printf("  Current Version: %d\n", info.CurrentVersion)
	c.printf("  Dirty: %v\n", info.Dirty)
	c.printf("  Total Migrations: %d\n", info.TotalMigrations)
	c.printf("  Applied Migrations: %d\n", info.AppliedMigrations)
	c.printf("  Pending Migrations: %d\n", info.PendingMigrations)
	return nil
}
