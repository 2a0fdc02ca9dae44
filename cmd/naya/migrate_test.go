package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/BaSui01/naya/internal/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeMigrator 记录调用的迁移器
type fakeMigrator struct {
	calls   []string
	version uint
	closed  bool
	err     error
}

func (m *fakeMigrator) record(call string) error {
	m.calls = append(m.calls, call)
	return m.err
}

func (m *fakeMigrator) Up(context.Context) error      { m.version = 1; return m.record("up") }
func (m *fakeMigrator) Down(context.Context) error    { m.version = 0; return m.record("down") }
func (m *fakeMigrator) DownAll(context.Context) error { m.version = 0; return m.record("down-all") }
func (m *fakeMigrator) Steps(_ context.Context, n int) error {
	return m.record("steps")
}
func (m *fakeMigrator) Goto(_ context.Context, v uint) error {
	m.version = v
	return m.record("goto")
}
func (m *fakeMigrator) Force(_ context.Context, v int) error {
	m.version = uint(v)
	return m.record("force")
}
func (m *fakeMigrator) Version(context.Context) (uint, bool, error) {
	return m.version, false, m.record("version")
}
func (m *fakeMigrator) Status(context.Context) ([]migration.MigrationStatus, error) {
	return []migration.MigrationStatus{{Version: 1, Name: "create_chat_history", Applied: m.version >= 1}}, m.record("status")
}
func (m *fakeMigrator) Info(context.Context) (*migration.MigrationInfo, error) {
	return &migration.MigrationInfo{CurrentVersion: m.version, TotalMigrations: 1}, nil
}
func (m *fakeMigrator) Close() error { m.closed = true; return nil }

func fakeOpener(m *fakeMigrator, got *migrateFlags) migratorOpener {
	return func(f migrateFlags, _ *zap.Logger) (migration.Migrator, error) {
		if got != nil {
			*got = f
		}
		return m, nil
	}
}

func TestMigrateCommand_Subcommands(t *testing.T) {
	tests := []struct {
		args []string
		call string
		want string
	}{
		{[]string{"up"}, "up", "Current version: 1"},
		{[]string{"down"}, "down", "Rollback complete"},
		{[]string{"down", "--all"}, "down-all", "All migrations rolled back"},
		{[]string{"reset"}, "down-all", "All migrations rolled back"},
		{[]string{"steps", "-1"}, "steps", "Rolling back 1 migration(s)"},
		{[]string{"goto", "1"}, "goto", "Migrating to version 1"},
		{[]string{"force", "0"}, "force", "Version forced to 0"},
		{[]string{"version"}, "version", "No migrations applied yet."},
		{[]string{"status"}, "status", "create_chat_history"},
	}
	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			m := &fakeMigrator{}
			var out bytes.Buffer
			require.NoError(t, migrateCommand(context.Background(), tt.args, &out, fakeOpener(m, nil)))
			assert.Equal(t, []string{tt.call}, m.calls)
			assert.Contains(t, out.String(), tt.want)
			assert.True(t, m.closed)
		})
	}
}

func TestMigrateCommand_PassesFlags(t *testing.T) {
	var got migrateFlags
	err := migrateCommand(context.Background(),
		[]string{"up", "--db-type", "sqlite", "--db-url", "sqlite://naya.db", "--config", "naya.yaml"},
		&bytes.Buffer{}, fakeOpener(&fakeMigrator{}, &got))
	require.NoError(t, err)
	assert.Equal(t, migrateFlags{configPath: "naya.yaml", dbType: "sqlite", dbURL: "sqlite://naya.db"}, got)
}

func TestMigrateCommand_UsageErrors(t *testing.T) {
	m := &fakeMigrator{}
	open := fakeOpener(m, nil)
	ctx := context.Background()

	var out bytes.Buffer
	assert.ErrorIs(t, migrateCommand(ctx, nil, &out, open), errMigrateUsage)
	assert.Contains(t, out.String(), "Database Migration Commands")

	out.Reset()
	assert.NoError(t, migrateCommand(ctx, []string{"help"}, &out, open))
	assert.Contains(t, out.String(), "naya migrate up")

	assert.ErrorIs(t, migrateCommand(ctx, []string{"goto"}, &out, open), errMigrateUsage)
	assert.ErrorContains(t, migrateCommand(ctx, []string{"goto", "-2"}, &out, open), "invalid number")
	assert.ErrorContains(t, migrateCommand(ctx, []string{"steps", "x"}, &out, open), "invalid number")
	assert.ErrorContains(t, migrateCommand(ctx, []string{"seed"}, &out, open), "unknown migrate subcommand")
	// --all 只属于 down
	assert.Error(t, migrateCommand(ctx, []string{"up", "--all"}, &out, open))
	assert.Empty(t, m.calls)
}

func TestMigrateCommand_Failures(t *testing.T) {
	ctx := context.Background()
	err := migrateCommand(ctx, []string{"up"}, &bytes.Buffer{},
		func(migrateFlags, *zap.Logger) (migration.Migrator, error) { return nil, errors.New("no driver") })
	assert.ErrorContains(t, err, "failed to create migrator: no driver")

	m := &fakeMigrator{err: errors.New("dirty database")}
	err = migrateCommand(ctx, []string{"up"}, &bytes.Buffer{}, fakeOpener(m, nil))
	assert.ErrorContains(t, err, "migration failed: dirty database")
	assert.True(t, m.closed)
}

func TestMigrateCommand_SQLite(t *testing.T) {
	url := migration.BuildDatabaseURL(migration.DatabaseTypeSQLite, "", 0,
		filepath.Join(t.TempDir(), "history.db"), "", "", "")
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, migrateCommand(ctx, []string{"up", "--db-type", "sqlite", "--db-url", url}, &out, openMigrator))
	assert.Contains(t, out.String(), "Current version: 1")

	out.Reset()
	require.NoError(t, migrateCommand(ctx, []string{"version", "--db-type", "sqlite", "--db-url", url}, &out, openMigrator))
	assert.Contains(t, out.String(), "Current version: 1")

	err := migrateCommand(ctx, []string{"up", "--db-type", "oracle", "--db-url", url}, &out, openMigrator)
	assert.ErrorContains(t, err, "failed to create migrator")
}
