package migration

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/BaSui01/naya/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		input    string
		expected DatabaseType
		wantErr  bool
	}{
		{"postgres", DatabaseTypePostgres, false},
		{"postgresql", DatabaseTypePostgres, false},
		{"pg", DatabaseTypePostgres, false},
		{"mysql", DatabaseTypeMySQL, false},
		{"mariadb", DatabaseTypeMySQL, false},
		{"sqlite", DatabaseTypeSQLite, false},
		{"sqlite3", DatabaseTypeSQLite, false},
		{" POSTGRES ", DatabaseTypePostgres, false},
		{"mongo", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDatabaseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestBuildDatabaseURL(t *testing.T) {
	assert.Equal(t,
		"postgres://naya:secret@db:5432/naya?sslmode=disable",
		BuildDatabaseURL(DatabaseTypePostgres, "db", 5432, "naya", "naya", "secret", "disable"))
	assert.Equal(t,
		"postgres://naya:secret@db:5432/naya?sslmode=require",
		BuildDatabaseURL(DatabaseTypePostgres, "db", 5432, "naya", "naya", "secret", ""))
	assert.Equal(t,
		"naya:secret@tcp(db:3306)/naya?parseTime=true&multiStatements=true",
		BuildDatabaseURL(DatabaseTypeMySQL, "db", 3306, "naya", "naya", "secret", ""))
	assert.Equal(t,
		"file:/var/lib/naya/history.db?mode=rwc&_pragma=foreign_keys(1)",
		BuildDatabaseURL(DatabaseTypeSQLite, "", 0, "/var/lib/naya/history.db", "", "", ""))
	assert.Empty(t, BuildDatabaseURL("oracle", "", 0, "x", "", "", ""))
}

func TestGetMigrationsPath(t *testing.T) {
	assert.Equal(t, "migrations/postgres", GetMigrationsPath(DatabaseTypePostgres))
	assert.Equal(t, "migrations/mysql", GetMigrationsPath(DatabaseTypeMySQL))
	assert.Equal(t, "migrations/sqlite", GetMigrationsPath(DatabaseTypeSQLite))
}

func TestAvailableMigrations_EveryDialectInSync(t *testing.T) {
	var reference []migrationFile
	for _, dt := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL, DatabaseTypeSQLite} {
		files, err := availableMigrations(dt)
		require.NoError(t, err, dt)
		require.NotEmpty(t, files, dt)
		for i := 1; i < len(files); i++ {
			assert.Greater(t, files[i].version, files[i-1].version)
		}
		if reference == nil {
			reference = files
			continue
		}
		assert.Equal(t, reference, files, "dialect %s drifted", dt)
	}
	assert.Equal(t, migrationFile{version: 1, name: "create_chat_history"}, reference[0])

	_, err := availableMigrations("oracle")
	assert.Error(t, err)
}

func TestNewMigrator_InvalidConfig(t *testing.T) {
	_, err := NewMigrator(nil)
	assert.ErrorContains(t, err, "config is required")

	_, err = NewMigrator(&Config{DatabaseType: DatabaseTypeSQLite})
	assert.ErrorContains(t, err, "database URL is required")

	_, err = NewMigrator(&Config{DatabaseType: "oracle", DatabaseURL: "x"})
	assert.ErrorContains(t, err, "unsupported database type")
}

func newSQLiteMigrator(t *testing.T) (*DefaultMigrator, string, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	dbPath := filepath.Join(t.TempDir(), "history.db")

	m, err := NewMigrator(&Config{
		DatabaseType: DatabaseTypeSQLite,
		DatabaseURL:  BuildDatabaseURL(DatabaseTypeSQLite, "", 0, dbPath, "", "", ""),
		Logger:       zap.New(core),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, dbPath, logs
}

func TestMigrator_SQLiteUpDown(t *testing.T) {
	m, dbPath, logs := newSQLiteMigrator(t)
	ctx := context.Background()

	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)

	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Up(ctx), "no change is not an error")

	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), info.CurrentVersion)
	assert.Equal(t, info.TotalMigrations, info.AppliedMigrations)
	assert.Zero(t, info.PendingMigrations)

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Applied)
	assert.Equal(t, "create_chat_history", statuses[0].Name)

	// 表结构可直接写入
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`INSERT INTO chat_history (role, content, token_count) VALUES ('user', 'Halo', 1)`)
	require.NoError(t, err)
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM chat_history`).Scan(&n))
	assert.Equal(t, 1, n)

	require.NoError(t, m.Down(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)
	_, err = db.Exec(`SELECT 1 FROM chat_history`)
	assert.Error(t, err, "table dropped")

	assert.NotZero(t, logs.FilterMessage("migration finished").Len())
}

func TestMigrator_ForceAndGoto(t *testing.T) {
	m, _, _ := newSQLiteMigrator(t)
	ctx := context.Background()

	require.NoError(t, m.Goto(ctx, 1))
	require.NoError(t, m.Force(ctx, 1))
	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	require.NoError(t, m.DownAll(ctx))
	require.NoError(t, m.Steps(ctx, 1))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestNewMigratorFromDatabaseConfig_SQLite(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = filepath.Join(t.TempDir(), "naya.db")

	m, err := NewMigratorFromConfig(cfg, nil)
	require.NoError(t, err)
	defer m.Close()
	require.NoError(t, m.Up(context.Background()))

	_, err = NewMigratorFromConfig(nil, nil)
	assert.Error(t, err)

	cfg.Database.Driver = "oracle"
	_, err = NewMigratorFromConfig(cfg, nil)
	assert.ErrorContains(t, err, "invalid database type")
}

func TestCLI_Output(t *testing.T) {
	m, _, _ := newSQLiteMigrator(t)
	cli := NewCLI(m)
	var out bytes.Buffer
	cli.SetOutput(&out)
	ctx := context.Background()

	require.NoError(t, cli.RunVersion(ctx))
	assert.Contains(t, out.String(), "No migrations applied yet")

	out.Reset()
	require.NoError(t, cli.RunStatus(ctx))
	assert.Contains(t, out.String(), "000001")
	assert.Contains(t, out.String(), "Pending")

	out.Reset()
	require.NoError(t, cli.RunUp(ctx))
	assert.Contains(t, out.String(), "Current version: 1")

	out.Reset()
	require.NoError(t, cli.RunInfo(ctx))
	assert.Contains(t, out.String(), "Applied Migrations: 1")

	assert.Error(t, cli.RunSteps(ctx, 0))
}
