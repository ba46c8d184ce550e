package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{
		Path: filepath.Join(t.TempDir(), "exposure.db"),
		Name: "exposure",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNew_DefaultsAndMigrate(t *testing.T) {
	db := newTestDB(t)
	assert.Equal(t, DriverModernc, db.Driver())
	assert.Equal(t, "exposure", db.Name())

	require.NoError(t, db.Migrate())
	// idempotent
	require.NoError(t, db.Migrate())

	for _, table := range []string{"datasets", "exposure_dates", "kernels", "paths", "path_points", "runs"} {
		var name string
		err := db.Conn().QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		require.NoError(t, err, table)
	}

	var fk int
	require.NoError(t, db.Conn().QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(Config{Path: filepath.Join(t.TempDir(), "x.db"), Driver: "postgres"})
	assert.Error(t, err)
}

func TestMigrate_UnknownSchemaIsNoop(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "scratch.db"), Name: "scratch", Profile: ProfileCache})
	require.NoError(t, err)
	defer db.Close()
	assert.NoError(t, db.Migrate())
}

func TestBuildConnectionString(t *testing.T) {
	modernc := buildConnectionString(DriverModernc, "/data/exposure.db", ProfileStandard)
	assert.Contains(t, modernc, "/data/exposure.db?_pragma=journal_mode(WAL)")
	assert.Contains(t, modernc, "_pragma=synchronous(NORMAL)")
	assert.Contains(t, modernc, "_pragma=foreign_keys(1)")

	mattn := buildConnectionString(DriverMattn, "/data/exposure.db", ProfileCache)
	assert.Equal(t,
		"file:/data/exposure.db?_journal_mode=WAL&_synchronous=OFF&_auto_vacuum=full&_foreign_keys=on&_busy_timeout=5000",
		mattn)
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("CREATE TABLE a (x INT);\n\n CREATE INDEX i ON a(x) ;\n")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a(x)"}, stmts)
}

func TestWithTransaction(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Conn().Exec("CREATE TABLE t (v INTEGER)")
	require.NoError(t, err)

	count := func() int {
		var n int
		require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM t").Scan(&n))
		return n
	}

	require.NoError(t, WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO t (v) VALUES (1)")
		return err
	}))
	assert.Equal(t, 1, count())

	boom := errors.New("boom")
	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO t (v) VALUES (2)"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, count())

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		panic("bad")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, count())

	assert.Error(t, WithTransaction(nil, func(*sql.Tx) error { return nil }))
}

func TestHealthAndStats(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate())

	require.NoError(t, db.HealthCheck(context.Background()))
	require.NoError(t, db.WALCheckpoint(""))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Positive(t, stats.PageSize)
}
