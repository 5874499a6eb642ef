package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/linkctl/internal/registry/domain"
)

func openTestDB(t *testing.T, path string) *DB {
	t.Helper()
	db, err := NewDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewDB_CreatesDirectoryAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "registry.db")
	db := openTestDB(t, path)

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	require.True(t, info.IsDir())
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	}

	var table string
	err = db.Connection().QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='records'",
	).Scan(&table)
	require.NoError(t, err)
	require.Equal(t, "records", table)
	require.Equal(t, path, db.Path())
}

func TestNewDB_Pragmas(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "registry.db"))

	var journal string
	require.NoError(t, db.Connection().QueryRow("PRAGMA journal_mode").Scan(&journal))
	require.Equal(t, "wal", journal)

	for pragma, want := range map[string]int{"busy_timeout": 5000, "foreign_keys": 1} {
		var got int
		require.NoError(t, db.Connection().QueryRow("PRAGMA "+pragma).Scan(&got), pragma)
		require.Equal(t, want, got, pragma)
	}
}

func TestNewDB_ReopenKeepsRecordsAndBacksUp(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry.db")

	first, err := NewDB(path)
	require.NoError(t, err)
	rec := domain.Record{RoutingID: "1", HandlerAddress: "0x00000000000000000000000000000000000000a1"}
	require.NoError(t, first.RecordRepository().Put(ctx, 137, rec))
	require.NoError(t, first.Close())

	second := openTestDB(t, path)
	got, err := second.RecordRepository().Get(ctx, 137)
	require.NoError(t, err)
	require.Equal(t, rec.HandlerAddress, got.HandlerAddress)

	info, err := os.Stat(path + ".bak")
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestNewDB_TwoHandlesShareOneFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry.db")
	a := openTestDB(t, path)
	b := openTestDB(t, path)

	require.NoError(t, a.RecordRepository().Put(ctx, 56, domain.Record{RoutingID: "2"}))
	got, err := b.RecordRepository().Get(ctx, 56)
	require.NoError(t, err)
	require.Equal(t, domain.Scalar("2"), got.RoutingID)
}

func TestDB_Close(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.Error(t, db.Connection().Ping())
}

func TestNewDB_InvalidPath(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("relies on /proc being read-only")
	}
	_, err := NewDB("/proc/linkctl-test/registry.db")
	require.Error(t, err)
}
