package db_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neodisc/internal/db"
)

func TestOpenCreatesWorkspace(t *testing.T) {
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Ping())
	_, err = os.Stat(filepath.Join(dir, ".neodisc", "neodisc.db"))
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".neodisc", "neodisc.db"), db.Path(dir))
}

func TestReadOnlyOpen(t *testing.T) {
	dir := t.TempDir()
	_, err := db.Open(db.Config{Workspace: dir, ReadOnly: true})
	assert.ErrorIs(t, err, db.ErrNoDatabase)

	rw, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	_, err = rw.Exec(`CREATE TABLE t(x INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	ro, err := db.Open(db.Config{Workspace: dir, ReadOnly: true})
	require.NoError(t, err)
	defer ro.Close()
	var n int
	require.NoError(t, ro.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n))
	_, err = ro.Exec(`INSERT INTO t(x) VALUES (1)`)
	assert.Error(t, err)
}
