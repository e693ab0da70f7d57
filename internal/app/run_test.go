package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neodisc/internal/app"
	"neodisc/internal/config"
	"neodisc/internal/runlog"
	"neodisc/internal/store"
)

func openSeeded(t *testing.T) *app.Env {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Index.CacheTTL = 0
	env, err := app.Open(context.Background(), dir, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(env.Close)
	seed(t, store.Store{DB: env.DB})
	return env
}

func TestRunCatalogRecordsCompletedRun(t *testing.T) {
	env := openSeeded(t)
	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "neodisc.prom")

	run, res, err := env.RunCatalog(ctx, runlog.EventPayload{"max_q": 1.3}, out)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusCompleted, run.Status)
	assert.Equal(t, 1, run.Resolved)
	assert.Equal(t, 1, run.Unresolved)
	assert.Len(t, res.Records, 1)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `neodisc_objects_total{outcome="resolved"} 1`)
}

func TestRunCatalogWritesMetricsWhenAborted(t *testing.T) {
	env := openSeeded(t)
	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "neodisc.prom")
	// every lookup now fails with a non-transient error
	_, err := env.DB.Exec(`DROP TABLE obs_sbn`)
	require.NoError(t, err)

	run, res, err := env.RunCatalog(ctx, nil, out)
	require.Error(t, err)
	assert.Empty(t, res.Records)
	assert.Equal(t, runlog.StatusAborted, run.Status)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "neodisc_index_lookup_errors_total")
}
