package metrics_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neodisc/internal/metrics"
)

func TestNewRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.New(reg)
	require.NoError(t, err)
	_, err = metrics.New(reg)
	assert.Error(t, err)
}

func TestWriteTextfile(t *testing.T) {
	m, err := metrics.New(nil)
	require.NoError(t, err)
	m.RecordLookup("provisional", 3*time.Millisecond, nil)
	m.RecordLookup("provisional", time.Millisecond, errors.New("boom"))
	m.RecordObject(metrics.OutcomeResolved)
	m.RecordTracklet(4)

	path := filepath.Join(t.TempDir(), "neodisc.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `neodisc_index_lookups_total{kind="provisional"} 2`)
	assert.Contains(t, text, `neodisc_index_lookup_errors_total{kind="provisional"} 1`)
	assert.Contains(t, text, `neodisc_objects_total{outcome="resolved"} 1`)
	assert.Contains(t, text, "neodisc_tracklet_observations_count 1")
}
