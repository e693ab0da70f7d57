package pgstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neodisc/internal/obsindex"
	"neodisc/internal/pgstore"
)

var _ obsindex.Index = (*pgstore.Store)(nil)

func TestOpenRequiresDSN(t *testing.T) {
	_, err := pgstore.Open(context.Background(), pgstore.Config{DSN: "  "})
	assert.Error(t, err)
}

// Runs against a live replica when NEODISC_TEST_PG_DSN is set.
func TestLiveReplica(t *testing.T) {
	dsn := os.Getenv("NEODISC_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("NEODISC_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := pgstore.Open(ctx, pgstore.Config{DSN: dsn, MaxConns: 2})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	objs, err := s.Objects(ctx, 1.3)
	require.NoError(t, err)
	require.NotEmpty(t, objs)

	obs, err := s.LookupByPermanent(ctx, "433")
	require.NoError(t, err)
	for _, o := range obs {
		assert.Equal(t, "433", o.PermanentID)
	}
}
