package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neodisc/internal/config"
	"neodisc/internal/domain"
	"neodisc/internal/engine"
	"neodisc/internal/ident"
	"neodisc/internal/logger"
	"neodisc/internal/metrics"
)

func newPipeline(t *testing.T, idx *memIndex, m *metrics.Metrics) engine.Pipeline {
	t.Helper()
	cfg := config.Default()
	cfg.Pipeline.Workers = 4
	cfg.Pipeline.LogEvery = 2
	p, err := engine.New(idx, cfg, logger.Nop(), m)
	require.NoError(t, err)
	return p
}

// fixture: four resolvable objects, one gap.
func fixtureIndex() *memIndex {
	return newMemIndex(
		domain.Observation{ID: 1, PermanentID: "99942", ProvisionalID: "2004 MN4", TrackletID: "A", Time: t0, RA: 359, Dec: 0, Mag: mag(20.0), Band: band("V"), Station: "691", Discovery: true},
		domain.Observation{ID: 2, ProvisionalID: "2004 MN4", TrackletID: "A", Time: t0.Add(6 * time.Hour), RA: 0, Dec: 0, Mag: mag(19.2), Band: band("B"), Station: "691"},
		domain.Observation{ID: 3, PermanentID: "99942", ProvisionalID: "2004 MN4", TrackletID: "A", Time: t0.Add(12 * time.Hour), RA: 1, Dec: 0, Band: band("R"), Station: "691"},
		domain.Observation{ID: 4, PermanentID: "99942", TrackletID: "A", Time: t0.Add(30 * 24 * time.Hour), RA: 40, Dec: 5, Station: "691"},
		domain.Observation{ID: 5, PermanentID: "433", Time: time.Date(1898, 8, 13, 22, 0, 0, 0, time.UTC), RA: 300, Dec: -20, Station: "000", Discovery: true},
		domain.Observation{ID: 6, ProvisionalID: "2024 AA1", TrackletID: "B", Time: t0, RA: 10, Dec: 10, Station: "G96", Discovery: true},
		domain.Observation{ID: 7, ProvisionalID: "2024 AA1", TrackletID: "B", Time: t0.Add(time.Hour), RA: 10, Dec: 10.1, Station: "G96"},
		domain.Observation{ID: 8, ProvisionalID: "1995 XA", Time: time.Date(1995, 12, 1, 4, 0, 0, 0, time.UTC), RA: 80, Dec: 20, Station: "691", Discovery: true},
		domain.Observation{ID: 9, ProvisionalID: "2030 ZZ", Time: t0, RA: 1, Dec: 1, Station: "F51"},
	)
}

func fixtureObjects() []domain.Object {
	return []domain.Object{
		{IsNumbered: true, PermanentID: "99942", CrossProvisionalID: "2004 MN4"},
		{ProvisionalID: "2030 ZZ"},
		{IsNumbered: true, PermanentID: "433"},
		{ProvisionalID: "2024 AA1"},
		{ProvisionalID: "1995 XA"},
	}
}

func designations(res engine.Result) []string {
	out := make([]string, len(res.Records))
	for i, r := range res.Records {
		out[i] = r.Designation
	}
	return out
}

func TestRunSortsAndReportsGaps(t *testing.T) {
	p := newPipeline(t, fixtureIndex(), nil)
	res, err := p.Run(context.Background(), fixtureObjects())
	require.NoError(t, err)

	assert.Equal(t, []string{"433", "99942", "1995 XA", "2024 AA1"}, designations(res))
	require.Len(t, res.Gaps, 1)
	assert.Equal(t, "2030 ZZ", res.Gaps[0].Designation)
	assert.Equal(t, []domain.CandidateKey{{Type: domain.KeyProvisional, Value: "2030 ZZ"}}, res.Gaps[0].Keys)
	assert.Empty(t, res.Failures)
}

func TestRunNumberedTrackletCountsSharedObservationsOnce(t *testing.T) {
	p := newPipeline(t, fixtureIndex(), nil)
	res, err := p.Run(context.Background(), fixtureObjects())
	require.NoError(t, err)

	rec := res.Records[1]
	require.Equal(t, "99942", rec.Designation)
	assert.True(t, rec.Numbered)
	// ids 1 and 3 answer both keys; 4 is outside the window
	assert.Equal(t, 3, rec.Count)
	assert.Equal(t, 12.0, rec.SpanHours)
	require.NotNil(t, rec.Rate)
	assert.Equal(t, 4.0, *rec.Rate)
	assert.Equal(t, 90.0, *rec.PositionAngle)
	require.NotNil(t, rec.MedianV)
	assert.Equal(t, 19.2, *rec.MedianV)
	assert.Equal(t, "691", rec.Station)
	assert.Equal(t, "Spacewatch", rec.StationName)
	assert.Equal(t, "Spacewatch", rec.Project)
	assert.Equal(t, 2024, rec.DiscoveryYear)
	assert.Equal(t, 1, rec.DiscoveryMonth)
	assert.True(t, rec.DiscoveryTime.Equal(t0))
}

func TestRunSingletonFallback(t *testing.T) {
	p := newPipeline(t, fixtureIndex(), nil)
	res, err := p.Run(context.Background(), fixtureObjects())
	require.NoError(t, err)

	rec := res.Records[0]
	require.Equal(t, "433", rec.Designation)
	assert.Equal(t, 1, rec.Count)
	assert.Zero(t, rec.SpanHours)
	assert.Nil(t, rec.Rate)
	assert.Nil(t, rec.PositionAngle)
	assert.Nil(t, rec.MedianV)
	assert.Equal(t, "000", rec.StationName)
	assert.Equal(t, "Others", rec.Project)
}

func TestRunIsIdempotent(t *testing.T) {
	idx := fixtureIndex()
	p := newPipeline(t, idx, nil)
	first, err := p.Run(context.Background(), fixtureObjects())
	require.NoError(t, err)
	second, err := p.Run(context.Background(), fixtureObjects())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRunRecordsFailuresAndContinues(t *testing.T) {
	p := newPipeline(t, fixtureIndex(), nil)
	objs := append(fixtureObjects(), domain.Object{IsNumbered: true, CrossProvisionalID: "2010 AB"})
	res, err := p.Run(context.Background(), objs)
	require.NoError(t, err)
	assert.Len(t, res.Records, 4)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 5, res.Failures[0].Position)
	assert.Contains(t, res.Failures[0].Reason, ident.ErrNoIdentifier.Error())
}

func TestRunAbortsOnLookupError(t *testing.T) {
	boom := errors.New("index unavailable")
	idx := fixtureIndex()
	idx.fail["provisional"] = boom
	p := newPipeline(t, idx, nil)
	res, err := p.Run(context.Background(), fixtureObjects())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, engine.Result{}, res)
}

func TestRunHonorsCancelledContext(t *testing.T) {
	p := newPipeline(t, fixtureIndex(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx, fixtureObjects())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunEmptyCatalog(t *testing.T) {
	p := newPipeline(t, fixtureIndex(), nil)
	res, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Empty(t, res.Gaps)
}

func TestRunCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	p := newPipeline(t, fixtureIndex(), m)
	objs := append(fixtureObjects(), domain.Object{ProvisionalID: " "})
	_, err = p.Run(context.Background(), objs)
	require.NoError(t, err)

	got := map[string]float64{}
	var tracklets uint64
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		switch mf.GetName() {
		case "neodisc_objects_total":
			for _, metric := range mf.GetMetric() {
				for _, lp := range metric.GetLabel() {
					if lp.GetName() == "outcome" {
						got[lp.GetValue()] = metric.GetCounter().GetValue()
					}
				}
			}
		case "neodisc_tracklet_observations":
			tracklets = mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	assert.Equal(t, map[string]float64{
		metrics.OutcomeResolved:   4,
		metrics.OutcomeUnresolved: 1,
		metrics.OutcomeFailed:     1,
	}, got)
	assert.Equal(t, uint64(4), tracklets)
}

func TestResolveOne(t *testing.T) {
	p := newPipeline(t, fixtureIndex(), nil)
	rec, err := p.ResolveOne(context.Background(), domain.Object{ProvisionalID: "2024 AA1"})
	require.NoError(t, err)
	assert.Equal(t, "2024 AA1", rec.Designation)
	assert.Equal(t, 2, rec.Count)
	assert.Equal(t, 1.0, rec.SpanHours)
	require.NotNil(t, rec.PositionAngle)
	assert.Equal(t, 0.0, *rec.PositionAngle)
	assert.Equal(t, 10.05, rec.MeanDec)

	_, err = p.ResolveOne(context.Background(), domain.Object{ProvisionalID: "2030 ZZ"})
	assert.ErrorIs(t, err, engine.ErrNoDiscovery)

	_, err = p.ResolveOne(context.Background(), domain.Object{})
	assert.ErrorIs(t, err, ident.ErrNoIdentifier)
}

func TestResolveOneMissingBandUsesDefaultOffset(t *testing.T) {
	idx := newMemIndex(
		domain.Observation{ID: 1, ProvisionalID: "2024 BX1", Time: t0, RA: 10, Dec: 10, Mag: mag(20.0), Station: "G96", Discovery: true},
	)
	p := newPipeline(t, idx, nil)
	rec, err := p.ResolveOne(context.Background(), domain.Object{ProvisionalID: "2024 BX1"})
	require.NoError(t, err)
	require.NotNil(t, rec.MedianV)
	assert.Equal(t, 20.0, *rec.MedianV)
}

func TestRecordsCarryCatalogOrbit(t *testing.T) {
	p := newPipeline(t, fixtureIndex(), nil)
	obj := domain.Object{ProvisionalID: "2024 AA1", H: mag(22.123), Q: mag(0.98765432), E: mag(0.4), Incl: mag(7.5)}
	rec, err := p.ResolveOne(context.Background(), obj)
	require.NoError(t, err)
	require.NotNil(t, rec.H)
	assert.Equal(t, 22.12, *rec.H)
	require.NotNil(t, rec.Q)
	assert.Equal(t, 0.987654, *rec.Q)
	assert.Equal(t, 0.4, *rec.E)
	assert.Equal(t, 7.5, *rec.Incl)

	rec, err = p.ResolveOne(context.Background(), domain.Object{ProvisionalID: "1995 XA"})
	require.NoError(t, err)
	assert.Nil(t, rec.H)
	assert.Nil(t, rec.Q)
}
