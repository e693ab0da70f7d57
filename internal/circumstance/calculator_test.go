package circumstance_test

import (
	"math"
	"testing"
	"time"

	"github.com/soniakeys/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neodisc/internal/circumstance"
	"neodisc/internal/config"
	"neodisc/internal/domain"
)

var t0 = time.Date(2024, 3, 10, 6, 0, 0, 0, time.UTC)

func mag(v float64) *float64 { return &v }

func band(code string) *string { return &code }

func newCalculator(t *testing.T, raMean string) circumstance.Calculator {
	t.Helper()
	bands, err := circumstance.NewBands(config.Default().Bands)
	require.NoError(t, err)
	calc, err := circumstance.NewCalculator(bands, raMean)
	require.NoError(t, err)
	return calc
}

func TestGreatCircleAcrossRAOrigin(t *testing.T) {
	calc := newCalculator(t, config.RAMeanArithmetic)
	rec, err := calc.Compute([]domain.Observation{
		{ID: 1, Time: t0, RA: 359, Dec: 0},
		{ID: 2, Time: t0.Add(24 * time.Hour), RA: 1, Dec: 0},
	})
	require.NoError(t, err)
	require.NotNil(t, rec.Rate)
	require.NotNil(t, rec.PositionAngle)
	assert.InDelta(t, 2.0, *rec.Rate, 1e-9)
	assert.InDelta(t, 90.0, *rec.PositionAngle, 1e-9)
	assert.Equal(t, 2, rec.Count)
	assert.InDelta(t, 24.0, rec.SpanHours, 1e-12)
}

func TestPositionAngleCompassPoints(t *testing.T) {
	deg := unit.AngleFromDeg
	cases := []struct {
		name             string
		ra1, d1, ra2, d2 float64
		want             float64
	}{
		{"north", 100, 10, 100, 11, 0},
		{"east", 100, 0, 101, 0, 90},
		{"south", 100, 10, 100, 9, 180},
		{"west", 100, 0, 99, 0, 270},
	}
	for _, tc := range cases {
		got := circumstance.PositionAngle(deg(tc.ra1), deg(tc.d1), deg(tc.ra2), deg(tc.d2)).Deg()
		assert.InDelta(t, tc.want, got, 1e-9, tc.name)
	}
}

func TestSeparationSymmetricAndSmallAngles(t *testing.T) {
	deg := unit.AngleFromDeg
	a := circumstance.Separation(deg(10), deg(20), deg(10.0001), deg(20.0001)).Deg()
	b := circumstance.Separation(deg(10.0001), deg(20.0001), deg(10), deg(20)).Deg()
	assert.InDelta(t, a, b, 1e-15)
	assert.Greater(t, a, 0.0)
	assert.InDelta(t, 180.0, circumstance.Separation(deg(0), deg(0), deg(180), deg(0)).Deg(), 1e-9)
	assert.InDelta(t, 90.0, circumstance.Separation(deg(0), deg(0), deg(0), deg(90)).Deg(), 1e-9)
}

func TestMedianWithBandCorrections(t *testing.T) {
	calc := newCalculator(t, config.RAMeanArithmetic)
	rec, err := calc.Compute([]domain.Observation{
		{ID: 1, Time: t0, RA: 10, Dec: 5, Mag: mag(20.0), Band: band("V")},
		{ID: 2, Time: t0.Add(30 * time.Minute), RA: 10.01, Dec: 5, Mag: mag(19.2), Band: band("B")},
		{ID: 3, Time: t0.Add(60 * time.Minute), RA: 10.02, Dec: 5, Band: band("R")},
	})
	require.NoError(t, err)
	require.NotNil(t, rec.MedianV)
	assert.InDelta(t, 19.2, *rec.MedianV, 1e-9)
	assert.Equal(t, 3, rec.Count)
}

func TestMedianOddCountAndBlankBand(t *testing.T) {
	calc := newCalculator(t, config.RAMeanArithmetic)
	rec, err := calc.Compute([]domain.Observation{
		{ID: 1, Time: t0, Mag: mag(21.0), Band: band("")},                   // blank: -0.8
		{ID: 2, Time: t0.Add(time.Minute), Mag: mag(19.0), Band: band("r")}, // +0.14
		{ID: 3, Time: t0.Add(2 * time.Minute), Mag: mag(19.5), Band: band("?")},
	})
	require.NoError(t, err)
	require.NotNil(t, rec.MedianV)
	assert.InDelta(t, 19.5, *rec.MedianV, 1e-9)
}

func TestMissingBandTakesDefaultOffset(t *testing.T) {
	calc := newCalculator(t, config.RAMeanArithmetic)
	rec, err := calc.Compute([]domain.Observation{{ID: 1, Time: t0, Mag: mag(20.0)}})
	require.NoError(t, err)
	require.NotNil(t, rec.MedianV)
	assert.InDelta(t, 20.0, *rec.MedianV, 1e-9)
}

func TestBandCorrection(t *testing.T) {
	bands, err := circumstance.NewBands(config.Bands{
		Reference: "V",
		Offsets:   map[string]float64{"V": 0, "B": -0.8},
		Blank:     -0.5,
		Default:   0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.1, bands.Correction(nil))
	assert.Equal(t, -0.5, bands.Correction(band("")))
	assert.Equal(t, -0.5, bands.Correction(band(" ")))
	assert.Equal(t, -0.8, bands.Correction(band("B")))
	assert.Equal(t, 0.1, bands.Correction(band("w")))
}

func TestMedianAbsentWithoutMagnitudes(t *testing.T) {
	calc := newCalculator(t, config.RAMeanArithmetic)
	rec, err := calc.Compute([]domain.Observation{
		{ID: 1, Time: t0, RA: 1, Dec: 1, Band: band("V")},
		{ID: 2, Time: t0.Add(time.Hour), RA: 1.1, Dec: 1},
	})
	require.NoError(t, err)
	assert.Nil(t, rec.MedianV)
}

func TestSingletonHasNoMotion(t *testing.T) {
	calc := newCalculator(t, config.RAMeanArithmetic)
	rec, err := calc.Compute([]domain.Observation{{ID: 7, Time: t0, RA: 123.4, Dec: -5.6, Mag: mag(18.3), Band: band("V")}})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Count)
	assert.Zero(t, rec.SpanHours)
	assert.Nil(t, rec.Rate)
	assert.Nil(t, rec.PositionAngle)
	assert.Equal(t, 123.4, rec.MeanRA)
	assert.Equal(t, -5.6, rec.MeanDec)
	assert.InDelta(t, circumstance.MJD(t0), rec.MeanEpoch, 1e-12)
}

func TestIdenticalTimesHaveNoMotion(t *testing.T) {
	calc := newCalculator(t, config.RAMeanArithmetic)
	rec, err := calc.Compute([]domain.Observation{
		{ID: 1, Time: t0, RA: 1, Dec: 1},
		{ID: 2, Time: t0, RA: 1.1, Dec: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Count)
	assert.Nil(t, rec.Rate)
	assert.Nil(t, rec.PositionAngle)
}

func TestFirstAndLastAreChronological(t *testing.T) {
	calc := newCalculator(t, config.RAMeanArithmetic)
	// supplied out of order; motion is due north at 1 deg per 12h
	rec, err := calc.Compute([]domain.Observation{
		{ID: 3, Time: t0.Add(12 * time.Hour), RA: 50, Dec: 11},
		{ID: 1, Time: t0, RA: 50, Dec: 10},
		{ID: 2, Time: t0.Add(6 * time.Hour), RA: 50, Dec: 10.5},
	})
	require.NoError(t, err)
	require.NotNil(t, rec.Rate)
	assert.InDelta(t, 2.0, *rec.Rate, 1e-9)
	assert.InDelta(t, 0.0, *rec.PositionAngle, 1e-9)
	assert.InDelta(t, 10.5, rec.MeanDec, 1e-12)
}

func TestMeanEpoch(t *testing.T) {
	calc := newCalculator(t, config.RAMeanArithmetic)
	assert.InDelta(t, 51544.5, circumstance.MJD(time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)), 1e-12)
	rec, err := calc.Compute([]domain.Observation{
		{ID: 1, Time: t0},
		{ID: 2, Time: t0.Add(2 * time.Hour)},
	})
	require.NoError(t, err)
	assert.InDelta(t, circumstance.MJD(t0.Add(time.Hour)), rec.MeanEpoch, 1e-9)
}

func TestRAMeanModes(t *testing.T) {
	obs := []domain.Observation{
		{ID: 1, Time: t0, RA: 359.5, Dec: 0},
		{ID: 2, Time: t0.Add(time.Hour), RA: 0.5, Dec: 0},
	}
	arith, err := newCalculator(t, config.RAMeanArithmetic).Compute(obs)
	require.NoError(t, err)
	assert.InDelta(t, 180.0, arith.MeanRA, 1e-9)

	circ, err := newCalculator(t, config.RAMeanCircular).Compute(obs)
	require.NoError(t, err)
	// 0 and 360 are the same direction
	assert.InDelta(t, 0.0, math.Mod(circ.MeanRA+180, 360)-180, 1e-9)
}

func TestComputeRejectsEmptyTracklet(t *testing.T) {
	_, err := newCalculator(t, config.RAMeanArithmetic).Compute(nil)
	assert.ErrorIs(t, err, circumstance.ErrEmptyTracklet)
}

func TestNewCalculatorRejectsUnknownMode(t *testing.T) {
	_, err := circumstance.NewCalculator(circumstance.Bands{}, "median")
	assert.Error(t, err)
}

func TestRounded(t *testing.T) {
	rate := 1.23456789
	pa := 359.9999
	v := 19.2345
	rec := circumstance.Record{
		MeanEpoch: 60379.123456789, MeanRA: 359.99999999, MeanDec: -12.3456789,
		MedianV: &v, SpanHours: 1.234567, Rate: &rate, PositionAngle: &pa,
	}
	out := rec.Rounded()
	assert.Equal(t, 60379.123457, out.MeanEpoch)
	assert.Equal(t, 0.0, out.MeanRA)
	assert.Equal(t, -12.345679, out.MeanDec)
	assert.Equal(t, 19.23, *out.MedianV)
	assert.Equal(t, 1.2346, out.SpanHours)
	assert.Equal(t, 1.234568, *out.Rate)
	assert.Equal(t, 0.0, *out.PositionAngle)
	// input untouched
	assert.Equal(t, 1.23456789, *rec.Rate)
}
