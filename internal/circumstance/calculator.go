// Package circumstance computes discovery circumstances from an assembled
// tracklet: mean epoch and position, band-corrected median magnitude, arc
// span, and the great-circle rate and direction of apparent motion.
package circumstance

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/soniakeys/unit"

	"neodisc/internal/config"
	"neodisc/internal/domain"
)

var ErrEmptyTracklet = errors.New("empty tracklet")

// mjdUnixOffset is the MJD of 1970-01-01T00:00Z.
const mjdUnixOffset = 40587.0

// Calculator computes circumstance statistics.
type Calculator struct {
	Bands Bands
	// RAMean selects config.RAMeanArithmetic or config.RAMeanCircular.
	RAMean string
}

func NewCalculator(bands Bands, raMean string) (Calculator, error) {
	if raMean != config.RAMeanArithmetic && raMean != config.RAMeanCircular {
		return Calculator{}, fmt.Errorf("unknown ra mean mode %q", raMean)
	}
	return Calculator{Bands: bands, RAMean: raMean}, nil
}

// Compute fills the statistical fields of a Record from tracklet. Identity
// fields (designation, station) are left to the caller. Values are not
// rounded.
func (c Calculator) Compute(tracklet []domain.Observation) (Record, error) {
	if len(tracklet) == 0 {
		return Record{}, ErrEmptyTracklet
	}
	obs := append([]domain.Observation(nil), tracklet...)
	sort.SliceStable(obs, func(i, j int) bool { return obs[i].Before(obs[j]) })
	first, last := obs[0], obs[len(obs)-1]

	var rec Record
	rec.Count = len(obs)
	rec.MeanEpoch = meanEpoch(obs)
	rec.MeanDec = meanDec(obs)
	if c.RAMean == config.RAMeanCircular {
		rec.MeanRA = circularMeanRA(obs)
	} else {
		rec.MeanRA = arithmeticMeanRA(obs)
	}
	rec.MedianV = c.medianV(obs)

	span := last.Time.Sub(first.Time)
	rec.SpanHours = span.Hours()
	if span > 0 {
		ra1, dec1 := unit.AngleFromDeg(first.RA), unit.AngleFromDeg(first.Dec)
		ra2, dec2 := unit.AngleFromDeg(last.RA), unit.AngleFromDeg(last.Dec)
		rate := Separation(ra1, dec1, ra2, dec2).Deg() / (span.Hours() / 24)
		pa := PositionAngle(ra1, dec1, ra2, dec2).Deg()
		rec.Rate = &rate
		rec.PositionAngle = &pa
	}
	return rec, nil
}

// MJD converts t to a Modified Julian Date.
func MJD(t time.Time) float64 {
	t = t.UTC()
	return float64(t.Unix())/86400 + float64(t.Nanosecond())/86400e9 + mjdUnixOffset
}

// meanEpoch averages offsets from the first time so that sub-second
// precision survives the large MJD magnitude.
func meanEpoch(obs []domain.Observation) float64 {
	base := obs[0].Time
	var sum float64
	for _, o := range obs {
		sum += o.Time.Sub(base).Seconds()
	}
	return MJD(base) + sum/float64(len(obs))/86400
}

func meanDec(obs []domain.Observation) float64 {
	var sum float64
	for _, o := range obs {
		sum += o.Dec
	}
	return sum / float64(len(obs))
}

// arithmeticMeanRA is the plain mean. A tracklet straddling RA 0 averages
// to the far side of the sky; kept for parity with the source dataset.
func arithmeticMeanRA(obs []domain.Observation) float64 {
	var sum float64
	for _, o := range obs {
		sum += o.RA
	}
	return sum / float64(len(obs))
}

// circularMeanRA is the direction of the mean unit vector, in [0, 360).
func circularMeanRA(obs []domain.Observation) float64 {
	var s, c float64
	for _, o := range obs {
		ra := unit.AngleFromDeg(o.RA).Rad()
		s += math.Sin(ra)
		c += math.Cos(ra)
	}
	if math.Hypot(s, c) < 1e-12 {
		return arithmeticMeanRA(obs)
	}
	return normalizeDeg(unit.Angle(math.Atan2(s, c)).Deg())
}

func (c Calculator) medianV(obs []domain.Observation) *float64 {
	var mags []float64
	for _, o := range obs {
		if o.Mag == nil {
			continue
		}
		mags = append(mags, *o.Mag+c.Bands.Correction(o.Band))
	}
	if len(mags) == 0 {
		return nil
	}
	sort.Float64s(mags)
	n := len(mags)
	m := mags[n/2]
	if n%2 == 0 {
		m = (mags[n/2-1] + mags[n/2]) / 2
	}
	return &m
}

// Separation is the great-circle distance between two positions by the
// haversine formula, well conditioned for small separations and across
// RA 0.
func Separation(ra1, dec1, ra2, dec2 unit.Angle) unit.Angle {
	sdd := math.Sin((dec2 - dec1).Rad() / 2)
	sdr := math.Sin((ra2 - ra1).Rad() / 2)
	h := sdd*sdd + math.Cos(dec1.Rad())*math.Cos(dec2.Rad())*sdr*sdr
	h = math.Min(1, math.Max(0, h))
	return unit.Angle(2 * math.Asin(math.Sqrt(h)))
}

// PositionAngle is the bearing of position 2 seen from position 1, measured
// from north through east, in [0, 2π).
func PositionAngle(ra1, dec1, ra2, dec2 unit.Angle) unit.Angle {
	dra := (ra2 - ra1).Rad()
	d1, d2 := dec1.Rad(), dec2.Rad()
	y := math.Sin(dra) * math.Cos(d2)
	x := math.Cos(d1)*math.Sin(d2) - math.Sin(d1)*math.Cos(d2)*math.Cos(dra)
	return unit.AngleFromDeg(normalizeDeg(unit.Angle(math.Atan2(y, x)).Deg()))
}

func normalizeDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}
