package circumstance

import (
	"math"
	"time"
)

// Record holds the discovery circumstances of one resolved object.
type Record struct {
	Designation    string    `json:"designation"`
	Numbered       bool      `json:"numbered"`
	Station        string    `json:"station"`
	StationName    string    `json:"station_name,omitempty"`
	Project        string    `json:"project,omitempty"`
	DiscoveryTime  time.Time `json:"discovery_time"`
	DiscoveryYear  int       `json:"discovery_year"`
	DiscoveryMonth int       `json:"discovery_month"`
	MeanEpoch      float64   `json:"mean_epoch_mjd"`
	MeanRA         float64   `json:"mean_ra_deg"`
	MeanDec        float64   `json:"mean_dec_deg"`
	MedianV        *float64  `json:"median_v_mag,omitempty"`
	Count          int       `json:"observation_count"`
	SpanHours      float64   `json:"span_hours"`
	Rate           *float64  `json:"rate_deg_per_day,omitempty"`
	PositionAngle  *float64  `json:"position_angle_deg,omitempty"`

	// Catalog orbit of the object, copied through unchanged.
	H    *float64 `json:"h,omitempty"`
	Q    *float64 `json:"q_au,omitempty"`
	E    *float64 `json:"e,omitempty"`
	Incl *float64 `json:"i_deg,omitempty"`
}

// Output precision, in decimal places.
const (
	EpochDecimals    = 6
	PositionDecimals = 6
	MagDecimals      = 2
	SpanDecimals     = 4
	RateDecimals     = 6
	PADecimals       = 3
	OrbitDecimals    = 6
)

// Rounded returns a copy with every numeric field rounded to its output
// precision. Computation upstream keeps full precision.
func (r Record) Rounded() Record {
	out := r
	out.MeanEpoch = round(r.MeanEpoch, EpochDecimals)
	out.MeanRA = round(r.MeanRA, PositionDecimals)
	out.MeanDec = round(r.MeanDec, PositionDecimals)
	out.MedianV = roundPtr(r.MedianV, MagDecimals)
	out.SpanHours = round(r.SpanHours, SpanDecimals)
	out.Rate = roundPtr(r.Rate, RateDecimals)
	out.PositionAngle = roundPtr(r.PositionAngle, PADecimals)
	out.H = roundPtr(r.H, MagDecimals)
	out.Q = roundPtr(r.Q, OrbitDecimals)
	out.E = roundPtr(r.E, OrbitDecimals)
	out.Incl = roundPtr(r.Incl, OrbitDecimals)
	if out.PositionAngle != nil && *out.PositionAngle >= 360 {
		zero := 0.0
		out.PositionAngle = &zero
	}
	if out.MeanRA >= 360 {
		out.MeanRA -= 360
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func roundPtr(v *float64, places int) *float64 {
	if v == nil {
		return nil
	}
	r := round(*v, places)
	return &r
}
