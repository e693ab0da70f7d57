package store

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"neodisc/internal/domain"
)

// Dump is the YAML interchange form of a local observation store.
type Dump struct {
	Observations []struct {
		ObsID   string    `yaml:"obsid"`
		PermID  string    `yaml:"permid"`
		ProvID  string    `yaml:"provid"`
		TrkID   string    `yaml:"trkid"`
		ObsTime time.Time `yaml:"obstime"`
		RA      float64   `yaml:"ra"`
		Dec     float64   `yaml:"dec"`
		Mag     *float64  `yaml:"mag"`
		Band    *string   `yaml:"band"`
		Stn     string    `yaml:"stn"`
		Disc    string    `yaml:"disc"`
	} `yaml:"observations"`
	Orbits []struct {
		Designation string   `yaml:"designation"`
		Q           float64  `yaml:"q"`
		E           float64  `yaml:"e"`
		I           float64  `yaml:"i"`
		H           *float64 `yaml:"h"`
	} `yaml:"orbits"`
	Numbered []struct {
		PermID      string `yaml:"permid"`
		Designation string `yaml:"designation"`
		Name        string `yaml:"name"`
	} `yaml:"numbered"`
}

// LoadStats counts the rows a Load inserted.
type LoadStats struct {
	Observations int `json:"observations"`
	Orbits       int `json:"orbits"`
	Numbered     int `json:"numbered"`
}

// Load parses a YAML dump and appends it to the store.
func (s Store) Load(ctx context.Context, data []byte) (LoadStats, error) {
	var d Dump
	if err := yaml.Unmarshal(data, &d); err != nil {
		return LoadStats{}, fmt.Errorf("parse dump: %w", err)
	}
	obs := make([]domain.Observation, 0, len(d.Observations))
	for i, o := range d.Observations {
		if o.ObsTime.IsZero() {
			return LoadStats{}, fmt.Errorf("observation %d: obstime is required", i)
		}
		obs = append(obs, domain.Observation{
			ObsID:         o.ObsID,
			PermanentID:   o.PermID,
			ProvisionalID: o.ProvID,
			TrackletID:    o.TrkID,
			Time:          o.ObsTime.UTC(),
			RA:            o.RA,
			Dec:           o.Dec,
			Mag:           o.Mag,
			Band:          o.Band,
			Station:       o.Stn,
			Discovery:     o.Disc == "*",
		})
	}
	if _, err := s.InsertObservations(ctx, obs); err != nil {
		return LoadStats{}, err
	}
	for _, o := range d.Orbits {
		if err := s.InsertOrbit(ctx, o.Designation, o.Q, o.E, o.I, o.H); err != nil {
			return LoadStats{}, fmt.Errorf("orbit %s: %w", o.Designation, err)
		}
	}
	for _, n := range d.Numbered {
		if err := s.InsertNumbered(ctx, n.PermID, n.Designation, n.Name); err != nil {
			return LoadStats{}, fmt.Errorf("numbered %s: %w", n.PermID, err)
		}
	}
	return LoadStats{Observations: len(obs), Orbits: len(d.Orbits), Numbered: len(d.Numbered)}, nil
}
