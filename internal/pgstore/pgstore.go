// Package pgstore reads observations and the NEO catalog from an MPC/SBN
// replica over pgx. Sessions are opened read-only.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"neodisc/internal/domain"
)

type Config struct {
	DSN string
	// MaxConns caps the pool; zero leaves the pgxpool default.
	MaxConns int32
}

type Store struct {
	Pool *pgxpool.Pool
}

var ErrNotFound = errors.New("not found")

// Open connects a pool and verifies it with a ping.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"
	pc.ConnConfig.RuntimeParams["application_name"] = "neodisc"
	pc.ConnConfig.RuntimeParams["timezone"] = "UTC"
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	if s != nil && s.Pool != nil {
		s.Pool.Close()
	}
}

const obsSelect = `SELECT id, COALESCE(obsid,''), COALESCE(permid,''), COALESCE(provid,''),
       COALESCE(NULLIF(trkid,''),''), obstime,
       ra::double precision, dec::double precision, mag::double precision,
       band, COALESCE(stn,''), COALESCE(disc,'')
FROM obs_sbn`

func (s *Store) LookupByPermanent(ctx context.Context, id string) ([]domain.Observation, error) {
	return s.queryObservations(ctx, obsSelect+` WHERE permid = $1`, id)
}

func (s *Store) LookupByProvisional(ctx context.Context, id string) ([]domain.Observation, error) {
	return s.queryObservations(ctx, obsSelect+` WHERE provid = $1`, id)
}

func (s *Store) LookupByTracklet(ctx context.Context, id string) ([]domain.Observation, error) {
	if id == "" {
		return nil, nil
	}
	return s.queryObservations(ctx, obsSelect+` WHERE trkid = $1`, id)
}

func (s *Store) queryObservations(ctx context.Context, query string, args ...any) ([]domain.Observation, error) {
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func scanObservation(rows pgx.Rows) (domain.Observation, error) {
	var (
		o    domain.Observation
		t    time.Time
		mag  *float64
		disc string
	)
	if err := rows.Scan(&o.ID, &o.ObsID, &o.PermanentID, &o.ProvisionalID, &o.TrackletID, &t,
		&o.RA, &o.Dec, &mag, &o.Band, &o.Station, &disc); err != nil {
		return o, err
	}
	o.Time = t.UTC()
	o.Mag = mag
	o.Discovery = disc == "*"
	return o, nil
}

// Objects lists NEO catalog entries with q <= maxQ (all when maxQ <= 0),
// joining numbered identifications on the packed principal designation.
func (s *Store) Objects(ctx context.Context, maxQ float64) ([]domain.Object, error) {
	rows, err := s.Pool.Query(ctx, `SELECT mo.unpacked_primary_provisional_designation,
       COALESCE(ni.permid, ''), `+orbitColumns+`
FROM mpc_orbits mo
LEFT JOIN numbered_identifications ni
  ON ni.packed_primary_provisional_designation = mo.packed_primary_provisional_designation
WHERE $1::double precision <= 0 OR mo.q <= $1::double precision`, maxQ)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Object
	for rows.Next() {
		var (
			desig, permid string
			h, q, e, incl *float64
		)
		if err := rows.Scan(&desig, &permid, &h, &q, &e, &incl); err != nil {
			return nil, err
		}
		o := domain.Object{}
		if strings.TrimSpace(permid) != "" {
			o.IsNumbered = true
			o.PermanentID = permid
			o.CrossProvisionalID = desig
		} else {
			o.ProvisionalID = desig
		}
		setOrbit(&o, h, q, e, incl)
		res = append(res, o)
	}
	return res, rows.Err()
}

// Identify completes obj with its numbered cross-reference, in either
// direction, and the catalog orbit when one exists. An unknown number is an
// error; an unknown provisional designation is returned unchanged.
func (s *Store) Identify(ctx context.Context, obj domain.Object) (domain.Object, error) {
	if obj.IsNumbered {
		var prov *string
		err := s.Pool.QueryRow(ctx, `SELECT unpacked_primary_provisional_designation FROM numbered_identifications WHERE permid = $1`, obj.PermanentID).Scan(&prov)
		if errors.Is(err, pgx.ErrNoRows) {
			return obj, fmt.Errorf("number %s: %w", obj.PermanentID, ErrNotFound)
		}
		if err != nil {
			return obj, err
		}
		if prov != nil {
			obj.CrossProvisionalID = *prov
		}
		return obj, s.attachOrbit(ctx, &obj, obj.CrossProvisionalID)
	}
	desig := obj.ProvisionalID
	var permid string
	err := s.Pool.QueryRow(ctx, `SELECT permid FROM numbered_identifications WHERE unpacked_primary_provisional_designation = $1`, desig).Scan(&permid)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return obj, err
	default:
		obj = domain.Object{IsNumbered: true, PermanentID: permid, CrossProvisionalID: desig}
	}
	return obj, s.attachOrbit(ctx, &obj, desig)
}

const orbitColumns = `mo.h::double precision, mo.q::double precision, mo.e::double precision, mo.i::double precision`

func (s *Store) attachOrbit(ctx context.Context, obj *domain.Object, desig string) error {
	if desig == "" {
		return nil
	}
	var h, q, e, incl *float64
	err := s.Pool.QueryRow(ctx, `SELECT `+orbitColumns+` FROM mpc_orbits mo WHERE mo.unpacked_primary_provisional_designation = $1`, desig).Scan(&h, &q, &e, &incl)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	setOrbit(obj, h, q, e, incl)
	return nil
}

func setOrbit(o *domain.Object, h, q, e, incl *float64) {
	// H <= 0 marks an unknown magnitude in mpc_orbits
	if h != nil && *h > 0 {
		o.H = h
	}
	o.Q, o.E, o.Incl = q, e, incl
}
