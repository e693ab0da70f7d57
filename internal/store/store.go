// Package store is the SQLite-backed observation index and object catalog
// kept in a neodisc workspace.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"neodisc/internal/domain"
)

type Store struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const obsColumns = `id,COALESCE(obsid,''),COALESCE(permid,''),COALESCE(provid,''),COALESCE(trkid,''),obstime,ra,dec,mag,band,stn,COALESCE(disc,'')`

func (s Store) LookupByPermanent(ctx context.Context, id string) ([]domain.Observation, error) {
	return s.queryObservations(ctx, `SELECT `+obsColumns+` FROM obs_sbn WHERE permid=? ORDER BY id`, id)
}

func (s Store) LookupByProvisional(ctx context.Context, id string) ([]domain.Observation, error) {
	return s.queryObservations(ctx, `SELECT `+obsColumns+` FROM obs_sbn WHERE provid=? ORDER BY id`, id)
}

func (s Store) LookupByTracklet(ctx context.Context, id string) ([]domain.Observation, error) {
	if id == "" {
		return nil, nil
	}
	return s.queryObservations(ctx, `SELECT `+obsColumns+` FROM obs_sbn WHERE trkid=? ORDER BY id`, id)
}

func (s Store) queryObservations(ctx context.Context, query string, args ...any) ([]domain.Observation, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
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

func scanObservation(rows *sql.Rows) (domain.Observation, error) {
	var (
		o       domain.Observation
		obstime string
		mag     sql.NullFloat64
		band    sql.NullString
		disc    string
	)
	if err := rows.Scan(&o.ID, &o.ObsID, &o.PermanentID, &o.ProvisionalID, &o.TrackletID, &obstime, &o.RA, &o.Dec, &mag, &band, &o.Station, &disc); err != nil {
		return o, err
	}
	t, err := time.Parse(time.RFC3339Nano, obstime)
	if err != nil {
		return o, fmt.Errorf("observation %d: bad obstime %q: %w", o.ID, obstime, err)
	}
	o.Time = t.UTC()
	if mag.Valid {
		v := mag.Float64
		o.Mag = &v
	}
	if band.Valid {
		b := band.String
		o.Band = &b
	}
	o.Discovery = disc == "*"
	return o, nil
}

// InsertObservations appends observations and returns their assigned ids.
// A non-zero ID on input is kept.
func (s Store) InsertObservations(ctx context.Context, obs []domain.Observation) ([]int64, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	ids := make([]int64, 0, len(obs))
	for _, o := range obs {
		var disc any
		if o.Discovery {
			disc = "*"
		}
		var mag, band any
		if o.Mag != nil {
			mag = *o.Mag
		}
		if o.Band != nil {
			band = *o.Band
		}
		var id any
		if o.ID != 0 {
			id = o.ID
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO obs_sbn(id,obsid,permid,provid,trkid,obstime,ra,dec,mag,band,stn,disc) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			id, nullable(o.ObsID), nullable(o.PermanentID), nullable(o.ProvisionalID), nullable(o.TrackletID),
			o.Time.UTC().Format(time.RFC3339Nano), o.RA, o.Dec, mag, band, o.Station, disc)
		if err != nil {
			return nil, fmt.Errorf("insert observation: %w", err)
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, newID)
	}
	return ids, tx.Commit()
}

// InsertNumbered records a number to principal designation cross-reference.
func (s Store) InsertNumbered(ctx context.Context, permID, provisional, iauName string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO numbered_identifications(permid,unpacked_primary_provisional_designation,iau_name) VALUES (?,?,?)
ON CONFLICT(permid) DO UPDATE SET unpacked_primary_provisional_designation=excluded.unpacked_primary_provisional_designation, iau_name=excluded.iau_name`,
		permID, nullable(provisional), nullable(iauName))
	return err
}

// InsertOrbit records a catalog orbit keyed by principal designation.
func (s Store) InsertOrbit(ctx context.Context, provisional string, q, e, i float64, h *float64) error {
	var hv any
	if h != nil {
		hv = *h
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO mpc_orbits(unpacked_primary_provisional_designation,q,e,i,h) VALUES (?,?,?,?,?)
ON CONFLICT(unpacked_primary_provisional_designation) DO UPDATE SET q=excluded.q, e=excluded.e, i=excluded.i, h=excluded.h`,
		provisional, q, e, i, hv)
	return err
}

// Objects lists catalog objects with perihelion distance at most maxQ
// (all objects when maxQ <= 0). Numbered objects carry their principal
// provisional designation as cross-reference.
func (s Store) Objects(ctx context.Context, maxQ float64) ([]domain.Object, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT mo.unpacked_primary_provisional_designation, ni.permid, mo.h, mo.q, mo.e, mo.i
FROM mpc_orbits mo
LEFT JOIN numbered_identifications ni
  ON ni.unpacked_primary_provisional_designation = mo.unpacked_primary_provisional_designation
WHERE ? <= 0 OR mo.q <= ?
ORDER BY mo.unpacked_primary_provisional_designation`, maxQ, maxQ)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Object
	for rows.Next() {
		var (
			desig   string
			permid  sql.NullString
			h, q, e sql.NullFloat64
			incl    sql.NullFloat64
		)
		if err := rows.Scan(&desig, &permid, &h, &q, &e, &incl); err != nil {
			return nil, err
		}
		o := objectFromRow(desig, permid)
		setOrbit(&o, h, q, e, incl)
		res = append(res, o)
	}
	return res, rows.Err()
}

// Identify resolves a designation to a catalog object: a permanent number
// through numbered_identifications, a provisional designation through the
// same table in reverse. The catalog orbit is attached when one is filed
// under the principal designation. Unknown provisional designations are
// returned as unnumbered objects; unknown numbers as ErrNotFound.
func (s Store) Identify(ctx context.Context, obj domain.Object) (domain.Object, error) {
	if obj.IsNumbered {
		var prov sql.NullString
		err := s.DB.QueryRowContext(ctx, `SELECT unpacked_primary_provisional_designation FROM numbered_identifications WHERE permid=?`, obj.PermanentID).Scan(&prov)
		if err == sql.ErrNoRows {
			return obj, fmt.Errorf("number %s: %w", obj.PermanentID, ErrNotFound)
		}
		if err != nil {
			return obj, err
		}
		obj.CrossProvisionalID = prov.String
		return obj, s.attachOrbit(ctx, &obj, principal(obj))
	}
	var permid string
	err := s.DB.QueryRowContext(ctx, `SELECT permid FROM numbered_identifications WHERE unpacked_primary_provisional_designation=?`, obj.ProvisionalID).Scan(&permid)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return obj, err
	default:
		obj = domain.Object{IsNumbered: true, PermanentID: permid, CrossProvisionalID: obj.ProvisionalID}
	}
	return obj, s.attachOrbit(ctx, &obj, principal(obj))
}

// principal is the designation orbits are filed under.
func principal(obj domain.Object) string {
	if obj.IsNumbered {
		return obj.CrossProvisionalID
	}
	return obj.ProvisionalID
}

func (s Store) attachOrbit(ctx context.Context, obj *domain.Object, desig string) error {
	if desig == "" {
		return nil
	}
	var h, q, e, incl sql.NullFloat64
	err := s.DB.QueryRowContext(ctx, `SELECT h,q,e,i FROM mpc_orbits WHERE unpacked_primary_provisional_designation=?`, desig).Scan(&h, &q, &e, &incl)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	setOrbit(obj, h, q, e, incl)
	return nil
}

func objectFromRow(desig string, permid sql.NullString) domain.Object {
	var o domain.Object
	if permid.Valid && strings.TrimSpace(permid.String) != "" {
		o.IsNumbered = true
		o.PermanentID = permid.String
		o.CrossProvisionalID = desig
	} else {
		o.ProvisionalID = desig
	}
	return o
}

func setOrbit(o *domain.Object, h, q, e, incl sql.NullFloat64) {
	// zero and negative H are catalog sentinels for unknown
	if h.Valid && h.Float64 > 0 {
		o.H = &h.Float64
	}
	o.Q = nullFloat(q)
	o.E = nullFloat(e)
	o.Incl = nullFloat(incl)
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
