package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"neodisc/internal/domain"
	"neodisc/internal/engine"
)

var ErrNotFound = errors.New("run not found")

type Reader struct {
	DB *sql.DB
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const runColumns = `id,started_at,finished_at,status,objects,resolved,unresolved,failed`

func scanRun(scan func(dest ...any) error) (domain.Run, error) {
	var r domain.Run
	var finished sql.NullString
	if err := scan(&r.ID, &r.StartedAt, &finished, &r.Status, &r.Objects, &r.Resolved, &r.Unresolved, &r.Failed); err != nil {
		return r, err
	}
	if finished.Valid {
		r.FinishedAt = &finished.String
	}
	return r, nil
}

func getRun(ctx context.Context, q rowQueryer, id string) (domain.Run, error) {
	r, err := scanRun(q.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=?`, id).Scan)
	if err == sql.ErrNoRows {
		return r, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, err
}

func (r Reader) Run(ctx context.Context, id string) (domain.Run, error) {
	return getRun(ctx, r.DB, id)
}

// Runs lists runs, most recent first.
func (r Reader) Runs(ctx context.Context, limit int) ([]domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, run)
	}
	return res, rows.Err()
}

func (r Reader) LatestRun(ctx context.Context) (domain.Run, error) {
	runs, err := r.Runs(ctx, 1)
	if err != nil {
		return domain.Run{}, err
	}
	if len(runs) == 0 {
		return domain.Run{}, ErrNotFound
	}
	return runs[0], nil
}

// Gaps returns the gap report recorded for runID, in report order.
func (r Reader) Gaps(ctx context.Context, runID string) ([]engine.Gap, error) {
	if _, err := r.Run(ctx, runID); err != nil {
		return nil, err
	}
	events, err := r.Events(ctx, runID, EventUnresolved)
	if err != nil {
		return nil, err
	}
	gaps := make([]engine.Gap, 0, len(events))
	for _, e := range events {
		var p struct {
			Numbered bool                  `json:"numbered"`
			Keys     []domain.CandidateKey `json:"keys"`
		}
		if err := json.Unmarshal([]byte(e.Payload), &p); err != nil {
			return nil, fmt.Errorf("event %d: %w", e.ID, err)
		}
		gaps = append(gaps, engine.Gap{Designation: e.Designation, Numbered: p.Numbered, Keys: p.Keys})
	}
	return gaps, nil
}

// Failures returns the objects rejected in runID.
func (r Reader) Failures(ctx context.Context, runID string) ([]engine.Failure, error) {
	events, err := r.Events(ctx, runID, EventFailed)
	if err != nil {
		return nil, err
	}
	out := make([]engine.Failure, 0, len(events))
	for _, e := range events {
		var f engine.Failure
		if err := json.Unmarshal([]byte(e.Payload), &f); err != nil {
			return nil, fmt.Errorf("event %d: %w", e.ID, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// Events lists the events of a run, optionally restricted to one type.
func (r Reader) Events(ctx context.Context, runID, evtType string) ([]domain.RunEvent, error) {
	query := `SELECT id,run_id,ts,type,COALESCE(designation,''),payload_json FROM run_events WHERE run_id=?`
	args := []any{runID}
	if evtType != "" {
		query += ` AND type=?`
		args = append(args, evtType)
	}
	query += ` ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RunEvent
	for rows.Next() {
		var e domain.RunEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.TS, &e.Type, &e.Designation, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
