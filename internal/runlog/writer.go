// Package runlog records resolution runs and their gap reports in the
// workspace database.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"neodisc/internal/domain"
	"neodisc/internal/engine"
)

// Event types.
const (
	EventRunStart   = "run.start"
	EventUnresolved = "object.unresolved"
	EventFailed     = "object.failed"
	EventRunFinish  = "run.finish"
	EventRunAbort   = "run.abort"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
)

type Writer struct {
	DB    *sql.DB
	Now   func() time.Time
	NewID func() string
}

type EventPayload map[string]any

func (w Writer) now() string {
	if w.Now == nil {
		w.Now = time.Now
	}
	return w.Now().UTC().Format(time.RFC3339)
}

func (w Writer) newID() string {
	if w.NewID != nil {
		return w.NewID()
	}
	return uuid.NewString()
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, runID, evtType, designation string, payload EventPayload) error {
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO run_events(run_id,ts,type,designation,payload_json) VALUES (?,?,?,?,?)`,
		runID, w.now(), evtType, nullable(designation), string(data))
	return err
}

// Start opens a run covering objects catalog entries. params is stored with
// the start event for later inspection.
func (w Writer) Start(ctx context.Context, objects int, params EventPayload) (domain.Run, error) {
	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Run{}, err
	}
	defer tx.Rollback()

	run := domain.Run{
		ID:        w.newID(),
		StartedAt: w.now(),
		Status:    StatusRunning,
		Objects:   objects,
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO runs(id,started_at,status,objects) VALUES (?,?,?,?)`,
		run.ID, run.StartedAt, run.Status, run.Objects); err != nil {
		return domain.Run{}, fmt.Errorf("insert run: %w", err)
	}
	if err := w.Append(ctx, tx, run.ID, EventRunStart, "", params); err != nil {
		return domain.Run{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Run{}, err
	}
	return run, nil
}

// Finish stores the gap report and failures of res and closes the run as
// completed.
func (w Writer) Finish(ctx context.Context, runID string, res engine.Result) (domain.Run, error) {
	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Run{}, err
	}
	defer tx.Rollback()

	for _, g := range res.Gaps {
		if err := w.Append(ctx, tx, runID, EventUnresolved, g.Designation, EventPayload{
			"numbered": g.Numbered,
			"keys":     g.Keys,
		}); err != nil {
			return domain.Run{}, err
		}
	}
	for _, f := range res.Failures {
		if err := w.Append(ctx, tx, runID, EventFailed, "", EventPayload{
			"position": f.Position,
			"object":   f.Object,
			"reason":   f.Reason,
		}); err != nil {
			return domain.Run{}, err
		}
	}
	counts := EventPayload{
		"resolved":   len(res.Records),
		"unresolved": len(res.Gaps),
		"failed":     len(res.Failures),
	}
	if err := w.close(ctx, tx, runID, StatusCompleted, len(res.Records), len(res.Gaps), len(res.Failures)); err != nil {
		return domain.Run{}, err
	}
	if err := w.Append(ctx, tx, runID, EventRunFinish, "", counts); err != nil {
		return domain.Run{}, err
	}
	run, err := getRun(ctx, tx, runID)
	if err != nil {
		return domain.Run{}, err
	}
	return run, tx.Commit()
}

// Abort closes the run as aborted with cause recorded.
func (w Writer) Abort(ctx context.Context, runID string, cause error) error {
	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := w.close(ctx, tx, runID, StatusAborted, 0, 0, 0); err != nil {
		return err
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := w.Append(ctx, tx, runID, EventRunAbort, "", EventPayload{"error": msg}); err != nil {
		return err
	}
	return tx.Commit()
}

func (w Writer) close(ctx context.Context, tx *sql.Tx, runID, status string, resolved, unresolved, failed int) error {
	res, err := tx.ExecContext(ctx, `UPDATE runs SET status=?, finished_at=?, resolved=?, unresolved=?, failed=? WHERE id=? AND status=?`,
		status, w.now(), resolved, unresolved, failed, runID, StatusRunning)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
