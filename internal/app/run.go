package app

import (
	"context"
	"fmt"

	"neodisc/internal/domain"
	"neodisc/internal/engine"
	"neodisc/internal/runlog"
)

// RunCatalog resolves the whole catalog as one recorded run. When
// metricsOut is set the metrics textfile is written for aborted runs too;
// a write failure then only gets logged so the abort cause is returned.
func (e *Env) RunCatalog(ctx context.Context, params runlog.EventPayload, metricsOut string) (domain.Run, engine.Result, error) {
	objs, err := e.Catalog.Objects(ctx)
	if err != nil {
		return domain.Run{}, engine.Result{}, fmt.Errorf("load catalog: %w", err)
	}
	p, err := e.Pipeline()
	if err != nil {
		return domain.Run{}, engine.Result{}, err
	}
	w, r := e.RunLog()
	run, err := w.Start(ctx, len(objs), params)
	if err != nil {
		return domain.Run{}, engine.Result{}, err
	}

	res, runErr := p.Run(ctx, objs)
	var metricsErr error
	if metricsOut != "" {
		metricsErr = e.Metrics.WriteTextfile(metricsOut)
	}
	if runErr != nil {
		// the run context may be the cause; record the abort regardless
		actx := context.WithoutCancel(ctx)
		if err := w.Abort(actx, run.ID, runErr); err != nil {
			e.Log.Error("record aborted run", "run", run.ID, "error", err)
		} else if aborted, err := r.Run(actx, run.ID); err == nil {
			run = aborted
		}
		if metricsErr != nil {
			e.Log.Error("write metrics", "path", metricsOut, "error", metricsErr)
		}
		return run, engine.Result{}, runErr
	}
	run, err = w.Finish(ctx, run.ID, res)
	if err != nil {
		return run, res, err
	}
	if metricsErr != nil {
		return run, res, fmt.Errorf("write metrics: %w", metricsErr)
	}
	return run, res, nil
}
