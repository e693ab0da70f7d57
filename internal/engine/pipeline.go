// Package engine resolves catalog objects to their discovery circumstances:
// normalize keys, locate the discovery observation, assemble its tracklet
// and compute the record.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"neodisc/internal/circumstance"
	"neodisc/internal/config"
	"neodisc/internal/domain"
	"neodisc/internal/ident"
	"neodisc/internal/logger"
	"neodisc/internal/metrics"
	"neodisc/internal/obsindex"
	"neodisc/internal/stations"
)

// Gap is an object without any discovery-flagged observation.
type Gap struct {
	Designation string                `json:"designation"`
	Numbered    bool                  `json:"numbered"`
	Keys        []domain.CandidateKey `json:"keys"`
}

// Failure is an object rejected before any lookup, e.g. one carrying no
// usable identifier.
type Failure struct {
	Position int           `json:"position"`
	Object   domain.Object `json:"object"`
	Reason   string        `json:"reason"`
}

type Result struct {
	Records  []circumstance.Record `json:"records"`
	Gaps     []Gap                 `json:"gaps"`
	Failures []Failure             `json:"failures"`
}

type Pipeline struct {
	Locator    Locator
	Assembler  Assembler
	Calculator circumstance.Calculator
	Stations   stations.Directory
	// Workers bounds concurrent objects; zero means GOMAXPROCS.
	Workers int
	// LogEvery logs progress after that many objects; zero disables.
	LogEvery int
	Log      *logger.Logger
	Metrics  *metrics.Metrics
}

// New wires a pipeline over idx from configuration. Log and m may be nil.
func New(idx obsindex.Index, cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (Pipeline, error) {
	bands, err := circumstance.NewBands(cfg.Bands)
	if err != nil {
		return Pipeline{}, err
	}
	calc, err := circumstance.NewCalculator(bands, cfg.Circumstance.RAMean)
	if err != nil {
		return Pipeline{}, err
	}
	return Pipeline{
		Locator:    Locator{Index: idx},
		Assembler:  Assembler{Index: idx, Window: cfg.Tracklet.Window, Source: cfg.Tracklet.Source},
		Calculator: calc,
		Stations:   stations.New(cfg.Stations),
		Workers:    cfg.Pipeline.Workers,
		LogEvery:   cfg.Pipeline.LogEvery,
		Log:        log,
		Metrics:    m,
	}, nil
}

func (p Pipeline) log() *logger.Logger {
	if p.Log != nil {
		return p.Log
	}
	return logger.Nop()
}

func (p Pipeline) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// ResolveOne resolves a single object and returns its rounded record.
// Errors wrap ident.ErrNoIdentifier, ErrNoDiscovery, or the index failure.
func (p Pipeline) ResolveOne(ctx context.Context, obj domain.Object) (circumstance.Record, error) {
	rec, _, err := p.resolve(ctx, obj)
	if err != nil {
		return circumstance.Record{}, err
	}
	return rec.Rounded(), nil
}

func (p Pipeline) resolve(ctx context.Context, obj domain.Object) (circumstance.Record, []domain.CandidateKey, error) {
	keys, err := ident.CandidateKeys(obj)
	if err != nil {
		return circumstance.Record{}, nil, err
	}
	disc, err := p.Locator.Locate(ctx, keys)
	if err != nil {
		return circumstance.Record{}, keys, err
	}
	tracklet, err := p.Assembler.Assemble(ctx, keys, disc)
	if err != nil {
		return circumstance.Record{}, keys, err
	}
	rec, err := p.Calculator.Compute(tracklet)
	if err != nil {
		return circumstance.Record{}, keys, fmt.Errorf("%s: %w", ident.Designation(obj), err)
	}
	if p.Metrics != nil {
		p.Metrics.RecordTracklet(len(tracklet))
	}
	rec.Designation = ident.Designation(obj)
	rec.Numbered = obj.IsNumbered
	rec.Station = disc.Station
	rec.StationName = p.Stations.Name(disc.Station)
	rec.Project = p.Stations.Project(disc.Station)
	rec.DiscoveryTime = disc.Time.UTC()
	rec.DiscoveryYear = disc.Time.UTC().Year()
	rec.DiscoveryMonth = int(disc.Time.UTC().Month())
	rec.H, rec.Q, rec.E, rec.Incl = obj.H, obj.Q, obj.E, obj.Incl
	return rec, keys, nil
}

// Run resolves every object on a bounded worker pool. Unresolved objects
// go to Gaps and objects without identifiers to Failures; both leave the
// run going. The first index error cancels the remaining work and is
// returned with no partial result.
func (p Pipeline) Run(ctx context.Context, objs []domain.Object) (Result, error) {
	log := p.log()
	start := time.Now()
	log.Info("resolution started", "objects", len(objs), "workers", p.workers())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())

	var (
		mu   sync.Mutex
		res  Result
		done int
	)
	for i, obj := range objs {
		if gctx.Err() != nil {
			break
		}
		i, obj := i, obj
		g.Go(func() error {
			rec, keys, err := p.resolve(gctx, obj)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.Records = append(res.Records, rec.Rounded())
				p.record(metrics.OutcomeResolved)
			case errors.Is(err, ErrNoDiscovery):
				gap := Gap{Designation: ident.Designation(obj), Numbered: obj.IsNumbered, Keys: keys}
				res.Gaps = append(res.Gaps, gap)
				p.record(metrics.OutcomeUnresolved)
				log.Warn("no discovery observation", "designation", gap.Designation, "keys", len(keys))
			case errors.Is(err, ident.ErrNoIdentifier):
				res.Failures = append(res.Failures, Failure{Position: i, Object: obj, Reason: err.Error()})
				p.record(metrics.OutcomeFailed)
				log.Warn("object rejected", "position", i, "error", err)
			default:
				return err
			}
			done++
			if p.LogEvery > 0 && done%p.LogEvery == 0 {
				log.Info("resolution progress", "done", done, "total", len(objs))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("resolution aborted", "error", err, "done", done)
		return Result{}, err
	}
	// the loop stops early only on cancellation of the parent
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	sortResult(&res)
	log.Info("resolution finished",
		"resolved", len(res.Records), "gaps", len(res.Gaps), "failures", len(res.Failures),
		"elapsed", time.Since(start).String())
	return res, nil
}

func (p Pipeline) record(outcome string) {
	if p.Metrics != nil {
		p.Metrics.RecordObject(outcome)
	}
}

func sortResult(res *Result) {
	sort.SliceStable(res.Records, func(i, j int) bool {
		return ident.Less(recordObject(res.Records[i].Designation, res.Records[i].Numbered),
			recordObject(res.Records[j].Designation, res.Records[j].Numbered))
	})
	sort.SliceStable(res.Gaps, func(i, j int) bool {
		return ident.Less(recordObject(res.Gaps[i].Designation, res.Gaps[i].Numbered),
			recordObject(res.Gaps[j].Designation, res.Gaps[j].Numbered))
	})
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].Position < res.Failures[j].Position })
}

func recordObject(desig string, numbered bool) domain.Object {
	if numbered {
		return domain.Object{IsNumbered: true, PermanentID: desig}
	}
	return domain.Object{ProvisionalID: desig}
}
