package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"neodisc/internal/catalog"
	"neodisc/internal/config"
	"neodisc/internal/db"
	"neodisc/internal/domain"
	"neodisc/internal/engine"
	"neodisc/internal/ident"
	"neodisc/internal/logger"
	"neodisc/internal/metrics"
	"neodisc/internal/migrate"
	"neodisc/internal/obsindex"
	"neodisc/internal/pgstore"
	"neodisc/internal/runlog"
	"neodisc/internal/store"
)

// Overrides are command-line values layered over neodisc.yml. Zero values
// leave the file setting alone.
type Overrides struct {
	Backend        string
	DSN            string
	CatalogFile    string
	MaxQ           *float64
	Workers        *int
	RAMean         string
	TrackletSource string
}

// ResolveConfig loads the workspace config, or defaults when there is no
// file, and applies overrides.
func ResolveConfig(workspace string, o Overrides) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if o.Backend != "" {
		cfg.Index.Backend = o.Backend
	}
	if o.DSN != "" {
		cfg.Index.DSN = o.DSN
	}
	if o.CatalogFile != "" {
		cfg.Catalog.File = o.CatalogFile
	}
	if o.MaxQ != nil {
		cfg.Catalog.MaxQ = *o.MaxQ
	}
	if o.Workers != nil {
		cfg.Pipeline.Workers = *o.Workers
	}
	if o.RAMean != "" {
		cfg.Circumstance.RAMean = o.RAMean
	}
	if o.TrackletSource != "" {
		cfg.Tracklet.Source = o.TrackletSource
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type identifier interface {
	Identify(ctx context.Context, obj domain.Object) (domain.Object, error)
}

// Env holds what one command needs: the workspace database, the decorated
// observation index, the catalog and the run log.
type Env struct {
	Config  *config.Config
	DB      *sql.DB
	Index   obsindex.Index
	Catalog catalog.Source
	Metrics *metrics.Metrics
	Log     *logger.Logger

	identify identifier
	closers  []func()
}

// Open prepares the workspace database and connects the configured backend.
// The index stack is backend, instrumentation, retry, then cache, so cache
// hits skip retries and every attempt is measured.
func Open(ctx context.Context, workspace string, cfg *config.Config, log *logger.Logger) (*Env, error) {
	if log == nil {
		log = logger.Nop()
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	env := &Env{Config: cfg, DB: conn, Log: log}
	env.closers = append(env.closers, func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		env.Close()
		return nil, err
	}
	m, err := metrics.New(nil)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Metrics = m

	var (
		backend obsindex.Index
		query   catalog.QueryFunc
	)
	switch cfg.Index.Backend {
	case config.BackendPostgres:
		pg, err := pgstore.Open(ctx, pgstore.Config{DSN: cfg.Index.DSN, MaxConns: maxConns(cfg)})
		if err != nil {
			env.Close()
			return nil, fmt.Errorf("postgres index: %w", err)
		}
		env.closers = append(env.closers, pg.Close)
		backend, query, env.identify = pg, pg.Objects, pg
	default:
		s := store.Store{DB: conn}
		if dir := strings.TrimSpace(cfg.Index.DSN); dir != "" {
			// a separate workspace holding a prepared observation store
			ro, err := db.Open(db.Config{Workspace: dir, ReadOnly: true})
			if err != nil {
				env.Close()
				return nil, fmt.Errorf("sqlite index: %w", err)
			}
			env.closers = append(env.closers, func() { ro.Close() })
			s = store.Store{DB: ro}
		}
		backend, query, env.identify = s, s.Objects, s
	}
	log.Debug("observation index ready", "backend", cfg.Index.Backend)

	var idx obsindex.Index = obsindex.NewInstrumented(backend, m)
	idx = obsindex.NewRetrying(idx, obsindex.RetryPolicy{
		Attempts: cfg.Index.RetryAttempts,
		Timeout:  cfg.Index.LookupTimeout,
	}, log)
	if cfg.Index.CacheTTL > 0 {
		idx = obsindex.NewCached(idx, cfg.Index.CacheTTL, cfg.Index.CacheEntries, m)
	}
	env.Index = idx

	if cfg.Catalog.File != "" {
		static, err := catalog.FromFile(cfg.Catalog.File)
		if err != nil {
			env.Close()
			return nil, fmt.Errorf("catalog file: %w", err)
		}
		env.Catalog = static
	} else {
		env.Catalog = catalog.Perihelion(query, cfg.Catalog.MaxQ)
	}
	return env, nil
}

// the pool serves at most one lookup per worker plus headroom for the catalog query
func maxConns(cfg *config.Config) int32 {
	if cfg.Pipeline.Workers > 0 {
		return int32(cfg.Pipeline.Workers + 1)
	}
	return 0
}

func (e *Env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

func (e *Env) Pipeline() (engine.Pipeline, error) {
	return engine.New(e.Index, e.Config, e.Log, e.Metrics)
}

func (e *Env) RunLog() (runlog.Writer, runlog.Reader) {
	return runlog.Writer{DB: e.DB}, runlog.Reader{DB: e.DB}
}

// Identify turns a command-line designation into a catalog object, filling
// the numbered cross-reference from the backend when it knows one.
func (e *Env) Identify(ctx context.Context, desig string) (domain.Object, error) {
	obj := ident.FromDesignation(desig)
	if _, err := ident.CandidateKeys(obj); err != nil {
		return obj, err
	}
	if e.identify == nil {
		return obj, nil
	}
	full, err := e.identify.Identify(ctx, obj)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, pgstore.ErrNotFound) {
		// observations may still be filed under the bare number
		e.Log.Debug("no cross-reference", "designation", desig)
		return obj, nil
	}
	return full, err
}
