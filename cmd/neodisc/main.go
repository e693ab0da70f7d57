package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"neodisc/internal/app"
	"neodisc/internal/circumstance"
	"neodisc/internal/config"
	"neodisc/internal/db"
	"neodisc/internal/domain"
	"neodisc/internal/engine"
	"neodisc/internal/logger"
	"neodisc/internal/migrate"
	"neodisc/internal/runlog"
	"neodisc/internal/store"
)

var log = logger.Nop()

var rootCmd = &cobra.Command{
	Use:   "neodisc",
	Short: "Resolve NEO discovery circumstances",
	Long: `neodisc finds the discovery observation of every near-Earth object in a
catalog, assembles the observations of its discovery tracklet, and reports
mean position and epoch, band-corrected median V magnitude, arc span, and the
rate and direction of motion. Objects without a discovery-flagged observation
are listed in a gap report.

The observation index is either the workspace SQLite store (.neodisc/neodisc.db)
or a read-only PostgreSQL replica of the MPC/SBN tables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logger.New(viper.GetString("log-level"), viper.GetString("log-format"))
		if err != nil {
			return err
		}
		log = l
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	// interrupt aborts a run; the run log records it as aborted
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("NEODISC")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(loadCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(gapsCmd())
	rootCmd.AddCommand(runsCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the workspace database and a default neodisc.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			rep, err := migrate.Apply(cmd.Context(), conn)
			if err != nil {
				return err
			}
			path := config.Path(workspace)
			created := false
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(path, []byte(config.DefaultYAML), 0o644); err != nil {
					return err
				}
				created = true
			} else if err != nil {
				return err
			}
			out := map[string]any{
				"database":       db.Path(workspace),
				"schema":         rep,
				"config":         path,
				"config_created": created,
			}
			if viper.GetBool("json") {
				return printJSON(out)
			}
			fmt.Printf("workspace ready: %s (schema v%d, %d migrations applied)\n", db.Path(workspace), rep.To, len(rep.Applied))
			if created {
				fmt.Printf("wrote default config %s\n", path)
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long:  "Configuration lives in neodisc.yml in the workspace; missing keys take their defaults. Band offsets, the tracklet window and station names are all set here.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate neodisc.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.LoadOptional(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <dump.yml>",
		Short: "Append observations, orbits and identifications to the workspace store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withDB(cmd.Context(), func(ctx context.Context, conn *sql.DB) error {
				stats, err := store.Store{DB: conn}.Load(ctx, data)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				fmt.Printf("loaded %d observations, %d orbits, %d numbered identifications\n",
					stats.Observations, stats.Orbits, stats.Numbered)
				return nil
			})
		},
	}
}

type runFlags struct {
	backend, dsn, catalog, raMean, trackletSource, metricsOut string
	maxQ                                                      float64
	workers                                                   int
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.backend, "backend", "", "observation index backend (sqlite, postgres)")
	cmd.Flags().StringVar(&f.dsn, "dsn", "", "postgres DSN, or a workspace directory holding a sqlite store")
	cmd.Flags().StringVar(&f.raMean, "ra-mean", "", "right ascension averaging (arithmetic, circular)")
	cmd.Flags().StringVar(&f.trackletSource, "tracklet-source", "", "tracklet assembly (keys, tracklet)")
	cmd.Flags().StringVar(&f.metricsOut, "metrics-out", "", "write Prometheus metrics to this textfile")
}

func (f *runFlags) overrides(cmd *cobra.Command) app.Overrides {
	o := app.Overrides{
		Backend:        f.backend,
		DSN:            f.dsn,
		CatalogFile:    f.catalog,
		RAMean:         f.raMean,
		TrackletSource: f.trackletSource,
	}
	if cmd.Flags().Changed("max-q") {
		o.MaxQ = &f.maxQ
	}
	if cmd.Flags().Changed("workers") {
		o.Workers = &f.workers
	}
	return o
}

func runCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resolve discovery circumstances for the whole catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), f.overrides(cmd), func(ctx context.Context, env *app.Env) error {
				run, res, err := env.RunCatalog(ctx, runlog.EventPayload{
					"backend":         env.Config.Index.Backend,
					"catalog_file":    env.Config.Catalog.File,
					"max_q":           env.Config.Catalog.MaxQ,
					"ra_mean":         env.Config.Circumstance.RAMean,
					"tracklet_source": env.Config.Tracklet.Source,
					"window":          env.Config.Tracklet.Window.String(),
				}, f.metricsOut)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"run": run, "records": res.Records, "gaps": res.Gaps, "failures": res.Failures})
				}
				printRecords(res.Records)
				fmt.Printf("run %s: %d resolved, %d gaps, %d failures\n", run.ID, run.Resolved, run.Unresolved, run.Failed)
				return nil
			})
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&f.catalog, "catalog", "", "YAML object list to resolve instead of the store catalog")
	cmd.Flags().Float64Var(&f.maxQ, "max-q", 0, "perihelion distance limit (au) for the store catalog; 0 disables")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "concurrent objects (0 = GOMAXPROCS)")
	return cmd
}

func resolveCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "resolve <designation>",
		Short: "Resolve one object by number or provisional designation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), f.overrides(cmd), func(ctx context.Context, env *app.Env) error {
				obj, err := env.Identify(ctx, args[0])
				if err != nil {
					return err
				}
				p, err := env.Pipeline()
				if err != nil {
					return err
				}
				rec, err := p.ResolveOne(ctx, obj)
				if errors.Is(err, engine.ErrNoDiscovery) {
					return fmt.Errorf("%s: no discovery observation under any of its designations", args[0])
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rec)
				}
				printRecord(obj, rec)
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func gapsCmd() *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "gaps",
		Short: "List objects without a discovery observation in a recorded run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunLog(cmd.Context(), func(ctx context.Context, r runlog.Reader) error {
				if runID == "" {
					latest, err := r.LatestRun(ctx)
					if err != nil {
						return err
					}
					runID = latest.ID
				}
				gaps, err := r.Gaps(ctx, runID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(gaps)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Designation", "Numbered", "Keys"})
				for _, g := range gaps {
					keys := make([]string, len(g.Keys))
					for i, k := range g.Keys {
						keys[i] = k.String()
					}
					tw.AppendRow(table.Row{g.Designation, g.Numbered, strings.Join(keys, ", ")})
				}
				tw.AppendFooter(table.Row{"run " + runID, "", fmt.Sprintf("%d gaps", len(gaps))})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id (default: latest)")
	return cmd
}

func runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunLog(cmd.Context(), func(ctx context.Context, r runlog.Reader) error {
				runs, err := r.Runs(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(runs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Started", "Status", "Objects", "Resolved", "Gaps", "Failed"})
				for _, run := range runs {
					tw.AppendRow(table.Row{run.ID, run.StartedAt, run.Status, run.Objects, run.Resolved, run.Unresolved, run.Failed})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list (0 = all)")
	return cmd
}

func withEnv(ctx context.Context, o app.Overrides, fn func(context.Context, *app.Env) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := app.ResolveConfig(workspace, o)
	if err != nil {
		return err
	}
	env, err := app.Open(ctx, workspace, cfg, log)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env)
}

func withDB(ctx context.Context, fn func(context.Context, *sql.DB) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, conn)
}

func withRunLog(ctx context.Context, fn func(context.Context, runlog.Reader) error) error {
	return withDB(ctx, func(ctx context.Context, conn *sql.DB) error {
		return fn(ctx, runlog.Reader{DB: conn})
	})
}

func printRecords(recs []circumstance.Record) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Designation", "Station", "Project", "Discovered", "MJD", "RA", "Dec", "V", "N", "Span h", "Rate °/d", "PA °", "H", "q"})
	for _, r := range recs {
		tw.AppendRow(table.Row{
			r.Designation, r.Station, r.Project, r.DiscoveryTime.Format("2006-01-02 15:04"),
			r.MeanEpoch, r.MeanRA, r.MeanDec, optional(r.MedianV), r.Count, r.SpanHours,
			optional(r.Rate), optional(r.PositionAngle), optional(r.H), optional(r.Q),
		})
	}
	tw.Render()
}

func printRecord(obj domain.Object, r circumstance.Record) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendRows([]table.Row{
		{"Designation", r.Designation},
		{"Cross-reference", obj.CrossProvisionalID},
		{"Station", fmt.Sprintf("%s (%s)", r.Station, r.StationName)},
		{"Project", r.Project},
		{"Discovered", r.DiscoveryTime.Format("2006-01-02 15:04:05")},
		{"Mean epoch (MJD)", r.MeanEpoch},
		{"Mean RA / Dec", fmt.Sprintf("%v / %v", r.MeanRA, r.MeanDec)},
		{"Median V", optional(r.MedianV)},
		{"Observations", r.Count},
		{"Span (h)", r.SpanHours},
		{"Rate (°/day)", optional(r.Rate)},
		{"Position angle (°)", optional(r.PositionAngle)},
		{"H", optional(r.H)},
		{"q (au) / e / i (°)", fmt.Sprintf("%v / %v / %v", optional(r.Q), optional(r.E), optional(r.Incl))},
	})
	tw.Render()
}

func optional(v *float64) any {
	if v == nil {
		return "-"
	}
	return *v
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
