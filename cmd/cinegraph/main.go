// Package main provides the CineGraph CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/orneryd/cinegraph/pkg/bench"
	"github.com/orneryd/cinegraph/pkg/config"
	"github.com/orneryd/cinegraph/pkg/logging"
	"github.com/orneryd/cinegraph/pkg/metrics"
	"github.com/orneryd/cinegraph/pkg/snapshot"
	"github.com/orneryd/cinegraph/pkg/storage"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// app carries state shared by every subcommand once the root's
// PersistentPreRunE has run.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	metrics *metrics.Recorder
}

var modeShort = map[bench.Mode]string{
	bench.ModeLoad:        "Load the dataset <repetitions> times",
	bench.ModeUpdate:      "Load the dataset and run an update cycle <repetitions> times",
	bench.ModeQuery:       "Load the dataset once and run <repetitions> query passes",
	bench.ModeUpdateQuery: "Load, run one update cycle, then run <repetitions> query passes",
}

func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "cinegraph",
		Short: "CineGraph - in-memory movie graph workload",
		Long: `CineGraph loads a movie/actor/director dataset into an in-memory graph
store, runs bulk updates and analytical queries over it, and reports how
long every phase took.

Dataset directory layout (';'-separated, one header line each):
  movies.csv, actors.csv, directors.csv,
  movies_directors.csv, movies_genres.csv, roles.csv`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (default: $CINEGRAPH_CONFIG or ./cinegraph.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().String("format", "", "Report format: text, json, yaml")
	rootCmd.PersistentFlags().String("metrics-file", "", "Write Prometheus text metrics here when done")
	rootCmd.PersistentFlags().Bool("prune-index", false, "Remove deleted actors from the name index")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("CineGraph v%s (%s)\n", version, commit)
		},
	})

	for _, mode := range bench.Modes {
		rootCmd.AddCommand(&cobra.Command{
			Use:   string(mode) + " <repetitions> [input dir]",
			Short: modeShort[mode],
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runMode(cmd, mode, args)
			},
		})
	}

	saveCmd := &cobra.Command{
		Use:   "save [input dir]",
		Short: "Load the dataset and write it to the snapshot archive",
		Args:  cobra.MaximumNArgs(1),
		RunE:  a.runSave,
	}
	saveCmd.Flags().Bool("updated", false, "Run an update cycle before saving")
	rootCmd.AddCommand(saveCmd)

	restoreCmd := &cobra.Command{
		Use:   "restore",
		Short: "Load the snapshot archive and optionally query it",
		Args:  cobra.NoArgs,
		RunE:  a.runRestore,
	}
	restoreCmd.Flags().Int("queries", 0, "Query passes to run against the restored store")
	rootCmd.AddCommand(restoreCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// setup loads configuration, applies flag overrides and initializes logging.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("format") {
		cfg.Report.Format, _ = flags.GetString("format")
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.File, _ = flags.GetString("metrics-file")
	}
	if flags.Changed("prune-index") {
		cfg.Index.PruneOnDelete, _ = flags.GetBool("prune-index")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Init(cfg.Log.LoggingConfig())
	a.cfg = cfg
	a.log = logging.Component("cli")
	a.metrics = metrics.NewRecorder()
	a.log.Debug().Str("config", cfg.String()).Msg("configuration loaded")
	return nil
}

func (a *app) runner() *bench.Runner {
	return bench.NewRunner(bench.Options{
		Plan:    a.cfg.Update,
		Store:   a.cfg.StoreOptions(),
		Metrics: a.metrics,
		Logger:  logging.Logger(),
	})
}

func (a *app) dataDir(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if a.cfg.Data.Dir != "" {
		return a.cfg.Data.Dir, nil
	}
	return "", fmt.Errorf("no input directory: pass one or set data.dir")
}

func (a *app) runMode(cmd *cobra.Command, mode bench.Mode, args []string) error {
	repetitions, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid repetitions %q: %w", args[0], err)
	}
	dir, err := a.dataDir(args[1:])
	if err != nil {
		return err
	}

	report, err := a.runner().Run(cmd.Context(), mode, repetitions, dir)
	if err != nil {
		return err
	}
	if err := bench.NewReporter(cmd.OutOrStdout(), a.cfg.Report.Format).Print(report); err != nil {
		return err
	}
	return a.writeMetrics()
}

func (a *app) openArchive() (*snapshot.Archive, error) {
	return snapshot.Open(snapshot.Options{
		Dir:        a.cfg.Snapshot.Dir,
		SyncWrites: a.cfg.Snapshot.SyncWrites,
		Logger:     logging.Logger(),
	})
}

func (a *app) runSave(cmd *cobra.Command, args []string) error {
	dir, err := a.dataDir(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	runner := a.runner()

	store, _, err := runner.Load(ctx, dir)
	if err != nil {
		return err
	}
	if updated, _ := cmd.Flags().GetBool("updated"); updated {
		if _, _, err := runner.Update(ctx, store); err != nil {
			return err
		}
	}

	archive, err := a.openArchive()
	if err != nil {
		return err
	}
	defer archive.Close()

	manifest, err := archive.Save(ctx, store)
	if err != nil {
		return err
	}
	if err := a.printManifest(cmd, manifest); err != nil {
		return err
	}
	return a.writeMetrics()
}

func (a *app) runRestore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	archive, err := a.openArchive()
	if err != nil {
		return err
	}
	defer archive.Close()

	store, manifest, err := archive.Load(ctx, a.cfg.StoreOptions())
	if err != nil {
		return err
	}
	if err := a.printManifest(cmd, manifest); err != nil {
		return err
	}

	passes, _ := cmd.Flags().GetInt("queries")
	if passes > 0 {
		if err := a.queryRestored(cmd, store, passes); err != nil {
			return err
		}
	}
	return a.writeMetrics()
}

func (a *app) queryRestored(cmd *cobra.Command, store *storage.Store, passes int) error {
	report, err := a.runner().RunStore(cmd.Context(), store, passes)
	if err != nil {
		return err
	}
	report.DataDir = a.cfg.Snapshot.Dir
	return bench.NewReporter(cmd.OutOrStdout(), a.cfg.Report.Format).Print(report)
}

func (a *app) printManifest(cmd *cobra.Command, m *snapshot.Manifest) error {
	w := cmd.OutOrStdout()
	switch a.cfg.Report.Format {
	case bench.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	case bench.FormatYAML:
		return yaml.NewEncoder(w).Encode(m)
	default:
		_, err := fmt.Fprintf(w, "snapshot %s: %d movies, %d actors, %d directors, %d detached, %d links, %d roles\n",
			m.ID, m.Movies, m.Actors, m.Directors, m.Detached, m.Links, m.Roles)
		return err
	}
}

func (a *app) writeMetrics() error {
	if a.cfg.Metrics.File == "" {
		return nil
	}
	if err := a.metrics.WriteFile(a.cfg.Metrics.File); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	a.log.Debug().Str("file", a.cfg.Metrics.File).Msg("metrics written")
	return nil
}
