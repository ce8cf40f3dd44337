// Package bench drives the CineGraph workload: bulk load, update cycles and
// query passes, timing every phase.
//
// Four modes mirror the classic movie-database benchmark:
//
//	load          repeat N times: load the dataset
//	update        repeat N times: load, then run one update cycle
//	query         load once, then run N query passes
//	update-query  load once, run one update cycle, then N query passes
//
// Each phase duration lands in the Report and, when a metrics.Recorder is
// configured, in the cinegraph_phase_duration_seconds histogram. Query
// results are folded into per-query checksums so a pass has observable
// output and two runs over the same data can be compared.
//
// Example Usage:
//
//	runner := bench.NewRunner(bench.Options{
//		Plan:    update.DefaultPlan(),
//		Metrics: metrics.NewRecorder(),
//		Logger:  logging.Logger(),
//	})
//	report, err := runner.Run(ctx, bench.ModeUpdateQuery, 3, "./data/imdb")
//	if err != nil {
//		return err
//	}
//	bench.NewReporter(os.Stdout, "text").Print(report)
package bench

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/orneryd/cinegraph/pkg/csvload"
	"github.com/orneryd/cinegraph/pkg/metrics"
	"github.com/orneryd/cinegraph/pkg/storage"
	"github.com/orneryd/cinegraph/pkg/update"
)

// Mode selects which phases a run executes.
type Mode string

// Workload modes.
const (
	ModeLoad        Mode = "load"
	ModeUpdate      Mode = "update"
	ModeQuery       Mode = "query"
	ModeUpdateQuery Mode = "update-query"
)

// Modes lists every mode in CLI order.
var Modes = []Mode{ModeLoad, ModeUpdate, ModeQuery, ModeUpdateQuery}

// ParseMode converts a CLI mode name.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

func (m Mode) runsUpdates() bool { return m == ModeUpdate || m == ModeUpdateQuery }
func (m Mode) runsQueries() bool { return m == ModeQuery || m == ModeUpdateQuery }

// Phase is one timed step.
type Phase struct {
	Name     string        `json:"name" yaml:"name"`
	Duration time.Duration `json:"duration_ns" yaml:"duration"`
}

// QueryPass is the outcome of one pass over the query mix.
type QueryPass struct {
	Phases []Phase `json:"phases" yaml:"phases"`

	// Results holds one checksum per query: a count, a maximum or a sum
	// depending on the query.
	Results map[string]float64 `json:"results" yaml:"results"`

	// Misses counts sampled ids that were not in the store.
	Misses map[string]int `json:"misses,omitempty" yaml:"misses,omitempty"`
}

// Run is one load of the dataset and everything executed against it.
type Run struct {
	Load          []Phase         `json:"load" yaml:"load"`
	Update        []Phase         `json:"update,omitempty" yaml:"update,omitempty"`
	UpdateSummary *update.Summary `json:"update_summary,omitempty" yaml:"update_summary,omitempty"`
	Queries       []QueryPass     `json:"queries,omitempty" yaml:"queries,omitempty"`
}

// Report describes a whole invocation.
type Report struct {
	RunID       string        `json:"run_id" yaml:"run_id"`
	Mode        Mode          `json:"mode" yaml:"mode"`
	Repetitions int           `json:"repetitions" yaml:"repetitions"`
	DataDir     string        `json:"data_dir" yaml:"data_dir"`
	StartedAt   time.Time     `json:"started_at" yaml:"started_at"`
	Duration    time.Duration `json:"duration_ns" yaml:"duration"`
	Runs        []Run         `json:"runs" yaml:"runs"`
}

// Options configures a Runner.
type Options struct {
	// Plan is the update cycle run in update modes.
	Plan update.Plan

	// Store configures every store the runner creates.
	Store storage.Options

	// Metrics is optional.
	Metrics *metrics.Recorder

	Logger zerolog.Logger
}

// Runner executes workloads.
type Runner struct {
	opts Options
	log  zerolog.Logger
}

// NewRunner creates a runner.
func NewRunner(opts Options) *Runner {
	return &Runner{opts: opts, log: opts.Logger.With().Str("component", "bench").Logger()}
}

// Run executes mode against the dataset in dataDir.
func (r *Runner) Run(ctx context.Context, mode Mode, repetitions int, dataDir string) (*Report, error) {
	if repetitions < 1 {
		return nil, fmt.Errorf("repetitions must be at least 1, got %d", repetitions)
	}
	report := &Report{
		RunID:       uuid.NewString(),
		Mode:        mode,
		Repetitions: repetitions,
		DataDir:     dataDir,
		StartedAt:   time.Now().UTC(),
	}
	r.log.Info().Str("run", report.RunID).Str("mode", string(mode)).Int("repetitions", repetitions).Msg("workload starting")

	loads := 1
	if !mode.runsQueries() {
		loads = repetitions
	}
	for i := 0; i < loads; i++ {
		run, err := r.runOnce(ctx, mode, repetitions, dataDir)
		if err != nil {
			return report, err
		}
		report.Runs = append(report.Runs, run)
	}

	report.Duration = time.Since(report.StartedAt)
	r.log.Info().Str("run", report.RunID).Dur("took", report.Duration).Msg("workload finished")
	return report, nil
}

// RunStore runs repetitions query passes against an already populated store,
// such as one restored from a snapshot. The report has a single run with no
// load phases.
func (r *Runner) RunStore(ctx context.Context, store *storage.Store, repetitions int) (*Report, error) {
	if repetitions < 1 {
		return nil, fmt.Errorf("repetitions must be at least 1, got %d", repetitions)
	}
	report := &Report{
		RunID:       uuid.NewString(),
		Mode:        ModeQuery,
		Repetitions: repetitions,
		StartedAt:   time.Now().UTC(),
	}
	r.recordEntities(store)

	var run Run
	for i := 0; i < repetitions; i++ {
		pass, err := r.QueryPass(ctx, store)
		if err != nil {
			return report, err
		}
		run.Queries = append(run.Queries, pass)
	}
	report.Runs = []Run{run}
	report.Duration = time.Since(report.StartedAt)
	return report, nil
}

func (r *Runner) runOnce(ctx context.Context, mode Mode, repetitions int, dataDir string) (Run, error) {
	var run Run
	store, phases, err := r.Load(ctx, dataDir)
	if err != nil {
		return run, err
	}
	run.Load = phases

	if mode.runsUpdates() {
		run.Update, run.UpdateSummary, err = r.Update(ctx, store)
		if err != nil {
			return run, err
		}
	}
	if mode.runsQueries() {
		for i := 0; i < repetitions; i++ {
			pass, err := r.QueryPass(ctx, store)
			if err != nil {
				return run, err
			}
			run.Queries = append(run.Queries, pass)
		}
	}
	return run, nil
}

// Load reads the dataset into a fresh store, one phase per file.
func (r *Runner) Load(ctx context.Context, dataDir string) (*storage.Store, []Phase, error) {
	store := storage.New(r.opts.Store)
	res, err := csvload.LoadDir(ctx, store, dataDir, r.opts.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("loading dataset: %w", err)
	}
	phases := make([]Phase, 0, len(res.Files))
	for _, f := range res.Files {
		p := Phase{Name: "read_" + strings.TrimSuffix(f.File, ".csv"), Duration: f.Duration}
		phases = append(phases, p)
		r.observe(p)
	}
	r.recordEntities(store)
	return store, phases, nil
}

// Update runs the configured update cycle on store, one phase per step.
func (r *Runner) Update(ctx context.Context, store *storage.Store) ([]Phase, *update.Summary, error) {
	engine := update.New(store, r.opts.Logger)
	phases := make([]Phase, 0, len(update.Steps))

	last := time.Now()
	summary, err := engine.Apply(ctx, r.opts.Plan, func(step string) {
		now := time.Now()
		p := Phase{Name: step, Duration: now.Sub(last)}
		phases = append(phases, p)
		r.observe(p)
		last = now
	})
	if err != nil {
		return phases, summary, err
	}
	if r.opts.Metrics != nil {
		for _, step := range update.Steps {
			r.opts.Metrics.AddMutations(step, summary.Touched[step])
		}
	}
	r.recordEntities(store)
	return phases, summary, nil
}

func (r *Runner) observe(p Phase) {
	if r.opts.Metrics != nil {
		r.opts.Metrics.ObservePhase(p.Name, p.Duration)
	}
	r.log.Debug().Str("phase", p.Name).Dur("took", p.Duration).Msg("phase complete")
}

func (r *Runner) recordEntities(store *storage.Store) {
	if r.opts.Metrics == nil {
		return
	}
	r.opts.Metrics.SetEntities("movie", store.NumMovies())
	r.opts.Metrics.SetEntities("actor", store.NumActors())
	r.opts.Metrics.SetEntities("director", store.NumDirectors())
	r.opts.Metrics.SetEntities("role", store.NumRoles())
}
