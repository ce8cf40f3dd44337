package bench

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/orneryd/cinegraph/pkg/csvload"
	"github.com/orneryd/cinegraph/pkg/metrics"
	"github.com/orneryd/cinegraph/pkg/storage"
	"github.com/orneryd/cinegraph/pkg/update"
)

var dataset = map[string]string{
	csvload.MoviesFile: `id;name;year;rank
1;"Heat";1995;8.2
2;"Ronin";1998;7.0
3;"Unrated";2001;0
`,
	csvload.ActorsFile: `id;first_name;last_name;gender
10;"Al";"Pacino";M
11;"Natalie";"Portman";F
12;"Robert";"De Niro";M
`,
	csvload.DirectorsFile: `id;first_name;last_name
100;"Michael";"Mann"
101;"Al";"Pacino"
`,
	csvload.MovieDirectorsFile: `director_id;movie_id
100;1
100;2
101;3
`,
	csvload.MovieGenresFile: `movie_id;genre
1;"Crime"
2;"Thriller"
`,
	csvload.RolesFile: `actor_id;movie_id;role
10;1;"Vincent Hanna"
12;1;"Neil McCauley"
12;2;"Sam"
11;3;"Lead"
`,
}

func writeDataset(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range dataset {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func newRunner(rec *metrics.Recorder) *Runner {
	return NewRunner(Options{
		Plan:    update.DefaultPlan(),
		Metrics: rec,
		Logger:  zerolog.Nop(),
	})
}

func phaseNames(phases []Phase) []string {
	names := make([]string, len(phases))
	for i, p := range phases {
		names[i] = p.Name
	}
	return names
}

func TestParseMode(t *testing.T) {
	for _, m := range Modes {
		got, err := ParseMode(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("-uq")
	assert.Error(t, err)
}

func TestRunLoadRepeatsLoad(t *testing.T) {
	dir := writeDataset(t)
	rec := metrics.NewRecorder()

	report, err := newRunner(rec).Run(context.Background(), ModeLoad, 2, dir)
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, ModeLoad, report.Mode)
	require.Len(t, report.Runs, 2)
	for _, run := range report.Runs {
		assert.Equal(t, []string{
			"read_movies", "read_actors", "read_directors",
			"read_movies_directors", "read_movies_genres", "read_roles",
		}, phaseNames(run.Load))
		assert.Empty(t, run.Update)
		assert.Nil(t, run.UpdateSummary)
		assert.Empty(t, run.Queries)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(rec.Entities.WithLabelValues("movie")))
	assert.Equal(t, 4.0, testutil.ToFloat64(rec.Entities.WithLabelValues("role")))
}

func TestRunUpdateRepeatsLoadAndCycle(t *testing.T) {
	dir := writeDataset(t)
	rec := metrics.NewRecorder()

	report, err := newRunner(rec).Run(context.Background(), ModeUpdate, 2, dir)
	require.NoError(t, err)

	require.Len(t, report.Runs, 2)
	for _, run := range report.Runs {
		assert.Equal(t, update.Steps, phaseNames(run.Update))
		require.NotNil(t, run.UpdateSummary)
		assert.Equal(t, 2, run.UpdateSummary.Touched[update.StepBumpYears])
		assert.Equal(t, 1, run.UpdateSummary.Touched[update.StepDeleteMovies])
		assert.Equal(t, 1, run.UpdateSummary.Touched[update.StepDeleteActors])
		assert.Equal(t, 1, run.UpdateSummary.Touched[update.StepDeleteDirectors])
		assert.Empty(t, run.Queries)
	}

	// Counters accumulate across both cycles; gauges hold the last state.
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.Mutations.WithLabelValues(update.StepDeleteMovies)))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.Entities.WithLabelValues("movie")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Entities.WithLabelValues("director")))
	// The deleted movie's role no longer counts.
	assert.Equal(t, 3.0, testutil.ToFloat64(rec.Entities.WithLabelValues("role")))
}

func TestRunQueryLoadsOnce(t *testing.T) {
	dir := writeDataset(t)

	report, err := newRunner(nil).Run(context.Background(), ModeQuery, 3, dir)
	require.NoError(t, err)

	require.Len(t, report.Runs, 1)
	run := report.Runs[0]
	assert.Len(t, run.Load, 6)
	assert.Empty(t, run.Update)
	require.Len(t, run.Queries, 3)

	want := make([]string, len(queryMix))
	for i, q := range queryMix {
		want[i] = q.name
	}
	for _, pass := range run.Queries {
		assert.Equal(t, want, phaseNames(pass.Phases))
	}

	res := run.Queries[0].Results
	assert.Equal(t, 1.0, res[QueryCoActors])
	assert.Equal(t, 1.0, res[QueryIsAlsoActor])
	assert.Equal(t, 1.0, res[QueryDirectorsAlsoActors])
	assert.Equal(t, float64(len("Al Pacino")+len("Natalie Portman")+len("Robert De Niro")), res[QueryFullName])
	assert.Equal(t, float64((2039-1995)+(2039-1998)+(2039-2001)), res[QuerySumOfAges])

	// Every pass over unchanged data produces the same checksums.
	assert.Equal(t, run.Queries[0].Results, run.Queries[2].Results)
}

func TestRunUpdateQuery(t *testing.T) {
	dir := writeDataset(t)

	report, err := newRunner(metrics.NewRecorder()).Run(context.Background(), ModeUpdateQuery, 1, dir)
	require.NoError(t, err)

	require.Len(t, report.Runs, 1)
	run := report.Runs[0]
	assert.Len(t, run.Update, len(update.Steps))
	require.Len(t, run.Queries, 1)

	res := run.Queries[0].Results
	// The unrated movie, its only actor and its only director are gone.
	assert.Equal(t, 0.0, res[QueryDirectorsAlsoActors])
	assert.Equal(t, float64(len("Al Pacino")+len("Robert De Niro")), res[QueryFullName])
	assert.Equal(t, float64((2039-1995)+(2039-1998)), res[QuerySumOfAges])
}

func TestRunRejectsZeroRepetitions(t *testing.T) {
	_, err := newRunner(nil).Run(context.Background(), ModeQuery, 0, t.TempDir())
	assert.Error(t, err)
}

func TestRunMissingDataset(t *testing.T) {
	_, err := newRunner(nil).Run(context.Background(), ModeLoad, 1, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestQueryPassCountsMisses(t *testing.T) {
	store := storage.New(storage.Options{})
	// Sparse ids: the sampler draws from [0, max id], so most draws miss.
	for i := 0; i < 24; i++ {
		id := storage.MovieID(i * 1000)
		store.InsertMovie(id, "m", 2000, 5)
		aid := storage.ActorID(i * 1000)
		store.InsertActor(aid, "A", "B", storage.Male)
		store.AddRole(id, aid, "")
	}
	rec := metrics.NewRecorder()

	pass, err := newRunner(rec).QueryPass(context.Background(), store)
	require.NoError(t, err)

	assert.Positive(t, pass.Misses[QueryMoviesInCommon])
	assert.Positive(t, pass.Misses[QueryCoActorsWithCount])
	assert.Zero(t, pass.Misses[QueryFullName])
	assert.Equal(t, float64(pass.Misses[QueryCoActorsWithCount]),
		testutil.ToFloat64(rec.LookupMisses.WithLabelValues(QueryCoActorsWithCount)))
}

func TestQueryPassCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pass, err := newRunner(nil).QueryPass(ctx, storage.New(storage.Options{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, pass.Phases)
}

func sampleReport() *Report {
	ms := time.Millisecond
	return &Report{
		RunID:       "run-1",
		Mode:        ModeUpdate,
		Repetitions: 1,
		Runs: []Run{
			{
				Load: []Phase{{"read_movies", 12 * ms}, {"read_actors", 3 * ms}},
				Update: []Phase{
					{update.StepBumpYears, 1500 * ms},
					{update.StepActorAverages, 7*ms + 900*time.Microsecond},
				},
			},
			{
				Load: []Phase{{"read_movies", ms}},
				Queries: []QueryPass{
					{Phases: []Phase{{QueryNumMovies, 5 * ms}, {QueryNumActors, 10 * ms}}},
					{Phases: []Phase{{QueryNumMovies, 6 * ms}, {QueryNumActors, 11 * ms}}},
				},
			},
		},
	}
}

func TestPrintCompact(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewReporter(&buf, FormatText).Print(sampleReport()))

	want := "   12,    3,  1500,   7\n" +
		"   5,   10\n" +
		"   6,   11\n"
	assert.Equal(t, want, buf.String())
}

func TestPrintCompactRolesColumn(t *testing.T) {
	ms := time.Millisecond
	report := &Report{Runs: []Run{{
		Load: []Phase{{"read_movies_genres", 2 * ms}, {"read_roles", 40 * ms}},
	}}}
	var buf bytes.Buffer
	require.NoError(t, NewReporter(&buf, FormatText).Print(report))
	assert.Equal(t, "    2,    40\n", buf.String())
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewReporter(&buf, FormatJSON).Print(sampleReport()))

	var got Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, ModeUpdate, got.Mode)
	require.Len(t, got.Runs, 2)
	assert.Equal(t, 1500*time.Millisecond, got.Runs[0].Update[0].Duration)
	assert.Len(t, got.Runs[1].Queries, 2)
}

func TestPrintYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewReporter(&buf, FormatYAML).Print(sampleReport()))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, "update", got["mode"])
	assert.Len(t, got["runs"], 2)
}

func TestPrintUnknownFormat(t *testing.T) {
	err := NewReporter(&bytes.Buffer{}, "xml").Print(sampleReport())
	assert.Error(t, err)
}

func TestRunStore(t *testing.T) {
	runner := newRunner(nil)
	store, _, err := runner.Load(context.Background(), writeDataset(t))
	require.NoError(t, err)

	report, err := runner.RunStore(context.Background(), store, 2)
	require.NoError(t, err)

	assert.Equal(t, ModeQuery, report.Mode)
	require.Len(t, report.Runs, 1)
	assert.Empty(t, report.Runs[0].Load)
	assert.Len(t, report.Runs[0].Queries, 2)
}
