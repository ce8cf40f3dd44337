package update

import (
	"context"
	"fmt"

	"github.com/orneryd/cinegraph/pkg/sample"
	"github.com/orneryd/cinegraph/pkg/storage"
)

// YearBump is one "bump every movie made in or before Year" step.
type YearBump struct {
	Year   int     `json:"year" yaml:"year" koanf:"year"`
	Factor float64 `json:"factor" yaml:"factor" koanf:"factor" validate:"gte=0,lte=1"`
}

// Plan describes one full update cycle.
type Plan struct {
	// YearBumps run first, in order.
	YearBumps []YearBump `json:"year_bumps" yaml:"year_bumps" koanf:"year_bumps" validate:"dive"`

	// MovieBumpFactor is applied to a sampled quarter of the movies after the
	// averages have been recomputed.
	MovieBumpFactor float64 `json:"movie_bump_factor" yaml:"movie_bump_factor" koanf:"movie_bump_factor" validate:"gte=0,lte=1"`

	// MovieBumpSeed seeds the movie id sampler.
	MovieBumpSeed int64 `json:"movie_bump_seed" yaml:"movie_bump_seed" koanf:"movie_bump_seed"`

	// DeleteBelow removes movies ranked strictly below this value.
	DeleteBelow float64 `json:"delete_below" yaml:"delete_below" koanf:"delete_below" validate:"gte=0,lte=10"`
}

// DefaultPlan returns the standard benchmark update cycle.
func DefaultPlan() Plan {
	return Plan{
		YearBumps: []YearBump{
			{Year: 1970, Factor: 0.2},
			{Year: 1989, Factor: 0.05},
			{Year: 2000, Factor: 0.05},
		},
		MovieBumpFactor: 0.1,
		MovieBumpSeed:   735025,
		DeleteBelow:     4.0,
	}
}

// Step names, used for timing and metrics labels.
const (
	StepBumpYears       = "bump_years"
	StepActorAverages   = "actor_averages"
	StepDirectorAverage = "director_averages"
	StepBumpMovies      = "bump_movies"
	StepDeleteMovies    = "delete_movies"
	StepDeleteActors    = "delete_actors"
	StepDeleteDirectors = "delete_directors"
)

// Steps lists the cycle's steps in execution order.
var Steps = []string{
	StepBumpYears,
	StepActorAverages,
	StepDirectorAverage,
	StepBumpMovies,
	StepDeleteMovies,
	StepDeleteActors,
	StepDeleteDirectors,
}

// Summary reports how many entities each step touched.
type Summary struct {
	Touched map[string]int `json:"touched" yaml:"touched"`

	// MovieBumpMisses counts sampled movie ids that were not in the table.
	MovieBumpMisses int `json:"movie_bump_misses" yaml:"movie_bump_misses"`
}

// StepHook is called after every step with the step name; Apply uses it to
// let callers time the steps.
type StepHook func(step string)

// Apply runs a full update cycle. The context is checked between steps.
func (e *Engine) Apply(ctx context.Context, plan Plan, after StepHook) (*Summary, error) {
	if after == nil {
		after = func(string) {}
	}
	sum := &Summary{Touched: make(map[string]int, len(Steps))}

	run := func(step string, fn func() int) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("update cycle interrupted before %s: %w", step, err)
		}
		sum.Touched[step] = fn()
		after(step)
		return nil
	}

	steps := []struct {
		name string
		fn   func() int
	}{
		{StepBumpYears, func() int {
			n := 0
			for _, b := range plan.YearBumps {
				n += e.BumpRankOfMoviesMadeInOrBefore(b.Year, b.Factor)
			}
			return n
		}},
		{StepActorAverages, e.RecomputeActorAverages},
		{StepDirectorAverage, e.RecomputeDirectorAverages},
		{StepBumpMovies, func() int {
			n, misses := e.bumpSampledMovies(plan.MovieBumpFactor, plan.MovieBumpSeed)
			sum.MovieBumpMisses = misses
			return n
		}},
		{StepDeleteMovies, func() int { return e.DeleteMoviesWithRankBelow(plan.DeleteBelow) }},
		{StepDeleteActors, e.DeleteActorsWithNoRoles},
		{StepDeleteDirectors, e.DeleteDirectorsWithNoMovies},
	}
	for _, s := range steps {
		if err := run(s.name, s.fn); err != nil {
			return sum, err
		}
	}

	e.log.Info().
		Int("movies_deleted", sum.Touched[StepDeleteMovies]).
		Int("actors_deleted", sum.Touched[StepDeleteActors]).
		Int("directors_deleted", sum.Touched[StepDeleteDirectors]).
		Msg("update cycle complete")
	return sum, nil
}

// bumpSampledMovies bumps a quarter of the movie count worth of sampled ids.
func (e *Engine) bumpSampledMovies(factor float64, seed int64) (bumped, misses int) {
	ids := sample.Ints(int(e.store.MaxMovieID()), e.store.NumMovies()/4, seed)
	for _, id := range ids {
		if _, err := e.BumpRankOfMovie(storage.MovieID(id), factor); err != nil {
			misses++
			continue
		}
		bumped++
	}
	return bumped, misses
}
