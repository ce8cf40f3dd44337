// Package update implements the bulk mutations applied to a loaded store.
//
// Mutations fall into three groups:
//   - Rank bumps: move a movie's rank a fixed fraction of the remaining
//     distance toward 10 (rank += f·(10 − rank))
//   - Average maintenance: full recomputation of every actor's and director's
//     cached average rank, and O(1) incremental adjustment when a single
//     movie is bumped
//   - Cascading deletes: low-ranked movies, then actors left without roles
//     and directors left without movies
//
// Example Usage:
//
//	engine := update.New(store, logger)
//
//	engine.BumpRankOfMoviesMadeInOrBefore(1970, 0.2)
//	engine.RecomputeActorAverages()
//	engine.RecomputeDirectorAverages()
//
//	if _, err := engine.BumpRankOfMovie(42, 0.1); err != nil {
//		// storage.ErrMovieNotFound
//	}
//
//	removed := engine.DeleteMoviesWithRankBelow(4.0)
//	engine.DeleteActorsWithNoRoles()
//	engine.DeleteDirectorsWithNoMovies()
//
// ELI12:
//
// Think of the cached average like a running grade on a report card. Once a
// term we add up every test and divide (full recomputation). In between, when
// one test gets regraded, we don't redo the whole report card: we just nudge
// the grade by the change divided by the number of tests (incremental
// update). Ungraded tests (rank 0 or below) never count.
package update

import (
	"github.com/rs/zerolog"

	"github.com/orneryd/cinegraph/pkg/storage"
)

// MaxRank is the ceiling every bump moves toward.
const MaxRank = 10.0

// Engine applies mutations to a store.
//
// Like the store it wraps, Engine is not safe for concurrent use.
type Engine struct {
	store *storage.Store
	log   zerolog.Logger
}

// New creates a mutation engine over store.
func New(store *storage.Store, log zerolog.Logger) *Engine {
	return &Engine{store: store, log: log.With().Str("component", "update").Logger()}
}

// Bump returns rank moved factor of the way toward MaxRank.
func Bump(rank, factor float64) float64 {
	return rank + factor*(MaxRank-rank)
}

// BumpRankOfMoviesMadeInOrBefore bumps every movie released in or before year.
// Returns the number of movies touched. A factor of 0 changes nothing.
func (e *Engine) BumpRankOfMoviesMadeInOrBefore(year int, factor float64) int {
	touched := 0
	for m := range e.store.Movies() {
		if m.Year <= year {
			m.Rank = Bump(m.Rank, factor)
			touched++
		}
	}
	e.log.Debug().Int("year", year).Float64("factor", factor).Int("movies", touched).Msg("bumped ranks")
	return touched
}

// RecomputeActorAverages recomputes every actor's cached average rank from
// scratch. Actors with no movie ranked above zero keep their previous value
// (unset if it was never computed). Returns the number of actors whose cache
// was written.
func (e *Engine) RecomputeActorAverages() int {
	written := 0
	for a := range e.store.Actors() {
		var sum float64
		count := 0
		for _, rref := range a.Roles {
			rank := e.store.MovieAt(e.store.RoleAt(rref).Movie).Rank
			if rank > 0 {
				sum += rank
				count++
			}
		}
		if count > 0 {
			a.AvgRank.Set(sum / float64(count))
			written++
		}
	}
	e.log.Debug().Int("actors", written).Msg("recomputed actor averages")
	return written
}

// RecomputeDirectorAverages is the director counterpart of
// RecomputeActorAverages.
func (e *Engine) RecomputeDirectorAverages() int {
	written := 0
	for d := range e.store.Directors() {
		var sum float64
		count := 0
		for _, mref := range d.Movies {
			rank := e.store.MovieAt(mref).Rank
			if rank > 0 {
				sum += rank
				count++
			}
		}
		if count > 0 {
			d.AvgRank.Set(sum / float64(count))
			written++
		}
	}
	e.log.Debug().Int("directors", written).Msg("recomputed director averages")
	return written
}

// BumpRankOfMovie bumps a single movie and propagates the change to the cached
// averages of its cast and directors.
//
// For each cast role whose actor has a set cache, the actor's average moves by
// delta / len(actor.Roles); directors move by delta / len(director.Movies).
// Unset caches are left unset. An actor credited twice in the same movie is
// adjusted twice.
//
// Returns the rank delta, or storage.ErrMovieNotFound.
func (e *Engine) BumpRankOfMovie(id storage.MovieID, factor float64) (float64, error) {
	m, err := e.store.Movie(id)
	if err != nil {
		return 0, err
	}
	delta := factor * (MaxRank - m.Rank)
	m.Rank += delta

	for _, rref := range m.Cast {
		a := e.store.ActorAt(e.store.RoleAt(rref).Actor)
		if a.AvgRank.IsSet() {
			a.AvgRank.Add(delta / float64(len(a.Roles)))
		}
	}
	for _, dref := range m.Directors {
		d := e.store.DirectorAt(dref)
		if d.AvgRank.IsSet() {
			d.AvgRank.Add(delta / float64(len(d.Movies)))
		}
	}
	return delta, nil
}

// DeleteMoviesWithRankBelow removes every movie ranked strictly below
// threshold, detaching it from its actors and directors. Returns the number
// of movies removed.
func (e *Engine) DeleteMoviesWithRankBelow(threshold float64) int {
	// Collect first: removal must not run while iterating the table.
	var doomed []storage.MovieID
	for m := range e.store.Movies() {
		if m.Rank < threshold {
			doomed = append(doomed, m.ID)
		}
	}
	for _, id := range doomed {
		e.store.RemoveMovie(id)
	}
	e.log.Debug().Float64("threshold", threshold).Int("movies", len(doomed)).Msg("deleted movies")
	return len(doomed)
}

// DeleteActorsWithNoRoles removes actors whose role list is empty.
func (e *Engine) DeleteActorsWithNoRoles() int {
	var doomed []storage.ActorID
	for a := range e.store.Actors() {
		if len(a.Roles) == 0 {
			doomed = append(doomed, a.ID)
		}
	}
	for _, id := range doomed {
		e.store.RemoveActor(id)
	}
	e.log.Debug().Int("actors", len(doomed)).Msg("deleted actors without roles")
	return len(doomed)
}

// DeleteDirectorsWithNoMovies removes directors whose movie list is empty.
func (e *Engine) DeleteDirectorsWithNoMovies() int {
	var doomed []storage.DirectorID
	for d := range e.store.Directors() {
		if len(d.Movies) == 0 {
			doomed = append(doomed, d.ID)
		}
	}
	for _, id := range doomed {
		e.store.RemoveDirector(id)
	}
	e.log.Debug().Int("directors", len(doomed)).Msg("deleted directors without movies")
	return len(doomed)
}
