// Package query implements the read-only analytical queries over a store.
//
// Every query observes the store as it is right now: deletions and rank
// bumps made by pkg/update are visible to the next call. None of the queries
// mutate anything.
//
// Queries Implemented:
//   - Threshold counts: movies ranked at or above a value, actors who
//     played in at least one such movie
//   - Co-actor traversal: movie → cast → actors (set and counted variants)
//   - Name index lookups: co-named actors, directors who also act
//   - Age aggregates: histogram by year offset, average and total age
//   - Two-hop co-movie traversal: movie → actors → their other movies
//
// Usage Example:
//
//	q := query.New(store)
//
//	n := q.NumOfMoviesWithRankAbove(7.5)
//
//	coActors, err := q.CoActorsInMoviesWithRankAbove(42, 6.0)
//	if errors.Is(err, storage.ErrNotFound) {
//		// unknown actor, as opposed to an actor with no co-actors
//	}
//
//	hist := q.MoviesAgeHistogram(1900, 5.0)
//	// hist[i] = number of qualifying movies released in 1900+i
//
// ELI12:
//
// The store is a big pin board: movies, actors and directors are pins and
// roles are strings between them. A query never moves a pin. It just
// follows strings. "Who acted with Tom?" means: walk from Tom to each movie
// he was in, then from each movie to everyone else in its cast.
package query

import (
	"github.com/orneryd/cinegraph/pkg/storage"
)

// ActorSet is a set of actor ids.
type ActorSet map[storage.ActorID]struct{}

// Has reports whether id is in the set.
func (s ActorSet) Has(id storage.ActorID) bool {
	_, ok := s[id]
	return ok
}

// MovieSet is a set of movie ids.
type MovieSet map[storage.MovieID]struct{}

// Has reports whether id is in the set.
func (s MovieSet) Has(id storage.MovieID) bool {
	_, ok := s[id]
	return ok
}

// Engine answers queries against a store.
type Engine struct {
	store *storage.Store
}

// New creates a query engine over store.
func New(store *storage.Store) *Engine {
	return &Engine{store: store}
}

// =============================================================================
// Threshold counts
// =============================================================================

// NumOfMoviesWithRankAbove counts movies with rank >= minRank.
func (e *Engine) NumOfMoviesWithRankAbove(minRank float64) int {
	count := 0
	for m := range e.store.Movies() {
		if m.Rank >= minRank {
			count++
		}
	}
	return count
}

// NumOfActorsWhoPlayedInAMovieWithRankAbove counts actors with at least one
// role in a movie ranked >= minRank.
func (e *Engine) NumOfActorsWhoPlayedInAMovieWithRankAbove(minRank float64) int {
	count := 0
	for a := range e.store.Actors() {
		for _, rref := range a.Roles {
			if e.roleMovie(rref).Rank >= minRank {
				count++
				break
			}
		}
	}
	return count
}

// =============================================================================
// Co-actor traversal
// =============================================================================

// CoActorsInMoviesWithRankAbove returns the distinct actors who share a cast
// with actorID in any movie ranked >= minRank. The actor itself is never in
// the result.
//
// Returns storage.ErrActorNotFound for an unknown id; an actor without
// co-actors yields an empty, non-nil set.
func (e *Engine) CoActorsInMoviesWithRankAbove(actorID storage.ActorID, minRank float64) (ActorSet, error) {
	actor, err := e.store.Actor(actorID)
	if err != nil {
		return nil, err
	}
	out := make(ActorSet)
	e.eachCoActor(actor, minRank, func(co *storage.Actor) {
		out[co.ID] = struct{}{}
	})
	return out, nil
}

// CoActorsWithCountInMoviesWithRankAbove is CoActorsInMoviesWithRankAbove
// with multiplicity: each co-actor maps to the number of qualifying cast
// entries it shares with actorID.
func (e *Engine) CoActorsWithCountInMoviesWithRankAbove(actorID storage.ActorID, minRank float64) (map[storage.ActorID]int, error) {
	actor, err := e.store.Actor(actorID)
	if err != nil {
		return nil, err
	}
	out := make(map[storage.ActorID]int)
	e.eachCoActor(actor, minRank, func(co *storage.Actor) {
		out[co.ID]++
	})
	return out, nil
}

// eachCoActor visits every cast entry, other than actor's own, of every
// qualifying movie actor played in.
func (e *Engine) eachCoActor(actor *storage.Actor, minRank float64, visit func(*storage.Actor)) {
	for _, r1 := range actor.Roles {
		movie := e.roleMovie(r1)
		if movie.Rank < minRank {
			continue
		}
		for _, r2 := range movie.Cast {
			co := e.store.ActorAt(e.store.RoleAt(r2).Actor)
			if co.ID != actor.ID {
				visit(co)
			}
		}
	}
}

// MoviesWithActorsInCommon returns every movie, other than movieID itself,
// that shares at least one actor with it.
func (e *Engine) MoviesWithActorsInCommon(movieID storage.MovieID) (MovieSet, error) {
	movie, err := e.store.Movie(movieID)
	if err != nil {
		return nil, err
	}
	out := make(MovieSet)
	for _, r1 := range movie.Cast {
		actor := e.store.ActorAt(e.store.RoleAt(r1).Actor)
		for _, r2 := range actor.Roles {
			if other := e.roleMovie(r2); other.ID != movie.ID {
				out[other.ID] = struct{}{}
			}
		}
	}
	return out, nil
}

func (e *Engine) roleMovie(ref storage.RoleRef) *storage.Movie {
	return e.store.MovieAt(e.store.RoleAt(ref).Movie)
}
