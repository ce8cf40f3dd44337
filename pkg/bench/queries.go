package bench

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/orneryd/cinegraph/pkg/query"
	"github.com/orneryd/cinegraph/pkg/sample"
	"github.com/orneryd/cinegraph/pkg/storage"
)

// Query names, in pass order. They double as phase names and metric labels.
const (
	QueryNumMovies             = "num_movies_with_rank_above"
	QueryNumActors             = "num_actors_in_movies_with_rank_above"
	QueryCoActors              = "co_actors_in_movies_with_rank_above"
	QueryAgeHistogram          = "movies_age_histogram"
	QueryAvgAge                = "avg_age_of_movies_with_rank_above"
	QuerySumOfAges             = "sum_of_all_movies_ages"
	QueryMoviesInCommon        = "movies_with_actors_in_common"
	QueryUniqueLastNames       = "unique_last_names_of_actors_with_same_first_name"
	QueryCoActorsWithCount     = "co_actors_with_count_in_movies_with_rank_above"
	QueryLastNames             = "last_names_of_actors_with_same_first_name"
	QueryIsAlsoActor           = "is_also_actor"
	QueryDirectorsAlsoActors   = "directors_who_are_also_actors"
	QueryFullName              = "full_name"
	coActorRank                = 6.0
	referenceYear              = 2019
	histogramStartYear         = 1900
	seedMoviesInCommon         = 64798
	seedCoActorsWithCount      = 72594
	seedLastNames              = 47619
	seedUniqueLastNames        = 35102
	sumOfAgesRepetitions       = 10
	sumOfAgesLastReferenceYear = 2039
)

// passState accumulates one query pass.
type passState struct {
	store *storage.Store
	q     *query.Engine
	pass  *QueryPass
}

func (s *passState) miss(name string) {
	s.pass.Misses[name]++
}

// queryMix is the fixed sequence of timed queries in a pass.
var queryMix = []struct {
	name string
	run  func(*passState) float64
}{
	{QueryNumMovies, func(s *passState) float64 {
		total := 0
		for i := 0; i < 100; i++ {
			total += s.q.NumOfMoviesWithRankAbove(float64(i+1) * 0.1)
		}
		return float64(total)
	}},
	{QueryNumActors, func(s *passState) float64 {
		total := 0
		for i := 0; i < 50; i++ {
			total += s.q.NumOfActorsWhoPlayedInAMovieWithRankAbove(float64(i+1) * 0.2)
		}
		return float64(total)
	}},
	{QueryCoActors, func(s *passState) float64 {
		most := 0
		for a := range s.store.Actors() {
			co, err := s.q.CoActorsInMoviesWithRankAbove(a.ID, coActorRank)
			if err != nil {
				s.miss(QueryCoActors)
				continue
			}
			most = max(most, len(co))
		}
		return float64(most)
	}},
	{QueryAgeHistogram, func(s *passState) float64 {
		total := 0
		for i := 0; i < 50; i++ {
			for _, n := range s.q.MoviesAgeHistogram(histogramStartYear, 5.0+float64(i)*0.1) {
				total += n
			}
		}
		return float64(total)
	}},
	{QueryAvgAge, func(s *passState) float64 {
		var total float64
		for i := 0; i < 50; i++ {
			if avg := s.q.AvgAgeOfMoviesWithRankAbove(referenceYear, 5.0+float64(i)*0.1); !math.IsNaN(avg) {
				total += avg
			}
		}
		return total
	}},
	{QuerySumOfAges, func(s *passState) float64 {
		var last int64
		for i := 0; i < sumOfAgesRepetitions; i++ {
			for year := referenceYear; year <= sumOfAgesLastReferenceYear; year++ {
				last = s.q.SumOfAllMoviesAges(year)
			}
		}
		return float64(last)
	}},
	{QueryMoviesInCommon, func(s *passState) float64 {
		total := 0
		ids := sample.Ints(int(s.store.MaxMovieID()), s.store.NumMovies()/6, seedMoviesInCommon)
		for _, id := range ids {
			movies, err := s.q.MoviesWithActorsInCommon(storage.MovieID(id))
			if errors.Is(err, storage.ErrNotFound) {
				s.miss(QueryMoviesInCommon)
				continue
			}
			total += len(movies)
		}
		return float64(total)
	}},
	{QueryUniqueLastNames, func(s *passState) float64 {
		most := 0
		ids := sample.Ints(int(s.store.MaxActorID()), s.store.NumActors()/20, seedUniqueLastNames)
		for _, id := range ids {
			names, err := s.q.UniqueLastNamesOfActorsWithSameFirstNameAs(storage.ActorID(id))
			if errors.Is(err, storage.ErrNotFound) {
				s.miss(QueryUniqueLastNames)
				continue
			}
			most = max(most, len(names))
		}
		return float64(most)
	}},
	{QueryCoActorsWithCount, func(s *passState) float64 {
		most := 0
		ids := sample.Ints(int(s.store.MaxActorID()), s.store.NumActors()/4, seedCoActorsWithCount)
		for _, id := range ids {
			co, err := s.q.CoActorsWithCountInMoviesWithRankAbove(storage.ActorID(id), coActorRank)
			if errors.Is(err, storage.ErrNotFound) {
				s.miss(QueryCoActorsWithCount)
				continue
			}
			most = max(most, len(co))
		}
		return float64(most)
	}},
	{QueryLastNames, func(s *passState) float64 {
		most := 0
		ids := sample.Ints(int(s.store.MaxActorID()), s.store.NumActors()/10, seedLastNames)
		for _, id := range ids {
			names, err := s.q.LastNamesOfActorsWithSameFirstNameAs(storage.ActorID(id))
			if errors.Is(err, storage.ErrNotFound) {
				s.miss(QueryLastNames)
				continue
			}
			most = max(most, len(names))
		}
		return float64(most)
	}},
	{QueryIsAlsoActor, func(s *passState) float64 {
		count := 0
		for d := range s.store.Directors() {
			ok, err := s.q.IsAlsoActor(d.ID)
			if err != nil {
				s.miss(QueryIsAlsoActor)
				continue
			}
			if ok {
				count++
			}
		}
		return float64(count)
	}},
	{QueryDirectorsAlsoActors, func(s *passState) float64 {
		return float64(len(s.q.DirectorsWhoAreAlsoActors()))
	}},
	{QueryFullName, func(s *passState) float64 {
		length := 0
		for a := range s.store.Actors() {
			name, err := s.q.FullName(a.ID)
			if err != nil {
				s.miss(QueryFullName)
				continue
			}
			length += len(name)
		}
		return float64(length)
	}},
}

// QueryPass runs the query mix once against store.
func (r *Runner) QueryPass(ctx context.Context, store *storage.Store) (QueryPass, error) {
	pass := QueryPass{
		Phases:  make([]Phase, 0, len(queryMix)),
		Results: make(map[string]float64, len(queryMix)),
		Misses:  make(map[string]int),
	}
	state := &passState{store: store, q: query.New(store), pass: &pass}

	for _, qs := range queryMix {
		if err := ctx.Err(); err != nil {
			return pass, fmt.Errorf("query pass interrupted before %s: %w", qs.name, err)
		}
		start := time.Now()
		pass.Results[qs.name] = qs.run(state)
		p := Phase{Name: qs.name, Duration: time.Since(start)}
		pass.Phases = append(pass.Phases, p)
		r.observe(p)
	}

	if r.opts.Metrics != nil {
		for name, n := range pass.Misses {
			r.opts.Metrics.AddLookupMisses(name, n)
		}
	}
	return pass, nil
}
