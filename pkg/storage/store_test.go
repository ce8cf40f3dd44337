package storage

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFixture builds a small graph:
//
//	movie 1 "Heat" (1995, 8.2): actors 10, 11; director 100
//	movie 2 "Ronin" (1998, 7.2): actor 11; director 100
//	movie 3 "Solo" (2001, 0): actor 12; no director
func newFixture(t *testing.T, opts Options) *Store {
	t.Helper()
	s := New(opts)
	s.InsertMovie(1, "Heat", 1995, 8.2)
	s.InsertMovie(2, "Ronin", 1998, 7.2)
	s.InsertMovie(3, "Solo", 2001, 0)
	s.InsertActor(10, "Al", "Pacino", Male)
	s.InsertActor(11, "Robert", "De Niro", Male)
	s.InsertActor(12, "Natalie", "Portman", Female)
	s.InsertDirector(100, "Michael", "Mann")
	s.InsertDirector(101, "Idle", "Director")
	s.LinkDirectorMovie(100, 1)
	s.LinkDirectorMovie(100, 2)
	s.AddRole(1, 10, "Vincent Hanna")
	s.AddRole(1, 11, "Neil McCauley")
	s.AddRole(2, 11, "Sam")
	s.AddRole(3, 12, "")
	return s
}

func requireInvariantPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		var ierr *InvariantError
		err, ok := r.(error)
		require.True(t, ok, "panic value should be an error, got %T", r)
		require.True(t, errors.As(err, &ierr), "panic value should be *InvariantError, got %T", r)
	}()
	fn()
}

func TestInsertAndLookup(t *testing.T) {
	s := newFixture(t, Options{})

	assert.Equal(t, 3, s.NumMovies())
	assert.Equal(t, 3, s.NumActors())
	assert.Equal(t, 2, s.NumDirectors())
	assert.Equal(t, 4, s.NumRoles())

	m, err := s.Movie(1)
	require.NoError(t, err)
	assert.Equal(t, "Heat", m.Title)
	assert.Equal(t, 1995, m.Year)
	assert.Equal(t, 24, m.Age(2019))

	a, err := s.Actor(12)
	require.NoError(t, err)
	assert.Equal(t, "Natalie Portman", a.FullName())
	assert.Equal(t, Female, a.Gender)
	assert.False(t, a.AvgRank.IsSet())

	assert.Equal(t, MovieID(3), s.MaxMovieID())
	assert.Equal(t, ActorID(12), s.MaxActorID())
}

func TestLookupMiss(t *testing.T) {
	s := newFixture(t, Options{})

	_, err := s.Movie(99)
	assert.ErrorIs(t, err, ErrMovieNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Actor(99)
	assert.ErrorIs(t, err, ErrActorNotFound)

	_, err = s.Director(99)
	assert.ErrorIs(t, err, ErrDirectorNotFound)

	assert.False(t, s.HasMovie(99))
	assert.True(t, s.HasActor(10))
	assert.True(t, s.HasDirector(101))
}

func TestRoleSymmetry(t *testing.T) {
	s := newFixture(t, Options{})

	for m := range s.Movies() {
		for _, rref := range m.Cast {
			r := s.RoleAt(rref)
			assert.Same(t, m, s.MovieAt(r.Movie))
			assert.Contains(t, s.ActorAt(r.Actor).Roles, rref)
		}
	}
	for a := range s.Actors() {
		for _, rref := range a.Roles {
			r := s.RoleAt(rref)
			assert.Same(t, a, s.ActorAt(r.Actor))
			assert.Contains(t, s.MovieAt(r.Movie).Cast, rref)
		}
	}
}

func TestDirectorDuality(t *testing.T) {
	s := newFixture(t, Options{})

	d, err := s.Director(100)
	require.NoError(t, err)
	require.Len(t, d.Movies, 2)
	for _, mref := range d.Movies {
		m := s.MovieAt(mref)
		ref, _ := s.MovieRefOf(m.ID)
		assert.Equal(t, mref, ref)
		assert.Len(t, m.Directors, 1)
		assert.Same(t, d, s.DirectorAt(m.Directors[0]))
	}
}

func TestAttachGenre(t *testing.T) {
	s := newFixture(t, Options{})

	s.AttachGenre(1, Crime)
	s.AttachGenre(1, Thriller)
	s.AttachGenre(1, Crime)

	m, _ := s.Movie(1)
	assert.Equal(t, []Genre{Crime, Thriller, Crime}, m.Genres, "duplicates are not filtered")
}

func TestMissingReferencePanics(t *testing.T) {
	s := newFixture(t, Options{})

	t.Run("role with unknown movie", func(t *testing.T) {
		requireInvariantPanic(t, func() { s.AddRole(99, 10, "x") })
	})
	t.Run("role with unknown actor", func(t *testing.T) {
		requireInvariantPanic(t, func() { s.AddRole(1, 99, "x") })
	})
	t.Run("director link with unknown movie", func(t *testing.T) {
		requireInvariantPanic(t, func() { s.LinkDirectorMovie(100, 99) })
	})
	t.Run("genre on unknown movie", func(t *testing.T) {
		requireInvariantPanic(t, func() { s.AttachGenre(99, Drama) })
	})
	t.Run("remove unknown ids", func(t *testing.T) {
		requireInvariantPanic(t, func() { s.RemoveMovie(99) })
		requireInvariantPanic(t, func() { s.RemoveActor(99) })
		requireInvariantPanic(t, func() { s.RemoveDirector(99) })
	})

	// Failed calls must not leave half-registered edges behind.
	assert.Equal(t, 4, s.NumRoles())
}

func TestDuplicateIDOverwrites(t *testing.T) {
	s := newFixture(t, Options{})
	oldRef, _ := s.MovieRefOf(1)

	newRef := s.InsertMovie(1, "Heat (remaster)", 1995, 9.0)

	assert.NotEqual(t, oldRef, newRef)
	assert.Equal(t, 3, s.NumMovies())

	m, err := s.Movie(1)
	require.NoError(t, err)
	assert.Equal(t, "Heat (remaster)", m.Title)
	assert.Empty(t, m.Cast, "edges are not migrated to the replacement")

	old := s.MovieAt(oldRef)
	assert.False(t, old.Alive())
	assert.Len(t, old.Cast, 2, "superseded movie keeps its edges")
	assert.Equal(t, 2, s.NumRoles(), "roles of the superseded movie are not counted")
	assert.Equal(t, 4, s.NumRoleSlots())

	var titles []string
	for m := range s.Movies() {
		titles = append(titles, m.Title)
	}
	assert.Equal(t, []string{"Ronin", "Solo", "Heat (remaster)"}, titles)
}

func TestRemoveMovieCascades(t *testing.T) {
	s := newFixture(t, Options{})
	pacino, _ := s.Actor(10)
	pacino.AvgRank.Set(8.2)

	s.RemoveMovie(1)

	assert.False(t, s.HasMovie(1))
	assert.Equal(t, 2, s.NumMovies())
	assert.Equal(t, 2, s.NumRoles())
	assert.Equal(t, 4, s.NumRoleSlots())
	assert.Equal(t, 3, s.NumMovieSlots())
	assert.Empty(t, pacino.Roles)
	assert.True(t, pacino.AvgRank.IsSet(), "cached average is left stale")

	deniro, _ := s.Actor(11)
	require.Len(t, deniro.Roles, 1)
	assert.Equal(t, MovieID(2), s.MovieAt(s.RoleAt(deniro.Roles[0]).Movie).ID)

	mann, _ := s.Director(100)
	require.Len(t, mann.Movies, 1)
	assert.Equal(t, MovieID(2), s.MovieAt(mann.Movies[0]).ID)
}

func TestDetachedSlots(t *testing.T) {
	s := New(Options{})
	s.InsertMovie(1, "Heat", 1995, 8.2)
	s.InsertActor(10, "Al", "Pacino", Male)

	oldMovie := s.InsertDetachedMovie(1, "Heat (draft)", 1994, 3.0)
	oldActor := s.InsertDetachedActor(10, "Alfredo", "Pacino", Male)
	oldDirector := s.InsertDetachedDirector(100, "Michael", "Mann")
	s.AttachGenreAt(oldMovie, Crime)

	live, _ := s.MovieRefOf(1)
	role := s.AddRoleAt(oldMovie, 0, "Vincent Hanna")
	s.AddRoleAt(live, oldActor, "Neil McCauley")
	s.LinkAt(oldDirector, live)

	t.Run("tables untouched", func(t *testing.T) {
		assert.Equal(t, 1, s.NumMovies())
		assert.Equal(t, 1, s.NumActors())
		assert.Equal(t, 0, s.NumDirectors())
		m, err := s.Movie(1)
		require.NoError(t, err)
		assert.Equal(t, "Heat", m.Title)

		_, ok := s.ActorsWithFirstName("Alfredo")
		assert.False(t, ok, "detached actors are not filed by name")
	})

	t.Run("edges", func(t *testing.T) {
		pacino, _ := s.Actor(10)
		assert.Equal(t, []RoleRef{role}, pacino.Roles)
		assert.False(t, s.MovieAt(s.RoleAt(role).Movie).Alive())
		assert.Equal(t, []Genre{Crime}, s.MovieAt(oldMovie).Genres)

		m, _ := s.Movie(1)
		require.Len(t, m.Cast, 1)
		assert.Equal(t, "Alfredo", s.ActorAt(s.RoleAt(m.Cast[0]).Actor).FirstName)
		assert.Equal(t, []DirectorRef{oldDirector}, m.Directors)
		assert.Equal(t, []MovieRef{live}, s.DirectorAt(oldDirector).Movies)
	})

	t.Run("live role count", func(t *testing.T) {
		assert.Equal(t, 1, s.NumRoles())
		assert.Equal(t, 2, s.NumRoleSlots())
	})

	t.Run("handles out of range", func(t *testing.T) {
		requireInvariantPanic(t, func() { s.AddRoleAt(9, 0, "x") })
		requireInvariantPanic(t, func() { s.AddRoleAt(0, 9, "x") })
		requireInvariantPanic(t, func() { s.LinkAt(9, 0) })
		requireInvariantPanic(t, func() { s.LinkAt(0, -1) })
		requireInvariantPanic(t, func() { s.AttachGenreAt(9, Drama) })
		assert.Equal(t, 2, s.NumRoleSlots())
	})
}

func TestNameIndexStaleAfterDelete(t *testing.T) {
	s := newFixture(t, Options{})
	ref, _ := s.ActorRefOf(12)

	s.RemoveMovie(3)
	s.RemoveActor(12)

	refs, ok := s.ActorsWithFirstName("Natalie")
	require.True(t, ok)
	assert.Equal(t, []ActorRef{ref}, refs, "deleted actors stay in their buckets")
	assert.False(t, s.ActorAt(ref).Alive())

	_, ok = s.ActorsWithLastName("Nobody")
	assert.False(t, ok)
}

func TestNameIndexPruned(t *testing.T) {
	s := newFixture(t, Options{PruneNameIndex: true})

	s.RemoveMovie(3)
	s.RemoveActor(12)

	refs, ok := s.ActorsWithFirstName("Natalie")
	assert.True(t, ok, "bucket remains present")
	assert.Empty(t, refs)

	refs, ok = s.ActorsWithLastName("Portman")
	assert.True(t, ok)
	assert.Empty(t, refs)
}

func TestIterationSkipsRemoved(t *testing.T) {
	s := newFixture(t, Options{})
	s.RemoveDirector(101)

	var ids []DirectorID
	for d := range s.Directors() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []DirectorID{100}, ids)

	var actorIDs []ActorID
	for a := range s.Actors() {
		actorIDs = append(actorIDs, a.ID)
		if a.ID == 11 {
			break
		}
	}
	assert.True(t, slices.Equal([]ActorID{10, 11}, actorIDs), "early break stops iteration")
}

func TestCachedRank(t *testing.T) {
	var c CachedRank

	_, ok := c.Get()
	assert.False(t, ok)

	c.Add(1.5)
	assert.False(t, c.IsSet(), "Add on an unset cache is a no-op")

	c.Set(0)
	v, ok := c.Get()
	assert.True(t, ok, "zero is a legitimate value")
	assert.Equal(t, 0.0, v)

	c.Add(1.5)
	v, _ = c.Get()
	assert.Equal(t, 1.5, v)
}

func TestParseGenre(t *testing.T) {
	for _, g := range AllGenres() {
		parsed, ok := ParseGenre(g.String())
		require.True(t, ok, g.String())
		assert.Equal(t, g, parsed)
	}
	assert.Len(t, AllGenres(), 21)

	g, ok := ParseGenre("Film-Noir")
	assert.True(t, ok)
	assert.Equal(t, FilmNoir, g)

	_, ok = ParseGenre("film-noir")
	assert.False(t, ok)
}

func TestParseGender(t *testing.T) {
	g, ok := ParseGender("F")
	assert.True(t, ok)
	assert.Equal(t, Female, g)
	assert.Equal(t, "F", g.String())

	_, ok = ParseGender("X")
	assert.False(t, ok)
}
