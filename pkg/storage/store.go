package storage

import (
	"iter"

	"github.com/orneryd/cinegraph/pkg/index"
)

// Store is the in-memory table of movies, actors, directors and roles.
//
// Entities are kept in append-only arenas. The id tables map an external id to
// the slot currently holding it. Inserting an id that already exists allocates a
// new slot and repoints the table without migrating edges; the superseded slot
// is marked dead but stays reachable through edges that already referenced it.
//
// Performance Characteristics:
//   - Insert: O(1) amortized
//   - Lookup by id: O(1)
//   - Iteration: O(slots), dead slots are skipped
//   - RemoveMovie: O(cast × roles per actor + directors × movies per director)
//
// Thread Safety:
//
//	Store is NOT thread-safe. It must be owned by a single goroutine at a
//	time; wrap it externally if it has to be shared.
type Store struct {
	movies    []*Movie
	actors    []*Actor
	directors []*Director
	roles     []*Role

	movieIndex    map[MovieID]MovieRef
	actorIndex    map[ActorID]ActorRef
	directorIndex map[DirectorID]DirectorRef

	// Secondary name indexes over actors
	byFirstName *index.Names[ActorRef]
	byLastName  *index.Names[ActorRef]

	opts Options
}

// New creates an empty store.
func New(opts Options) *Store {
	return &Store{
		movieIndex:    make(map[MovieID]MovieRef),
		actorIndex:    make(map[ActorID]ActorRef),
		directorIndex: make(map[DirectorID]DirectorRef),
		byFirstName:   index.NewNames[ActorRef](),
		byLastName:    index.NewNames[ActorRef](),
		opts:          opts,
	}
}

// Options returns the options the store was created with.
func (s *Store) Options() Options {
	return s.opts
}

// ============================================================================
// Inserts
// ============================================================================

// InsertMovie adds a movie and returns its handle. An existing movie with the
// same id is replaced in the table; its edges are not migrated.
func (s *Store) InsertMovie(id MovieID, title string, year int, rank float64) MovieRef {
	ref := MovieRef(len(s.movies))
	s.movies = append(s.movies, &Movie{ID: id, Title: title, Year: year, Rank: rank})
	if old, exists := s.movieIndex[id]; exists {
		s.movies[old].dead = true
	}
	s.movieIndex[id] = ref
	return ref
}

// InsertActor adds an actor and registers it in both name indexes.
func (s *Store) InsertActor(id ActorID, firstName, lastName string, gender Gender) ActorRef {
	ref := ActorRef(len(s.actors))
	s.actors = append(s.actors, &Actor{
		ID:        id,
		FirstName: firstName,
		LastName:  lastName,
		Gender:    gender,
	})
	if old, exists := s.actorIndex[id]; exists {
		s.actors[old].dead = true
	}
	s.actorIndex[id] = ref

	s.byFirstName.Add(firstName, ref)
	s.byLastName.Add(lastName, ref)
	return ref
}

// InsertDirector adds a director.
func (s *Store) InsertDirector(id DirectorID, firstName, lastName string) DirectorRef {
	ref := DirectorRef(len(s.directors))
	s.directors = append(s.directors, &Director{ID: id, FirstName: firstName, LastName: lastName})
	if old, exists := s.directorIndex[id]; exists {
		s.directors[old].dead = true
	}
	s.directorIndex[id] = ref
	return ref
}

// InsertDetachedMovie adds a movie slot that is not bound in the id table,
// the state a slot is left in once its id was inserted again or removed.
// It is never yielded by Movies but can carry edges. Snapshot restore uses it
// to rebuild slots that live entities still reference.
func (s *Store) InsertDetachedMovie(id MovieID, title string, year int, rank float64) MovieRef {
	ref := MovieRef(len(s.movies))
	s.movies = append(s.movies, &Movie{ID: id, Title: title, Year: year, Rank: rank, dead: true})
	return ref
}

// InsertDetachedActor is InsertDetachedMovie for actors. The slot is not
// filed in the name indexes.
func (s *Store) InsertDetachedActor(id ActorID, firstName, lastName string, gender Gender) ActorRef {
	ref := ActorRef(len(s.actors))
	s.actors = append(s.actors, &Actor{
		ID:        id,
		FirstName: firstName,
		LastName:  lastName,
		Gender:    gender,
		dead:      true,
	})
	return ref
}

// InsertDetachedDirector is InsertDetachedMovie for directors.
func (s *Store) InsertDetachedDirector(id DirectorID, firstName, lastName string) DirectorRef {
	ref := DirectorRef(len(s.directors))
	s.directors = append(s.directors, &Director{ID: id, FirstName: firstName, LastName: lastName, dead: true})
	return ref
}

// AttachGenre tags a movie with a genre. Duplicates are not filtered.
//
// Panics with *InvariantError if the movie does not exist.
func (s *Store) AttachGenre(movieID MovieID, genre Genre) {
	m := s.mustMovie("AttachGenre", movieID)
	m.Genres = append(m.Genres, genre)
}

// AttachGenreAt is AttachGenre for a movie handle, live or not.
func (s *Store) AttachGenreAt(ref MovieRef, genre Genre) {
	s.checkMovieRef("AttachGenreAt", ref)
	s.movies[ref].Genres = append(s.movies[ref].Genres, genre)
}

// LinkDirectorMovie records that the director made the movie, on both sides.
//
// Panics with *InvariantError if either id does not exist.
func (s *Store) LinkDirectorMovie(directorID DirectorID, movieID MovieID) {
	dref, ok := s.directorIndex[directorID]
	if !ok {
		invariant("LinkDirectorMovie", "director %d does not exist", directorID)
	}
	mref, ok := s.movieIndex[movieID]
	if !ok {
		invariant("LinkDirectorMovie", "movie %d does not exist", movieID)
	}
	s.link(dref, mref)
}

// LinkAt is LinkDirectorMovie for handles. Either side may be a detached
// slot.
//
// Panics with *InvariantError if a handle is out of range.
func (s *Store) LinkAt(dref DirectorRef, mref MovieRef) {
	if dref < 0 || int(dref) >= len(s.directors) {
		invariant("LinkAt", "director handle %d out of range", dref)
	}
	s.checkMovieRef("LinkAt", mref)
	s.link(dref, mref)
}

func (s *Store) link(dref DirectorRef, mref MovieRef) {
	s.directors[dref].Movies = append(s.directors[dref].Movies, mref)
	s.movies[mref].Directors = append(s.movies[mref].Directors, dref)
}

// AddRole creates a role edge and registers it in the movie's cast and the
// actor's role list.
//
// Panics with *InvariantError if either id does not exist; ingestion must
// insert movies and actors before their roles.
func (s *Store) AddRole(movieID MovieID, actorID ActorID, name string) RoleRef {
	mref, ok := s.movieIndex[movieID]
	if !ok {
		invariant("AddRole", "movie %d does not exist", movieID)
	}
	aref, ok := s.actorIndex[actorID]
	if !ok {
		invariant("AddRole", "actor %d does not exist", actorID)
	}
	return s.addRole(mref, aref, name)
}

// AddRoleAt is AddRole for handles. Either side may be a detached slot.
//
// Panics with *InvariantError if a handle is out of range.
func (s *Store) AddRoleAt(mref MovieRef, aref ActorRef, name string) RoleRef {
	s.checkMovieRef("AddRoleAt", mref)
	if aref < 0 || int(aref) >= len(s.actors) {
		invariant("AddRoleAt", "actor handle %d out of range", aref)
	}
	return s.addRole(mref, aref, name)
}

func (s *Store) addRole(mref MovieRef, aref ActorRef, name string) RoleRef {
	ref := RoleRef(len(s.roles))
	s.roles = append(s.roles, &Role{Name: name, Movie: mref, Actor: aref})
	s.movies[mref].Cast = append(s.movies[mref].Cast, ref)
	s.actors[aref].Roles = append(s.actors[aref].Roles, ref)
	return ref
}

// ============================================================================
// Lookups
// ============================================================================

// HasMovie reports whether a movie with this id is in the table.
func (s *Store) HasMovie(id MovieID) bool {
	_, ok := s.movieIndex[id]
	return ok
}

// HasActor reports whether an actor with this id is in the table.
func (s *Store) HasActor(id ActorID) bool {
	_, ok := s.actorIndex[id]
	return ok
}

// HasDirector reports whether a director with this id is in the table.
func (s *Store) HasDirector(id DirectorID) bool {
	_, ok := s.directorIndex[id]
	return ok
}

// Movie returns the movie with the given id, or ErrMovieNotFound.
//
// The returned pointer aliases the stored record. Only Rank may be changed
// through it.
func (s *Store) Movie(id MovieID) (*Movie, error) {
	ref, ok := s.movieIndex[id]
	if !ok {
		return nil, ErrMovieNotFound
	}
	return s.movies[ref], nil
}

// MovieRefOf returns the handle currently bound to id.
func (s *Store) MovieRefOf(id MovieID) (MovieRef, bool) {
	ref, ok := s.movieIndex[id]
	return ref, ok
}

// Actor returns the actor with the given id, or ErrActorNotFound.
func (s *Store) Actor(id ActorID) (*Actor, error) {
	ref, ok := s.actorIndex[id]
	if !ok {
		return nil, ErrActorNotFound
	}
	return s.actors[ref], nil
}

// ActorRefOf returns the handle currently bound to id.
func (s *Store) ActorRefOf(id ActorID) (ActorRef, bool) {
	ref, ok := s.actorIndex[id]
	return ref, ok
}

// Director returns the director with the given id, or ErrDirectorNotFound.
func (s *Store) Director(id DirectorID) (*Director, error) {
	ref, ok := s.directorIndex[id]
	if !ok {
		return nil, ErrDirectorNotFound
	}
	return s.directors[ref], nil
}

// MovieAt resolves a movie handle. Handles are never invalidated, so this
// also resolves removed or superseded movies.
func (s *Store) MovieAt(ref MovieRef) *Movie { return s.movies[ref] }

// ActorAt resolves an actor handle.
func (s *Store) ActorAt(ref ActorRef) *Actor { return s.actors[ref] }

// DirectorAt resolves a director handle.
func (s *Store) DirectorAt(ref DirectorRef) *Director { return s.directors[ref] }

// RoleAt resolves a role handle.
func (s *Store) RoleAt(ref RoleRef) *Role { return s.roles[ref] }

// ActorsWithFirstName returns the name-index bucket for a first name.
// ok is false when no actor was ever inserted under that name.
//
// Without Options.PruneNameIndex the bucket still lists actors that have
// since been deleted.
func (s *Store) ActorsWithFirstName(name string) (refs []ActorRef, ok bool) {
	return s.byFirstName.Lookup(name)
}

// ActorsWithLastName returns the name-index bucket for a last name.
func (s *Store) ActorsWithLastName(name string) (refs []ActorRef, ok bool) {
	return s.byLastName.Lookup(name)
}

// ============================================================================
// Iteration
// ============================================================================

// Movies yields every live movie in insertion order.
//
// The store must not be mutated structurally (inserts or removals) while
// iterating; changing Rank is fine.
func (s *Store) Movies() iter.Seq[*Movie] {
	return func(yield func(*Movie) bool) {
		for _, m := range s.movies {
			if !m.dead && !yield(m) {
				return
			}
		}
	}
}

// Actors yields every live actor in insertion order.
func (s *Store) Actors() iter.Seq[*Actor] {
	return func(yield func(*Actor) bool) {
		for _, a := range s.actors {
			if !a.dead && !yield(a) {
				return
			}
		}
	}
}

// Directors yields every live director in insertion order.
func (s *Store) Directors() iter.Seq[*Director] {
	return func(yield func(*Director) bool) {
		for _, d := range s.directors {
			if !d.dead && !yield(d) {
				return
			}
		}
	}
}

// NumMovies returns the number of movies in the table.
func (s *Store) NumMovies() int { return len(s.movieIndex) }

// NumActors returns the number of actors in the table.
func (s *Store) NumActors() int { return len(s.actorIndex) }

// NumDirectors returns the number of directors in the table.
func (s *Store) NumDirectors() int { return len(s.directorIndex) }

// NumRoles returns the number of roles whose movie is in the table. Roles of
// removed or superseded movies are not counted.
func (s *Store) NumRoles() int {
	n := 0
	for m := range s.Movies() {
		n += len(m.Cast)
	}
	return n
}

// NumMovieSlots returns the size of the movie arena, dead slots included.
// Valid handles are 0 to NumMovieSlots()-1.
func (s *Store) NumMovieSlots() int { return len(s.movies) }

// NumActorSlots returns the size of the actor arena.
func (s *Store) NumActorSlots() int { return len(s.actors) }

// NumDirectorSlots returns the size of the director arena.
func (s *Store) NumDirectorSlots() int { return len(s.directors) }

// NumRoleSlots returns the number of roles ever created.
func (s *Store) NumRoleSlots() int { return len(s.roles) }

// MaxMovieID returns the largest live movie id, or 0 for an empty table.
func (s *Store) MaxMovieID() MovieID {
	var maxID MovieID
	for id := range s.movieIndex {
		if id > maxID {
			maxID = id
		}
	}
	return maxID
}

// MaxActorID returns the largest live actor id, or 0 for an empty table.
func (s *Store) MaxActorID() ActorID {
	var maxID ActorID
	for id := range s.actorIndex {
		if id > maxID {
			maxID = id
		}
	}
	return maxID
}

// ============================================================================
// Cascading removal
// ============================================================================

// RemoveMovie drops a movie from the table and detaches it from every actor
// and director that referenced it. Actors' cached averages are left as they
// are and become stale until the next full recomputation.
//
// Panics with *InvariantError if the id is not in the table.
func (s *Store) RemoveMovie(id MovieID) {
	ref, ok := s.movieIndex[id]
	if !ok {
		invariant("RemoveMovie", "movie %d is not in the table", id)
	}
	delete(s.movieIndex, id)
	m := s.movies[ref]
	m.dead = true

	for _, rref := range m.Cast {
		a := s.actors[s.roles[rref].Actor]
		a.Roles = removeFirst(a.Roles, rref)
	}
	for _, dref := range m.Directors {
		d := s.directors[dref]
		d.Movies = removeFirst(d.Movies, ref)
	}
}

// RemoveActor drops an actor from the table. Its role edges are not touched;
// callers remove actors only once they have none.
//
// With Options.PruneNameIndex the actor also leaves its name buckets.
func (s *Store) RemoveActor(id ActorID) {
	ref, ok := s.actorIndex[id]
	if !ok {
		invariant("RemoveActor", "actor %d is not in the table", id)
	}
	delete(s.actorIndex, id)
	a := s.actors[ref]
	a.dead = true

	if s.opts.PruneNameIndex {
		s.byFirstName.Remove(a.FirstName, ref)
		s.byLastName.Remove(a.LastName, ref)
	}
}

// RemoveDirector drops a director from the table.
func (s *Store) RemoveDirector(id DirectorID) {
	ref, ok := s.directorIndex[id]
	if !ok {
		invariant("RemoveDirector", "director %d is not in the table", id)
	}
	delete(s.directorIndex, id)
	s.directors[ref].dead = true
}

func (s *Store) mustMovie(op string, id MovieID) *Movie {
	ref, ok := s.movieIndex[id]
	if !ok {
		invariant(op, "movie %d does not exist", id)
	}
	return s.movies[ref]
}

func (s *Store) checkMovieRef(op string, ref MovieRef) {
	if ref < 0 || int(ref) >= len(s.movies) {
		invariant(op, "movie handle %d out of range", ref)
	}
}

// removeFirst deletes the first occurrence of v, preserving order.
func removeFirst[T comparable](list []T, v T) []T {
	for i, x := range list {
		if x == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
