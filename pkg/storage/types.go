// Package storage provides the in-memory entity store for CineGraph.
//
// The store owns the canonical tables of movies, actors and directors, the role
// edges connecting movies to actors, and the director↔movie edge set. Entities
// live in append-only arenas and are addressed by stable handles (MovieRef,
// ActorRef, DirectorRef, RoleRef); every relationship is a list of handles, so
// there are no mutual pointers and cascading deletion is an explicit handle
// removal.
//
// Design Principles:
//   - Single writer, no internal locking (the caller owns the store)
//   - Bidirectional edges are always updated together
//   - "Not found" is a recoverable error, a broken invariant is a panic
//   - Iteration follows insertion order, so results are reproducible
//
// Example Usage:
//
//	store := storage.New(storage.Options{})
//
//	store.InsertMovie(1, "Heat", 1995, 8.2)
//	store.InsertActor(10, "Al", "Pacino", storage.Male)
//	store.InsertDirector(100, "Michael", "Mann")
//
//	store.LinkDirectorMovie(100, 1)
//	store.AddRole(1, 10, "Vincent Hanna")
//
//	actor, err := store.Actor(10)
//	if errors.Is(err, storage.ErrNotFound) {
//		// unknown id, distinct from an actor without roles
//	}
//	fmt.Println(len(actor.Roles)) // 1
package storage

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrNotFound         = errors.New("not found")
	ErrMovieNotFound    = fmt.Errorf("movie %w", ErrNotFound)
	ErrActorNotFound    = fmt.Errorf("actor %w", ErrNotFound)
	ErrDirectorNotFound = fmt.Errorf("director %w", ErrNotFound)
)

// InvariantError reports a broken internal invariant, such as removing an id
// the table does not hold or creating an edge to a nonexistent entity.
//
// It is raised with panic, never returned: it signals a bug or an unchecked
// precondition, not a condition callers are expected to handle.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("storage invariant violated in %s: %s", e.Op, e.Detail)
}

// invariant panics with an *InvariantError.
func invariant(op, format string, args ...any) {
	panic(&InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)})
}

// MovieID is the external identifier of a movie, as found in the input data.
type MovieID int

// ActorID is the external identifier of an actor.
type ActorID int

// DirectorID is the external identifier of a director.
type DirectorID int

// MovieRef is a stable handle to a movie slot in the store's arena.
type MovieRef int32

// ActorRef is a stable handle to an actor slot.
type ActorRef int32

// DirectorRef is a stable handle to a director slot.
type DirectorRef int32

// RoleRef is a stable handle to a role edge.
type RoleRef int32

// Gender of an actor.
type Gender uint8

const (
	Male Gender = iota
	Female
)

// ParseGender maps the single-character input token ("M" or "F") to a Gender.
func ParseGender(token string) (Gender, bool) {
	switch token {
	case "M":
		return Male, true
	case "F":
		return Female, true
	}
	return 0, false
}

// String returns the input token for g.
func (g Gender) String() string {
	if g == Female {
		return "F"
	}
	return "M"
}

// CachedRank is an explicitly optional average rank.
//
// The zero value is unset. An unset value is never confused with a computed
// average, however low.
type CachedRank struct {
	value float64
	set   bool
}

// Get returns the cached value and whether it has been computed.
func (c CachedRank) Get() (float64, bool) {
	return c.value, c.set
}

// IsSet reports whether a value has been computed.
func (c CachedRank) IsSet() bool {
	return c.set
}

// Set stores v and marks the cache as set.
func (c *CachedRank) Set(v float64) {
	c.value = v
	c.set = true
}

// Add shifts a set value by delta. It does nothing when the cache is unset.
func (c *CachedRank) Add(delta float64) {
	if c.set {
		c.value += delta
	}
}

// Movie is a film record.
//
// Cast and Directors are non-owning handle lists; resolve them with
// Store.RoleAt and Store.DirectorAt.
type Movie struct {
	ID        MovieID
	Title     string
	Year      int
	Rank      float64
	Genres    []Genre
	Cast      []RoleRef
	Directors []DirectorRef

	dead bool
}

// Age returns the movie's age relative to refYear.
func (m *Movie) Age(refYear int) int {
	return refYear - m.Year
}

// Alive reports whether the movie is still in the table (not removed and not
// replaced by a later insert with the same id).
func (m *Movie) Alive() bool {
	return !m.dead
}

// Actor is a cast member.
type Actor struct {
	ID        ActorID
	FirstName string
	LastName  string
	Gender    Gender
	AvgRank   CachedRank
	Roles     []RoleRef

	dead bool
}

// FullName joins first and last name with a single space.
func (a *Actor) FullName() string {
	return a.FirstName + " " + a.LastName
}

// Alive reports whether the actor is still in the table.
func (a *Actor) Alive() bool {
	return !a.dead
}

// Director made one or more movies.
type Director struct {
	ID        DirectorID
	FirstName string
	LastName  string
	AvgRank   CachedRank
	Movies    []MovieRef

	dead bool
}

// Alive reports whether the director is still in the table.
func (d *Director) Alive() bool {
	return !d.dead
}

// Role is the join entity between exactly one movie and one actor.
type Role struct {
	Name  string
	Movie MovieRef
	Actor ActorRef
}

// Options configures a Store.
type Options struct {
	// PruneNameIndex removes deleted actors from the first/last name indexes.
	// Off by default: deleted actors stay in their buckets.
	PruneNameIndex bool
}
