package query

import (
	"github.com/orneryd/cinegraph/pkg/storage"
)

// LastNamesOfActorsWithSameFirstNameAs lists the last names of the other
// actors filed under actorID's first name. Duplicates are kept and the order
// follows the index bucket.
//
// The name index is not pruned on deletion by default, so removed actors may
// still contribute names.
func (e *Engine) LastNamesOfActorsWithSameFirstNameAs(actorID storage.ActorID) ([]string, error) {
	var out []string
	err := e.eachCoNamed(actorID, func(a *storage.Actor) {
		out = append(out, a.LastName)
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// UniqueLastNamesOfActorsWithSameFirstNameAs is the deduplicated variant of
// LastNamesOfActorsWithSameFirstNameAs.
func (e *Engine) UniqueLastNamesOfActorsWithSameFirstNameAs(actorID storage.ActorID) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	err := e.eachCoNamed(actorID, func(a *storage.Actor) {
		out[a.LastName] = struct{}{}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) eachCoNamed(actorID storage.ActorID, visit func(*storage.Actor)) error {
	actor, err := e.store.Actor(actorID)
	if err != nil {
		return err
	}
	self, _ := e.store.ActorRefOf(actorID)
	refs, _ := e.store.ActorsWithFirstName(actor.FirstName)
	for _, ref := range refs {
		if ref != self {
			visit(e.store.ActorAt(ref))
		}
	}
	return nil
}

// IsAlsoActor reports whether an actor with the director's exact first and
// last name is filed in the name index.
func (e *Engine) IsAlsoActor(directorID storage.DirectorID) (bool, error) {
	d, err := e.store.Director(directorID)
	if err != nil {
		return false, err
	}
	return e.isAlsoActor(d), nil
}

func (e *Engine) isAlsoActor(d *storage.Director) bool {
	refs, ok := e.store.ActorsWithLastName(d.LastName)
	if !ok {
		return false
	}
	for _, ref := range refs {
		if e.store.ActorAt(ref).FirstName == d.FirstName {
			return true
		}
	}
	return false
}

// DirectorsWhoAreAlsoActors returns, in director insertion order, the ids of
// every director for which IsAlsoActor holds.
func (e *Engine) DirectorsWhoAreAlsoActors() []storage.DirectorID {
	var out []storage.DirectorID
	for d := range e.store.Directors() {
		if e.isAlsoActor(d) {
			out = append(out, d.ID)
		}
	}
	return out
}

// FullName returns the actor's first and last name joined by a space.
func (e *Engine) FullName(actorID storage.ActorID) (string, error) {
	a, err := e.store.Actor(actorID)
	if err != nil {
		return "", err
	}
	return a.FullName(), nil
}
