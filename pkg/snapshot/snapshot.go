// Package snapshot saves and restores the full state of a store in a BadgerDB
// archive.
//
// A snapshot captures every live movie, actor, director, director-movie link
// and role, plus the cached average ranks of actors and directors (including
// whether they were ever computed). Slots that left the table (an id inserted
// twice, or a removal) are saved as detached records when a live entity can
// still reach them through its edges, so traversals give the same answers
// after a restore. Unreachable dead slots are dropped.
//
// Restoring replays the records through the store inserts, so the name
// indexes come back exact: actors deleted or superseded before the save are
// absent from them.
//
// Each Save replaces the archive's previous content. A manifest records
// entity counts and a BLAKE2b-256 digest over all records, both checked on
// Load.
//
// Example Usage:
//
//	archive, err := snapshot.Open(snapshot.Options{Dir: "./data/snapshot"})
//	if err != nil {
//		return err
//	}
//	defer archive.Close()
//
//	manifest, err := archive.Save(ctx, store)
//	...
//	restored, manifest, err := archive.Load(ctx, storage.Options{})
//	if errors.Is(err, snapshot.ErrNoSnapshot) {
//		// nothing saved yet
//	}
//
// Key Layout:
//
//	0x01                 manifest
//	0x02 + seq (uint64)  movie
//	0x03 + seq           actor
//	0x04 + seq           director
//	0x05 + seq           director-movie link
//	0x06 + seq           role
//
// Values are JSON. Sequence numbers follow arena order, so insertion order
// (and with it cast and role list order) survives the round trip. Links and
// roles name their ends by slot: the position of the entity record among the
// saved records of its kind.
package snapshot

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"

	"github.com/orneryd/cinegraph/pkg/storage"
)

// Errors returned by Load.
var (
	ErrNoSnapshot = errors.New("snapshot: archive is empty")
	ErrCorrupt    = errors.New("snapshot: archive is corrupt")
)

const cancelCheckInterval = 4096

// Options configures the underlying BadgerDB.
type Options struct {
	// Dir holds the archive files. Ignored when InMemory is set.
	Dir string

	// InMemory keeps the archive in RAM only. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// Logger receives badger's internal warnings and errors. The zero value
	// discards them.
	Logger zerolog.Logger
}

// Archive is an open snapshot archive.
type Archive struct {
	db  *badger.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the archive described by opts.
func Open(opts Options) (*Archive, error) {
	log := opts.Logger.With().Str("component", "snapshot").Logger()

	dir := opts.Dir
	if opts.InMemory {
		dir = ""
	}
	badgerOpts := badger.DefaultOptions(dir).
		WithInMemory(opts.InMemory).
		WithSyncWrites(opts.SyncWrites).
		WithLogger(&badgerLogger{log: log}).
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot archive: %w", err)
	}
	return &Archive{db: db, log: log}, nil
}

// Close releases the archive.
func (a *Archive) Close() error {
	return a.db.Close()
}

// =============================================================================
// Save
// =============================================================================

// Save writes the live state of store, plus the dead slots live entities
// still reach, replacing any previous snapshot.
func (a *Archive) Save(ctx context.Context, store *storage.Store) (*Manifest, error) {
	start := time.Now()
	if err := a.db.DropAll(); err != nil {
		return nil, fmt.Errorf("clearing snapshot archive: %w", err)
	}

	w := &recordWriter{ctx: ctx, batch: a.db.NewWriteBatch(), digest: newDigest()}
	defer w.batch.Cancel()

	m := &Manifest{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	keep := reachableSlots(store)

	movieSlots := make([]int, store.NumMovieSlots())
	next := 0
	for i := range movieSlots {
		movieSlots[i] = -1
		if !keep.movies[i] {
			continue
		}
		movie := store.MovieAt(storage.MovieRef(i))
		rec := movieRecord{
			ID:       movie.ID,
			Title:    movie.Title,
			Year:     movie.Year,
			Rank:     movie.Rank,
			Detached: !movie.Alive(),
		}
		for _, g := range movie.Genres {
			rec.Genres = append(rec.Genres, g.String())
		}
		w.put(prefixMovie, rec)
		m.count(rec.Detached, &m.Movies)
		movieSlots[i] = next
		next++
	}

	actorSlots := make([]int, store.NumActorSlots())
	next = 0
	for i := range actorSlots {
		actorSlots[i] = -1
		if !keep.actors[i] {
			continue
		}
		actor := store.ActorAt(storage.ActorRef(i))
		w.put(prefixActor, actorRecord{
			ID:        actor.ID,
			FirstName: actor.FirstName,
			LastName:  actor.LastName,
			Gender:    actor.Gender.String(),
			AvgRank:   optionalRank(actor.AvgRank),
			Detached:  !actor.Alive(),
		})
		m.count(!actor.Alive(), &m.Actors)
		actorSlots[i] = next
		next++
	}

	var directors []storage.DirectorRef
	for i := range store.NumDirectorSlots() {
		if !keep.directors[i] {
			continue
		}
		d := store.DirectorAt(storage.DirectorRef(i))
		w.put(prefixDirector, directorRecord{
			ID:        d.ID,
			FirstName: d.FirstName,
			LastName:  d.LastName,
			AvgRank:   optionalRank(d.AvgRank),
			Detached:  !d.Alive(),
		})
		m.count(!d.Alive(), &m.Directors)
		directors = append(directors, storage.DirectorRef(i))
	}

	for slot, dref := range directors {
		for _, mref := range store.DirectorAt(dref).Movies {
			w.put(prefixLink, linkRecord{Director: slot, Movie: movieSlots[mref]})
			m.Links++
		}
	}
	for i := range store.NumRoleSlots() {
		if !keep.roles[i] {
			continue
		}
		role := store.RoleAt(storage.RoleRef(i))
		w.put(prefixRole, roleRecord{
			Movie: movieSlots[role.Movie],
			Actor: actorSlots[role.Actor],
			Name:  role.Name,
		})
		m.Roles++
	}
	if w.err != nil {
		return nil, w.err
	}

	m.Digest = hex.EncodeToString(w.digest.Sum(nil))
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	if err := w.batch.Set(manifestKey, data); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}
	if err := w.batch.Flush(); err != nil {
		return nil, fmt.Errorf("flushing snapshot: %w", err)
	}

	a.log.Info().
		Str("snapshot", m.ID).
		Int("movies", m.Movies).
		Int("actors", m.Actors).
		Int("directors", m.Directors).
		Int("roles", m.Roles).
		Int("detached", m.Detached).
		Dur("took", time.Since(start)).
		Msg("snapshot saved")
	return m, nil
}

// slotSet marks arena slots by handle.
type slotSet struct {
	movies    []bool
	actors    []bool
	directors []bool
	roles     []bool
}

// reachableSlots marks every live slot and every slot reachable from one by
// following cast, role and director-movie edges, in either direction.
//
// Removal detaches a movie from the actors and directors that listed it, so
// the marked slots hold each edge on both of its ends and restoring the marked
// roles and links reproduces every list.
func reachableSlots(store *storage.Store) *slotSet {
	set := &slotSet{
		movies:    make([]bool, store.NumMovieSlots()),
		actors:    make([]bool, store.NumActorSlots()),
		directors: make([]bool, store.NumDirectorSlots()),
		roles:     make([]bool, store.NumRoleSlots()),
	}
	var movies []storage.MovieRef
	var actors []storage.ActorRef
	var directors []storage.DirectorRef

	markMovie := func(ref storage.MovieRef) {
		if !set.movies[ref] {
			set.movies[ref] = true
			movies = append(movies, ref)
		}
	}
	markActor := func(ref storage.ActorRef) {
		if !set.actors[ref] {
			set.actors[ref] = true
			actors = append(actors, ref)
		}
	}
	markDirector := func(ref storage.DirectorRef) {
		if !set.directors[ref] {
			set.directors[ref] = true
			directors = append(directors, ref)
		}
	}

	for i := range set.movies {
		if store.MovieAt(storage.MovieRef(i)).Alive() {
			markMovie(storage.MovieRef(i))
		}
	}
	for i := range set.actors {
		if store.ActorAt(storage.ActorRef(i)).Alive() {
			markActor(storage.ActorRef(i))
		}
	}
	for i := range set.directors {
		if store.DirectorAt(storage.DirectorRef(i)).Alive() {
			markDirector(storage.DirectorRef(i))
		}
	}

	for len(movies) > 0 || len(actors) > 0 || len(directors) > 0 {
		switch {
		case len(movies) > 0:
			movie := store.MovieAt(movies[len(movies)-1])
			movies = movies[:len(movies)-1]
			for _, rref := range movie.Cast {
				set.roles[rref] = true
				markActor(store.RoleAt(rref).Actor)
			}
			for _, dref := range movie.Directors {
				markDirector(dref)
			}
		case len(actors) > 0:
			actor := store.ActorAt(actors[len(actors)-1])
			actors = actors[:len(actors)-1]
			for _, rref := range actor.Roles {
				set.roles[rref] = true
				markMovie(store.RoleAt(rref).Movie)
			}
		default:
			d := store.DirectorAt(directors[len(directors)-1])
			directors = directors[:len(directors)-1]
			for _, mref := range d.Movies {
				markMovie(mref)
			}
		}
	}
	return set
}

// recordWriter sequences, encodes and hashes records into a write batch,
// keeping the first error.
type recordWriter struct {
	ctx    context.Context
	batch  *badger.WriteBatch
	digest hash.Hash
	seq    uint64
	err    error
}

func (w *recordWriter) put(prefix byte, rec any) {
	if w.err != nil {
		return
	}
	w.seq++
	if w.seq%cancelCheckInterval == 0 {
		if err := w.ctx.Err(); err != nil {
			w.err = fmt.Errorf("saving snapshot: %w", err)
			return
		}
	}
	value, err := json.Marshal(rec)
	if err != nil {
		w.err = fmt.Errorf("encoding record: %w", err)
		return
	}
	key := recordKey(prefix, w.seq)
	w.digest.Write(key)
	w.digest.Write(value)
	if err := w.batch.Set(key, value); err != nil {
		w.err = fmt.Errorf("writing record: %w", err)
	}
}

func newDigest() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// Only a key longer than 64 bytes fails.
		panic(err)
	}
	return h
}

// =============================================================================
// Load
// =============================================================================

// Load rebuilds a store from the archive.
//
// Returns ErrNoSnapshot for an empty archive and an ErrCorrupt-wrapping error
// when records fail to decode, reference missing entities, or disagree with
// the manifest.
func (a *Archive) Load(ctx context.Context, opts storage.Options) (*storage.Store, *Manifest, error) {
	start := time.Now()
	store := storage.New(opts)
	r := &recordReader{store: store, digest: newDigest()}

	err := a.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		n := 0
		for it.Rewind(); it.Valid(); it.Next() {
			n++
			if n%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("loading snapshot: %w", err)
				}
			}
			item := it.Item()
			key := item.KeyCopy(nil)
			if err := item.Value(func(val []byte) error {
				return r.apply(key, val)
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if r.manifest == nil {
		if r.records == 0 {
			return nil, nil, ErrNoSnapshot
		}
		return nil, nil, fmt.Errorf("%w: manifest missing", ErrCorrupt)
	}
	if err := r.verify(); err != nil {
		return nil, nil, err
	}

	a.log.Info().
		Str("snapshot", r.manifest.ID).
		Int("movies", store.NumMovies()).
		Int("actors", store.NumActors()).
		Int("directors", store.NumDirectors()).
		Dur("took", time.Since(start)).
		Msg("snapshot restored")
	return store, r.manifest, nil
}

type recordReader struct {
	store    *storage.Store
	digest   hash.Hash
	manifest *Manifest
	records  int
	links    int
	roles    int
	detached int

	// Restored handles, indexed by slot.
	movies    []storage.MovieRef
	actors    []storage.ActorRef
	directors []storage.DirectorRef
}

func (r *recordReader) apply(key, val []byte) error {
	if len(key) == 1 && key[0] == prefixManifest {
		var m Manifest
		if err := json.Unmarshal(val, &m); err != nil {
			return fmt.Errorf("%w: manifest: %v", ErrCorrupt, err)
		}
		r.manifest = &m
		return nil
	}
	if len(key) != 9 {
		return fmt.Errorf("%w: unexpected key %x", ErrCorrupt, key)
	}
	r.records++
	r.digest.Write(key)
	r.digest.Write(val)

	switch key[0] {
	case prefixMovie:
		var rec movieRecord
		if err := decode(val, &rec); err != nil {
			return err
		}
		var ref storage.MovieRef
		if rec.Detached {
			ref = r.store.InsertDetachedMovie(rec.ID, rec.Title, rec.Year, rec.Rank)
			r.detached++
		} else {
			ref = r.store.InsertMovie(rec.ID, rec.Title, rec.Year, rec.Rank)
		}
		for _, label := range rec.Genres {
			g, ok := storage.ParseGenre(label)
			if !ok {
				return fmt.Errorf("%w: movie %d has unknown genre %q", ErrCorrupt, rec.ID, label)
			}
			r.store.AttachGenreAt(ref, g)
		}
		r.movies = append(r.movies, ref)

	case prefixActor:
		var rec actorRecord
		if err := decode(val, &rec); err != nil {
			return err
		}
		gender, ok := storage.ParseGender(rec.Gender)
		if !ok {
			return fmt.Errorf("%w: actor %d has unknown gender %q", ErrCorrupt, rec.ID, rec.Gender)
		}
		var ref storage.ActorRef
		if rec.Detached {
			ref = r.store.InsertDetachedActor(rec.ID, rec.FirstName, rec.LastName, gender)
			r.detached++
		} else {
			ref = r.store.InsertActor(rec.ID, rec.FirstName, rec.LastName, gender)
		}
		if rec.AvgRank != nil {
			r.store.ActorAt(ref).AvgRank.Set(*rec.AvgRank)
		}
		r.actors = append(r.actors, ref)

	case prefixDirector:
		var rec directorRecord
		if err := decode(val, &rec); err != nil {
			return err
		}
		var ref storage.DirectorRef
		if rec.Detached {
			ref = r.store.InsertDetachedDirector(rec.ID, rec.FirstName, rec.LastName)
			r.detached++
		} else {
			ref = r.store.InsertDirector(rec.ID, rec.FirstName, rec.LastName)
		}
		if rec.AvgRank != nil {
			r.store.DirectorAt(ref).AvgRank.Set(*rec.AvgRank)
		}
		r.directors = append(r.directors, ref)

	case prefixLink:
		var rec linkRecord
		if err := decode(val, &rec); err != nil {
			return err
		}
		if !inRange(rec.Director, len(r.directors)) || !inRange(rec.Movie, len(r.movies)) {
			return fmt.Errorf("%w: link %d->%d references a missing slot", ErrCorrupt, rec.Director, rec.Movie)
		}
		r.store.LinkAt(r.directors[rec.Director], r.movies[rec.Movie])
		r.links++

	case prefixRole:
		var rec roleRecord
		if err := decode(val, &rec); err != nil {
			return err
		}
		if !inRange(rec.Movie, len(r.movies)) || !inRange(rec.Actor, len(r.actors)) {
			return fmt.Errorf("%w: role %d/%d references a missing slot", ErrCorrupt, rec.Movie, rec.Actor)
		}
		r.store.AddRoleAt(r.movies[rec.Movie], r.actors[rec.Actor], rec.Name)
		r.roles++

	default:
		return fmt.Errorf("%w: unknown record prefix 0x%02x", ErrCorrupt, key[0])
	}
	return nil
}

func (r *recordReader) verify() error {
	m := r.manifest
	if got := hex.EncodeToString(r.digest.Sum(nil)); got != m.Digest {
		return fmt.Errorf("%w: digest %s, manifest says %s", ErrCorrupt, got, m.Digest)
	}
	counts := []struct {
		kind      string
		got, want int
	}{
		{"movies", r.store.NumMovies(), m.Movies},
		{"actors", r.store.NumActors(), m.Actors},
		{"directors", r.store.NumDirectors(), m.Directors},
		{"links", r.links, m.Links},
		{"roles", r.roles, m.Roles},
		{"detached slots", r.detached, m.Detached},
	}
	for _, c := range counts {
		if c.got != c.want {
			return fmt.Errorf("%w: %d %s restored, manifest says %d", ErrCorrupt, c.got, c.kind, c.want)
		}
	}
	return nil
}

func inRange(slot, n int) bool {
	return slot >= 0 && slot < n
}

func decode(val []byte, v any) error {
	if err := json.Unmarshal(val, v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}

// =============================================================================
// Badger logging
// =============================================================================

// badgerLogger routes badger's printf-style logging into zerolog. Info and
// debug chatter is demoted to debug.
type badgerLogger struct {
	log zerolog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn().Msgf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Trace().Msgf(format, args...)
}
