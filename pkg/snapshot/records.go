package snapshot

import (
	"encoding/binary"
	"time"

	"github.com/orneryd/cinegraph/pkg/storage"
)

// Key prefixes. Record kinds sort in the order they must be restored, so a
// single ascending scan rebuilds entities before the edges that reference
// them.
const (
	prefixManifest = byte(0x01) // manifest -> Manifest
	prefixMovie    = byte(0x02) // movie:seq -> movieRecord
	prefixActor    = byte(0x03) // actor:seq -> actorRecord
	prefixDirector = byte(0x04) // director:seq -> directorRecord
	prefixLink     = byte(0x05) // link:seq -> linkRecord
	prefixRole     = byte(0x06) // role:seq -> roleRecord
)

var manifestKey = []byte{prefixManifest}

// recordKey builds prefix + big-endian sequence so badger's key order matches
// insertion order.
func recordKey(prefix byte, seq uint64) []byte {
	key := make([]byte, 9)
	key[0] = prefix
	binary.BigEndian.PutUint64(key[1:], seq)
	return key
}

// Manifest describes a saved snapshot. Movies, Actors and Directors count
// live entities; Detached counts the dead slots of all three kinds saved
// because live entities still reach them.
type Manifest struct {
	ID        string    `json:"id" yaml:"id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Movies    int       `json:"movies" yaml:"movies"`
	Actors    int       `json:"actors" yaml:"actors"`
	Directors int       `json:"directors" yaml:"directors"`
	Detached  int       `json:"detached" yaml:"detached"`
	Links     int       `json:"links" yaml:"links"`
	Roles     int       `json:"roles" yaml:"roles"`

	// Digest is the hex BLAKE2b-256 of every record key and value, in key
	// order, excluding the manifest itself.
	Digest string `json:"digest" yaml:"digest"`
}

// count adds one saved entity to its live counter, or to Detached.
func (m *Manifest) count(detached bool, live *int) {
	if detached {
		m.Detached++
		return
	}
	*live++
}

// Entity records. Detached marks a slot that is no longer bound to its id.
type movieRecord struct {
	ID       storage.MovieID `json:"id"`
	Title    string          `json:"title"`
	Year     int             `json:"year"`
	Rank     float64         `json:"rank"`
	Genres   []string        `json:"genres,omitempty"`
	Detached bool            `json:"detached,omitempty"`
}

type actorRecord struct {
	ID        storage.ActorID `json:"id"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Gender    string          `json:"gender"`
	AvgRank   *float64        `json:"avg_rank,omitempty"`
	Detached  bool            `json:"detached,omitempty"`
}

type directorRecord struct {
	ID        storage.DirectorID `json:"id"`
	FirstName string             `json:"first_name"`
	LastName  string             `json:"last_name"`
	AvgRank   *float64           `json:"avg_rank,omitempty"`
	Detached  bool               `json:"detached,omitempty"`
}

// Edge records hold slots, not ids: an id may name a live and a detached
// slot at once.
type linkRecord struct {
	Director int `json:"director"`
	Movie    int `json:"movie"`
}

type roleRecord struct {
	Movie int    `json:"movie"`
	Actor int    `json:"actor"`
	Name  string `json:"name"`
}

// optionalRank converts a cached rank to its wire form; nil means unset.
func optionalRank(c storage.CachedRank) *float64 {
	v, ok := c.Get()
	if !ok {
		return nil
	}
	return &v
}
