// Package index provides the secondary name index used by CineGraph.
//
// A Names index groups keys (actor handles, in practice) by a shared name.
// Buckets are created on first insert and keep insertion order, so lookups
// return reproducible results. A name that was never inserted has no bucket at
// all, which callers can tell apart from a bucket that exists but is empty:
//
//	first := index.NewNames[int]()
//	first.Add("Tom", 1)
//	first.Add("Tom", 2)
//
//	keys, ok := first.Lookup("Tom")    // [1 2], true
//	_, ok = first.Lookup("Keanu")      // nil, false (never inserted)
//
//	first.Remove("Tom", 1)
//	first.Remove("Tom", 2)
//	keys, ok = first.Lookup("Tom")     // [], true (bucket survives)
//
// Performance Characteristics:
//   - Add: O(1) amortized
//   - Lookup: O(1), returns the bucket's backing slice (do not modify)
//   - Remove: O(bucket size)
package index

// Names maps a name to the set of keys inserted under it.
//
// Not safe for concurrent use.
type Names[K comparable] struct {
	buckets map[string]*bucket[K]
	entries int
}

type bucket[K comparable] struct {
	keys    []K
	members map[K]struct{}
}

// NewNames creates an empty index.
func NewNames[K comparable]() *Names[K] {
	return &Names[K]{buckets: make(map[string]*bucket[K])}
}

// Add inserts key into the bucket for name, creating the bucket if needed.
// Adding a key that is already present is a no-op.
func (n *Names[K]) Add(name string, key K) {
	b := n.buckets[name]
	if b == nil {
		b = &bucket[K]{members: make(map[K]struct{}, 1)}
		n.buckets[name] = b
	}
	if _, exists := b.members[key]; exists {
		return
	}
	b.members[key] = struct{}{}
	b.keys = append(b.keys, key)
	n.entries++
}

// Lookup returns the keys stored under name in insertion order.
//
// ok is false when no bucket exists for name. The returned slice is owned by
// the index and is only valid until the next Add or Remove.
func (n *Names[K]) Lookup(name string) (keys []K, ok bool) {
	b := n.buckets[name]
	if b == nil {
		return nil, false
	}
	return b.keys, true
}

// Contains reports whether key is stored under name.
func (n *Names[K]) Contains(name string, key K) bool {
	b := n.buckets[name]
	if b == nil {
		return false
	}
	_, ok := b.members[key]
	return ok
}

// Remove deletes key from the bucket for name. The bucket itself is kept even
// when it becomes empty. Returns false if the key was not present.
func (n *Names[K]) Remove(name string, key K) bool {
	b := n.buckets[name]
	if b == nil {
		return false
	}
	if _, exists := b.members[key]; !exists {
		return false
	}
	delete(b.members, key)
	for i, k := range b.keys {
		if k == key {
			b.keys = append(b.keys[:i], b.keys[i+1:]...)
			break
		}
	}
	n.entries--
	return true
}

// BucketSize returns the number of keys under name (0 if there is no bucket).
func (n *Names[K]) BucketSize(name string) int {
	if b := n.buckets[name]; b != nil {
		return len(b.keys)
	}
	return 0
}

// Len returns the number of buckets.
func (n *Names[K]) Len() int {
	return len(n.buckets)
}

// Entries returns the total number of keys across all buckets.
func (n *Names[K]) Entries() int {
	return n.entries
}
