package lsh

import (
	"strconv"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// Keyspace interns opaque record keys into dense uint32 ids.
//
// Every structure in this package (band postings, canopies, clusters,
// distances) addresses records by id so that key sets can be stored in
// roaring bitmaps. Ids are assigned in insertion order starting at 0 and never
// change once assigned.
//
// Thread-safety: Keyspace is safe for concurrent use.
type Keyspace struct {
	mu   sync.RWMutex
	ids  map[string]uint32
	keys []string
}

// NewKeyspace creates an empty keyspace.
func NewKeyspace() *Keyspace {
	return &Keyspace{ids: make(map[string]uint32)}
}

// Add interns key and returns its id. Adding a key twice returns the id
// assigned the first time.
func (ks *Keyspace) Add(key string) uint32 {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if id, ok := ks.ids[key]; ok {
		return id
	}
	id := uint32(len(ks.keys))
	ks.ids[key] = id
	ks.keys = append(ks.keys, key)
	return id
}

// AddInt interns an integer key using its decimal form.
func (ks *Keyspace) AddInt(key int) uint32 {
	return ks.Add(strconv.Itoa(key))
}

// ID returns the id of key, if it has been interned.
func (ks *Keyspace) ID(key string) (uint32, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	id, ok := ks.ids[key]
	return id, ok
}

// Key returns the external key for id.
func (ks *Keyspace) Key(id uint32) (string, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if int(id) >= len(ks.keys) {
		return "", false
	}
	return ks.keys[id], true
}

// Keys resolves every id of ids to its external key, in ascending id order.
// Unknown ids are skipped.
func (ks *Keyspace) Keys(ids *roaring.Bitmap) []string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	out := make([]string, 0, ids.GetCardinality())
	it := ids.Iterator()
	for it.HasNext() {
		id := it.Next()
		if int(id) < len(ks.keys) {
			out = append(out, ks.keys[id])
		}
	}
	return out
}

// Len returns the number of interned keys.
func (ks *Keyspace) Len() int {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return len(ks.keys)
}

// IDs returns a bitmap holding every assigned id.
func (ks *Keyspace) IDs() *roaring.Bitmap {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	bm := roaring.New()
	if len(ks.keys) > 0 {
		bm.AddRange(0, uint64(len(ks.keys)))
	}
	return bm
}
