// Package lsh implements banded inverted indexes over LSH signatures.
//
// WHAT IS BANDING?
// Two signatures that agree on every code of a short slice (a band) are
// likely to come from similar values. Indexing each band separately as an
// exact-match key turns near-neighbor search into a handful of map lookups:
// candidates are the records sharing at least one band with the query.
//
// TWO STRATEGIES:
//   - Flat: the signature is cut into disjoint bands of equal width. More,
//     narrower bands raise recall and candidate volume.
//   - Nested: prefixes [0, s1), [0, s2), ... of strictly increasing length.
//     A caller can start at a coarse prefix and drill down to finer ones
//     without re-encoding, following the links from each prefix tuple to the
//     longer tuples that extend it.
//
// TIME COMPLEXITY:
//   - BuildFlat: O(n × L) where n = number of signatures, L = signature length
//   - BuildNested: O(n × Σ slice sizes)
//   - Retrieve: O(L) map lookups plus the cost of cloning the postings
package lsh

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// IndexState tracks whether a band structure has been built.
type IndexState int

const (
	// Unbuilt means the structure has not been built, or signatures were
	// added after the last build.
	Unbuilt IndexState = iota

	// Built means the structure reflects every stored signature.
	Built
)

func (s IndexState) String() string {
	switch s {
	case Built:
		return "built"
	default:
		return "unbuilt"
	}
}

// bandIndex maps a band tuple to the ids holding it.
type bandIndex map[tupleKey]*roaring.Bitmap

func (bi bandIndex) insert(k tupleKey, id uint32) {
	bm, ok := bi[k]
	if !ok {
		bm = roaring.New()
		bi[k] = bm
	}
	bm.Add(id)
}

// childLinks maps a shorter prefix tuple to the longer tuples extending it.
type childLinks map[tupleKey]map[tupleKey]struct{}

func (cl childLinks) link(parent, child tupleKey) {
	set, ok := cl[parent]
	if !ok {
		set = make(map[tupleKey]struct{})
		cl[parent] = set
	}
	set[child] = struct{}{}
}

// featureIndex holds the signatures and band structures of one feature.
type featureIndex struct {
	signatures   map[uint32]Signature
	numFunctions int

	flatState IndexState
	bandWidth int
	bands     []Band
	flat      []bandIndex

	nestedState IndexState
	sliceSizes  []int
	levels      []Band
	nested      []bandIndex
	children    []childLinks
}

// SignatureIndex stores LSH signatures per feature and answers candidate
// retrieval queries through a flat banded index and a nested prefix index.
//
// Signatures are added first. BuildFlat and BuildNested then populate the
// band structures; adding a signature afterwards marks both structures of
// that feature Unbuilt again.
//
// Thread-safety: This index is safe for concurrent use through a read-write mutex.
// Builds and Add are exclusive; retrievals share the read lock.
type SignatureIndex struct {
	features map[string]*featureIndex
	names    []string

	// ids tracks every record added, with or without a signature.
	ids *roaring.Bitmap

	logger *Logger

	mu sync.RWMutex
}

// NewSignatureIndex creates an index for the given features.
func NewSignatureIndex(features ...string) *SignatureIndex {
	idx := &SignatureIndex{
		features: make(map[string]*featureIndex, len(features)),
		ids:      roaring.New(),
		logger:   NoopLogger(),
	}
	for _, name := range features {
		if _, dup := idx.features[name]; dup {
			continue
		}
		idx.features[name] = &featureIndex{signatures: make(map[uint32]Signature)}
		idx.names = append(idx.names, name)
	}
	sort.Strings(idx.names)
	return idx
}

// SetLogger sets the logger receiving build records. Nil disables logging.
func (idx *SignatureIndex) SetLogger(l *Logger) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.logger = resolveLogger(l, false).WithComponent("signature_index")
}

// Add stores the signature of feature for record id.
//
// A nil signature registers the id without indexing anything for the
// feature. Every non-nil signature of a feature must have the same length.
func (idx *SignatureIndex) Add(feature string, id uint32, sig Signature) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	fi, ok := idx.features[feature]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFeature, feature)
	}
	idx.ids.Add(id)
	if sig == nil {
		if _, had := fi.signatures[id]; had {
			delete(fi.signatures, id)
			fi.flatState = Unbuilt
			fi.nestedState = Unbuilt
		}
		return nil
	}
	if fi.numFunctions == 0 {
		fi.numFunctions = len(sig)
	} else if len(sig) != fi.numFunctions {
		return fmt.Errorf("feature %q id %d: %w: expected %d codes, got %d",
			feature, id, ErrSignatureLength, fi.numFunctions, len(sig))
	}
	fi.signatures[id] = sig.Clone()
	fi.flatState = Unbuilt
	fi.nestedState = Unbuilt
	return nil
}

// Signature returns the stored signature of feature for id.
func (idx *SignatureIndex) Signature(feature string, id uint32) (Signature, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	fi, ok := idx.features[feature]
	if !ok {
		return nil, false
	}
	sig, ok := fi.signatures[id]
	return sig, ok
}

// IDs returns every id added to the index.
func (idx *SignatureIndex) IDs() *roaring.Bitmap {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.ids.Clone()
}

// Len returns the number of ids added to the index.
func (idx *SignatureIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return int(idx.ids.GetCardinality())
}

// Features returns the feature names in sorted order.
func (idx *SignatureIndex) Features() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]string(nil), idx.names...)
}

// NumFunctions returns the signature length of a feature, or 0 when no
// signature has been stored for it.
func (idx *SignatureIndex) NumFunctions(feature string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if fi, ok := idx.features[feature]; ok {
		return fi.numFunctions
	}
	return 0
}

// BuildFlat partitions the signatures of the named features (all features
// when none are named) into disjoint bands of bandWidth codes and indexes
// every band position. A trailing band shorter than bandWidth is dropped.
//
// Returns ErrInvalidBandWidth when bandWidth is not within
// [1, signature length] and ErrUnknownFeature for an unknown name. Nothing is
// modified when an error is returned.
func (idx *SignatureIndex) BuildFlat(bandWidth int, features ...string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	targets, err := idx.targets(features)
	if err != nil {
		return err
	}

	// Validate every feature before mutating any of them.
	layouts := make(map[string][]Band, len(targets))
	for _, name := range targets {
		fi := idx.features[name]
		if fi.numFunctions == 0 {
			if bandWidth <= 0 {
				return fmt.Errorf("%w: width=%d", ErrInvalidBandWidth, bandWidth)
			}
			continue
		}
		bands, err := FlatBands(fi.numFunctions, bandWidth)
		if err != nil {
			return fmt.Errorf("feature %q: %w", name, err)
		}
		layouts[name] = bands
	}

	for _, name := range targets {
		fi := idx.features[name]
		bands := layouts[name]
		flat := make([]bandIndex, len(bands))
		for i := range flat {
			flat[i] = make(bandIndex)
		}
		for id, sig := range fi.signatures {
			for i, b := range bands {
				k, _ := bandKey(sig, b)
				flat[i].insert(k, id)
			}
		}
		fi.bandWidth = bandWidth
		fi.bands = bands
		fi.flat = flat
		fi.flatState = Built

		buckets := 0
		for _, bi := range flat {
			buckets += len(bi)
		}
		idx.logger.LogIndexBuild(context.Background(), "flat", name, len(bands), buckets)
	}
	return nil
}

// BuildNested indexes the prefixes [0, size) of the signatures of the named
// features (all features when none are named) for every size, and links each
// prefix tuple to the tuples of the next level that extend it.
//
// Returns ErrInvalidSliceSizes unless sizes are positive, strictly increasing
// and bounded by the signature length.
func (idx *SignatureIndex) BuildNested(sliceSizes []int, features ...string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	targets, err := idx.targets(features)
	if err != nil {
		return err
	}

	layouts := make(map[string][]Band, len(targets))
	for _, name := range targets {
		fi := idx.features[name]
		limit := fi.numFunctions
		if limit == 0 {
			// Nothing to index; still reject malformed sizes.
			limit = int(^uint(0) >> 1)
		}
		levels, err := NestedBands(limit, sliceSizes)
		if err != nil {
			return fmt.Errorf("feature %q: %w", name, err)
		}
		if fi.numFunctions > 0 {
			layouts[name] = levels
		}
	}

	for _, name := range targets {
		fi := idx.features[name]
		levels := layouts[name]
		nested := make([]bandIndex, len(levels))
		children := make([]childLinks, len(levels))
		for i := range levels {
			nested[i] = make(bandIndex)
			children[i] = make(childLinks)
		}
		for id, sig := range fi.signatures {
			var prev tupleKey
			for i, b := range levels {
				k, _ := bandKey(sig, b)
				nested[i].insert(k, id)
				if i > 0 {
					children[i-1].link(prev, k)
				}
				prev = k
			}
		}
		fi.sliceSizes = append([]int(nil), sliceSizes...)
		fi.levels = levels
		fi.nested = nested
		fi.children = children
		fi.nestedState = Built

		buckets := 0
		for _, bi := range nested {
			buckets += len(bi)
		}
		idx.logger.LogIndexBuild(context.Background(), "nested", name, len(levels), buckets)
	}
	return nil
}

// targets resolves the feature names a build applies to.
func (idx *SignatureIndex) targets(features []string) ([]string, error) {
	if len(features) == 0 {
		return idx.names, nil
	}
	for _, name := range features {
		if _, ok := idx.features[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, name)
		}
	}
	return features, nil
}

// feature returns the index of a feature or ErrUnknownFeature.
func (idx *SignatureIndex) feature(name string) (*featureIndex, error) {
	fi, ok := idx.features[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, name)
	}
	return fi, nil
}

// Retrieve returns, for every band position of the flat index, the ids whose
// signature has the same tuple as sig at that position. Positions without a
// match, or not covered by a short sig, yield an empty bitmap.
//
// The returned bitmaps are copies owned by the caller.
func (idx *SignatureIndex) Retrieve(feature string, sig Signature) ([]*roaring.Bitmap, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	fi, err := idx.feature(feature)
	if err != nil {
		return nil, err
	}
	if fi.flatState != Built {
		return nil, fmt.Errorf("feature %q: %w", feature, ErrIndexNotBuilt)
	}

	out := make([]*roaring.Bitmap, len(fi.bands))
	for i, b := range fi.bands {
		out[i] = lookup(fi.flat[i], sig, b)
	}
	return out, nil
}

// RetrieveNested returns the ids whose signature shares the prefix of sig at
// the given level. A sig shorter than the prefix yields an empty bitmap.
func (idx *SignatureIndex) RetrieveNested(feature string, sig Signature, level int) (*roaring.Bitmap, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	fi, err := idx.nestedLevel(feature, level)
	if err != nil {
		return nil, err
	}
	return lookup(fi.nested[level], sig, fi.levels[level]), nil
}

// RetrieveChildren returns the prefix tuples of level+1 that extend the
// prefix of sig at level, ordered by their codes. The deepest level has no
// children.
func (idx *SignatureIndex) RetrieveChildren(feature string, sig Signature, level int) ([]BandTuple, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	fi, err := idx.nestedLevel(feature, level)
	if err != nil {
		return nil, err
	}
	k, ok := bandKey(sig, fi.levels[level])
	if !ok {
		return nil, nil
	}
	set := fi.children[level][k]
	keys := make([]tupleKey, 0, len(set))
	for child := range set {
		keys = append(keys, child)
	}
	return sortedTuples(keys), nil
}

// NestedTuples returns every distinct prefix tuple indexed at level, ordered
// by their codes.
func (idx *SignatureIndex) NestedTuples(feature string, level int) ([]BandTuple, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	fi, err := idx.nestedLevel(feature, level)
	if err != nil {
		return nil, err
	}
	keys := make([]tupleKey, 0, len(fi.nested[level]))
	for k := range fi.nested[level] {
		keys = append(keys, k)
	}
	return sortedTuples(keys), nil
}

func (idx *SignatureIndex) nestedLevel(feature string, level int) (*featureIndex, error) {
	fi, err := idx.feature(feature)
	if err != nil {
		return nil, err
	}
	if fi.nestedState != Built {
		return nil, fmt.Errorf("feature %q: %w", feature, ErrNestedIndexNotBuilt)
	}
	if level < 0 || level >= len(fi.levels) {
		return nil, fmt.Errorf("feature %q: %w: level %d of %d", feature, ErrLevelOutOfRange, level, len(fi.levels))
	}
	return fi, nil
}

// NumNestedLevels returns the number of prefix levels built for a feature.
func (idx *SignatureIndex) NumNestedLevels(feature string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if fi, ok := idx.features[feature]; ok && fi.nestedState == Built {
		return len(fi.levels)
	}
	return 0
}

// NumBands returns the number of flat band positions built for a feature.
func (idx *SignatureIndex) NumBands(feature string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if fi, ok := idx.features[feature]; ok && fi.flatState == Built {
		return len(fi.bands)
	}
	return 0
}

// Bands returns the flat band layout of a feature.
func (idx *SignatureIndex) Bands(feature string) []Band {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if fi, ok := idx.features[feature]; ok {
		return append([]Band(nil), fi.bands...)
	}
	return nil
}

// FlatState returns the build state of the flat index of a feature.
func (idx *SignatureIndex) FlatState(feature string) IndexState {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if fi, ok := idx.features[feature]; ok {
		return fi.flatState
	}
	return Unbuilt
}

// NestedState returns the build state of the nested index of a feature.
func (idx *SignatureIndex) NestedState(feature string) IndexState {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if fi, ok := idx.features[feature]; ok {
		return fi.nestedState
	}
	return Unbuilt
}

// lookup returns a copy of the posting of sig's tuple in band b.
func lookup(bi bandIndex, sig Signature, b Band) *roaring.Bitmap {
	k, ok := bandKey(sig, b)
	if !ok {
		return roaring.New()
	}
	if bm, ok := bi[k]; ok {
		return bm.Clone()
	}
	return roaring.New()
}

// sortedTuples decodes keys into tuples in code order. Keys of one level
// share a length, so comparing code by code orders them numerically.
func sortedTuples(keys []tupleKey) []BandTuple {
	out := make([]BandTuple, len(keys))
	for i, k := range keys {
		out[i] = k.tuple()
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		for n := 0; n < len(a) && n < len(b); n++ {
			if a[n] != b[n] {
				return a[n] < b[n]
			}
		}
		return len(a) < len(b)
	})
	return out
}
