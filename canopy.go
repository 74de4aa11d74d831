package lsh

import (
	"context"
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring"
)

// CanopyCollection is an ordered list of key sets covering a keyspace.
// Canopies may overlap; every key belongs to at least one of them.
type CanopyCollection struct {
	canopies []*roaring.Bitmap
}

// NewCanopyCollection wraps existing canopies. The bitmaps are cloned.
func NewCanopyCollection(canopies ...*roaring.Bitmap) *CanopyCollection {
	cc := &CanopyCollection{canopies: make([]*roaring.Bitmap, 0, len(canopies))}
	for _, c := range canopies {
		cc.Append(c)
	}
	return cc
}

// Append adds a copy of c as the next canopy.
func (cc *CanopyCollection) Append(c *roaring.Bitmap) {
	cc.canopies = append(cc.canopies, c.Clone())
}

// Len returns the number of canopies.
func (cc *CanopyCollection) Len() int {
	return len(cc.canopies)
}

// At returns canopy i. Callers must not modify the result.
func (cc *CanopyCollection) At(i int) *roaring.Bitmap {
	return cc.canopies[i]
}

// Canopies returns copies of every canopy in order.
func (cc *CanopyCollection) Canopies() []*roaring.Bitmap {
	out := make([]*roaring.Bitmap, len(cc.canopies))
	for i, c := range cc.canopies {
		out[i] = c.Clone()
	}
	return out
}

// Union returns the set of keys found in any canopy.
func (cc *CanopyCollection) Union() *roaring.Bitmap {
	return roaring.FastOr(cc.canopies...)
}

// Covers reports whether every id of ids lies in some canopy.
func (cc *CanopyCollection) Covers(ids *roaring.Bitmap) bool {
	return roaring.AndNot(ids, cc.Union()).IsEmpty()
}

// Membership returns the canopy membership indexes of the collection.
func (cc *CanopyCollection) Membership() *Membership {
	m := &Membership{
		forward: make([]*roaring.Bitmap, len(cc.canopies)),
		inverse: make(map[uint32]*roaring.Bitmap),
	}
	for i, c := range cc.canopies {
		m.forward[i] = c.Clone()
		it := c.Iterator()
		for it.HasNext() {
			k := it.Next()
			inv, ok := m.inverse[k]
			if !ok {
				inv = roaring.New()
				m.inverse[k] = inv
			}
			inv.Add(uint32(i))
		}
	}
	return m
}

// Membership tracks which cluster representatives are fully contained in
// which canopy. forward maps a canopy id to the representatives it fully
// contains; inverse maps a representative to those canopy ids.
type Membership struct {
	forward []*roaring.Bitmap
	inverse map[uint32]*roaring.Bitmap
}

// Canopy returns the representatives fully contained in canopy i.
func (m *Membership) Canopy(i int) *roaring.Bitmap {
	return m.forward[i]
}

// CanopiesOf returns the canopy ids fully containing representative k.
func (m *Membership) CanopiesOf(k uint32) *roaring.Bitmap {
	if inv, ok := m.inverse[k]; ok {
		return inv
	}
	return roaring.New()
}

// merge folds representative kj into ki. Canopies holding only one of the
// two lose both; canopies holding both keep ki alone.
func (m *Membership) merge(ki, kj uint32) {
	ci := m.CanopiesOf(ki)
	cj := m.CanopiesOf(kj)

	diff := roaring.Xor(ci, cj)
	it := diff.Iterator()
	for it.HasNext() {
		c := m.forward[it.Next()]
		c.Remove(ki)
		c.Remove(kj)
	}

	both := roaring.And(ci, cj)
	it = both.Iterator()
	for it.HasNext() {
		m.forward[it.Next()].Remove(kj)
	}

	m.inverse[ki] = both
	delete(m.inverse, kj)
}

// CanopyConfig configures a CanopyBuilder.
type CanopyConfig struct {
	// Seed drives the choice of canopy seeds.
	Seed int64 `yaml:"seed"`

	// SimilarityThreshold in [0, 1]. Candidates whose band-agreement fraction
	// with the seed strictly exceeds it leave the working set.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	Logger *Logger `yaml:"-"`
}

// DefaultCanopyConfig returns a builder configuration with threshold 0.5.
func DefaultCanopyConfig() CanopyConfig {
	return CanopyConfig{
		Seed:                1,
		SimilarityThreshold: 0.5,
	}
}

// CanopyBuilder builds canopies from the flat band index of a feature.
type CanopyBuilder struct {
	seed      int64
	threshold float64
	logger    *Logger
}

// NewCanopyBuilder validates cfg and creates a builder.
//
// Returns ErrInvalidThreshold when the threshold lies outside [0, 1].
func NewCanopyBuilder(cfg CanopyConfig) (*CanopyBuilder, error) {
	if !(cfg.SimilarityThreshold >= 0 && cfg.SimilarityThreshold <= 1) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, cfg.SimilarityThreshold)
	}
	return &CanopyBuilder{
		seed:      cfg.Seed,
		threshold: cfg.SimilarityThreshold,
		logger:    resolveLogger(cfg.Logger, false).WithComponent("canopy"),
	}, nil
}

// Build covers every id of index with canopies built from the flat index of
// feature.
//
// Starting from a working set W holding every id, each iteration draws a seed
// uniformly from W and retrieves its candidates band by band, restricted to
// W. A candidate's band-agreement fraction is the number of bands it was
// retrieved from divided by the number of bands the seed matched at all. The
// seed and all candidates form the new canopy; the seed and every candidate
// whose fraction exceeds the threshold are removed from W. Each iteration
// removes at least the seed, so Build makes at most |W| draws.
//
// ctx is checked after every iteration.
func (b *CanopyBuilder) Build(ctx context.Context, index BandRetriever, feature string) (*CanopyCollection, error) {
	start := time.Now()
	rng := newRand(b.seed)

	working := index.IDs()
	total := int(working.GetCardinality())
	out := &CanopyCollection{}

	for !working.IsEmpty() {
		pos := rng.IntN(int(working.GetCardinality()))
		seed, err := working.Select(uint32(pos))
		if err != nil {
			return nil, fmt.Errorf("select canopy seed: %w", err)
		}

		canopy := roaring.New()
		canopy.Add(seed)

		sig, _ := index.Signature(feature, seed)
		bands, err := index.Retrieve(feature, sig)
		if err != nil {
			return nil, err
		}

		counts, matched := bandAgreement(bands, working)
		for k, n := range counts {
			canopy.Add(k)
			if float64(n)/float64(matched) > b.threshold {
				working.Remove(k)
			}
		}
		working.Remove(seed)
		out.canopies = append(out.canopies, canopy)

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	b.logger.LogCanopies(ctx, feature, total, out.Len(), time.Since(start))
	return out, nil
}
