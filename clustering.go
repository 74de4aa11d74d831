package lsh

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring"
)

// Linkage selects how the distance between two clusters is derived from the
// distances between their members.
type Linkage string

const (
	// SingleLinkage uses the minimum pairwise distance.
	SingleLinkage Linkage = "single"

	// CompleteLinkage uses the maximum pairwise distance.
	CompleteLinkage Linkage = "complete"

	// AverageLinkage uses the mean over all |C1|·|C2| pairs.
	AverageLinkage Linkage = "average"
)

// ParseLinkage validates a linkage name.
func ParseLinkage(s string) (Linkage, error) {
	switch Linkage(s) {
	case SingleLinkage, CompleteLinkage, AverageLinkage:
		return Linkage(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLinkage, s)
	}
}

// MergeEvent describes one agglomeration step.
type MergeEvent struct {
	// Step counts merges from 1.
	Step int

	// Into is the surviving representative, From the absorbed one.
	Into uint32
	From uint32

	// Distance is the linkage distance at which the pair merged.
	Distance float64

	// Members holds the merged cluster.
	Members *roaring.Bitmap

	// Canopies holds the ids of the canopies that still fully contain the
	// merged cluster.
	Canopies *roaring.Bitmap
}

// ClustererConfig configures a CanopyClusterer.
type ClustererConfig struct {
	// Threshold stops agglomeration once the closest pair is at least this far
	// apart.
	Threshold float64 `yaml:"threshold"`

	Linkage Linkage `yaml:"linkage"`

	// OnMerge, when set, is called after every merge with the updated state.
	OnMerge func(MergeEvent) `yaml:"-"`

	Logger *Logger `yaml:"-"`
}

// CanopyClusterer performs greedy agglomerative clustering restricted to
// clusters that still lie together inside some canopy.
//
// # ALGORITHM
//
// Every key starts as its own cluster. Each step:
//  1. Find the closest pair (ki, kj) in the working distance matrix, ties
//     broken by the smaller ki, then the smaller kj.
//  2. Stop if its distance is at least the threshold.
//  3. Absorb cluster kj into ki.
//  4. Canopies that fully contained exactly one of the two lose both; canopies
//     that contained both keep ki.
//  5. Drop row and column kj from the working matrix.
//  6. Recompute row and column ki against every representative sharing a
//     canopy with it, applying the linkage to the original distances.
//
// Recomputation only touches keys of the canopies around ki, so a merge costs
// time proportional to the local canopy sizes, not to the keyspace.
type CanopyClusterer struct {
	threshold float64
	linkage   Linkage
	onMerge   func(MergeEvent)
	logger    *Logger
}

// NewCanopyClusterer validates cfg and creates a clusterer.
//
// Returns ErrUnknownLinkage for a linkage other than single, complete or
// average.
func NewCanopyClusterer(cfg ClustererConfig) (*CanopyClusterer, error) {
	linkage, err := ParseLinkage(string(cfg.Linkage))
	if err != nil {
		return nil, err
	}
	return &CanopyClusterer{
		threshold: cfg.Threshold,
		linkage:   linkage,
		onMerge:   cfg.OnMerge,
		logger:    resolveLogger(cfg.Logger, false).WithComponent("clusterer"),
	}, nil
}

// clusterState is the mutable state of one Cluster call.
type clusterState struct {
	d          *SparseDistance
	work       map[uint32]map[uint32]float64
	clusters   map[uint32]*roaring.Bitmap
	membership *Membership
	linkage    Linkage
}

// Cluster agglomerates the keys of d under the canopy constraint and returns
// the final clusters. d is not modified.
//
// Returns an ErrMissingDistance error if a linkage needs a pair that d does
// not hold; d built from the same canopies always holds it.
// ctx is checked after every merge.
func (c *CanopyClusterer) Cluster(ctx context.Context, d *SparseDistance, canopies *CanopyCollection) (*Clustering, error) {
	st := newClusterState(d, canopies, c.linkage)

	merges := 0
	for {
		dmin, ki, kj, ok := st.closest()
		if !ok || !(dmin < c.threshold) {
			break
		}

		st.clusters[ki].Or(st.clusters[kj])
		delete(st.clusters, kj)
		st.membership.merge(ki, kj)
		st.dropRow(kj)
		if err := st.recompute(ki); err != nil {
			c.logger.LogClustering(ctx, merges, len(st.clusters), err)
			return nil, err
		}
		merges++

		ev := MergeEvent{Step: merges, Into: ki, From: kj, Distance: dmin}
		c.logger.LogMerge(ctx, ev)
		if c.onMerge != nil {
			ev.Members = st.clusters[ki].Clone()
			ev.Canopies = st.membership.CanopiesOf(ki).Clone()
			c.onMerge(ev)
		}

		if err := ctx.Err(); err != nil {
			c.logger.LogClustering(ctx, merges, len(st.clusters), err)
			return nil, err
		}
	}

	out := newClustering(st.clusters, merges)
	c.logger.LogClustering(ctx, merges, out.Len(), nil)
	return out, nil
}

func newClusterState(d *SparseDistance, canopies *CanopyCollection, linkage Linkage) *clusterState {
	st := &clusterState{
		d:          d,
		work:       make(map[uint32]map[uint32]float64, len(d.rows)),
		clusters:   make(map[uint32]*roaring.Bitmap),
		membership: canopies.Membership(),
		linkage:    linkage,
	}
	for k, r := range d.rows {
		row := make(map[uint32]float64, len(r))
		for o, v := range r {
			if o != k {
				row[o] = v
			}
		}
		st.work[k] = row
		st.clusters[k] = roaring.BitmapOf(k)
	}
	it := canopies.Union().Iterator()
	for it.HasNext() {
		k := it.Next()
		if _, ok := st.clusters[k]; !ok {
			st.clusters[k] = roaring.BitmapOf(k)
		}
	}
	return st
}

// closest returns the minimum entry of the working matrix.
func (st *clusterState) closest() (float64, uint32, uint32, bool) {
	best := math.Inf(1)
	var bi, bj uint32
	found := false
	for a, row := range st.work {
		for b, v := range row {
			if a >= b || math.IsNaN(v) {
				continue
			}
			if !found || v < best || (v == best && (a < bi || (a == bi && b < bj))) {
				best, bi, bj, found = v, a, b, true
			}
		}
	}
	return best, bi, bj, found
}

// dropRow removes row and column k from the working matrix.
func (st *clusterState) dropRow(k uint32) {
	for o := range st.work[k] {
		delete(st.work[o], k)
	}
	delete(st.work, k)
}

// recompute rebuilds row and column ki from the original distances.
func (st *clusterState) recompute(ki uint32) error {
	st.dropRow(ki)
	row := make(map[uint32]float64)
	st.work[ki] = row

	it := st.membership.CanopiesOf(ki).Iterator()
	for it.HasNext() {
		reps := st.membership.Canopy(int(it.Next())).Iterator()
		for reps.HasNext() {
			kcol := reps.Next()
			if kcol == ki {
				continue
			}
			if _, done := row[kcol]; done {
				continue
			}
			other, ok := st.clusters[kcol]
			if !ok {
				continue
			}
			v, err := st.link(st.clusters[ki], other)
			if err != nil {
				return err
			}
			row[kcol] = v
			if _, ok := st.work[kcol]; !ok {
				st.work[kcol] = make(map[uint32]float64)
			}
			st.work[kcol][ki] = v
		}
	}
	return nil
}

// link applies the linkage to every pair across c1 and c2.
func (st *clusterState) link(c1, c2 *roaring.Bitmap) (float64, error) {
	var acc float64
	switch st.linkage {
	case SingleLinkage:
		acc = math.Inf(1)
	case CompleteLinkage:
		acc = math.Inf(-1)
	}
	n := 0

	i1 := c1.Iterator()
	for i1.HasNext() {
		a := i1.Next()
		i2 := c2.Iterator()
		for i2.HasNext() {
			b := i2.Next()
			v, ok := st.d.Get(a, b)
			if !ok {
				return 0, fmt.Errorf("%w: (%d, %d)", ErrMissingDistance, a, b)
			}
			switch st.linkage {
			case SingleLinkage:
				acc = math.Min(acc, v)
			case CompleteLinkage:
				acc = math.Max(acc, v)
			default:
				acc += v
			}
			n++
		}
	}
	if st.linkage == AverageLinkage && n > 0 {
		acc /= float64(n)
	}
	return acc, nil
}

// Clustering is the result of a clustering run.
type Clustering struct {
	reps     []uint32
	clusters map[uint32]*roaring.Bitmap
	merges   int
}

func newClustering(clusters map[uint32]*roaring.Bitmap, merges int) *Clustering {
	reps := make([]uint32, 0, len(clusters))
	for k := range clusters {
		reps = append(reps, k)
	}
	sort.Slice(reps, func(i, j int) bool { return reps[i] < reps[j] })
	return &Clustering{reps: reps, clusters: clusters, merges: merges}
}

// Len returns the number of clusters.
func (c *Clustering) Len() int {
	return len(c.reps)
}

// Representatives returns the representative of every cluster in ascending
// order. A representative is the smallest id of its cluster.
func (c *Clustering) Representatives() []uint32 {
	return append([]uint32(nil), c.reps...)
}

// Clusters returns copies of the clusters ordered by representative.
func (c *Clustering) Clusters() []*roaring.Bitmap {
	out := make([]*roaring.Bitmap, len(c.reps))
	for i, r := range c.reps {
		out[i] = c.clusters[r].Clone()
	}
	return out
}

// Cluster returns the members of the cluster represented by rep.
func (c *Clustering) Cluster(rep uint32) (*roaring.Bitmap, bool) {
	bm, ok := c.clusters[rep]
	if !ok {
		return nil, false
	}
	return bm.Clone(), true
}

// Assignments maps every clustered id to its representative.
func (c *Clustering) Assignments() map[uint32]uint32 {
	out := make(map[uint32]uint32)
	for _, r := range c.reps {
		it := c.clusters[r].Iterator()
		for it.HasNext() {
			out[it.Next()] = r
		}
	}
	return out
}

// Merges returns the number of merges performed.
func (c *Clustering) Merges() int {
	return c.merges
}
