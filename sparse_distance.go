package lsh

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"golang.org/x/sync/errgroup"
)

// SparseDistance is a symmetric distance table holding only the pairs that
// share a canopy. The distance of a key to itself is stored as well.
type SparseDistance struct {
	rows map[uint32]map[uint32]float64
}

// NewSparseDistance creates an empty table.
func NewSparseDistance() *SparseDistance {
	return &SparseDistance{rows: make(map[uint32]map[uint32]float64)}
}

// Set stores d for both (a, b) and (b, a).
func (sd *SparseDistance) Set(a, b uint32, d float64) {
	sd.row(a)[b] = d
	sd.row(b)[a] = d
}

func (sd *SparseDistance) row(k uint32) map[uint32]float64 {
	r, ok := sd.rows[k]
	if !ok {
		r = make(map[uint32]float64)
		sd.rows[k] = r
	}
	return r
}

// Get returns the distance between a and b if it was computed.
func (sd *SparseDistance) Get(a, b uint32) (float64, bool) {
	d, ok := sd.rows[a][b]
	return d, ok
}

// Has reports whether the pair was computed.
func (sd *SparseDistance) Has(a, b uint32) bool {
	_, ok := sd.rows[a][b]
	return ok
}

// Keys returns every key having at least one stored distance.
func (sd *SparseDistance) Keys() *roaring.Bitmap {
	bm := roaring.New()
	for k := range sd.rows {
		bm.Add(k)
	}
	return bm
}

// Len returns the number of distinct unordered pairs stored, self pairs
// included.
func (sd *SparseDistance) Len() int {
	n := 0
	for a, r := range sd.rows {
		for b := range r {
			if a <= b {
				n++
			}
		}
	}
	return n
}

// Row calls fn for every key paired with k.
func (sd *SparseDistance) Row(k uint32, fn func(other uint32, d float64)) {
	for other, d := range sd.rows[k] {
		fn(other, d)
	}
}

// Clone returns a deep copy of the table.
func (sd *SparseDistance) Clone() *SparseDistance {
	out := &SparseDistance{rows: make(map[uint32]map[uint32]float64, len(sd.rows))}
	for k, r := range sd.rows {
		cp := make(map[uint32]float64, len(r))
		for o, d := range r {
			cp[o] = d
		}
		out.rows[k] = cp
	}
	return out
}

// SparseDistanceStats reports how much of the full matrix was evaluated.
type SparseDistanceStats struct {
	// Computed is the number of distance evaluations.
	Computed int

	// FullMatrix is the number of unordered pairs, self pairs included, over
	// every covered key: n(n+1)/2.
	FullMatrix int
}

// Ratio returns Computed / FullMatrix, or 0 for an empty keyspace.
func (s SparseDistanceStats) Ratio() float64 {
	if s.FullMatrix == 0 {
		return 0
	}
	return float64(s.Computed) / float64(s.FullMatrix)
}

// SparseDistanceConfig configures a SparseDistanceBuilder.
type SparseDistanceConfig struct {
	// Workers bounds the number of canopies processed concurrently.
	// Zero selects GOMAXPROCS; one runs sequentially.
	Workers int `yaml:"workers"`

	Logger *Logger `yaml:"-"`
}

// SparseDistanceBuilder computes distances between co-canopy keys.
type SparseDistanceBuilder struct {
	workers int
	logger  *Logger
}

// NewSparseDistanceBuilder creates a builder.
func NewSparseDistanceBuilder(cfg SparseDistanceConfig) *SparseDistanceBuilder {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &SparseDistanceBuilder{
		workers: workers,
		logger:  resolveLogger(cfg.Logger, false).WithComponent("sparse_distance"),
	}
}

// pairKey is the unordered form of a pair, smaller key in the high word.
func pairKey(a, b uint32) uint64 {
	if a > b {
		a, b = b, a
	}
	return uint64(a)<<32 | uint64(b)
}

// Build evaluates dist for every pair of keys sharing a canopy, each pair at
// most once, reading values of feature from source.
//
// Returns an ErrMissingFeature error when a canopy key has no value.
// Canopies are processed in parallel; a pair appearing in several canopies is
// reserved by the first canopy that reaches it.
func (b *SparseDistanceBuilder) Build(ctx context.Context, canopies *CanopyCollection, source FeatureSource, feature string, dist Distance) (*SparseDistance, SparseDistanceStats, error) {
	var (
		mu       sync.Mutex
		out      = NewSparseDistance()
		reserved = make(map[uint64]struct{})
		computed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for i := 0; i < canopies.Len(); i++ {
		if gctx.Err() != nil {
			break
		}
		canopy := canopies.At(i)
		g.Go(func() error {
			keys := canopy.ToArray()
			values := make([]Value, len(keys))
			for n, k := range keys {
				v, ok := source.Value(k, feature)
				if !ok {
					return fmt.Errorf("%w: record %d feature %q", ErrMissingFeature, k, feature)
				}
				values[n] = v
			}

			// Reserve every new pair of this canopy in one critical section.
			type pair struct{ x, y int }
			var todo []pair
			mu.Lock()
			for x := range keys {
				for y := x; y < len(keys); y++ {
					pk := pairKey(keys[x], keys[y])
					if _, taken := reserved[pk]; taken {
						continue
					}
					reserved[pk] = struct{}{}
					todo = append(todo, pair{x, y})
				}
			}
			mu.Unlock()

			results := make([]float64, len(todo))
			for n, p := range todo {
				d, err := dist.Calculate(values[p.x], values[p.y])
				if err != nil {
					return fmt.Errorf("distance %d-%d: %w", keys[p.x], keys[p.y], err)
				}
				results[n] = d
			}

			mu.Lock()
			for n, p := range todo {
				out.Set(keys[p.x], keys[p.y], results[n])
			}
			computed += len(todo)
			mu.Unlock()
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, SparseDistanceStats{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, SparseDistanceStats{}, err
	}

	n := int(canopies.Union().GetCardinality())
	stats := SparseDistanceStats{Computed: computed, FullMatrix: n * (n + 1) / 2}
	b.logger.LogSparseDistances(ctx, stats)
	return out, stats, nil
}
