package lsh

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"golang.org/x/sync/errgroup"
)

// bandAgreement counts, for every id found in the retrieved band sets, the
// number of bands it appeared in. matched is the number of non-empty sets;
// it is taken before restricting the sets to within (when within is set).
func bandAgreement(bands []*roaring.Bitmap, within *roaring.Bitmap) (counts map[uint32]int, matched int) {
	counts = make(map[uint32]int)
	for _, r := range bands {
		if r.IsEmpty() {
			continue
		}
		matched++
		if within != nil {
			r.And(within)
		}
		it := r.Iterator()
		for it.HasNext() {
			counts[it.Next()]++
		}
	}
	return counts, matched
}

// MatchResult scores one candidate record of the target index against one
// query record.
type MatchResult struct {
	Query     uint32
	Candidate uint32
	Feature   string

	// Score is the fraction of the query's matched bands that the candidate
	// shares.
	Score float64
}

// MatcherConfig configures a Matcher.
type MatcherConfig struct {
	// MinScore drops results scoring below it.
	MinScore float64 `yaml:"min_score"`

	// Workers bounds the number of query records processed concurrently.
	// Zero selects GOMAXPROCS.
	Workers int `yaml:"workers"`

	Logger *Logger `yaml:"-"`
}

// Matcher links records across two signature indexes through their flat
// band indexes.
type Matcher struct {
	minScore float64
	workers  int
	logger   *Logger
}

// NewMatcher creates a matcher.
func NewMatcher(cfg MatcherConfig) *Matcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Matcher{
		minScore: cfg.MinScore,
		workers:  workers,
		logger:   resolveLogger(cfg.Logger, false).WithComponent("matcher"),
	}
}

// Match retrieves, for every record of query and every named feature (all
// query features when none are named), the candidates of target sharing at
// least one band. The target must have its flat index built.
//
// Results are ordered by query id, feature, descending score, then candidate.
func (m *Matcher) Match(ctx context.Context, query, target *SignatureIndex, features ...string) ([]MatchResult, error) {
	if len(features) == 0 {
		features = query.Features()
	}
	for _, f := range features {
		if target.FlatState(f) != Built {
			return nil, fmt.Errorf("target feature %q: %w", f, ErrIndexNotBuilt)
		}
	}

	var (
		mu      sync.Mutex
		results []MatchResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	it := query.IDs().Iterator()
	for it.HasNext() {
		id := it.Next()
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			var local []MatchResult
			for _, f := range features {
				sig, ok := query.Signature(f, id)
				if !ok {
					continue
				}
				cands, err := target.NewSearch(f).
					WithSignature(sig).
					WithMinScore(m.minScore).
					Execute()
				if err != nil {
					return err
				}
				for _, c := range cands {
					local = append(local, MatchResult{Query: id, Candidate: c.ID, Feature: f, Score: c.Score})
				}
			}
			mu.Lock()
			results = append(results, local...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Query != b.Query {
			return a.Query < b.Query
		}
		if a.Feature != b.Feature {
			return a.Feature < b.Feature
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Candidate < b.Candidate
	})

	m.logger.InfoContext(ctx, "matching completed",
		"queries", query.Len(),
		"features", len(features),
		"results", len(results),
	)
	return results, nil
}
