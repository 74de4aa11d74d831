package lsh

import (
	"fmt"
	"sort"
)

// Compile-time checks to ensure signatureIndexSearch implements CandidateSearch
var _ CandidateSearch = (*signatureIndexSearch)(nil)

// signatureIndexSearch implements the CandidateSearch interface for one
// feature of a SignatureIndex.
type signatureIndexSearch struct {
	index    *SignatureIndex
	feature  string
	sigs     []Signature
	nodeIDs  []uint32
	k        int
	minScore float64
	cutoff   int
}

// NewSearch creates a candidate search over the flat index of feature.
func (idx *SignatureIndex) NewSearch(feature string) CandidateSearch {
	return &signatureIndexSearch{index: idx, feature: feature}
}

// WithSignature sets the query signature(s) - supports single or batch queries
func (s *signatureIndexSearch) WithSignature(sigs ...Signature) CandidateSearch {
	s.sigs = sigs
	s.nodeIDs = nil // Clear node-based search
	return s
}

// WithNode sets the record id(s) whose stored signatures are the queries
func (s *signatureIndexSearch) WithNode(ids ...uint32) CandidateSearch {
	s.nodeIDs = ids
	s.sigs = nil // Clear signature-based search
	return s
}

// WithK sets the number of candidates to return per query
func (s *signatureIndexSearch) WithK(k int) CandidateSearch {
	s.k = k
	return s
}

// WithMinScore sets the minimum band-agreement fraction (optional)
func (s *signatureIndexSearch) WithMinScore(score float64) CandidateSearch {
	s.minScore = score
	return s
}

// WithAutocut sets the autocut extremum count (optional)
func (s *signatureIndexSearch) WithAutocut(cutoff int) CandidateSearch {
	s.cutoff = cutoff
	return s
}

// Execute performs the retrieval and returns candidates grouped by query.
//
// Returns:
//   - []Candidate: candidates of every query, each query's block sorted by
//     descending score then id
//   - error: Returns error if the search configuration is invalid, a node id
//     is unknown, or the flat index was not built
func (s *signatureIndexSearch) Execute() ([]Candidate, error) {
	if len(s.sigs) > 0 && len(s.nodeIDs) > 0 {
		return nil, fmt.Errorf("cannot specify both signatures and node IDs")
	}
	if len(s.sigs) == 0 && len(s.nodeIDs) == 0 {
		return nil, fmt.Errorf("must specify either signatures or node IDs")
	}

	queries := s.sigs
	if len(s.nodeIDs) > 0 {
		queries = make([]Signature, 0, len(s.nodeIDs))
		for _, id := range s.nodeIDs {
			sig, ok := s.index.Signature(s.feature, id)
			if !ok {
				return nil, fmt.Errorf("node ID %d has no signature for feature %q", id, s.feature)
			}
			queries = append(queries, sig)
		}
	}

	var all []Candidate
	for q, sig := range queries {
		results, err := s.searchSingle(q, sig)
		if err != nil {
			return nil, err
		}
		all = append(all, results...)
	}
	return all, nil
}

func (s *signatureIndexSearch) searchSingle(q int, sig Signature) ([]Candidate, error) {
	bands, err := s.index.Retrieve(s.feature, sig)
	if err != nil {
		return nil, err
	}
	counts, matched := bandAgreement(bands, nil)
	if matched == 0 {
		return nil, nil
	}

	results := make([]Candidate, 0, len(counts))
	for id, n := range counts {
		score := float64(n) / float64(matched)
		if score < s.minScore {
			continue
		}
		results = append(results, Candidate{Query: q, ID: id, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	results = autocutCandidates(results, s.cutoff)
	return limitCandidates(results, s.k), nil
}
