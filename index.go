package lsh

import "github.com/RoaringBitmap/roaring"

// Compile-time checks to ensure SignatureIndex implements the retrieval interfaces
var (
	_ BandRetriever   = (*SignatureIndex)(nil)
	_ NestedRetriever = (*SignatureIndex)(nil)
)

// BandRetriever is the read side of a flat banded index. CanopyBuilder
// depends only on it.
type BandRetriever interface {
	// IDs returns a copy of every known id; callers may modify it
	IDs() *roaring.Bitmap

	// Signature returns the stored signature of a record
	Signature(feature string, id uint32) (Signature, bool)

	// Retrieve returns one id set per band position
	Retrieve(feature string, sig Signature) ([]*roaring.Bitmap, error)
}

// NestedRetriever is the read side of a nested prefix index.
type NestedRetriever interface {
	// RetrieveNested returns the ids sharing the prefix of sig at level
	RetrieveNested(feature string, sig Signature, level int) (*roaring.Bitmap, error)

	// RetrieveChildren returns the longer prefix tuples extending sig at level
	RetrieveChildren(feature string, sig Signature, level int) ([]BandTuple, error)

	// NumNestedLevels returns the number of prefix levels built
	NumNestedLevels(feature string) int
}

// Candidate is one record retrieved by a CandidateSearch.
type Candidate struct {
	// Query is the position of the query signature (or node) the candidate
	// was retrieved for.
	Query int

	ID uint32

	// Score is the band-agreement fraction: bands shared with the query over
	// bands the query matched.
	Score float64
}

// CandidateSearch encapsulates one candidate retrieval against a flat index.
type CandidateSearch interface {
	// WithSignature sets the query signature(s) - supports single or batch queries
	WithSignature(sigs ...Signature) CandidateSearch

	// WithNode sets the record id(s) whose stored signatures are the queries
	WithNode(ids ...uint32) CandidateSearch

	// WithK limits the number of candidates per query; zero keeps all
	WithK(k int) CandidateSearch

	// WithMinScore drops candidates scoring below the given fraction
	WithMinScore(score float64) CandidateSearch

	// WithAutocut cuts each query's candidates at the cutoff-th extremum of
	// their score curve; zero or -1 disables it
	WithAutocut(cutoff int) CandidateSearch

	// Execute runs the search; candidates of each query are ordered by
	// descending score, then id
	Execute() ([]Candidate, error)
}
