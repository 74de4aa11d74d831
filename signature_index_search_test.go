package lsh

import (
	"errors"
	"testing"
)

func candidateIDs(cands []Candidate) []uint32 {
	ids := make([]uint32, len(cands))
	for i, c := range cands {
		ids[i] = c.ID
	}
	return ids
}

// TestSignatureIndexSearchSimple tests band-agreement scoring and ordering
func TestSignatureIndexSearchSimple(t *testing.T) {
	idx := scenarioIndex(t)
	idx.BuildFlat(2)

	results, err := idx.NewSearch("f").
		WithSignature(Signature{1, 2, 3, 4}).
		Execute()
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 candidates, got %d", len(results))
	}

	want := []Candidate{{ID: 0, Score: 1}, {ID: 1, Score: 0.5}, {ID: 3, Score: 0.5}}
	for i, w := range want {
		if results[i] != w {
			t.Errorf("candidate %d: expected %+v, got %+v", i, w, results[i])
		}
	}
}

// TestSignatureIndexSearchWithK tests limiting the candidates per query
func TestSignatureIndexSearchWithK(t *testing.T) {
	idx := scenarioIndex(t)
	idx.BuildFlat(2)

	results, err := idx.NewSearch("f").
		WithSignature(Signature{1, 2, 3, 4}).
		WithK(2).
		Execute()
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if ids := candidateIDs(results); len(ids) != 2 || ids[0] != 0 || ids[1] != 1 {
		t.Errorf("Expected ids [0 1], got %v", ids)
	}
}

// TestSignatureIndexSearchWithMinScore tests the score floor
func TestSignatureIndexSearchWithMinScore(t *testing.T) {
	idx := scenarioIndex(t)
	idx.BuildFlat(2)

	results, _ := idx.NewSearch("f").
		WithSignature(Signature{1, 2, 3, 4}).
		WithMinScore(0.6).
		Execute()
	if ids := candidateIDs(results); len(ids) != 1 || ids[0] != 0 {
		t.Errorf("Expected only id 0, got %v", ids)
	}
}

// TestSignatureIndexSearchWithAutocut tests cutting at the score gap
func TestSignatureIndexSearchWithAutocut(t *testing.T) {
	idx := NewSignatureIndex("f")
	sigs := []Signature{
		{1, 1, 1, 1, 1, 1, 1, 1},
		{1, 1, 1, 1, 1, 1, 1, 1},
		{1, 1, 1, 1, 1, 1, 1, 1},
		{1, 1, 0, 0, 0, 0, 0, 0},
		{1, 1, 0, 0, 0, 0, 0, 0},
	}
	for id, sig := range sigs {
		idx.Add("f", uint32(id), sig)
	}
	idx.BuildFlat(2)

	results, err := idx.NewSearch("f").
		WithNode(0).
		WithAutocut(1).
		Execute()
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if ids := candidateIDs(results); len(ids) != 3 {
		t.Errorf("Expected the three exact matches, got %v", ids)
	}
}

// TestSignatureIndexSearchByNode tests queries by stored record
func TestSignatureIndexSearchByNode(t *testing.T) {
	idx := scenarioIndex(t)
	idx.BuildFlat(2)

	results, err := idx.NewSearch("f").WithNode(2, 3).Execute()
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	// Query 0 (record 2) only finds itself; query 1 (record 3) finds 3, 0, 1.
	if len(results) != 4 {
		t.Fatalf("Expected 4 candidates, got %+v", results)
	}
	if results[0] != (Candidate{Query: 0, ID: 2, Score: 1}) {
		t.Errorf("unexpected first candidate %+v", results[0])
	}
	if results[1] != (Candidate{Query: 1, ID: 3, Score: 1}) {
		t.Errorf("unexpected second candidate %+v", results[1])
	}

	if _, err := idx.NewSearch("f").WithNode(99).Execute(); err == nil {
		t.Error("Expected error for a node without a signature")
	}
}

// TestSignatureIndexSearchBatch tests several query signatures at once
func TestSignatureIndexSearchBatch(t *testing.T) {
	idx := scenarioIndex(t)
	idx.BuildFlat(2)

	results, err := idx.NewSearch("f").
		WithSignature(Signature{5, 6, 7, 8}, Signature{0, 0, 0, 0}, Signature{1, 2, 9, 9}).
		Execute()
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	// The second query matches nothing.
	queries := map[int]int{}
	for _, r := range results {
		queries[r.Query]++
	}
	if queries[0] != 1 || queries[1] != 0 || queries[2] != 3 {
		t.Errorf("unexpected per-query counts %v", queries)
	}
}

// TestSignatureIndexSearchErrors tests invalid searches
func TestSignatureIndexSearchErrors(t *testing.T) {
	idx := scenarioIndex(t)

	if _, err := idx.NewSearch("f").Execute(); err == nil {
		t.Error("Expected error when no query is given")
	}
	if _, err := idx.NewSearch("f").WithSignature(Signature{1, 2, 3, 4}).Execute(); !errors.Is(err, ErrIndexNotBuilt) {
		t.Errorf("Expected ErrIndexNotBuilt, got %v", err)
	}

	idx.BuildFlat(2)
	if _, err := idx.NewSearch("g").WithSignature(Signature{1, 2, 3, 4}).Execute(); !errors.Is(err, ErrUnknownFeature) {
		t.Errorf("Expected ErrUnknownFeature, got %v", err)
	}
}
