package lsh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// DistanceKind represents the distance metric used between raw feature values
// when clustering. Vector metrics compare numeric vectors; Jaccard compares
// strings through their character n-gram sets.
type DistanceKind string

const (
	// Euclidean (L2) distance measures the straight-line distance between two points.
	// Formula: sqrt(sum((a[i] - b[i])^2))
	Euclidean DistanceKind = "l2"

	// L2Squared (squared Euclidean) distance. Ordering is the same as L2.
	// Formula: sum((a[i] - b[i])^2)
	L2Squared DistanceKind = "l2_squared"

	// Cosine distance measures the angular difference between vectors (1 - cosine similarity).
	// Formula: 1 - (dot(a,b) / (||a|| * ||b||))
	// Range: [0, 2] where 0 = identical direction, 1 = orthogonal, 2 = opposite
	Cosine DistanceKind = "cosine"

	// Jaccard distance between the character trigram sets of two strings.
	// Formula: 1 - |A ∩ B| / |A ∪ B|
	// Range: [0, 1]; two strings without any trigram are at distance 0.
	Jaccard DistanceKind = "jaccard"
)

// DefaultJaccardNGram is the n-gram length of the Jaccard distance kind.
const DefaultJaccardNGram = 3

// Singleton instances of distance strategies.
// These are stateless and can be safely reused across goroutines.
var (
	euclideanDistanceImpl = euclidean{}
	l2SquaredDistanceImpl = l2Squared{}
	cosineDistanceImpl    = cosine{}
	jaccardDistanceImpl   = ngramJaccard{n: DefaultJaccardNGram}
)

// Distance computes the distance between two feature values.
// Lower values mean more similar.
type Distance interface {
	Calculate(a, b Value) (float64, error)
}

// DistanceFunc adapts a plain function to the Distance interface.
type DistanceFunc func(a, b Value) (float64, error)

// Calculate calls f(a, b).
func (f DistanceFunc) Calculate(a, b Value) (float64, error) {
	return f(a, b)
}

// ParseDistanceKind validates a distance kind name.
func ParseDistanceKind(s string) (DistanceKind, error) {
	switch DistanceKind(s) {
	case Euclidean, L2Squared, Cosine, Jaccard:
		return DistanceKind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDistanceKind, s)
	}
}

// NewDistance returns a singleton Distance implementation for the specified metric type.
// The returned instances are stateless and safe for concurrent use across goroutines.
// Returns ErrUnknownDistanceKind if the distance kind is not recognized.
//
// Example:
//
//	dist, err := NewDistance(Euclidean)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	d, _ := dist.Calculate(VectorValue([]float32{1, 2}), VectorValue([]float32{4, 6}))
func NewDistance(t DistanceKind) (Distance, error) {
	switch t {
	case Euclidean:
		return euclideanDistanceImpl, nil
	case L2Squared:
		return l2SquaredDistanceImpl, nil
	case Cosine:
		return cosineDistanceImpl, nil
	case Jaccard:
		return jaccardDistanceImpl, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDistanceKind, t)
	}
}

// NewNGramJaccard returns a Jaccard distance over character n-grams of
// length n.
func NewNGramJaccard(n int) (Distance, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidNGram, n)
	}
	return ngramJaccard{n: n}, nil
}

// vectorPair checks that a and b are vectors of equal dimension and widens
// them to float64.
func vectorPair(a, b Value) ([]float64, []float64, error) {
	if a.Kind != VectorKind || b.Kind != VectorKind {
		return nil, nil, fmt.Errorf("%w: vector distance on %q and %q", ErrValueKind, a.Kind, b.Kind)
	}
	if len(a.Vector) != len(b.Vector) {
		return nil, nil, &DimensionMismatchError{Expected: len(a.Vector), Actual: len(b.Vector)}
	}
	return widen(a.Vector), widen(b.Vector), nil
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// euclidean implements Distance using Euclidean (L2) distance.
type euclidean struct{}

// Calculate computes the Euclidean (L2) distance between two vectors.
// Time complexity: O(n) where n is the vector dimension
func (euclidean) Calculate(a, b Value) (float64, error) {
	x, y, err := vectorPair(a, b)
	if err != nil {
		return 0, err
	}
	return floats.Distance(x, y, 2), nil
}

// l2Squared implements Distance using squared Euclidean distance.
type l2Squared struct{}

// Calculate computes the squared Euclidean (L2²) distance between two vectors.
func (l2Squared) Calculate(a, b Value) (float64, error) {
	x, y, err := vectorPair(a, b)
	if err != nil {
		return 0, err
	}
	d := floats.Distance(x, y, 2)
	return d * d, nil
}

// cosine implements Distance using cosine distance.
type cosine struct{}

// Calculate computes 1 - cos(a, b). Returns ErrZeroVector if either vector
// has zero magnitude.
func (cosine) Calculate(a, b Value) (float64, error) {
	x, y, err := vectorPair(a, b)
	if err != nil {
		return 0, err
	}
	nx, ny := floats.Norm(x, 2), floats.Norm(y, 2)
	if nx == 0 || ny == 0 {
		return 0, ErrZeroVector
	}
	sim := floats.Dot(x, y) / (nx * ny)

	// Clamp to [-1, 1] to handle floating point precision errors
	sim = math.Max(-1, math.Min(1, sim))
	return 1 - sim, nil
}

// ngramJaccard implements Distance as the Jaccard distance of character n-gram sets.
type ngramJaccard struct {
	n int
}

// Calculate computes 1 - |A ∩ B| / |A ∪ B| over the n-gram sets of a and b.
func (j ngramJaccard) Calculate(a, b Value) (float64, error) {
	if a.Kind != StringKind || b.Kind != StringKind {
		return 0, fmt.Errorf("%w: jaccard distance on %q and %q", ErrValueKind, a.Kind, b.Kind)
	}
	sa := gramSet(charNGrams(a.Text, j.n))
	sb := gramSet(charNGrams(b.Text, j.n))
	if len(sa) == 0 && len(sb) == 0 {
		return 0, nil
	}
	inter := 0
	for g := range sa {
		if _, ok := sb[g]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return 1 - float64(inter)/float64(union), nil
}

func gramSet(grams []string) map[string]struct{} {
	set := make(map[string]struct{}, len(grams))
	for _, g := range grams {
		set[g] = struct{}{}
	}
	return set
}

// ============================================================================
// Public utility functions
// ============================================================================

// Norm computes the L2 norm (Euclidean length/magnitude) of a vector.
//
// Formula: sqrt(sum(v[i]^2))
//
// Example:
//
//	v := []float32{3, 4}
//	length := Norm(v)  // Returns 5.0
func Norm(v []float32) float32 {
	return float32(floats.Norm(widen(v), 2))
}

// NormalizeInPlace normalizes the vector to unit length in-place, modifying the original vector.
//
// Special case:
//   - If the input is a zero vector (all elements are 0), the vector remains unchanged
//     to avoid division by zero and NaN values
//
// Example:
//
//	v := []float32{3, 4}
//	NormalizeInPlace(v)      // v is now [0.6, 0.8] (magnitude = 1)
func NormalizeInPlace(v []float32) {
	norm := Norm(v)
	if norm == 0 {
		return
	}
	scale := 1.0 / norm
	for i := range v {
		v[i] *= scale
	}
}
