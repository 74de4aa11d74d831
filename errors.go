package lsh

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by this package that belongs to one of
// the categories below wraps the category sentinel, so callers can branch with
// errors.Is(err, ErrConfiguration) without knowing the specific cause.
var (
	// ErrConfiguration marks an invalid or missing configuration value.
	// Raised at construction or build time before any work is done.
	ErrConfiguration = errors.New("configuration error")

	// ErrState marks an operation invoked before its prerequisite structure
	// (flat index, nested index) was built.
	ErrState = errors.New("state error")

	// ErrLookup marks a missing entry that bookkeeping guarantees to exist.
	// It signals an internal consistency failure and must not be retried.
	ErrLookup = errors.New("lookup error")
)

// Configuration errors.
var (
	ErrInvalidThreshold    = fmt.Errorf("%w: similarity threshold must be within [0, 1]", ErrConfiguration)
	ErrUnknownLinkage      = fmt.Errorf("%w: unknown linkage criterion", ErrConfiguration)
	ErrUnknownMethod       = fmt.Errorf("%w: unknown LSH method", ErrConfiguration)
	ErrTooManyBits         = fmt.Errorf("%w: number of bits exceeds the maximum width", ErrConfiguration)
	ErrInvalidNumBits      = fmt.Errorf("%w: number of bits must be positive", ErrConfiguration)
	ErrInvalidNumFunctions = fmt.Errorf("%w: number of hash functions must be positive", ErrConfiguration)
	ErrInvalidDimension    = fmt.Errorf("%w: dimension must be positive", ErrConfiguration)
	ErrInvalidNGram        = fmt.Errorf("%w: n-gram length must be positive, \"token\" or \"word\"", ErrConfiguration)
	ErrInvalidBandWidth    = fmt.Errorf("%w: band width must be between 1 and the signature length", ErrConfiguration)
	ErrInvalidSliceSizes   = fmt.Errorf("%w: slice sizes must be positive, strictly increasing and bounded by the signature length", ErrConfiguration)
	ErrUnknownDistanceKind = fmt.Errorf("%w: unknown distance kind", ErrConfiguration)
	ErrUnknownPrecision    = fmt.Errorf("%w: unknown vector precision", ErrConfiguration)
	ErrUnknownFeature      = fmt.Errorf("%w: unknown feature", ErrConfiguration)
	ErrUnknownFeatureKind  = fmt.Errorf("%w: unknown feature kind", ErrConfiguration)
)

// State errors.
var (
	ErrIndexNotBuilt       = fmt.Errorf("%w: flat index not built", ErrState)
	ErrNestedIndexNotBuilt = fmt.Errorf("%w: nested index not built", ErrState)
)

// Lookup errors.
var (
	ErrMissingDistance = fmt.Errorf("%w: distance between co-canopy keys is missing", ErrLookup)
	ErrMissingFeature  = fmt.Errorf("%w: feature value is missing", ErrLookup)
)

// Input errors. These describe a bad argument rather than a bad setup.
var (
	// ErrSignatureLength is returned when two signatures that must agree in
	// length do not, or when a signature is added with a length different from
	// the rest of its feature.
	ErrSignatureLength = errors.New("signature length mismatch")

	// ErrValueKind is returned when a codec receives the wrong kind of value.
	ErrValueKind = errors.New("feature value kind mismatch")

	// ErrLevelOutOfRange is returned for a nested level outside the built slices.
	ErrLevelOutOfRange = errors.New("nested level out of range")

	// ErrZeroVector is returned when a zero vector is provided for a metric that doesn't support it.
	ErrZeroVector = errors.New("zero vector not allowed for this metric")

	// ErrDuplicateKey is returned when a record key is added twice to a feature store.
	ErrDuplicateKey = errors.New("duplicate key")
)

// DimensionMismatchError indicates a vector whose dimensionality differs from
// the one a codec or feature store was configured with.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}
