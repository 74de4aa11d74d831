package lsh

import (
	"encoding/binary"
	"fmt"
)

// Signature is the ordered sequence of hash codes produced by one codec for
// one feature value.
//
// Min-hash codes hold NumBits significant bits. Random-projection codes are
// bit-vectors of NumBits bits packed into a single word, bit i set when the
// i-th hyperplane projection is non-negative.
//
// A nil Signature means the value produced no codes at all (for example a
// string shorter than the n-gram length). Indexes skip nil signatures.
type Signature []uint64

// Len returns the number of hash functions in the signature.
func (s Signature) Len() int {
	return len(s)
}

// Equal reports whether two signatures hold the same codes.
func (s Signature) Equal(other Signature) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the signature.
func (s Signature) Clone() Signature {
	if s == nil {
		return nil
	}
	return append(Signature{}, s...)
}

// Band identifies a contiguous half-open slice [Start, End) of a signature.
type Band struct {
	Start int
	End   int
}

// Width returns the number of codes covered by the band.
func (b Band) Width() int {
	return b.End - b.Start
}

func (b Band) String() string {
	return fmt.Sprintf("[%d:%d)", b.Start, b.End)
}

// BandTuple is the tuple of codes found within one band of a signature.
// Tuples are used as exact-match index keys.
type BandTuple []uint64

// tupleKey is the comparable form of a BandTuple: the codes encoded as
// fixed-width little-endian words.
type tupleKey string

// key encodes the tuple for use as a map key.
func (t BandTuple) key() tupleKey {
	buf := make([]byte, 0, 8*len(t))
	for _, c := range t {
		buf = binary.LittleEndian.AppendUint64(buf, c)
	}
	return tupleKey(buf)
}

// Signature returns the tuple as a prefix signature so it can be passed back
// to nested retrieval calls.
func (t BandTuple) Signature() Signature {
	return Signature(append([]uint64{}, t...))
}

// tuple decodes a tuple key back into codes.
func (k tupleKey) tuple() BandTuple {
	out := make(BandTuple, len(k)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64([]byte(k[8*i : 8*i+8]))
	}
	return out
}

// bandKey extracts the tuple key of band b from sig. ok is false when the
// signature is too short to cover the band.
func bandKey(sig Signature, b Band) (tupleKey, bool) {
	if b.End > len(sig) {
		return "", false
	}
	return BandTuple(sig[b.Start:b.End]).key(), true
}

// FlatBands partitions a signature of length numFunctions into disjoint bands
// of width codes. A trailing band shorter than width is dropped.
func FlatBands(numFunctions, width int) ([]Band, error) {
	if width <= 0 || width > numFunctions {
		return nil, fmt.Errorf("%w: width=%d, signature length=%d", ErrInvalidBandWidth, width, numFunctions)
	}
	bands := make([]Band, 0, numFunctions/width)
	for start := 0; start+width <= numFunctions; start += width {
		bands = append(bands, Band{Start: start, End: start + width})
	}
	return bands, nil
}

// NestedBands returns the prefix slices [0, size) for each size. Sizes must be
// positive, strictly increasing and no larger than numFunctions.
func NestedBands(numFunctions int, sizes []int) ([]Band, error) {
	if len(sizes) == 0 {
		return nil, fmt.Errorf("%w: no slice sizes given", ErrInvalidSliceSizes)
	}
	bands := make([]Band, 0, len(sizes))
	last := 0
	for _, size := range sizes {
		if size <= 0 || size <= last || size > numFunctions {
			return nil, fmt.Errorf("%w: sizes=%v, signature length=%d", ErrInvalidSliceSizes, sizes, numFunctions)
		}
		bands = append(bands, Band{Start: 0, End: size})
		last = size
	}
	return bands, nil
}
