// Package lsh implements random-hyperplane LSH for vectors.
//
// WHAT IS RANDOM PROJECTION LSH?
// Draw a random hyperplane through the origin. Two vectors fall on the same
// side of it with probability 1 - theta(x, y) / pi, where theta is the angle
// between them (Charikar, 2002). Recording the side of k hyperplanes gives a
// k-bit code; vectors at a small angle agree on most bits.
//
// HOW ENCODING WORKS:
// The codec holds L independent k × d projection matrices whose rows are
// unit-length Gaussian directions. For input x it computes y_j = M_j · x for
// every matrix j and sets bit i of code j when y_j[i] >= 0.
//
// TIME COMPLEXITY:
//   - Construction: O(L × k × d) random draws
//   - Encode: O(L × k × d)
//   - Hamming / angle estimates: O(L)
package lsh

import (
	"fmt"
	"math"
	"math/bits"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MaxProjectionBits is the widest random-projection code; one code is packed
// into a single 64-bit word.
const MaxProjectionBits = 64

// Compile-time check to ensure RandomProjectionCodec implements Codec
var _ Codec = (*RandomProjectionCodec)(nil)

// RandomProjectionConfig configures a RandomProjectionCodec.
type RandomProjectionConfig struct {
	// Method must be "rp_acos" (or empty, which selects it).
	Method CodecMethod `yaml:"method"`

	// Seed drives the projection matrices. Equal seeds give equal codecs.
	Seed int64 `yaml:"seed"`

	// NumFunctions is L, the number of codes per signature.
	NumFunctions int `yaml:"num_functions"`

	// NumBits is k, the bits per code (1..64).
	NumBits int `yaml:"num_bits"`

	// Dimension is the input dimensionality d. Every encoded vector must have
	// exactly this many components.
	Dimension int `yaml:"dimension"`

	// Verbose logs the configuration and every encoded signature at debug level.
	Verbose bool `yaml:"verbose"`

	Logger *Logger `yaml:"-"`
}

// DefaultRandomProjectionConfig returns the settings used by the vector
// ingestion driver: 6 functions of 16 bits.
func DefaultRandomProjectionConfig(dimension int) RandomProjectionConfig {
	return RandomProjectionConfig{
		Method:       RandomProjectionMethod,
		Seed:         25,
		NumFunctions: 6,
		NumBits:      16,
		Dimension:    dimension,
	}
}

// RandomProjectionCodec encodes vectors into sign-random-projection
// signatures.
type RandomProjectionCodec struct {
	numFunctions int
	numBits      int
	dim          int

	// projections[j] is the k × d matrix of function j.
	projections []*mat.Dense

	logger  *Logger
	verbose bool
}

// NewRandomProjectionCodec creates a codec and eagerly materializes its
// projection matrices.
//
// Returns:
//   - ErrUnknownMethod if Method is not rp_acos
//   - ErrInvalidNumFunctions, ErrInvalidNumBits, ErrTooManyBits,
//     ErrInvalidDimension for out-of-range sizes
func NewRandomProjectionCodec(cfg RandomProjectionConfig) (*RandomProjectionCodec, error) {
	if cfg.Method != "" && cfg.Method != RandomProjectionMethod {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, cfg.Method)
	}
	if cfg.NumFunctions <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidNumFunctions, cfg.NumFunctions)
	}
	if cfg.NumBits <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidNumBits, cfg.NumBits)
	}
	if cfg.NumBits > MaxProjectionBits {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyBits, cfg.NumBits, MaxProjectionBits)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDimension, cfg.Dimension)
	}

	rng := newRand(cfg.Seed)
	projections := make([]*mat.Dense, cfg.NumFunctions)
	for j := range projections {
		data := make([]float64, cfg.NumBits*cfg.Dimension)
		for i := 0; i < cfg.NumBits; i++ {
			row := data[i*cfg.Dimension : (i+1)*cfg.Dimension]
			for c := range row {
				row[c] = rng.NormFloat64()
			}
			if n := floats.Norm(row, 2); n > 0 {
				floats.Scale(1/n, row)
			}
		}
		projections[j] = mat.NewDense(cfg.NumBits, cfg.Dimension, data)
	}

	c := &RandomProjectionCodec{
		numFunctions: cfg.NumFunctions,
		numBits:      cfg.NumBits,
		dim:          cfg.Dimension,
		projections:  projections,
		logger:       resolveLogger(cfg.Logger, cfg.Verbose).WithComponent("rp_acos"),
		verbose:      cfg.Verbose,
	}
	c.logger.Debug("codec initialized",
		"seed", cfg.Seed,
		"num_functions", cfg.NumFunctions,
		"num_bits", cfg.NumBits,
		"dimension", cfg.Dimension,
	)
	return c, nil
}

// Encode returns the L-code signature of a vector value.
func (c *RandomProjectionCodec) Encode(v Value) (Signature, error) {
	if v.Kind != VectorKind {
		return nil, fmt.Errorf("%w: rp_acos encodes vectors, got %q", ErrValueKind, v.Kind)
	}
	return c.EncodeVector(v.Vector)
}

// EncodeVector returns the signature of x.
func (c *RandomProjectionCodec) EncodeVector(x []float32) (Signature, error) {
	if len(x) != c.dim {
		return nil, &DimensionMismatchError{Expected: c.dim, Actual: len(x)}
	}

	xd := make([]float64, len(x))
	for i, v := range x {
		xd[i] = float64(v)
	}
	xv := mat.NewVecDense(c.dim, xd)

	sig := make(Signature, c.numFunctions)
	var y mat.VecDense
	for j, m := range c.projections {
		y.MulVec(m, xv)
		var code uint64
		for i := 0; i < c.numBits; i++ {
			if y.AtVec(i) >= 0 {
				code |= 1 << uint(i)
			}
		}
		sig[j] = code
	}

	if c.verbose {
		c.logger.Debug("vector encoded", "signature", sig)
	}
	return sig, nil
}

// Hamming returns the average, across the L codes, of the number of agreeing
// bits (k minus the bit count of the XOR).
func (c *RandomProjectionCodec) Hamming(a, b Signature) (float64, error) {
	if err := c.checkPair(a, b); err != nil {
		return 0, err
	}
	var sum float64
	for j := range a {
		sum += float64(c.numBits - bits.OnesCount64(a[j]^b[j]))
	}
	return sum / float64(len(a)), nil
}

// NormalizedHamming returns the average fraction of agreeing bits per code.
func (c *RandomProjectionCodec) NormalizedHamming(a, b Signature) (float64, error) {
	if err := c.checkPair(a, b); err != nil {
		return 0, err
	}
	var sum float64
	for j := range a {
		sum += 1 - float64(bits.OnesCount64(a[j]^b[j]))/float64(c.numBits)
	}
	return sum / float64(len(a)), nil
}

// ApproxAngle estimates the angle between the encoded vectors as
// pi × (1 - NormalizedHamming).
func (c *RandomProjectionCodec) ApproxAngle(a, b Signature) (float64, error) {
	nh, err := c.NormalizedHamming(a, b)
	if err != nil {
		return 0, err
	}
	return math.Pi * (1 - nh), nil
}

// ApproxCosine estimates the cosine similarity of the encoded vectors.
func (c *RandomProjectionCodec) ApproxCosine(a, b Signature) (float64, error) {
	theta, err := c.ApproxAngle(a, b)
	if err != nil {
		return 0, err
	}
	return math.Cos(theta), nil
}

// Similarity is the normalized Hamming agreement of the two signatures.
func (c *RandomProjectionCodec) Similarity(a, b Signature) (float64, error) {
	return c.NormalizedHamming(a, b)
}

func (c *RandomProjectionCodec) checkPair(a, b Signature) error {
	if len(a) != len(b) || len(a) == 0 {
		return fmt.Errorf("%w: %d vs %d", ErrSignatureLength, len(a), len(b))
	}
	return nil
}

// NumFunctions returns L.
func (c *RandomProjectionCodec) NumFunctions() int { return c.numFunctions }

// NumBits returns k.
func (c *RandomProjectionCodec) NumBits() int { return c.numBits }

// Dimensions returns the input dimensionality.
func (c *RandomProjectionCodec) Dimensions() int { return c.dim }

// Kind returns VectorKind.
func (c *RandomProjectionCodec) Kind() FeatureKind { return VectorKind }

// Method returns RandomProjectionMethod.
func (c *RandomProjectionCodec) Method() CodecMethod { return RandomProjectionMethod }
