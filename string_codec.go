// Package lsh implements character n-gram min-hash for strings.
//
// WHAT IS MIN-HASH?
// For a set S and a random hash function h, min(h(S)) is equal for two sets
// with probability |A ∩ B| / |A ∪ B|, their Jaccard similarity. Repeating with
// independent functions gives a signature whose agreement rate estimates the
// Jaccard similarity of the underlying n-gram sets.
//
// HASH FAMILY:
// Each function i is a multiply-shift universal hash (Thorup, "High Speed
// Hashing for Integers and Strings"):
//
//	h_i(g) = (((a_i × H(g) + b_i) mod 2^63) >> (63 - numBits)) & (2^numBits - 1)
//
// where H is FNV-1a reduced to 63 bits and a_i, b_i are drawn from a seeded
// generator. Odd multipliers are not required.
package lsh

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

// MaxMinHashBits is the fixed wide bit-width W of the min-hash family.
const MaxMinHashBits = 63

const fullMask63 = uint64(1)<<MaxMinHashBits - 1

// NGram selects how a string is split into hashed units: a positive value is
// a character n-gram length; TokenNGram and WordNGram select token modes.
type NGram int

const (
	// TokenNGram splits on white space ("token").
	TokenNGram NGram = -1

	// WordNGram splits with UAX#29 word segmentation ("word").
	WordNGram NGram = -2
)

// ParseNGram parses "token", "word" or a positive integer.
func ParseNGram(s string) (NGram, error) {
	switch strings.TrimSpace(s) {
	case "token":
		return TokenNGram, nil
	case "word":
		return WordNGram, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNGram, s)
	}
	return NGram(n), nil
}

func (n NGram) String() string {
	switch n {
	case TokenNGram:
		return "token"
	case WordNGram:
		return "word"
	default:
		return strconv.Itoa(int(n))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (n NGram) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *NGram) UnmarshalText(text []byte) error {
	v, err := ParseNGram(string(text))
	if err != nil {
		return err
	}
	*n = v
	return nil
}

func (n NGram) valid() bool {
	return n > 0 || n == TokenNGram || n == WordNGram
}

// MinHashConfig configures a MinHashCodec.
type MinHashConfig struct {
	Seed int64 `yaml:"seed"`

	// N is the n-gram length or a token mode.
	N NGram `yaml:"n"`

	NumFunctions int `yaml:"num_functions"`

	// NumBits is the number of significant bits per code (1..63).
	NumBits int `yaml:"num_bits"`

	// LowerCase lower-cases input before tokenizing.
	LowerCase bool `yaml:"lower_case"`

	// Normalize rewrites input with Normalizer (FoldASCII when nil) after
	// lower-casing.
	Normalize  bool       `yaml:"normalize"`
	Normalizer Normalizer `yaml:"-"`

	// Verbose logs grams and selected minima of every encoded string.
	Verbose bool `yaml:"verbose"`

	Logger *Logger `yaml:"-"`
}

// DefaultMinHashConfig returns the configuration the entity matcher uses for
// full names: 5-grams, 20 functions of 32 bits, lower-cased and normalized.
func DefaultMinHashConfig() MinHashConfig {
	return MinHashConfig{
		Seed:         32,
		N:            5,
		NumFunctions: 20,
		NumBits:      32,
		LowerCase:    true,
		Normalize:    true,
	}
}

// Compile-time check to ensure MinHashCodec implements Codec
var _ Codec = (*MinHashCodec)(nil)

// MinHashCodec encodes strings into n-gram min-hash signatures.
type MinHashCodec struct {
	n            NGram
	numFunctions int
	numBits      int
	shift        uint
	bitMask      uint64
	a, b         []uint64
	lower        bool
	normalize    Normalizer

	logger  *Logger
	verbose bool
}

// NewMinHashCodec creates a codec and draws its hash parameters.
//
// Returns ErrTooManyBits when NumBits exceeds 63, and ErrInvalidNumBits,
// ErrInvalidNumFunctions or ErrInvalidNGram for other out-of-range values.
func NewMinHashCodec(cfg MinHashConfig) (*MinHashCodec, error) {
	if cfg.NumBits > MaxMinHashBits {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyBits, cfg.NumBits, MaxMinHashBits)
	}
	if cfg.NumBits <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidNumBits, cfg.NumBits)
	}
	if cfg.NumFunctions <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidNumFunctions, cfg.NumFunctions)
	}
	if !cfg.N.valid() {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidNGram, cfg.N)
	}

	rng := newRand(cfg.Seed)
	a := make([]uint64, cfg.NumFunctions)
	b := make([]uint64, cfg.NumFunctions)
	for i := range a {
		a[i] = rng.Uint64() & fullMask63
		b[i] = rng.Uint64() & fullMask63
	}

	var normalizer Normalizer
	if cfg.Normalize {
		normalizer = cfg.Normalizer
		if normalizer == nil {
			normalizer = FoldASCII
		}
	}

	c := &MinHashCodec{
		n:            cfg.N,
		numFunctions: cfg.NumFunctions,
		numBits:      cfg.NumBits,
		shift:        uint(MaxMinHashBits - cfg.NumBits),
		bitMask:      uint64(1)<<uint(cfg.NumBits) - 1,
		a:            a,
		b:            b,
		lower:        cfg.LowerCase,
		normalize:    normalizer,
		logger:       resolveLogger(cfg.Logger, cfg.Verbose).WithComponent("minhash"),
		verbose:      cfg.Verbose,
	}
	c.logger.Debug("codec initialized",
		"seed", cfg.Seed,
		"n", cfg.N.String(),
		"num_functions", cfg.NumFunctions,
		"num_bits", cfg.NumBits,
		"bit_mask", c.bitMask,
		"full_bit_mask", fullMask63,
	)
	return c, nil
}

// Encode returns the min-hash signature of a string value.
func (c *MinHashCodec) Encode(v Value) (Signature, error) {
	if v.Kind != StringKind {
		return nil, fmt.Errorf("%w: minhash encodes strings, got %q", ErrValueKind, v.Kind)
	}
	return c.EncodeString(v.Text), nil
}

// EncodeString returns the signature of s, or nil when s yields no grams.
func (c *MinHashCodec) EncodeString(s string) Signature {
	grams := c.Grams(s)
	if len(grams) == 0 {
		return nil
	}

	sig := make(Signature, c.numFunctions)
	for i := range sig {
		sig[i] = ^uint64(0)
	}
	var minGram []string
	if c.verbose {
		minGram = make([]string, c.numFunctions)
	}

	for _, g := range grams {
		hs := stringHash(g)
		for i := range sig {
			hv := c.universal(i, hs)
			if hv < sig[i] {
				sig[i] = hv
				if minGram != nil {
					minGram[i] = g
				}
			}
		}
	}

	if c.verbose {
		c.logger.Debug("string encoded",
			"grams", grams,
			"signature", sig,
			"min_grams", minGram,
		)
	}
	return sig
}

// Grams returns the hashed units of s after case folding and normalization.
func (c *MinHashCodec) Grams(s string) []string {
	if c.lower {
		s = strings.ToLower(s)
	}
	if c.normalize != nil {
		s = c.normalize(s)
	}
	switch c.n {
	case TokenNGram:
		return whitespaceTokens(s)
	case WordNGram:
		return wordTokens(s)
	default:
		return charNGrams(s, int(c.n))
	}
}

// universal evaluates hash function i on a 63-bit string hash.
func (c *MinHashCodec) universal(i int, hs uint64) uint64 {
	return (((c.a[i]*hs + c.b[i]) & fullMask63) >> c.shift) & c.bitMask
}

// stringHash is FNV-1a reduced to 63 bits.
func stringHash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64() & fullMask63
}

// Agreement counts the functions on which two signatures agree.
func (c *MinHashCodec) Agreement(a, b Signature) (int, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("%w: %d vs %d", ErrSignatureLength, len(a), len(b))
	}
	n := 0
	for i := range a {
		if a[i] == b[i] {
			n++
		}
	}
	return n, nil
}

// Jaccard estimates the Jaccard similarity of the two gram sets.
func (c *MinHashCodec) Jaccard(a, b Signature) (float64, error) {
	n, err := c.Agreement(a, b)
	if err != nil {
		return 0, err
	}
	return float64(n) / float64(len(a)), nil
}

// Similarity is the Jaccard estimate of the two signatures.
func (c *MinHashCodec) Similarity(a, b Signature) (float64, error) {
	return c.Jaccard(a, b)
}

// NumFunctions returns the signature length.
func (c *MinHashCodec) NumFunctions() int { return c.numFunctions }

// NumBits returns the significant bits per code.
func (c *MinHashCodec) NumBits() int { return c.numBits }

// NGram returns the tokenization mode.
func (c *MinHashCodec) NGram() NGram { return c.n }

// Kind returns StringKind.
func (c *MinHashCodec) Kind() FeatureKind { return StringKind }

// Method returns MinHashMethod.
func (c *MinHashCodec) Method() CodecMethod { return MinHashMethod }
