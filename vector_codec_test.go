package lsh

import (
	"errors"
	"math"
	"testing"
)

func newTestProjectionCodec(t *testing.T, dim int) *RandomProjectionCodec {
	t.Helper()
	c, err := NewRandomProjectionCodec(DefaultRandomProjectionConfig(dim))
	if err != nil {
		t.Fatalf("NewRandomProjectionCodec() error: %v", err)
	}
	return c
}

func TestRandomProjectionCodecConfigErrors(t *testing.T) {
	base := DefaultRandomProjectionConfig(3)
	tests := []struct {
		name   string
		mutate func(*RandomProjectionConfig)
		want   error
	}{
		{"unknown method", func(c *RandomProjectionConfig) { c.Method = "simhash" }, ErrUnknownMethod},
		{"zero functions", func(c *RandomProjectionConfig) { c.NumFunctions = 0 }, ErrInvalidNumFunctions},
		{"zero bits", func(c *RandomProjectionConfig) { c.NumBits = 0 }, ErrInvalidNumBits},
		{"too many bits", func(c *RandomProjectionConfig) { c.NumBits = 65 }, ErrTooManyBits},
		{"zero dimension", func(c *RandomProjectionConfig) { c.Dimension = 0 }, ErrInvalidDimension},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := NewRandomProjectionCodec(cfg)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("Expected a configuration error, got %v", err)
			}
		})
	}
}

func TestRandomProjectionCodecEncode(t *testing.T) {
	c := newTestProjectionCodec(t, 3)

	sig, err := c.EncodeVector([]float32{0.3, -1.2, 2})
	if err != nil {
		t.Fatalf("EncodeVector() error: %v", err)
	}
	if sig.Len() != 6 {
		t.Fatalf("Expected 6 codes, got %d", sig.Len())
	}
	for i, code := range sig {
		if code>>16 != 0 {
			t.Errorf("code %d uses more than 16 bits: %b", i, code)
		}
	}

	// Equal seeds give equal codecs.
	other := newTestProjectionCodec(t, 3)
	again, _ := other.EncodeVector([]float32{0.3, -1.2, 2})
	if !sig.Equal(again) {
		t.Errorf("Expected deterministic signatures, got %v and %v", sig, again)
	}

	cfg := DefaultRandomProjectionConfig(3)
	cfg.Seed = 26
	reseeded, _ := NewRandomProjectionCodec(cfg)
	if s, _ := reseeded.EncodeVector([]float32{0.3, -1.2, 2}); s.Equal(sig) {
		t.Error("Expected a different seed to draw different hyperplanes")
	}
}

func TestRandomProjectionCodecEncodeErrors(t *testing.T) {
	c := newTestProjectionCodec(t, 3)

	_, err := c.EncodeVector([]float32{1, 2})
	var dimErr *DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Fatalf("Expected DimensionMismatchError, got %v", err)
	}
	if dimErr.Expected != 3 || dimErr.Actual != 2 {
		t.Errorf("Unexpected mismatch detail: %+v", dimErr)
	}

	if _, err := c.Encode(StringValue("abc")); !errors.Is(err, ErrValueKind) {
		t.Errorf("Expected ErrValueKind, got %v", err)
	}
}

func TestRandomProjectionCodecSimilarity(t *testing.T) {
	c := newTestProjectionCodec(t, 2)

	a, _ := c.EncodeVector([]float32{1, 0})
	near, _ := c.EncodeVector([]float32{0.99, 0.1})
	opposite, _ := c.EncodeVector([]float32{-1, 0})

	self, err := c.Hamming(a, a)
	if err != nil {
		t.Fatalf("Hamming() error: %v", err)
	}
	if self != 16 {
		t.Errorf("Expected self Hamming agreement of 16 bits, got %v", self)
	}
	if cos, _ := c.ApproxCosine(a, a); math.Abs(cos-1) > 1e-9 {
		t.Errorf("Expected self cosine 1, got %v", cos)
	}

	if sim, _ := c.Similarity(a, near); sim < 0.8 {
		t.Errorf("Expected close vectors to agree on most bits, got %v", sim)
	}
	if nh, _ := c.NormalizedHamming(a, opposite); nh != 0 {
		t.Errorf("Expected opposite vectors to disagree on every bit, got %v", nh)
	}
	if angle, _ := c.ApproxAngle(a, opposite); math.Abs(angle-math.Pi) > 1e-9 {
		t.Errorf("Expected angle pi for opposite vectors, got %v", angle)
	}

	if _, err := c.Hamming(a, a[:3]); !errors.Is(err, ErrSignatureLength) {
		t.Errorf("Expected ErrSignatureLength, got %v", err)
	}
}

func TestRandomProjectionCodecAccessors(t *testing.T) {
	c := newTestProjectionCodec(t, 5)
	if c.NumFunctions() != 6 || c.NumBits() != 16 || c.Dimensions() != 5 {
		t.Errorf("Unexpected sizes: L=%d k=%d d=%d", c.NumFunctions(), c.NumBits(), c.Dimensions())
	}
	if c.Kind() != VectorKind || c.Method() != RandomProjectionMethod {
		t.Errorf("Unexpected kind/method: %s %s", c.Kind(), c.Method())
	}
}
