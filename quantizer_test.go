package lsh

import (
	"errors"
	"math"
	"testing"
)

// ============================================================================
// FACTORY FUNCTION TESTS
// ============================================================================

func TestNewQuantizer(t *testing.T) {
	tests := []struct {
		name         string
		qType        QuantizerType
		expectError  bool
		expectedType QuantizerType
	}{
		{
			name:         "create full precision quantizer",
			qType:        FullPrecision,
			expectedType: FullPrecision,
		},
		{
			name:         "create half precision quantizer",
			qType:        HalfPrecision,
			expectedType: HalfPrecision,
		},
		{
			name:         "empty type selects full precision",
			qType:        "",
			expectedType: FullPrecision,
		},
		{
			name:        "invalid quantizer type",
			qType:       QuantizerType("int8"),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := NewQuantizer(tt.qType)

			if tt.expectError {
				if !errors.Is(err, ErrUnknownPrecision) {
					t.Errorf("expected ErrUnknownPrecision, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if q.Type() != tt.expectedType {
				t.Errorf("expected type %s, got %s", tt.expectedType, q.Type())
			}
		})
	}
}

// ============================================================================
// FULL PRECISION QUANTIZER TESTS
// ============================================================================

func TestFullPrecisionQuantizer_QuantizeDequantize(t *testing.T) {
	q := FullPrecisionQuantizer{}
	original := []float32{1.5, -2.25, 0, 3.125}

	stored := q.Quantize(original)
	original[0] = 99

	got, err := q.Dequantize(stored)
	if err != nil {
		t.Fatalf("Dequantize() error: %v", err)
	}
	want := []float32{1.5, -2.25, 0, 3.125}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestFullPrecisionQuantizer_InvalidType(t *testing.T) {
	q := FullPrecisionQuantizer{}
	if _, err := q.Dequantize([]uint16{1, 2}); err == nil {
		t.Error("expected error for wrong stored type")
	}
}

// ============================================================================
// HALF PRECISION QUANTIZER TESTS
// ============================================================================

func TestHalfPrecisionQuantizer_QuantizeDequantize(t *testing.T) {
	q := HalfPrecisionQuantizer{}
	original := []float32{1.0, -0.5, 0.333, 100.25, 0}

	stored := q.Quantize(original)
	if _, ok := stored.([]uint16); !ok {
		t.Fatalf("expected []uint16, got %T", stored)
	}

	got, err := q.Dequantize(stored)
	if err != nil {
		t.Fatalf("Dequantize() error: %v", err)
	}
	for i := range original {
		tolerance := math.Max(math.Abs(float64(original[i]))*1e-3, 1e-4)
		if math.Abs(float64(got[i]-original[i])) > tolerance {
			t.Errorf("index %d: expected ~%v, got %v", i, original[i], got[i])
		}
	}
}

func TestHalfPrecisionQuantizer_InvalidType(t *testing.T) {
	q := HalfPrecisionQuantizer{}
	if _, err := q.Dequantize([]float32{1}); err == nil {
		t.Error("expected error for wrong stored type")
	}
}

func TestHalfPrecisionQuantizer_PreservesSigns(t *testing.T) {
	q := HalfPrecisionQuantizer{}
	original := []float32{0.001, -0.001, 65000, -65000}

	got, err := q.Dequantize(q.Quantize(original))
	if err != nil {
		t.Fatalf("Dequantize() error: %v", err)
	}
	for i := range original {
		if (got[i] > 0) != (original[i] > 0) {
			t.Errorf("index %d: sign flipped from %v to %v", i, original[i], got[i])
		}
	}
}

func TestQuantizers_EmptyVector(t *testing.T) {
	for _, q := range []Quantizer{FullPrecisionQuantizer{}, HalfPrecisionQuantizer{}} {
		got, err := q.Dequantize(q.Quantize([]float32{}))
		if err != nil {
			t.Fatalf("%s: Dequantize() error: %v", q.Type(), err)
		}
		if len(got) != 0 {
			t.Errorf("%s: expected empty vector, got %v", q.Type(), got)
		}
	}
}
