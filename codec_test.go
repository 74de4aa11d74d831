package lsh

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func encodeFixture(t *testing.T) (*MemoryFeatureStore, map[string]Codec) {
	t.Helper()
	store := profileStore(t, FullPrecision)
	store.Add("alice", map[string]Value{
		"name":      StringValue("Alice Smith"),
		"embedding": VectorValue([]float32{1, 0, 0}),
	})
	store.Add("bob", map[string]Value{"name": StringValue("Bob Jones")})
	store.Add("al", map[string]Value{"name": StringValue("Al")})

	mh, err := NewMinHashCodec(trigramConfig())
	if err != nil {
		t.Fatalf("NewMinHashCodec() error: %v", err)
	}
	rp, err := NewRandomProjectionCodec(DefaultRandomProjectionConfig(3))
	if err != nil {
		t.Fatalf("NewRandomProjectionCodec() error: %v", err)
	}
	return store, map[string]Codec{"name": mh, "embedding": rp}
}

func TestEncodeAll(t *testing.T) {
	store, codecs := encodeFixture(t)

	var buf bytes.Buffer
	idx, err := EncodeAll(context.Background(), store, codecs, EncodeOptions{
		Workers: 2,
		Logger:  NewJSONLogger(&buf, slog.LevelInfo),
	})
	if err != nil {
		t.Fatalf("EncodeAll() error: %v", err)
	}

	if idx.Len() != 3 {
		t.Errorf("Expected 3 records, got %d", idx.Len())
	}
	if idx.FlatState("name") != Unbuilt {
		t.Error("Expected no band index to be built")
	}

	sig, ok := idx.Signature("name", 0)
	want := codecs["name"].(*MinHashCodec).EncodeString("Alice Smith")
	if !ok || !sig.Equal(want) {
		t.Errorf("Signature(name, 0) = %v, want %v", sig, want)
	}
	if _, ok := idx.Signature("embedding", 1); ok {
		t.Error("Expected no embedding signature for a record without one")
	}
	if _, ok := idx.Signature("name", 2); ok {
		t.Error("Expected no signature for a string shorter than the n-gram")
	}
	if idx.NumFunctions("embedding") != codecs["embedding"].NumFunctions() {
		t.Errorf("NumFunctions(embedding) = %d", idx.NumFunctions("embedding"))
	}

	if !strings.Contains(buf.String(), `"component":"encoder"`) {
		t.Errorf("Expected an encoder log record, got %q", buf.String())
	}
}

func TestEncodeAllErrors(t *testing.T) {
	store, codecs := encodeFixture(t)

	if _, err := EncodeAll(context.Background(), store, map[string]Codec{"name": codecs["name"]}, EncodeOptions{}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("Expected a configuration error for a missing codec, got %v", err)
	}
	wrong := map[string]Codec{"name": codecs["name"], "other": codecs["embedding"]}
	if _, err := EncodeAll(context.Background(), store, wrong, EncodeOptions{}); !errors.Is(err, ErrUnknownFeature) {
		t.Errorf("Expected ErrUnknownFeature, got %v", err)
	}

	swapped := map[string]Codec{"name": codecs["embedding"], "embedding": codecs["name"]}
	if _, err := EncodeAll(context.Background(), store, swapped, EncodeOptions{}); !errors.Is(err, ErrValueKind) {
		t.Errorf("Expected ErrValueKind, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := EncodeAll(ctx, store, codecs, EncodeOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestNewRandDeterministic(t *testing.T) {
	a, b := newRand(5), newRand(5)
	for i := 0; i < 10; i++ {
		if a.Uint64() != b.Uint64() {
			t.Fatal("Expected equal seeds to give equal sequences")
		}
	}
	if newRand(5).Uint64() == newRand(6).Uint64() {
		t.Error("Expected different seeds to give different sequences")
	}
}

func BenchmarkMinHashEncode(b *testing.B) {
	c, _ := NewMinHashCodec(DefaultMinHashConfig())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.EncodeString("Alexander Hamilton")
	}
}

func BenchmarkRandomProjectionEncode(b *testing.B) {
	c, _ := NewRandomProjectionCodec(DefaultRandomProjectionConfig(128))
	v := make([]float32, 128)
	for i := range v {
		v[i] = float32(i%7) - 3
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.EncodeVector(v)
	}
}
