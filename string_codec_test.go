package lsh

import (
	"errors"
	"reflect"
	"testing"
)

func trigramConfig() MinHashConfig {
	cfg := DefaultMinHashConfig()
	cfg.N = 3
	return cfg
}

func TestMinHashCodecIdenticalStrings(t *testing.T) {
	c1, err := NewMinHashCodec(trigramConfig())
	if err != nil {
		t.Fatalf("NewMinHashCodec() error: %v", err)
	}
	c2, _ := NewMinHashCodec(trigramConfig())

	a := c1.EncodeString("Alexander Hamilton")
	b := c2.EncodeString("Alexander Hamilton")
	if a.Len() != 20 {
		t.Fatalf("Expected 20 codes, got %d", a.Len())
	}
	if !a.Equal(b) {
		t.Errorf("Expected identical signatures, got %v and %v", a, b)
	}
	for i, code := range a {
		if code>>32 != 0 {
			t.Errorf("code %d exceeds 32 bits: %d", i, code)
		}
	}
}

func TestMinHashCodecOneCharacterDifference(t *testing.T) {
	c, _ := NewMinHashCodec(trigramConfig())

	a := c.EncodeString("the quick brown fox jumps over the lazy dog")
	b := c.EncodeString("the quick brown fox jumps over the lazy dot")

	agree, err := c.Agreement(a, b)
	if err != nil {
		t.Fatalf("Agreement() error: %v", err)
	}
	if agree <= c.NumFunctions()/2 {
		t.Errorf("Expected a majority of %d functions to agree, got %d", c.NumFunctions(), agree)
	}
	if j, _ := c.Jaccard(a, b); j != float64(agree)/20 {
		t.Errorf("Jaccard() = %v, want %v", j, float64(agree)/20)
	}
}

func TestMinHashCodecCaseAndNormalization(t *testing.T) {
	c, _ := NewMinHashCodec(trigramConfig())
	if !c.EncodeString("CAFÉ MÜLLER").Equal(c.EncodeString("cafe muller")) {
		t.Error("Expected lower-casing and ASCII folding to erase case and accents")
	}

	cfg := trigramConfig()
	cfg.LowerCase = false
	cfg.Normalize = false
	raw, _ := NewMinHashCodec(cfg)
	if raw.EncodeString("CAFE").Equal(raw.EncodeString("cafe")) {
		t.Error("Expected a case-sensitive codec to tell CAFE from cafe")
	}

	cfg.Normalize = true
	cfg.Normalizer = NormalizeNFKC
	nfkc, _ := NewMinHashCodec(cfg)
	if !nfkc.EncodeString("ＡＢＣＤ").Equal(nfkc.EncodeString("abcd")) {
		t.Error("Expected the custom normalizer to be applied")
	}
}

func TestMinHashCodecShortString(t *testing.T) {
	c, _ := NewMinHashCodec(DefaultMinHashConfig())
	if sig := c.EncodeString("abcd"); sig != nil {
		t.Errorf("Expected nil signature for a string shorter than n, got %v", sig)
	}
	if sig, err := c.Encode(StringValue("")); err != nil || sig != nil {
		t.Errorf("Expected nil signature for empty string, got %v, %v", sig, err)
	}
}

func TestMinHashCodecTokenModes(t *testing.T) {
	cfg := DefaultMinHashConfig()
	cfg.N = TokenNGram
	tok, _ := NewMinHashCodec(cfg)
	if got := tok.Grams("Hello,  World"); !reflect.DeepEqual(got, []string{"hello,", "world"}) {
		t.Errorf("token grams = %q", got)
	}
	// Token sets ignore order.
	if !tok.EncodeString("ada lovelace").Equal(tok.EncodeString("lovelace ada")) {
		t.Error("Expected token signatures to ignore token order")
	}

	cfg.N = WordNGram
	word, _ := NewMinHashCodec(cfg)
	if got := word.Grams("Hello, World!"); !reflect.DeepEqual(got, []string{"hello", "world"}) {
		t.Errorf("word grams = %q", got)
	}
	if word.NGram() != WordNGram {
		t.Errorf("NGram() = %v", word.NGram())
	}
}

func TestMinHashCodecConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MinHashConfig)
		want   error
	}{
		{"too many bits", func(c *MinHashConfig) { c.NumBits = 64 }, ErrTooManyBits},
		{"zero bits", func(c *MinHashConfig) { c.NumBits = 0 }, ErrInvalidNumBits},
		{"zero functions", func(c *MinHashConfig) { c.NumFunctions = 0 }, ErrInvalidNumFunctions},
		{"zero ngram", func(c *MinHashConfig) { c.N = 0 }, ErrInvalidNGram},
		{"bits checked before functions", func(c *MinHashConfig) {
			c.NumBits = 100
			c.NumFunctions = 0
		}, ErrTooManyBits},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultMinHashConfig()
			tt.mutate(&cfg)
			if _, err := NewMinHashCodec(cfg); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestMinHashCodecEncodeWrongKind(t *testing.T) {
	c, _ := NewMinHashCodec(DefaultMinHashConfig())
	if _, err := c.Encode(VectorValue([]float32{1})); !errors.Is(err, ErrValueKind) {
		t.Errorf("Expected ErrValueKind, got %v", err)
	}
	if _, err := c.Agreement(Signature{1}, Signature{1, 2}); !errors.Is(err, ErrSignatureLength) {
		t.Errorf("Expected ErrSignatureLength, got %v", err)
	}
}

func TestParseNGram(t *testing.T) {
	tests := []struct {
		in      string
		want    NGram
		wantErr bool
	}{
		{"3", 3, false},
		{" 5 ", 5, false},
		{"token", TokenNGram, false},
		{"word", WordNGram, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"chars", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNGram(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidNGram) {
					t.Fatalf("Expected ErrInvalidNGram, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ParseNGram(%q) = %v, %v", tt.in, got, err)
			}
			text, _ := got.MarshalText()
			var back NGram
			if err := back.UnmarshalText(text); err != nil || back != got {
				t.Errorf("text round trip of %v gave %v, %v", got, back, err)
			}
		})
	}
}

func TestTextHelpers(t *testing.T) {
	if got := FoldASCII("Café Müller"); got != "Cafe Muller" {
		t.Errorf("FoldASCII() = %q", got)
	}
	if got := charNGrams("abcd", 2); !reflect.DeepEqual(got, []string{"ab", "bc", "cd"}) {
		t.Errorf("charNGrams() = %q", got)
	}
	if got := charNGrams("héé", 2); !reflect.DeepEqual(got, []string{"hé", "éé"}) {
		t.Errorf("charNGrams() should split on runes, got %q", got)
	}
	if got := charNGrams("ab", 3); got != nil {
		t.Errorf("Expected no grams, got %q", got)
	}
	if got := NormalizeNFKC("ＡＢＣ"); got != "abc" {
		t.Errorf("NormalizeNFKC() = %q", got)
	}
}
