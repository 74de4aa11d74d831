package lsh

import (
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer rewrites a string into a canonical form before it is hashed.
type Normalizer func(string) string

// FoldASCII transliterates s to plain ASCII: compatibility decomposition
// (NFKD), removal of combining marks, then removal of every rune that still
// falls outside ASCII. "Café Müller" becomes "Cafe Muller".
func FoldASCII(s string) string {
	t := transform.Chain(
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeNFKC applies Unicode normalization (NFKC) and converts to lowercase.
func NormalizeNFKC(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

// charNGrams returns the overlapping n-rune substrings of s. Strings shorter
// than n yield no grams.
func charNGrams(s string, n int) []string {
	rs := []rune(s)
	if len(rs) < n {
		return nil
	}
	grams := make([]string, 0, len(rs)-n+1)
	for i := 0; i+n <= len(rs); i++ {
		grams = append(grams, string(rs[i:i+n]))
	}
	return grams
}

// whitespaceTokens splits s on runs of white space.
func whitespaceTokens(s string) []string {
	return strings.Fields(s)
}

// wordTokens splits text into words using UAX#29 word segmentation. Segments
// without a letter or digit (spaces, punctuation) are dropped.
func wordTokens(s string) []string {
	toks := words.FromString(s)
	var tokens []string
	for toks.Next() {
		tok := toks.Value()
		if strings.IndexFunc(tok, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		}) >= 0 {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}
