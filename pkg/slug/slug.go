package slug

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

	// Letters that canonical decomposition leaves intact.
	ligatures = strings.NewReplacer(
		"œ", "oe", "Œ", "OE",
		"æ", "ae", "Æ", "AE",
		"ß", "ss",
		"ø", "o", "Ø", "O",
		"ł", "l", "Ł", "L",
		"đ", "d", "Đ", "D",
		"ı", "i",
	)
)

// Fold strips diacritics from s: "Crème Brûlée" becomes "Creme Brulee".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, ligatures.Replace(s))
	if err != nil {
		return s
	}
	return folded
}

// Generate creates a URL-safe slug: accents folded, lowercased, and every
// run of non-alphanumerics collapsed into a single hyphen.
//
//	"Savon Écologique à l'Olive" → "savon-ecologique-a-l-olive"
//	"  Eco   Soap!! "            → "eco-soap"
//
// The result is empty when name has no letters or digits.
func Generate(name string) string {
	s := strings.ToLower(Fold(strings.TrimSpace(name)))
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// WithSuffix returns base with a numeric disambiguator: WithSuffix("eco-soap", 2)
// is "eco-soap-2". n < 2 returns base unchanged.
func WithSuffix(base string, n int) string {
	if n < 2 {
		return base
	}
	return base + "-" + strconv.Itoa(n)
}
