package index

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeKey folds case, applies NFKC, trims and collapses internal
// whitespace, so "  MELISSA   Wang" and "melissa wang" share a key.
func NormalizeKey(s string) string {
	// Casers are stateful and must not be shared across goroutines.
	s = cases.Fold().String(norm.NFKC.String(s))
	return strings.Join(strings.Fields(s), " ")
}

// IdentifierKey keys identifier columns: trimmed, otherwise verbatim
func IdentifierKey(s string) string {
	return strings.TrimSpace(s)
}

// Tokens splits a value into its distinct normalized words, in first-seen order
func Tokens(s string) []string {
	words := strings.FieldsFunc(NormalizeKey(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := make(map[string]struct{}, len(words))
	out := words[:0]
	for _, w := range words {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
