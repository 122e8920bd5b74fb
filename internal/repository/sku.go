package repository

import (
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// zeroWidth matches U+200B..U+200D and U+FEFF, which barcode scanners and
// pasted text sometimes carry.
func zeroWidth(r rune) bool {
	return (r >= '\u200B' && r <= '\u200D') || r == '\uFEFF'
}

// NormalizeSKU strips zero-width characters and surrounding whitespace and
// composes the result to NFC. Case is preserved; lookups compare
// case-insensitively.
func NormalizeSKU(sku string) string {
	t := transform.Chain(runes.Remove(runes.Predicate(zeroWidth)), norm.NFC)
	out, _, err := transform.String(t, sku)
	if err != nil {
		out = strings.Map(func(r rune) rune {
			if zeroWidth(r) {
				return -1
			}
			return r
		}, sku)
	}
	return strings.TrimSpace(out)
}
