package events

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Similarity computes a ratio-based string similarity in [0,1] over the full
// strings: twice the number of characters in matching blocks divided by the
// total length of both strings. Identical strings score 1, disjoint ones 0.
func Similarity(a, b string) float64 {
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}
