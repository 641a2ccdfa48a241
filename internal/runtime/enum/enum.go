// Package enum matches operator-supplied strings against closed sets of names.
package enum

import "strings"

// Parse returns the value named s. An exact match wins; otherwise the first
// value equal to s after Normalize is returned.
func Parse[E ~string](s string, values ...E) (E, bool) {
	for _, v := range values {
		if string(v) == s {
			return v, true
		}
	}
	want := Normalize(s)
	if want == "" {
		var zero E
		return zero, false
	}
	for _, v := range values {
		if Normalize(string(v)) == want {
			return v, true
		}
	}
	var zero E
	return zero, false
}

// Normalize lowercases s and drops '-', '_' and spaces.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch r {
		case '-', '_', ' ', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
