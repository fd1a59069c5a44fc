// Package strings provides string normalization utilities for registry keys
// and free-text fields scraped from result pages.
package strings

import (
	"strings"
	"unicode"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "})
//	// Returns: []string{"foo", "bar"}
func DedupeAndTrim(values []string) []string {
	return dedupe(values, strings.TrimSpace)
}

// NormalizeKeys is like DedupeAndTrim but applies NormalizeKey to each
// element, so keys differing only in case or spacing collapse into one.
//
// Example:
//
//	NormalizeKeys([]string{"  Ivanov  Ivan ", "ivanov ivan", ""})
//	// Returns: []string{"ivanov ivan"}
func NormalizeKeys(values []string) []string {
	return dedupe(values, NormalizeKey)
}

func dedupe(values []string, norm func(string) string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = norm(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// NormalizeKey folds case and spacing, drops quote marks and maps ё to е.
func NormalizeKey(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case 'ё':
			return 'е'
		case 'Ё':
			return 'Е'
		case '"', '«', '»', '“', '”', '\'':
			return -1
		}
		return r
	}, s)
	return strings.ToLower(CollapseSpaces(s))
}

// CollapseSpaces trims s and replaces whitespace runs with one space.
func CollapseSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
