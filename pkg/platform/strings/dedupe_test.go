package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "trims whitespace",
			input:    []string{"  +7 495 1 ", "+7 495 2  "},
			expected: []string{"+7 495 1", "+7 495 2"},
		},
		{
			name:     "removes duplicates preserving order",
			input:    []string{"b", "a", "b", "c", "a"},
			expected: []string{"b", "a", "c"},
		},
		{
			name:     "preserves case",
			input:    []string{"Foo", "foo"},
			expected: []string{"Foo", "foo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestNormalizeKeys(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "case and spacing collapse",
			input:    []string{"  Ivanov   Ivan ", "ivanov ivan", "IVANOV\tIVAN"},
			expected: []string{"ivanov ivan"},
		},
		{
			name:     "quotes and yo folding",
			input:    []string{"Партия «Зелёные»", `партия "зеленые"`},
			expected: []string{"партия зеленые"},
		},
		{
			name:     "drops empty after normalization",
			input:    []string{"  ", `""`, "a"},
			expected: []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeKeys(tt.input))
		})
	}
}

func TestCollapseSpaces(t *testing.T) {
	assert.Equal(t, "a b c", CollapseSpaces("  a \n b\t\tc "))
	assert.Equal(t, "", CollapseSpaces(" \t "))
}
