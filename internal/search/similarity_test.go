package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{"identical", "hello", "hello", 1.0},
		{"both empty", "", "", 1.0},
		{"left empty", "", "abc", 0.0},
		{"right empty", "abc", "", 0.0},
		{"kitten sitting", "kitten", "sitting", 1 - 3.0/7.0},
		{"one substitution", "abcd", "abce", 0.75},
		{"cjk substitution", "办公时间", "办公时刻", 0.75},
		{"cjk disjoint", "办公时间", "联系电话", 0.0},
		{"cjk insertion", "电话", "联系电话", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Similarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"kitten", "sitting"},
		{"办公时间", "上班时间是几点"},
		{"flaw", "lawn"},
		{"", "x"},
		{"Straße", "strasse"},
	}

	for _, p := range pairs {
		assert.Equal(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]), "%q vs %q", p[0], p[1])
	}
}

func TestSimilarity_CountsRunesNotBytes(t *testing.T) {
	// "时" is three bytes; a byte-level distance would be 3, not 1.
	assert.InDelta(t, 0.5, Similarity("时间", "时刻"), 1e-9)
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein([]rune("abc"), []rune("abc")))
	assert.Equal(t, 3, levenshtein([]rune(""), []rune("abc")))
	assert.Equal(t, 3, levenshtein([]rune("abc"), []rune("")))
	assert.Equal(t, 2, levenshtein([]rune("flaw"), []rune("lawn")))
}
