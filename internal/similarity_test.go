package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitleSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "The Hobbit", "The Hobbit", 1.0},
		{"identical after normalization", "The Hobbit!", "the   hobbit", 1.0},
		{"both empty", "", "", 1.0},
		{"one empty", "The Hobbit", "", 0.0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, TitleSimilarity(c.a, c.b))
		})
	}

	t.Run("near match scores high but not 1.0", func(t *testing.T) {
		got := TitleSimilarity("The Hobbit", "The Hobit")
		assert.Greater(t, got, 0.8)
		assert.Less(t, got, 1.0)
	})

	t.Run("unrelated titles score low", func(t *testing.T) {
		got := TitleSimilarity("The Hobbit", "Moby Dick")
		assert.Less(t, got, 0.5)
	})
}

func TestNormalizeAuthorName(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"punctuation stripped", "J.R.R. Tolkien", "j r r tolkien"},
		{"extra whitespace collapsed", "  Ursula   K. Le Guin  ", "ursula k le guin"},
		{"already normalized", "george orwell", "george orwell"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, NormalizeAuthorName(c.in))
		})
	}
}
