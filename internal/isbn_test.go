package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeISBN(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"hyphenated 13", "978-0-306-40615-7", "9780306406157"},
		{"spaced 10", "0 306 40615 2", "0306406152"},
		{"lowercase x", "080442957x", "080442957X"},
		{"already clean", "9791234567896", "9791234567896"},
		{"junk characters stripped", "ISBN: 978-0-306-40615-7!", "9780306406157"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, NormalizeISBN(c.in))
		})
	}
}

func TestValidISBN(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"valid isbn10", "0306406152", true},
		{"valid isbn10 with terminal X", "080442957X", true},
		{"valid isbn13 978 prefix", "9780306406157", true},
		{"valid isbn13 979 prefix", "9791234567896", true},
		{"isbn13 bad checksum", "9780306406158", false},
		{"isbn10 bad checksum", "0306406153", false},
		{"isbn13 wrong prefix", "9770306406157", false},
		{"X not in last position", "0X06406152", false},
		{"too short", "12345", false},
		{"too long", "97803064061578", false},
		{"empty", "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, ValidISBN(c.in))
		})
	}
}

func TestIsbnFormat(t *testing.T) {
	assert.Equal(t, "isbn10", IsbnFormat("0306406152"))
	assert.Equal(t, "isbn13", IsbnFormat("9780306406157"))
	assert.Equal(t, "", IsbnFormat("12345"))
}
