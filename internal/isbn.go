package internal

import "strings"

// NormalizeISBN strips hyphens/spaces and uppercases a trailing 'x', per
// spec.md §3's "10 or 13 normalized to digits... 'X' allowed in last
// position of ISBN-10."
func NormalizeISBN(raw string) string {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == 'X' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidISBN reports whether isbn (already normalized) is a checksum-valid
// ISBN-10 or ISBN-13, per spec.md §8's boundary behaviors: 978/979 13-digit
// forms accepted, ISBN-10 with terminal X accepted, other lengths/chars
// rejected.
func ValidISBN(isbn string) bool {
	switch len(isbn) {
	case 10:
		return validISBN10(isbn)
	case 13:
		return validISBN13(isbn)
	default:
		return false
	}
}

func validISBN10(isbn string) bool {
	sum := 0
	for i := 0; i < 10; i++ {
		c := isbn[i]
		var v int
		switch {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c == 'X' && i == 9:
			v = 10
		default:
			return false
		}
		sum += v * (10 - i)
	}
	return sum%11 == 0
}

func validISBN13(isbn string) bool {
	if isbn[0:3] != "978" && isbn[0:3] != "979" {
		return false
	}
	sum := 0
	for i := 0; i < 13; i++ {
		c := isbn[i]
		if c < '0' || c > '9' {
			return false
		}
		v := int(c - '0')
		if i%2 == 0 {
			sum += v
		} else {
			sum += v * 3
		}
	}
	return sum%10 == 0
}

// IsbnFormat reports "isbn10" or "isbn13" for a validated isbn, or "" if
// the isbn is neither length.
func IsbnFormat(isbn string) string {
	switch len(isbn) {
	case 10:
		return "isbn10"
	case 13:
		return "isbn13"
	default:
		return ""
	}
}
