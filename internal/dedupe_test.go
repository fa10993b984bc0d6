package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyBackfillCandidate(t *testing.T) {
	existing := []ExistingCatalogEntry{
		{ISBN: "9780306406157", Title: "The Art of Computer Programming",
			RelatedISBNs: map[string]string{"paperback": "0306406152"}},
	}

	cases := []struct {
		name string
		c    BackfillCandidate
		want DedupeClassification
	}{
		{
			name: "exact isbn match",
			c:    BackfillCandidate{Title: "The Art of Computer Programming", ISBN: "9780306406157"},
			want: ClassExactDup,
		},
		{
			name: "isbn matches a related edition",
			c:    BackfillCandidate{Title: "The Art of Computer Programming", ISBN: "0306406152"},
			want: ClassRelatedDup,
		},
		{
			name: "title close enough to count as fuzzy",
			c:    BackfillCandidate{Title: "The Art of Computer Programing", ISBN: "9999999999999"},
			want: ClassFuzzyDup,
		},
		{
			name: "unrelated title and isbn is new",
			c:    BackfillCandidate{Title: "Moby Dick", ISBN: "9999999999999"},
			want: ClassNew,
		},
		{
			name: "no isbn at all still classifies on title",
			c:    BackfillCandidate{Title: "The Art of Computer Programming"},
			want: ClassFuzzyDup,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, ClassifyBackfillCandidate(c.c, existing))
		})
	}
}

func TestClassifyBackfillCandidateNoExistingEntries(t *testing.T) {
	got := ClassifyBackfillCandidate(BackfillCandidate{Title: "Anything", ISBN: "123"}, nil)
	assert.Equal(t, ClassNew, got)
}
