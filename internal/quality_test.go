package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEditionCompleteness(t *testing.T) {
	assert.Equal(t, 0, EditionCompleteness(Edition{}))
	full := Edition{Title: "t", Publisher: "p", PublicationDate: "2020", PageCount: 100,
		Language: "en", Format: "hardcover"}
	full.Covers.Large, full.Covers.Medium, full.Covers.Small = "l", "m", "s"
	assert.Equal(t, 50, EditionCompleteness(full))
}

func TestWorkCompleteness(t *testing.T) {
	assert.Equal(t, 0, WorkCompleteness(Work{}))
	full := Work{Title: "t", Description: "This is a sufficiently long description for testing purposes only",
		SubjectTags: []string{"fantasy"}, FirstPubYear: 1954}
	assert.Equal(t, 40, WorkCompleteness(full))
}

func TestAuthorCompleteness(t *testing.T) {
	assert.Equal(t, 0, AuthorCompleteness(Author{}))
	full := Author{Bio: "bio", Nationality: "British", BirthDate: "1892", DeathDate: "1973",
		Gender: "male", Occupations: []string{"writer"}, Movements: []string{"inkling"},
		Awards: []string{"award"}, Places: []string{"Oxford"}}
	assert.Equal(t, 55, AuthorCompleteness(full))
}

func TestExternalIDBonus(t *testing.T) {
	assert.Equal(t, 0, ExternalIDBonus(nil))
	assert.Equal(t, 10, ExternalIDBonus(map[string]string{"viaf": "1", "wikidata": "2"}))
}

func TestQualityScoreCapsAt100(t *testing.T) {
	assert.Equal(t, 100, QualityScore(90, BonusUserCorrection))
	assert.Equal(t, 0, QualityScore(0, 0))
}

func TestProviderBonus(t *testing.T) {
	assert.Equal(t, BonusUserCorrection, ProviderBonus("user-correction"))
	assert.Equal(t, BonusPaidProvider, ProviderBonus("paid-provider"))
	assert.Equal(t, BonusMainstreamFree, ProviderBonus("mainstream-free"))
	assert.Equal(t, BonusCommunityFree, ProviderBonus("community-free"))
	assert.Equal(t, 0, ProviderBonus("unknown"))
}

func TestDecideWriteBack(t *testing.T) {
	existing := Edition{Title: "Old Title"}
	incoming := Edition{Title: "New Title", Publisher: "New Publisher"}

	t.Run("incoming exactly existing+10 does not trigger full write", func(t *testing.T) {
		decision, merged := decideWriteBack(50, 60, existing, incoming)
		assert.Equal(t, writeFieldsOnly, decision)
		assert.Equal(t, "Old Title", merged.Title)
		assert.Equal(t, "New Publisher", merged.Publisher)
	})

	t.Run("incoming more than existing+10 triggers full write", func(t *testing.T) {
		decision, merged := decideWriteBack(50, 61, existing, incoming)
		assert.Equal(t, writeFull, decision)
		assert.Equal(t, incoming, merged)
	})

	t.Run("no empty fields to fill is a skip", func(t *testing.T) {
		decision, _ := decideWriteBack(50, 50, existing, Edition{Title: "Old Title"})
		assert.Equal(t, writeSkip, decision)
	})
}

func TestDecideWriteBackWork(t *testing.T) {
	existing := Work{Title: "Old Title"}
	incoming := Work{Title: "New Title", Description: "a new description"}

	t.Run("boundary at existing+10 fills fields only", func(t *testing.T) {
		decision, merged := decideWriteBackWork(40, 50, existing, incoming)
		assert.Equal(t, writeFieldsOnly, decision)
		assert.Equal(t, "Old Title", merged.Title)
		assert.Equal(t, "a new description", merged.Description)
	})

	t.Run("more than existing+10 overwrites fully", func(t *testing.T) {
		decision, merged := decideWriteBackWork(40, 51, existing, incoming)
		assert.Equal(t, writeFull, decision)
		assert.Equal(t, incoming, merged)
	})
}

func TestDecideWriteBackAuthor(t *testing.T) {
	existing := Author{Name: "Ursula K. Le Guin", ExternalIDs: map[string]string{"viaf": "1"}}
	incoming := Author{Name: "Ursula K. Le Guin", Bio: "a biography", BioSource: "wikidata",
		ExternalIDs: map[string]string{"wikidata": "2"}}

	t.Run("boundary at existing+10 fills fields only, merges external ids", func(t *testing.T) {
		decision, merged := decideWriteBackAuthor(30, 40, existing, incoming)
		assert.Equal(t, writeFieldsOnly, decision)
		assert.Equal(t, "a biography", merged.Bio)
		assert.Equal(t, "wikidata", merged.BioSource)
		assert.Equal(t, "1", merged.ExternalIDs["viaf"])
		assert.Equal(t, "2", merged.ExternalIDs["wikidata"])
	})

	t.Run("more than existing+10 overwrites fully", func(t *testing.T) {
		decision, merged := decideWriteBackAuthor(30, 41, existing, incoming)
		assert.Equal(t, writeFull, decision)
		assert.Equal(t, incoming, merged)
	})

	t.Run("nothing new to fill is a skip", func(t *testing.T) {
		decision, _ := decideWriteBackAuthor(30, 30, existing, Author{Name: "Ursula K. Le Guin"})
		assert.Equal(t, writeSkip, decision)
	})
}
