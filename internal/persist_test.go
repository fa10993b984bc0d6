package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPersisterFindOrCreateWorkIsIdempotent exercises the write paths
// against a live database, the same way the teacher's own persistence
// tests run against localhost:5432 rather than a mock.
func TestPersisterFindOrCreateWorkIsIdempotent(t *testing.T) {
	ctx := t.Context()
	dsn := "postgres://postgres@localhost:5432/alexandria_test"

	db, err := NewDB(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	p := NewPersister(db)

	authorKey, err := p.FindOrCreateAuthor(ctx, "Ursula K. Le Guin")
	require.NoError(t, err)
	assert.NotEmpty(t, authorKey)

	secondKey, err := p.FindOrCreateAuthor(ctx, "ursula k le guin")
	require.NoError(t, err)
	assert.Equal(t, authorKey, secondKey)

	workKey, isNew, err := p.FindOrCreateWork(ctx, "9780060850524", "The Left Hand of Darkness", []string{authorKey})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotEmpty(t, workKey)

	secondWorkKey, isNewAgain, err := p.FindOrCreateWork(ctx, "9780060850524", "The Left Hand of Darkness", []string{authorKey})
	require.NoError(t, err)
	assert.False(t, isNewAgain)
	assert.Equal(t, workKey, secondWorkKey)
}

func TestPersisterEnrichWorkMergeGate(t *testing.T) {
	ctx := t.Context()
	dsn := "postgres://postgres@localhost:5432/alexandria_test"

	db, err := NewDB(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	p := NewPersister(db)

	work := Work{WorkKey: "work:test:enrich", Title: "A Wizard of Earthsea", PrimaryProvider: "openlibrary"}
	wrote, score, err := p.EnrichWork(ctx, work, 40)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, 40, score)

	// A second call at the existing+10 boundary must not overwrite the
	// title, only fill in still-empty fields.
	incoming := Work{WorkKey: "work:test:enrich", Title: "A Different Title", Description: "a longer synopsis"}
	wrote, score, err = p.EnrichWork(ctx, incoming, 50)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, 40, score)
}

func TestPersisterEnrichAuthorMergeGate(t *testing.T) {
	ctx := t.Context()
	dsn := "postgres://postgres@localhost:5432/alexandria_test"

	db, err := NewDB(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	p := NewPersister(db)

	author := Author{Name: "Octavia E. Butler", Bio: "short bio", BioSource: "openlibrary"}
	wrote, _, err := p.EnrichAuthor(ctx, author, 30)
	require.NoError(t, err)
	assert.True(t, wrote)

	incoming := Author{Name: "Octavia E. Butler", Nationality: "American", ExternalIDs: map[string]string{"wikidata": "Q76984"}}
	wrote, _, err = p.EnrichAuthor(ctx, incoming, 35)
	require.NoError(t, err)
	assert.True(t, wrote)
}
