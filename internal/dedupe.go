package internal

import (
	"context"
	"strings"
	"sync"
)

// DedupeClassification is the closed set of outcomes for AI-backfill
// deduplication (spec.md §4.9).
type DedupeClassification string

const (
	ClassExactDup   DedupeClassification = "exact_dup"
	ClassRelatedDup DedupeClassification = "related_dup"
	ClassFuzzyDup   DedupeClassification = "fuzzy_dup"
	ClassNew        DedupeClassification = "new"
)

// WorkResolver wraps a Persister with a per-request cache mapping
// isbn→work_key and author-name→author_key, avoiding redundant lookups
// within a single batch (spec.md §4.9).
type WorkResolver struct {
	persist *Persister

	mu           sync.Mutex
	isbnToWork   map[string]string
	nameToAuthor map[string]string
}

func NewWorkResolver(p *Persister) *WorkResolver {
	return &WorkResolver{
		persist:      p,
		isbnToWork:   map[string]string{},
		nameToAuthor: map[string]string{},
	}
}

func (r *WorkResolver) ResolveWork(ctx context.Context, isbn, title string, authorNames []string) (workKey string, isNew bool, err error) {
	r.mu.Lock()
	if isbn != "" {
		if wk, ok := r.isbnToWork[isbn]; ok {
			r.mu.Unlock()
			return wk, false, nil
		}
	}
	r.mu.Unlock()

	authorKeys := make([]string, 0, len(authorNames))
	for _, name := range authorNames {
		ak, err := r.ResolveAuthor(ctx, name)
		if err != nil {
			return "", false, err
		}
		authorKeys = append(authorKeys, ak)
	}

	wk, isNew, err := r.persist.FindOrCreateWork(ctx, isbn, title, authorKeys)
	if err != nil {
		return "", false, err
	}
	if err := r.persist.LinkWorkToAuthors(ctx, wk, authorKeys); err != nil {
		return "", false, err
	}

	if isbn != "" {
		r.mu.Lock()
		r.isbnToWork[isbn] = wk
		r.mu.Unlock()
	}
	return wk, isNew, nil
}

func (r *WorkResolver) ResolveAuthor(ctx context.Context, name string) (string, error) {
	norm := NormalizeAuthorName(name)
	r.mu.Lock()
	if ak, ok := r.nameToAuthor[norm]; ok {
		r.mu.Unlock()
		return ak, nil
	}
	r.mu.Unlock()

	ak, err := r.persist.FindOrCreateAuthor(ctx, name)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.nameToAuthor[norm] = ak
	r.mu.Unlock()
	return ak, nil
}

// BackfillCandidate is one item in an AI-generated monthly batch awaiting
// classification (spec.md §4.9).
type BackfillCandidate struct {
	Title  string
	Author string
	ISBN   string
}

// ExistingCatalogEntry is the subset of catalog state the classifier needs
// per candidate author, looked up once per batch by the caller.
type ExistingCatalogEntry struct {
	ISBN         string
	RelatedISBNs map[string]string
	Title        string
}

// ClassifyBackfillCandidate implements spec.md §4.9's AI-backfill
// deduplication: exact_dup if the ISBN is already present, related_dup if
// it appears in an existing edition's related_isbns, fuzzy_dup if the
// title is ≥0.8 similar to any work by the same author, else new.
func ClassifyBackfillCandidate(c BackfillCandidate, existingByAuthor []ExistingCatalogEntry) DedupeClassification {
	for _, e := range existingByAuthor {
		if c.ISBN != "" && e.ISBN != "" && c.ISBN == e.ISBN {
			return ClassExactDup
		}
	}
	for _, e := range existingByAuthor {
		if c.ISBN == "" {
			continue
		}
		for _, related := range e.RelatedISBNs {
			if strings.EqualFold(related, c.ISBN) {
				return ClassRelatedDup
			}
		}
	}
	for _, e := range existingByAuthor {
		if TitleSimilarity(e.Title, c.Title) >= 0.8 {
			return ClassFuzzyDup
		}
	}
	return ClassNew
}
