package internal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewDB opens a pgxpool against dsn, same constructor shape the teacher
// uses from main.go's pgconfig.dsn().
func NewDB(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	return pgxpool.New(ctx, dsn)
}

// Persister is the sole writer of enriched_* rows (spec.md §3 "Ownership").
// It applies the merge policy from §4.10 on every write and owns the
// dedup/work-resolution lookups from §4.9, so a single request/batch-scoped
// handle is the only place these two concerns need to agree on an answer.
type Persister struct {
	db *pgxpool.Pool
}

func NewPersister(db *pgxpool.Pool) *Persister {
	return &Persister{db: db}
}

// EnrichEdition applies the merge policy (spec.md §4.10) to an incoming
// edition. It returns whether a write occurred and the resulting quality
// score.
func (p *Persister) EnrichEdition(ctx context.Context, in Edition, incomingScore int) (wrote bool, finalScore int, err error) {
	var existingScore int
	var existing Edition
	row := p.db.QueryRow(ctx, `
		SELECT title, subtitle, publisher, publication_date, page_count,
		       language, format, cover_small, cover_medium, cover_large,
		       completeness_score
		FROM enriched_editions WHERE isbn = $1`, in.ISBN)
	scanErr := row.Scan(&existing.Title, &existing.Subtitle, &existing.Publisher,
		&existing.PublicationDate, &existing.PageCount, &existing.Language,
		&existing.Format, &existing.Covers.Small, &existing.Covers.Medium,
		&existing.Covers.Large, &existingScore)

	switch {
	case scanErr == pgx.ErrNoRows:
		if err := p.insertEdition(ctx, in, incomingScore); err != nil {
			return false, 0, wrapDatabase(err)
		}
		return true, incomingScore, nil
	case scanErr != nil:
		return false, 0, wrapDatabase(scanErr)
	}

	decision, merged := decideWriteBack(existingScore, incomingScore, existing, in)
	switch decision {
	case writeSkip:
		return false, existingScore, nil
	case writeFull:
		if err := p.upsertEdition(ctx, merged, incomingScore); err != nil {
			return false, existingScore, wrapDatabase(err)
		}
		return true, incomingScore, nil
	case writeFieldsOnly:
		if err := p.upsertEdition(ctx, merged, existingScore); err != nil {
			return false, existingScore, wrapDatabase(err)
		}
		return true, existingScore, nil
	}
	return false, existingScore, nil
}

func (p *Persister) insertEdition(ctx context.Context, e Edition, score int) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO enriched_editions
			(isbn, work_key, title, subtitle, publisher, publication_date,
			 page_count, language, format, cover_small, cover_medium,
			 cover_large, cover_source, primary_provider, completeness_score,
			 related_isbns, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,now(),now())
		ON CONFLICT (isbn) DO NOTHING`,
		e.ISBN, e.WorkKey, e.Title, e.Subtitle, e.Publisher, e.PublicationDate,
		e.PageCount, e.Language, e.Format, e.Covers.Small, e.Covers.Medium,
		e.Covers.Large, e.CoverSource, e.PrimaryProvider, score, e.RelatedISBNs)
	return err
}

func (p *Persister) upsertEdition(ctx context.Context, e Edition, score int) error {
	_, err := p.db.Exec(ctx, `
		UPDATE enriched_editions SET
			title = $2, subtitle = $3, publisher = $4, publication_date = $5,
			page_count = $6, language = $7, format = $8, cover_small = $9,
			cover_medium = $10, cover_large = $11, cover_source = $12,
			primary_provider = $13, completeness_score = $14, updated_at = now()
		WHERE isbn = $1`,
		e.ISBN, e.Title, e.Subtitle, e.Publisher, e.PublicationDate,
		e.PageCount, e.Language, e.Format, e.Covers.Small, e.Covers.Medium,
		e.Covers.Large, e.CoverSource, e.PrimaryProvider, score)
	return err
}

// GetExistingEdition returns the cover_source/work_key for isbn, used by
// harvest/enrichment to decide whether to queue cover work.
func (p *Persister) GetExistingEdition(ctx context.Context, isbn string) (*Edition, error) {
	var e Edition
	row := p.db.QueryRow(ctx, `SELECT isbn, work_key, cover_source FROM enriched_editions WHERE isbn = $1`, isbn)
	err := row.Scan(&e.ISBN, &e.WorkKey, &e.CoverSource)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDatabase(err)
	}
	return &e, nil
}

// EnrichWork applies the merge policy (spec.md §4.10) to an incoming Work
// record, the Work-side counterpart to EnrichEdition.
func (p *Persister) EnrichWork(ctx context.Context, in Work, incomingScore int) (wrote bool, finalScore int, err error) {
	var existingScore int
	var existing Work
	var firstPubYear *int
	row := p.db.QueryRow(ctx, `
		SELECT title, description, subject_tags, first_publication_year, completeness_score
		FROM enriched_works WHERE work_key = $1`, in.WorkKey)
	scanErr := row.Scan(&existing.Title, &existing.Description, &existing.SubjectTags,
		&firstPubYear, &existingScore)
	if firstPubYear != nil {
		existing.FirstPubYear = *firstPubYear
	}

	switch {
	case scanErr == pgx.ErrNoRows:
		if err := p.insertWork(ctx, in, incomingScore); err != nil {
			return false, 0, wrapDatabase(err)
		}
		return true, incomingScore, nil
	case scanErr != nil:
		return false, 0, wrapDatabase(scanErr)
	}

	decision, merged := decideWriteBackWork(existingScore, incomingScore, existing, in)
	switch decision {
	case writeSkip:
		return false, existingScore, nil
	case writeFull:
		if err := p.upsertWork(ctx, merged, incomingScore); err != nil {
			return false, existingScore, wrapDatabase(err)
		}
		return true, incomingScore, nil
	case writeFieldsOnly:
		if err := p.upsertWork(ctx, merged, existingScore); err != nil {
			return false, existingScore, wrapDatabase(err)
		}
		return true, existingScore, nil
	}
	return false, existingScore, nil
}

func (p *Persister) insertWork(ctx context.Context, w Work, score int) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO enriched_works
			(work_key, title, description, subject_tags, first_publication_year,
			 primary_provider, synthetic, completeness_score, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
		ON CONFLICT (work_key) DO NOTHING`,
		w.WorkKey, w.Title, w.Description, w.SubjectTags, nullableInt(w.FirstPubYear),
		w.PrimaryProvider, w.Synthetic, score)
	return err
}

func (p *Persister) upsertWork(ctx context.Context, w Work, score int) error {
	_, err := p.db.Exec(ctx, `
		UPDATE enriched_works SET
			title = $2, description = $3, subject_tags = $4,
			first_publication_year = $5, completeness_score = $6, updated_at = now()
		WHERE work_key = $1`,
		w.WorkKey, w.Title, w.Description, w.SubjectTags, nullableInt(w.FirstPubYear), score)
	return err
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

// EnrichAuthor applies the merge policy (spec.md §4.10) to an incoming
// Author record, the Author-side counterpart to EnrichEdition. The author
// is located/created by name the same way FindOrCreateAuthor does, so a
// caller enriching by name never needs to resolve an author_key first.
func (p *Persister) EnrichAuthor(ctx context.Context, in Author, incomingScore int) (wrote bool, finalScore int, err error) {
	key, err := p.FindOrCreateAuthor(ctx, in.Name)
	if err != nil {
		return false, 0, err
	}
	in.AuthorKey = key

	var existingScore int
	existing := Author{AuthorKey: key}
	row := p.db.QueryRow(ctx, `
		SELECT gender, nationality, birth_date, death_date, places, occupations,
		       movements, awards, external_ids, bio, bio_source, completeness_score
		FROM enriched_authors WHERE author_key = $1`, key)
	scanErr := row.Scan(&existing.Gender, &existing.Nationality, &existing.BirthDate,
		&existing.DeathDate, &existing.Places, &existing.Occupations, &existing.Movements,
		&existing.Awards, &existing.ExternalIDs, &existing.Bio, &existing.BioSource, &existingScore)
	if scanErr != nil {
		return false, 0, wrapDatabase(scanErr)
	}

	decision, merged := decideWriteBackAuthor(existingScore, incomingScore, existing, in)
	switch decision {
	case writeSkip:
		return false, existingScore, nil
	case writeFull:
		if err := p.upsertAuthor(ctx, merged, incomingScore); err != nil {
			return false, existingScore, wrapDatabase(err)
		}
		return true, incomingScore, nil
	case writeFieldsOnly:
		if err := p.upsertAuthor(ctx, merged, existingScore); err != nil {
			return false, existingScore, wrapDatabase(err)
		}
		return true, existingScore, nil
	}
	return false, existingScore, nil
}

func (p *Persister) upsertAuthor(ctx context.Context, a Author, score int) error {
	_, err := p.db.Exec(ctx, `
		UPDATE enriched_authors SET
			gender = $2, nationality = $3, birth_date = $4, death_date = $5,
			places = $6, occupations = $7, movements = $8, awards = $9,
			external_ids = external_ids || $10::jsonb, bio = $11, bio_source = $12,
			completeness_score = $13, updated_at = now()
		WHERE author_key = $1`,
		a.AuthorKey, a.Gender, a.Nationality, a.BirthDate, a.DeathDate,
		a.Places, a.Occupations, a.Movements, a.Awards, a.ExternalIDs,
		a.Bio, a.BioSource, score)
	return err
}

// FindOrCreateWork implements spec.md §4.9's resolution cascade: existing
// ISBN mapping, then author-scoped fuzzy title match, then case-folded
// exact title match, then mint a synthetic key. It is the only writer of
// new synthetic works in a batch, breaking the edition/work cycle
// described in spec.md §9.
func (p *Persister) FindOrCreateWork(ctx context.Context, isbn, title string, authorKeys []string) (workKey string, isNew bool, err error) {
	if isbn != "" {
		var wk string
		row := p.db.QueryRow(ctx, `SELECT work_key FROM enriched_editions WHERE isbn = $1`, isbn)
		if scanErr := row.Scan(&wk); scanErr == nil && wk != "" {
			return wk, false, nil
		}
	}

	if len(authorKeys) > 0 {
		rows, qerr := p.db.Query(ctx, `
			SELECT w.work_key, w.title
			FROM enriched_works w
			JOIN work_authors_enriched wa ON wa.work_key = w.work_key
			WHERE wa.author_key = ANY($1)`, authorKeys)
		if qerr == nil {
			defer rows.Close()
			best := ""
			bestScore := 0.0
			for rows.Next() {
				var wk, t string
				if rows.Scan(&wk, &t) != nil {
					continue
				}
				if s := TitleSimilarity(t, title); s >= 0.8 && s > bestScore {
					best, bestScore = wk, s
				}
			}
			if best != "" {
				return best, false, nil
			}
		}
	}

	var wk string
	row := p.db.QueryRow(ctx, `SELECT work_key FROM enriched_works WHERE lower(title) = lower($1) LIMIT 1`, title)
	if scanErr := row.Scan(&wk); scanErr == nil && wk != "" {
		return wk, false, nil
	}

	synthetic := syntheticWorkKey()
	_, err = p.db.Exec(ctx, `
		INSERT INTO enriched_works (work_key, title, synthetic, completeness_score, created_at, updated_at)
		VALUES ($1, $2, true, 30, now(), now())
		ON CONFLICT (work_key) DO NOTHING`, synthetic, title)
	if err != nil {
		return "", false, wrapDatabase(err)
	}
	return synthetic, true, nil
}

// FindOrCreateAuthor implements the author half of spec.md §4.9: exact
// case-folded normalized_name match, then a Levenshtein-ratio fuzzy match at
// 0.7 over every stored author, then mint.
func (p *Persister) FindOrCreateAuthor(ctx context.Context, name string) (string, error) {
	norm := NormalizeAuthorName(name)

	var key string
	row := p.db.QueryRow(ctx, `SELECT author_key FROM enriched_authors WHERE normalized_name = $1`, norm)
	if err := row.Scan(&key); err == nil {
		return key, nil
	}

	rows, err := p.db.Query(ctx, `SELECT author_key, normalized_name FROM enriched_authors`)
	if err == nil {
		defer rows.Close()
		best := ""
		bestScore := 0.0
		for rows.Next() {
			var k, n string
			if rows.Scan(&k, &n) != nil {
				continue
			}
			if s := TitleSimilarity(n, norm); s >= 0.7 && s > bestScore {
				best, bestScore = k, s
			}
		}
		if best != "" {
			return best, nil
		}
	}

	key = syntheticAuthorKey()
	_, err = p.db.Exec(ctx, `
		INSERT INTO enriched_authors (author_key, name, normalized_name, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (author_key) DO NOTHING`, key, name, norm)
	if err != nil {
		return "", wrapDatabase(err)
	}
	return key, nil
}

// LinkWorkToAuthors is idempotent on (work_key, author_key).
func (p *Persister) LinkWorkToAuthors(ctx context.Context, workKey string, authorKeys []string) error {
	for i, ak := range authorKeys {
		_, err := p.db.Exec(ctx, `
			INSERT INTO work_authors_enriched (work_key, author_key, author_order)
			VALUES ($1, $2, $3)
			ON CONFLICT (work_key, author_key) DO NOTHING`, workKey, ak, i+1)
		if err != nil {
			return wrapDatabase(err)
		}
	}
	return nil
}

// UpdateAuthorBio writes a resolved biography back onto the author row
// found by normalized name, merging external_ids rather than overwriting
// (spec.md §4.9's external-ID bonus depends on these accumulating across
// providers).
func (p *Persister) UpdateAuthorBio(ctx context.Context, name, bio, bioSource string, externalIDs map[string]string) error {
	norm := NormalizeAuthorName(name)
	_, err := p.db.Exec(ctx, `
		UPDATE enriched_authors SET
			bio = $2, bio_source = $3,
			external_ids = external_ids || $4::jsonb,
			wikidata_enriched_at = now(), updated_at = now()
		WHERE normalized_name = $1`, norm, bio, bioSource, externalIDs)
	if err != nil {
		return wrapDatabase(err)
	}
	return nil
}

// SaveWorkflowStep durably records one step of an author-harvest workflow
// (spec.md §4.8), upserted by workflow_id+offset so a re-delivered asynq
// task overwrites rather than duplicates its own step.
func (p *Persister) SaveWorkflowStep(ctx context.Context, step WorkflowStep) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO workflow_steps (workflow_id, offset_value, status, next_offset, summary, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (workflow_id, offset_value) DO UPDATE SET
			status = EXCLUDED.status, next_offset = EXCLUDED.next_offset,
			summary = EXCLUDED.summary, updated_at = now()`,
		step.WorkflowID, step.Offset, step.Status, step.NextOffset, step.Summary)
	if err != nil {
		return wrapDatabase(err)
	}
	return nil
}

// LatestWorkflowStep returns the most recently updated step for workflowID,
// or nil if the workflow has never run, letting the caller resume from
// next_offset per spec.md §4.8.
func (p *Persister) LatestWorkflowStep(ctx context.Context, workflowID string) (*WorkflowStep, error) {
	var s WorkflowStep
	s.WorkflowID = workflowID
	row := p.db.QueryRow(ctx, `
		SELECT offset_value, status, next_offset, summary, updated_at
		FROM workflow_steps WHERE workflow_id = $1
		ORDER BY updated_at DESC LIMIT 1`, workflowID)
	err := row.Scan(&s.Offset, &s.Status, &s.NextOffset, &s.Summary, &s.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDatabase(err)
	}
	return &s, nil
}

// SaveBackfillLog records the outcome of one monthly book-generation batch
// (spec.md §4.8 / §9's backfill surface).
func (p *Persister) SaveBackfillLog(ctx context.Context, e BackfillLogEntry) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO backfill_log
			(year, month, books_generated, books_resolved, books_unresolved,
			 books_enriched, providers, prompt_variant, duration_ms, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())`,
		e.Year, e.Month, e.BooksGenerated, e.BooksResolved, e.BooksUnresolved,
		e.BooksEnriched, e.Providers, e.PromptVariant, e.DurationMs)
	if err != nil {
		return wrapDatabase(err)
	}
	return nil
}

// authorsNeedingBioSource queries enriched_authors for the harvest
// workflow's AuthorHarvestSource, walking authors with an empty bio oldest
// first so a harvest run makes steady progress across invocations.
type authorsNeedingBioSource struct {
	db *pgxpool.Pool
}

// NewAuthorsNeedingBioSource builds the Postgres-backed AuthorHarvestSource
// the worker and server commands wire into AuthorHarvestWorkflow.
func NewAuthorsNeedingBioSource(db *pgxpool.Pool) AuthorHarvestSource {
	return &authorsNeedingBioSource{db: db}
}

func (s *authorsNeedingBioSource) AuthorsNeedingBio(ctx context.Context, offset, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT name FROM enriched_authors
		WHERE bio = ''
		ORDER BY created_at ASC
		OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, wrapDatabase(err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, wrapDatabase(err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDatabase(err)
	}
	return names, nil
}

func syntheticWorkKey() string {
	return fmt.Sprintf("/works/isbndb-%s", randHex(8))
}

func syntheticAuthorKey() string {
	return fmt.Sprintf("/authors/isbndb-%s", randHex(8))
}
