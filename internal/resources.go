package internal

import "time"

// CoverSource identifies where an edition's cover image currently lives.
type CoverSource string

const (
	CoverSourceISBNdb     CoverSource = "isbndb"
	CoverSourceOpenLibrary CoverSource = "openlibrary"
	CoverSourceGoogleBooks CoverSource = "google_books"
	CoverSourceR2         CoverSource = "r2"
	CoverSourceAlexandria CoverSource = "alexandria"
)

// storedInObjectStore reports whether this cover source implies the image
// bytes live in object storage rather than at an external URL.
func (c CoverSource) storedInObjectStore() bool {
	return c == CoverSourceR2 || c == CoverSourceAlexandria
}

// CoverURLs holds the four sizes/variants an edition may expose.
type CoverURLs struct {
	Small    string `json:"small,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Large    string `json:"large,omitempty"`
	Original string `json:"original,omitempty"`
}

// Edition is a specific published ISBN-addressable manifestation of a Work.
type Edition struct {
	ISBN              string            `json:"isbn"`
	Title             string            `json:"title"`
	Subtitle          string            `json:"subtitle,omitempty"`
	Publisher         string            `json:"publisher,omitempty"`
	PublicationDate   string            `json:"publication_date,omitempty"`
	PageCount         int               `json:"page_count,omitempty"`
	Language          string            `json:"language,omitempty"`
	Format            string            `json:"format,omitempty"`
	Covers            CoverURLs         `json:"covers"`
	CoverSource       CoverSource       `json:"cover_source,omitempty"`
	WorkKey           string            `json:"work_key"`
	PrimaryProvider   string            `json:"primary_provider,omitempty"`
	CompletenessScore int               `json:"completeness_score"`
	RelatedISBNs      map[string]string `json:"related_isbns,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Work is an abstract authorship unit, possibly synthetic.
type Work struct {
	WorkKey           string    `json:"work_key"`
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	SubjectTags       []string  `json:"subject_tags,omitempty"`
	FirstPubYear      int       `json:"first_publication_year,omitempty"`
	PrimaryProvider   string    `json:"primary_provider,omitempty"`
	Synthetic         bool      `json:"synthetic"`
	CompletenessScore int       `json:"completeness_score"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Author is identified by an author_key, external or synthetic.
type Author struct {
	AuthorKey        string            `json:"author_key"`
	Name             string            `json:"name"`
	NormalizedName   string            `json:"normalized_name"`
	Gender           string            `json:"gender,omitempty"`
	Nationality      string            `json:"nationality,omitempty"`
	BirthDate        string            `json:"birth_date,omitempty"`
	DeathDate        string            `json:"death_date,omitempty"`
	Places           []string          `json:"places,omitempty"`
	Occupations      []string          `json:"occupations,omitempty"`
	Movements        []string          `json:"movements,omitempty"`
	Awards           []string          `json:"awards,omitempty"`
	ExternalIDs      map[string]string `json:"external_ids,omitempty"`
	Bio              string            `json:"bio,omitempty"`
	BioSource        string            `json:"bio_source,omitempty"`
	ViewCount        int64             `json:"view_count"`
	LastViewedAt     *time.Time        `json:"last_viewed_at,omitempty"`
	HeatScore        float64           `json:"heat_score"`
	WikidataEnrichedAt *time.Time      `json:"wikidata_enriched_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// WorkAuthorLink associates a Work with a contributing Author.
type WorkAuthorLink struct {
	WorkKey     string `json:"work_key"`
	AuthorKey   string `json:"author_key"`
	AuthorOrder int    `json:"author_order"`
}

// BackfillLogEntry records the outcome of one monthly book-generation batch.
type BackfillLogEntry struct {
	Year             int       `json:"year"`
	Month            int       `json:"month"`
	BooksGenerated   int       `json:"books_generated"`
	BooksResolved    int       `json:"books_resolved"`
	BooksUnresolved  int       `json:"books_unresolved"`
	BooksEnriched    int       `json:"books_enriched"`
	Providers        []string  `json:"providers"`
	PromptVariant    string    `json:"prompt_variant"`
	DurationMs       int64     `json:"duration_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// ExperimentRun, ExperimentResult and ExperimentSample support optional A/B
// evaluation of generator prompts. Not on the hot path.
type ExperimentRun struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	PromptVariant string    `json:"prompt_variant"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

type ExperimentResult struct {
	RunID     int64   `json:"run_id"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
}

type ExperimentSample struct {
	RunID int64  `json:"run_id"`
	ISBN  string `json:"isbn,omitempty"`
	Title string `json:"title"`
	Note  string `json:"note,omitempty"`
}

// WorkflowStep is one durably-persisted unit of an author-harvest workflow
// invocation, letting the workflow resume from next_offset across
// invocations bounded by the host's subrequest cap.
type WorkflowStep struct {
	WorkflowID string    `json:"workflow_id"`
	Offset     int       `json:"offset"`
	Status     string    `json:"status"` // "pending" | "running" | "done" | "partial" | "failed"
	NextOffset *int      `json:"next_offset,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// GeneratedBook is the output of a book-generation provider: title/author
// metadata only, never an ISBN (a separate chain resolves those).
type GeneratedBook struct {
	Title        string `json:"title"`
	Author       string `json:"author"`
	Publisher    string `json:"publisher,omitempty"`
	Format       string `json:"format,omitempty"`
	Year         int    `json:"year,omitempty"`
	Significance string `json:"significance,omitempty"`
}

// BookMetadata is the normalized shape returned by metadata providers.
type BookMetadata struct {
	ISBN            string            `json:"isbn"`
	Title           string            `json:"title"`
	Subtitle        string            `json:"subtitle,omitempty"`
	Authors         []string          `json:"authors,omitempty"`
	Publisher       string            `json:"publisher,omitempty"`
	PublicationDate string            `json:"publication_date,omitempty"`
	PageCount       int               `json:"page_count,omitempty"`
	Language        string            `json:"language,omitempty"`
	Format          string            `json:"format,omitempty"`
	Description     string            `json:"description,omitempty"`
	SubjectTags     []string          `json:"subject_tags,omitempty"`
	CoverURL        string            `json:"cover_url,omitempty"`
	RelatedISBNs    map[string]string `json:"related_isbns,omitempty"`
	Source          string            `json:"source"`
}
