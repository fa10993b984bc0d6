package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler wires every orchestrator, the persister, quota manager, queue
// client and object store into the §6 HTTP surface. One Handler per
// process; chi.Mux routing, go-chi/stampede coalescing, and the
// instrument() metrics middleware wrap it in main.go the same way the
// teacher's main.go wraps its own mux.
type Handler struct {
	isbn         *ISBNOrchestrator
	cover        *CoverOrchestrator
	metadata     *MetadataOrchestrator
	publicDomain *PublicDomainOrchestrator
	generate     *GenerateOrchestrator
	bios         *AuthorBioOrchestrator
	harvest      *AuthorHarvestWorkflow

	persist  *Persister
	resolver *WorkResolver
	quota    *QuotaManager
	queue    *QueueClient
	objects  *ObjectStore

	validate *validator.Validate
	newSC    func(r *http.Request) *ServiceContext
}

type HandlerConfig struct {
	ISBN         *ISBNOrchestrator
	Cover        *CoverOrchestrator
	Metadata     *MetadataOrchestrator
	PublicDomain *PublicDomainOrchestrator
	Generate     *GenerateOrchestrator
	Bios         *AuthorBioOrchestrator
	Harvest      *AuthorHarvestWorkflow
	Persist      *Persister
	Resolver     *WorkResolver
	Quota        *QuotaManager
	Queue        *QueueClient
	Objects      *ObjectStore
	NewServiceContext func(r *http.Request) *ServiceContext
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		isbn: cfg.ISBN, cover: cfg.Cover, metadata: cfg.Metadata,
		publicDomain: cfg.PublicDomain, generate: cfg.Generate, bios: cfg.Bios,
		harvest: cfg.Harvest, persist: cfg.Persist, resolver: cfg.Resolver,
		quota: cfg.Quota, queue: cfg.Queue, objects: cfg.Objects,
		validate: validator.New(), newSC: cfg.NewServiceContext,
	}
}

// Routes builds the chi.Mux described in spec.md §6. Coalescing and
// instrumentation are applied around the returned mux by the caller
// (main.go), matching the teacher's layering of stampede/middleware
// around its own mux in main.go.
func (h *Handler) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Post("/api/enrich/edition", h.enrichEdition)
	r.Post("/api/enrich/work", h.enrichWork)
	r.Post("/api/enrich/author", h.enrichAuthor)
	r.Post("/api/enrich/queue", h.enrichQueue)
	r.Post("/api/enrich/queue/batch", h.enrichQueueBatch)
	r.Post("/api/enrich/batch-direct", h.enrichBatchDirect)

	r.Post("/api/covers/queue", h.coversQueue)
	r.Post("/api/covers/process", h.coversProcess)
	r.Get("/api/covers/status/{isbn}", h.coversStatus)
	r.Get("/covers/{isbn}/{size}", h.coversServe)

	r.Get("/api/quota/status", h.quotaStatus)

	r.Post("/api/authors/enrich-bibliography", h.authorsEnrichBibliography)
	r.Post("/api/harvest/start", h.harvestStart)
	r.Post("/api/harvest/backfill", h.harvestBackfill)

	r.Get("/api/search", h.search)

	return r
}

// --- shared response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps err onto the {success:false, error:{...}} wire shape from
// spec.md §7, defaulting to 500/INTERNAL_ERROR for anything that isn't a
// statusErr.
func writeErr(w http.ResponseWriter, err error) {
	var se statusErr
	if errors.As(err, &se) {
		writeJSON(w, se.Status(), apiError{Success: false, Error: apiErrBody{
			Code: se.Kind(), Message: Sanitize(se.Error()),
		}})
		return
	}
	writeJSON(w, http.StatusInternalServerError, apiError{Success: false, Error: apiErrBody{
		Code: ErrInternal, Message: Sanitize(err.Error()),
	}})
}

func decodeBody(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return wrapValidation("invalid request body: %v", err)
	}
	return nil
}

func (h *Handler) checkValid(v any) error {
	if err := h.validate.Struct(v); err != nil {
		return wrapValidation("%v", err)
	}
	return nil
}

// --- §6 POST /api/enrich/edition, /work, /author ---

type enrichEditionRequest struct {
	ISBN string `json:"isbn" validate:"required"`
}

type enrichResponse struct {
	Success       bool     `json:"success"`
	QualityScore  int      `json:"quality_score"`
	AppliedFields []string `json:"applied_fields"`
	Skipped       bool     `json:"skipped"`
}

func (h *Handler) enrichEdition(w http.ResponseWriter, r *http.Request) {
	var req enrichEditionRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.checkValid(req); err != nil {
		writeErr(w, err)
		return
	}
	isbn := NormalizeISBN(req.ISBN)
	if !ValidISBN(isbn) {
		writeErr(w, wrapValidation("invalid isbn %q", req.ISBN))
		return
	}

	sc := h.newSC(r)
	meta, _ := h.metadata.FetchMetadata(sc, isbn)
	if meta == nil {
		writeErr(w, errNotFound)
		return
	}

	workKey, _, err := h.resolver.ResolveWork(sc.Context(), isbn, meta.Title, meta.Authors)
	if err != nil {
		writeErr(w, err)
		return
	}

	edition := Edition{ISBN: isbn, WorkKey: workKey, Title: meta.Title, Subtitle: meta.Subtitle,
		Publisher: meta.Publisher, PublicationDate: meta.PublicationDate, PageCount: meta.PageCount,
		Language: meta.Language, PrimaryProvider: meta.Source, RelatedISBNs: meta.RelatedISBNs}

	if cover, _ := h.cover.FetchCover(sc, isbn); cover != nil {
		edition.Covers.Large = cover.URL
		edition.CoverSource = cover.Source
	}

	completeness := EditionCompleteness(edition)
	score := QualityScore(completeness, ProviderBonus(tierFor(meta.Source)))

	wrote, finalScore, err := h.persist.EnrichEdition(sc.Context(), edition, score)
	if err != nil {
		writeErr(w, err)
		return
	}

	applied := appliedFields(edition)
	writeJSON(w, http.StatusOK, enrichResponse{
		Success: true, QualityScore: finalScore, AppliedFields: applied, Skipped: !wrote,
	})
}

func tierFor(provider string) string {
	switch provider {
	case "isbndb":
		return "paid-provider"
	case "google_books":
		return "mainstream-free"
	case "openlibrary", "wikidata":
		return "community-free"
	default:
		return ""
	}
}

func appliedFields(e Edition) []string {
	var fields []string
	if e.Title != "" {
		fields = append(fields, "title")
	}
	if e.Publisher != "" {
		fields = append(fields, "publisher")
	}
	if e.PublicationDate != "" {
		fields = append(fields, "publication_date")
	}
	if e.Covers.Large != "" {
		fields = append(fields, "cover")
	}
	return fields
}

type enrichWorkRequest struct {
	WorkKey         string   `json:"work_key" validate:"required"`
	Title           string   `json:"title,omitempty"`
	Description     string   `json:"description,omitempty"`
	SubjectTags     []string `json:"subject_tags,omitempty"`
	FirstPubYear    int      `json:"first_publication_year,omitempty"`
	PrimaryProvider string   `json:"primary_provider,omitempty"`
}

func (h *Handler) enrichWork(w http.ResponseWriter, r *http.Request) {
	var req enrichWorkRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.checkValid(req); err != nil {
		writeErr(w, err)
		return
	}

	work := Work{WorkKey: req.WorkKey, Title: req.Title, Description: req.Description,
		SubjectTags: req.SubjectTags, FirstPubYear: req.FirstPubYear, PrimaryProvider: req.PrimaryProvider}
	score := QualityScore(WorkCompleteness(work), ProviderBonus(tierFor(req.PrimaryProvider)))

	wrote, finalScore, err := h.persist.EnrichWork(r.Context(), work, score)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enrichResponse{
		Success: true, QualityScore: finalScore, AppliedFields: appliedWorkFields(work), Skipped: !wrote,
	})
}

func appliedWorkFields(w Work) []string {
	var fields []string
	if w.Title != "" {
		fields = append(fields, "title")
	}
	if w.Description != "" {
		fields = append(fields, "description")
	}
	if len(w.SubjectTags) > 0 {
		fields = append(fields, "subject_tags")
	}
	if w.FirstPubYear != 0 {
		fields = append(fields, "first_publication_year")
	}
	return fields
}

type enrichAuthorRequest struct {
	AuthorName  string            `json:"author_name" validate:"required"`
	Gender      string            `json:"gender,omitempty"`
	Nationality string            `json:"nationality,omitempty"`
	BirthDate   string            `json:"birth_date,omitempty"`
	DeathDate   string            `json:"death_date,omitempty"`
	Places      []string          `json:"places,omitempty"`
	Occupations []string          `json:"occupations,omitempty"`
	Movements   []string          `json:"movements,omitempty"`
	Awards      []string          `json:"awards,omitempty"`
	ExternalIDs map[string]string `json:"external_ids,omitempty"`
	Bio         string            `json:"bio,omitempty"`
	BioSource   string            `json:"bio_source,omitempty"`
}

func (h *Handler) enrichAuthor(w http.ResponseWriter, r *http.Request) {
	var req enrichAuthorRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.checkValid(req); err != nil {
		writeErr(w, err)
		return
	}

	author := Author{Name: req.AuthorName, Gender: req.Gender, Nationality: req.Nationality,
		BirthDate: req.BirthDate, DeathDate: req.DeathDate, Places: req.Places,
		Occupations: req.Occupations, Movements: req.Movements, Awards: req.Awards,
		ExternalIDs: req.ExternalIDs, Bio: req.Bio, BioSource: req.BioSource}

	// A caller that doesn't supply a bio gets one fetched live, same source
	// chain authorsEnrichBibliography uses, instead of skipping outright.
	if author.Bio == "" {
		sc := h.newSC(r)
		if fetched, _ := h.bios.FetchBio(sc, req.AuthorName); fetched != nil {
			author.Bio = fetched.Bio
			author.BioSource = fetched.BioSource
			if author.ExternalIDs == nil {
				author.ExternalIDs = fetched.ExternalIDs
			} else {
				for k, v := range fetched.ExternalIDs {
					if _, ok := author.ExternalIDs[k]; !ok {
						author.ExternalIDs[k] = v
					}
				}
			}
		}
	}

	score := QualityScore(AuthorCompleteness(author)+ExternalIDBonus(author.ExternalIDs), ProviderBonus(tierFor(author.BioSource)))
	wrote, finalScore, err := h.persist.EnrichAuthor(r.Context(), author, score)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enrichResponse{
		Success: true, QualityScore: finalScore, AppliedFields: appliedAuthorFields(author), Skipped: !wrote,
	})
}

func appliedAuthorFields(a Author) []string {
	var fields []string
	if a.Bio != "" {
		fields = append(fields, "bio")
	}
	if a.Nationality != "" {
		fields = append(fields, "nationality")
	}
	if a.BirthDate != "" {
		fields = append(fields, "birth_date")
	}
	if a.DeathDate != "" {
		fields = append(fields, "death_date")
	}
	if len(a.Occupations) > 0 {
		fields = append(fields, "occupations")
	}
	if len(a.ExternalIDs) > 0 {
		fields = append(fields, "external_ids")
	}
	return fields
}

// --- §6 POST /api/enrich/queue, /queue/batch ---

const maxQueueBatch = 100

type queueEditionRequest struct {
	ISBN     string `json:"isbn" validate:"required"`
	Priority string `json:"priority,omitempty"`
}

func (h *Handler) enrichQueue(w http.ResponseWriter, r *http.Request) {
	var req queueEditionRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.checkValid(req); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.queue.EnqueueEdition(r.Context(), NormalizeISBN(req.ISBN), req.Priority); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}

type queueBatchRequest struct {
	Books []queueEditionRequest `json:"books" validate:"required,min=1,dive"`
}

func (h *Handler) enrichQueueBatch(w http.ResponseWriter, r *http.Request) {
	var req queueBatchRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if len(req.Books) > maxQueueBatch {
		writeErr(w, wrapValidation("batch exceeds max of %d", maxQueueBatch))
		return
	}
	if err := h.checkValid(req); err != nil {
		writeErr(w, err)
		return
	}
	for _, b := range req.Books {
		if err := h.queue.EnqueueEdition(r.Context(), NormalizeISBN(b.ISBN), b.Priority); err != nil {
			writeErr(w, err)
			return
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}

// --- §6 POST /api/enrich/batch-direct ---

const maxBatchDirect = 1000

type batchDirectRequest struct {
	ISBNs  []string `json:"isbns" validate:"required,min=1"`
	Source string   `json:"source,omitempty"`
}

type batchDirectResponse struct {
	Requested   int   `json:"requested"`
	Found       int   `json:"found"`
	Enriched    int   `json:"enriched"`
	Failed      int   `json:"failed"`
	NotFound    int   `json:"not_found"`
	CoversQueued int  `json:"covers_queued"`
	APICalls    int   `json:"api_calls"`
	DurationMs  int64 `json:"duration_ms"`
}

func (h *Handler) enrichBatchDirect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req batchDirectRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if len(req.ISBNs) > maxBatchDirect {
		writeErr(w, wrapValidation("batch exceeds max of %d", maxBatchDirect))
		return
	}
	if err := h.checkValid(req); err != nil {
		writeErr(w, err)
		return
	}

	sc := h.newSC(r)
	normalized := make([]string, 0, len(req.ISBNs))
	for _, raw := range req.ISBNs {
		normalized = append(normalized, NormalizeISBN(raw))
	}

	byISBN, err := h.metadata.BatchFetchMetadata(sc, normalized)
	if err != nil {
		writeErr(w, err)
		return
	}

	resp := batchDirectResponse{Requested: len(normalized), Found: len(byISBN), APICalls: 1}
	for _, isbn := range normalized {
		meta, ok := byISBN[isbn]
		if !ok || meta == nil {
			resp.NotFound++
			continue
		}
		workKey, _, werr := h.resolver.ResolveWork(sc.Context(), isbn, meta.Title, meta.Authors)
		if werr != nil {
			resp.Failed++
			continue
		}
		edition := Edition{ISBN: isbn, WorkKey: workKey, Title: meta.Title, Subtitle: meta.Subtitle,
			Publisher: meta.Publisher, PublicationDate: meta.PublicationDate, PageCount: meta.PageCount,
			Language: meta.Language, PrimaryProvider: meta.Source, RelatedISBNs: meta.RelatedISBNs}
		score := QualityScore(EditionCompleteness(edition), ProviderBonus(tierFor(meta.Source)))
		if _, _, werr := h.persist.EnrichEdition(sc.Context(), edition, score); werr != nil {
			resp.Failed++
			continue
		}
		resp.Enriched++
		if meta.CoverURL == "" {
			if err := h.queue.EnqueueCover(sc.Context(), isbn); err == nil {
				resp.CoversQueued++
			}
		}
	}
	resp.DurationMs = time.Since(start).Milliseconds()
	writeJSON(w, http.StatusOK, resp)
}

// --- §6 POST /api/covers/queue, /process, GET /status/:isbn, GET /covers/:isbn/:size ---

const maxCoverBatch = 100

type coverQueueItem struct {
	ISBN     string `json:"isbn" validate:"required"`
	WorkKey  string `json:"work_key,omitempty"`
	Priority string `json:"priority,omitempty"`
	Source   string `json:"source,omitempty"`
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
}

type coverQueueRequest struct {
	Books []coverQueueItem `json:"books" validate:"required,min=1,dive"`
}

func (h *Handler) coversQueue(w http.ResponseWriter, r *http.Request) {
	var req coverQueueRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if len(req.Books) > maxCoverBatch {
		writeErr(w, wrapValidation("batch exceeds max of %d", maxCoverBatch))
		return
	}
	if err := h.checkValid(req); err != nil {
		writeErr(w, err)
		return
	}
	for _, b := range req.Books {
		if err := h.queue.EnqueueCover(r.Context(), NormalizeISBN(b.ISBN)); err != nil {
			writeErr(w, err)
			return
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}

type coverProcessRequest struct {
	ISBN        string `json:"isbn" validate:"required"`
	ProviderURL string `json:"provider_url" validate:"required,url"`
	WorkKey     string `json:"work_key,omitempty"`
}

func (h *Handler) coversProcess(w http.ResponseWriter, r *http.Request) {
	var req coverProcessRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.checkValid(req); err != nil {
		writeErr(w, err)
		return
	}

	resp, err := http.Get(req.ProviderURL)
	if err != nil {
		writeErr(w, wrapProvider(ErrProvider, "cover_source", err))
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		writeErr(w, errUnavailable)
		return
	}
	buf := make([]byte, 0, 64*1024)
	chunk := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if rerr != nil {
			break
		}
	}

	isbn := NormalizeISBN(req.ISBN)
	variants, err := ResizeCover(buf)
	if err != nil {
		writeErr(w, wrapValidation("%v", err))
		return
	}

	sizes := map[string]bool{}
	for size, data := range variants {
		if _, err := h.objects.PutCover(r.Context(), isbn, size, data, "image/jpeg"); err != nil {
			writeErr(w, err)
			return
		}
		sizes[size] = true
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "sizes": sizes})
}

type coverStatusResponse struct {
	Exists bool   `json:"exists"`
	Format string `json:"format,omitempty"`
	Sizes  struct {
		Small  bool `json:"small"`
		Medium bool `json:"medium"`
		Large  bool `json:"large"`
	} `json:"sizes"`
	Uploaded bool      `json:"uploaded"`
	URLs     CoverURLs `json:"urls"`
}

func (h *Handler) coversStatus(w http.ResponseWriter, r *http.Request) {
	isbn := NormalizeISBN(chi.URLParam(r, "isbn"))
	resp := coverStatusResponse{}
	for size, ok := range map[string]*bool{"small": &resp.Sizes.Small, "medium": &resp.Sizes.Medium, "large": &resp.Sizes.Large} {
		if _, _, err := h.objects.GetCover(r.Context(), isbn, size); err == nil {
			*ok = true
			resp.Exists = true
			resp.Uploaded = true
		}
	}
	if resp.Exists {
		resp.Format = "jpeg"
		resp.URLs = CoverURLs{
			Small: "/covers/" + isbn + "/small", Medium: "/covers/" + isbn + "/medium",
			Large: "/covers/" + isbn + "/large",
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) coversServe(w http.ResponseWriter, r *http.Request) {
	isbn := NormalizeISBN(chi.URLParam(r, "isbn"))
	size := chi.URLParam(r, "size")
	if size != "small" && size != "medium" && size != "large" {
		writeErr(w, wrapValidation("unknown size %q", size))
		return
	}
	data, contentType, err := h.objects.GetCover(r.Context(), isbn, size)
	if err != nil {
		writeErr(w, errNotFound)
		return
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// --- §6 GET /api/quota/status ---

func (h *Handler) quotaStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.quota.Status(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// --- §6 POST /api/authors/enrich-bibliography ---

type enrichBibliographyRequest struct {
	AuthorName string `json:"author_name" validate:"required"`
	MaxBooks   int    `json:"max_books,omitempty"`
}

func (h *Handler) authorsEnrichBibliography(w http.ResponseWriter, r *http.Request) {
	var req enrichBibliographyRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.checkValid(req); err != nil {
		writeErr(w, err)
		return
	}
	sc := h.newSC(r)
	author, _ := h.bios.FetchBio(sc, req.AuthorName)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "author": author})
}

// --- §6 POST /api/harvest/start ---

var validHarvestTiers = map[string]bool{
	"top-10": true, "top-100": true, "top-1000": true,
	"1000-5000": true, "5000-20000": true, "curated": true,
}

type harvestStartRequest struct {
	Tier              string   `json:"tier" validate:"required"`
	Offset            int      `json:"offset,omitempty"`
	Limit             int      `json:"limit,omitempty"`
	MaxPagesPerAuthor int      `json:"max_pages_per_author,omitempty"`
	CuratedAuthors    []string `json:"curated_authors,omitempty"`
	CuratedListName   string   `json:"curated_list_name,omitempty"`
}

func (h *Handler) harvestStart(w http.ResponseWriter, r *http.Request) {
	var req harvestStartRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.checkValid(req); err != nil {
		writeErr(w, err)
		return
	}
	if !validHarvestTiers[req.Tier] {
		writeErr(w, wrapValidation("unknown tier %q", req.Tier))
		return
	}

	sc := h.newSC(r)
	workflowID := "harvest:" + req.Tier + ":" + strconv.FormatInt(time.Now().UnixNano(), 36)
	step, err := h.harvest.Run(sc, workflowID, req.Offset)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, step)
}

// --- §6 POST /api/harvest/backfill ---

type harvestBackfillRequest struct {
	Year           int    `json:"year" validate:"required"`
	Month          int    `json:"month" validate:"required,min=1,max=12"`
	BatchSize      int    `json:"batch_size,omitempty"`
	DryRun         bool   `json:"dry_run,omitempty"`
	ExperimentID   string `json:"experiment_id,omitempty"`
	PromptOverride string `json:"prompt_override,omitempty"`
	MaxQuota       int    `json:"max_quota,omitempty"`
}

func (h *Handler) harvestBackfill(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req harvestBackfillRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.checkValid(req); err != nil {
		writeErr(w, err)
		return
	}

	variant := VariantBaseline
	if req.PromptOverride != "" {
		variant = PromptVariant(req.PromptOverride)
	}
	count := req.BatchSize
	if count <= 0 {
		count = 20
	}

	sc := h.newSC(r)
	books, _, err := h.generate.GenerateBooks(sc, variant, req.Year, req.Month, count)
	if err != nil {
		writeErr(w, err)
		return
	}

	entry := BackfillLogEntry{Year: req.Year, Month: req.Month, BooksGenerated: len(books),
		PromptVariant: string(variant)}

	if req.DryRun {
		// dry_run performs zero enriched-table writes and zero external
		// calls beyond generation itself (spec.md §8 invariant 10).
		writeJSON(w, http.StatusAccepted, map[string]any{
			"job_id": "dryrun", "books_generated": len(books), "dry_run": true,
		})
		return
	}

	for _, b := range books {
		resolved, _ := h.isbn.ResolveISBN(sc, b.Title, b.Author)
		if resolved == nil {
			entry.BooksUnresolved++
			_, _, _ = h.resolver.ResolveWork(sc.Context(), "", b.Title, []string{b.Author})
			continue
		}
		entry.BooksResolved++
		meta, _ := h.metadata.FetchMetadata(sc, resolved.ISBN)
		if meta == nil {
			continue
		}
		workKey, _, werr := h.resolver.ResolveWork(sc.Context(), resolved.ISBN, meta.Title, meta.Authors)
		if werr != nil {
			continue
		}
		edition := Edition{ISBN: resolved.ISBN, WorkKey: workKey, Title: meta.Title,
			Publisher: meta.Publisher, PublicationDate: meta.PublicationDate, PrimaryProvider: meta.Source}
		score := QualityScore(EditionCompleteness(edition), ProviderBonus(tierFor(meta.Source)))
		if _, _, werr := h.persist.EnrichEdition(sc.Context(), edition, score); werr == nil {
			entry.BooksEnriched++
			_ = h.queue.EnqueueCover(sc.Context(), resolved.ISBN)
		}
	}
	entry.DurationMs = time.Since(start).Milliseconds()
	_ = h.persist.SaveBackfillLog(sc.Context(), entry)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": workflowIDFromTime(), "books_generated": entry.BooksGenerated,
		"books_resolved": entry.BooksResolved, "books_enriched": entry.BooksEnriched,
	})
}

func workflowIDFromTime() string {
	return "backfill:" + strconv.FormatInt(time.Now().UnixNano(), 36)
}

// --- §6 GET /api/search?isbn=... ---

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	isbn := NormalizeISBN(r.URL.Query().Get("isbn"))
	if !ValidISBN(isbn) {
		writeErr(w, wrapValidation("invalid or missing isbn query parameter"))
		return
	}

	sc := h.newSC(r)
	if existing, err := h.persist.GetExistingEdition(sc.Context(), isbn); err == nil && existing != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "isbn": isbn, "cached": true})
		return
	}

	meta, _ := h.metadata.FetchMetadata(sc, isbn)
	if meta == nil {
		writeErr(w, errNotFound)
		return
	}
	workKey, _, err := h.resolver.ResolveWork(sc.Context(), isbn, meta.Title, meta.Authors)
	if err != nil {
		writeErr(w, err)
		return
	}
	edition := Edition{ISBN: isbn, WorkKey: workKey, Title: meta.Title, Subtitle: meta.Subtitle,
		Publisher: meta.Publisher, PublicationDate: meta.PublicationDate, PageCount: meta.PageCount,
		Language: meta.Language, PrimaryProvider: meta.Source, RelatedISBNs: meta.RelatedISBNs}
	score := QualityScore(EditionCompleteness(edition), ProviderBonus(tierFor(meta.Source)))
	if _, _, err := h.persist.EnrichEdition(sc.Context(), edition, score); err != nil {
		writeErr(w, err)
		return
	}
	if meta.CoverURL == "" {
		_ = h.queue.EnqueueCover(sc.Context(), isbn)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "isbn": isbn, "cached": false})
}
