package internal

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/hibiken/asynq"
)

// EnrichEditionHandler adapts the metadata/cover/resolve/persist cascade
// from the enrich-edition HTTP path to an asynq.HandlerFunc for the
// enrichment queue, so POST /api/enrich/queue and /queue/batch share the
// exact same enrichment logic as the synchronous endpoints.
func EnrichEditionHandler(
	metadata *MetadataOrchestrator,
	cover *CoverOrchestrator,
	resolver *WorkResolver,
	persist *Persister,
	queue *QueueClient,
	baseCtx func(ctx context.Context) *ServiceContext,
) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload EnrichEditionPayload
		if err := unmarshalTask(task, &payload); err != nil {
			return SkipRetry(err)
		}
		isbn := NormalizeISBN(payload.ISBN)
		if !ValidISBN(isbn) {
			return SkipRetry(fmt.Errorf("invalid isbn %q", payload.ISBN))
		}

		sc := baseCtx(ctx)
		meta, _ := metadata.FetchMetadata(sc, isbn)
		if meta == nil {
			return SkipRetry(errNotFound)
		}

		workKey, _, err := resolver.ResolveWork(sc.Context(), isbn, meta.Title, meta.Authors)
		if err != nil {
			return err
		}

		edition := Edition{ISBN: isbn, WorkKey: workKey, Title: meta.Title, Subtitle: meta.Subtitle,
			Publisher: meta.Publisher, PublicationDate: meta.PublicationDate, PageCount: meta.PageCount,
			Language: meta.Language, PrimaryProvider: meta.Source, RelatedISBNs: meta.RelatedISBNs}

		if result, _ := cover.FetchCover(sc, isbn); result != nil {
			edition.Covers.Large = result.URL
			edition.CoverSource = result.Source
		}

		score := QualityScore(EditionCompleteness(edition), ProviderBonus(tierFor(meta.Source)))
		if _, _, err := persist.EnrichEdition(sc.Context(), edition, score); err != nil {
			return err
		}

		if edition.Covers.Large == "" {
			return queue.EnqueueCover(sc.Context(), isbn)
		}
		return nil
	}
}

// FetchCoverHandler adapts /api/covers/process's fetch/resize/upload
// cascade to an asynq.HandlerFunc for the cover queue, used by
// POST /api/covers/queue and by EnrichEditionHandler's cover follow-up.
func FetchCoverHandler(
	cover *CoverOrchestrator,
	objects *ObjectStore,
	persist *Persister,
	baseCtx func(ctx context.Context) *ServiceContext,
) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload FetchCoverPayload
		if err := unmarshalTask(task, &payload); err != nil {
			return SkipRetry(err)
		}
		isbn := NormalizeISBN(payload.ISBN)
		if !ValidISBN(isbn) {
			return SkipRetry(fmt.Errorf("invalid isbn %q", payload.ISBN))
		}

		sc := baseCtx(ctx)
		result, _ := cover.FetchCover(sc, isbn)
		if result == nil || result.URL == "" {
			return SkipRetry(errNotFound)
		}

		resp, err := http.Get(result.URL)
		if err != nil {
			return wrapProvider(ErrProvider, "cover_source", err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return errUnavailable
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return wrapProvider(ErrProvider, "cover_source", err)
		}

		variants, err := ResizeCover(data)
		if err != nil {
			return wrapValidation("%v", err)
		}
		for size, bytes := range variants {
			if _, err := objects.PutCover(sc.Context(), isbn, size, bytes, "image/jpeg"); err != nil {
				return err
			}
		}

		existing, err := persist.GetExistingEdition(sc.Context(), isbn)
		if err != nil || existing == nil {
			return err
		}
		existing.Covers.Large = result.URL
		existing.CoverSource = result.Source
		score := QualityScore(EditionCompleteness(*existing), ProviderBonus(tierFor(existing.PrimaryProvider)))
		_, _, err = persist.EnrichEdition(sc.Context(), *existing, score)
		return err
	}
}
