package internal

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// ISBNdbProvider is the sole paid provider (spec.md §4.4): ISBN resolution,
// metadata, and batch metadata, gated by the shared QuotaManager before
// every call.
type ISBNdbProvider struct {
	client *Client
	quota  *QuotaManager
	apiKey string
}

func NewISBNdbProvider(client *Client, quota *QuotaManager, apiKey string) *ISBNdbProvider {
	return &ISBNdbProvider{client: client, quota: quota, apiKey: apiKey}
}

func (p *ISBNdbProvider) Name() string             { return "isbndb" }
func (p *ISBNdbProvider) ProviderType() ProviderType { return ProviderPaid }

func (p *ISBNdbProvider) Capabilities() []Capability {
	return []Capability{CapabilityISBNResolution, CapabilityMetadata}
}

// IsAvailable reports whether an API key is configured, quota isn't
// exhausted, and the circuit breaker isn't open.
func (p *ISBNdbProvider) IsAvailable(ctx context.Context) bool {
	if p.apiKey == "" || p.quota == nil {
		return false
	}
	if p.quota.BreakerOpen() {
		return false
	}
	ok, err := p.quota.CanMakeCalls(ctx, 1)
	return err == nil && ok
}

type isbndbBookResponse struct {
	Book struct {
		Title     string   `json:"title"`
		Authors   []string `json:"authors"`
		Publisher string   `json:"publisher"`
		Date      string   `json:"date_published"`
		Pages     int      `json:"pages"`
		Language  string   `json:"language"`
		Binding   string   `json:"binding"`
		Synopsis  string   `json:"synopsis"`
		Subjects  []string `json:"subjects"`
		Image     string   `json:"image"`
		ISBN13    string   `json:"isbn13"`
	} `json:"book"`
}

func (p *ISBNdbProvider) fetchOpts() FetchOptions {
	return FetchOptions{
		Headers: map[string]string{"Authorization": p.apiKey},
		TTL:     recordCacheTTL,
		Purpose: "metadata",
		OnCall:  func(_, _ string) { _ = p.quota.RecordAPICall(context.Background(), 1) },
	}
}

func (p *ISBNdbProvider) FetchMetadata(ctx context.Context, sc *ServiceContext, isbn string) (*BookMetadata, error) {
	u := fmt.Sprintf("https://api2.isbndb.com/book/%s", url.PathEscape(isbn))
	resp, err := Fetch[isbndbBookResponse](p.client, sc, u, p.fetchOpts())
	if err != nil || resp == nil {
		return nil, err
	}
	b := resp.Book
	return &BookMetadata{
		ISBN: isbn, Title: b.Title, Authors: b.Authors, Publisher: b.Publisher,
		PublicationDate: b.Date, PageCount: b.Pages, Language: b.Language,
		Format: b.Binding, Description: b.Synopsis, SubjectTags: b.Subjects,
		CoverURL: b.Image, Source: p.Name(),
	}, nil
}

// BatchFetchMetadata consumes one ISBNdb batch request, the
// /api/enrich/batch-direct contract from spec.md §6.
func (p *ISBNdbProvider) BatchFetchMetadata(ctx context.Context, sc *ServiceContext, isbns []string) (map[string]*BookMetadata, error) {
	type batchResponse struct {
		Data []isbndbBookResponse `json:"data"`
	}
	resp, err := Fetch[batchResponse](p.client, sc, "https://api2.isbndb.com/books", FetchOptions{
		Method:  "POST",
		Headers: map[string]string{"Authorization": p.apiKey, "Content-Type": "application/json"},
		Body:    encodeISBNList(isbns),
		TTL:     recordCacheTTL,
		Purpose: "batch_metadata",
		OnCall:  func(_, _ string) { _ = p.quota.RecordAPICall(context.Background(), 1) },
	})
	if err != nil || resp == nil {
		return map[string]*BookMetadata{}, err
	}
	out := make(map[string]*BookMetadata, len(resp.Data))
	for _, b := range resp.Data {
		out[b.Book.ISBN13] = &BookMetadata{
			ISBN: b.Book.ISBN13, Title: b.Book.Title, Authors: b.Book.Authors,
			Publisher: b.Book.Publisher, PublicationDate: b.Book.Date,
			PageCount: b.Book.Pages, Language: b.Book.Language, Format: b.Book.Binding,
			Description: b.Book.Synopsis, SubjectTags: b.Book.Subjects,
			CoverURL: b.Book.Image, Source: p.Name(),
		}
	}
	return out, nil
}

// ResolveISBN searches ISBNdb by title/author and validates the best match,
// per spec.md §4.6's resolver contract.
func (p *ISBNdbProvider) ResolveISBN(ctx context.Context, sc *ServiceContext, title, author string) (*ISBNResolveResult, error) {
	type searchResponse struct {
		Books []isbndbBookResponse `json:"books"`
	}
	q := url.Values{}
	q.Set("text", title)
	if author != "" {
		q.Set("author", author)
	}
	u := "https://api2.isbndb.com/books/" + url.QueryEscape(title) + "?" + q.Encode()
	resp, err := Fetch[searchResponse](p.client, sc, u, p.fetchOpts())
	if err != nil || resp == nil || len(resp.Books) == 0 {
		return nil, err
	}
	best := resp.Books[0].Book
	if TitleSimilarity(best.Title, title) < 0.7 {
		return nil, nil
	}
	if !ValidISBN(best.ISBN13) {
		return nil, nil
	}
	return &ISBNResolveResult{ISBN: best.ISBN13, Confidence: 80, Source: p.Name()}, nil
}

const recordCacheTTL = 24 * time.Hour

func encodeISBNList(isbns []string) []byte {
	b := []byte(`{"isbns":[`)
	for i, v := range isbns {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '"')
		b = append(b, v...)
		b = append(b, '"')
	}
	b = append(b, ']', '}')
	return b
}
