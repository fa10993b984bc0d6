package internal

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// GoogleBooksProvider is a free provider for metadata, cover images, and
// ISBN resolution (spec.md §4.4).
type GoogleBooksProvider struct {
	client *Client
	apiKey string // optional; GoogleBooks works unauthenticated at lower rate
}

func NewGoogleBooksProvider(client *Client, apiKey string) *GoogleBooksProvider {
	return &GoogleBooksProvider{client: client, apiKey: apiKey}
}

func (p *GoogleBooksProvider) Name() string              { return "google_books" }
func (p *GoogleBooksProvider) ProviderType() ProviderType { return ProviderFree }

func (p *GoogleBooksProvider) Capabilities() []Capability {
	return []Capability{CapabilityMetadata, CapabilityCoverImages, CapabilityISBNResolution}
}

func (p *GoogleBooksProvider) IsAvailable(ctx context.Context) bool { return true }

type googleVolumesResponse struct {
	Items []struct {
		VolumeInfo struct {
			Title               string   `json:"title"`
			Subtitle            string   `json:"subtitle"`
			Authors             []string `json:"authors"`
			Publisher           string   `json:"publisher"`
			PublishedDate       string   `json:"publishedDate"`
			Description         string   `json:"description"`
			PageCount           int      `json:"pageCount"`
			Categories          []string `json:"categories"`
			Language            string   `json:"language"`
			IndustryIdentifiers []struct {
				Type       string `json:"type"`
				Identifier string `json:"identifier"`
			} `json:"industryIdentifiers"`
			ImageLinks struct {
				Thumbnail      string `json:"thumbnail"`
				SmallThumbnail string `json:"smallThumbnail"`
			} `json:"imageLinks"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

func (p *GoogleBooksProvider) searchURL(q string) string {
	v := url.Values{}
	v.Set("q", q)
	if p.apiKey != "" {
		v.Set("key", p.apiKey)
	}
	return "https://www.googleapis.com/books/v1/volumes?" + v.Encode()
}

func (p *GoogleBooksProvider) fetchOpts(purpose string) FetchOptions {
	return FetchOptions{TTL: 24 * time.Hour, Purpose: purpose}
}

func (p *GoogleBooksProvider) FetchMetadata(ctx context.Context, sc *ServiceContext, isbn string) (*BookMetadata, error) {
	resp, err := Fetch[googleVolumesResponse](p.client, sc, p.searchURL("isbn:"+isbn), p.fetchOpts("metadata"))
	if err != nil || resp == nil || len(resp.Items) == 0 {
		return nil, err
	}
	v := resp.Items[0].VolumeInfo
	return &BookMetadata{
		ISBN: isbn, Title: v.Title, Subtitle: v.Subtitle, Authors: v.Authors,
		Publisher: v.Publisher, PublicationDate: v.PublishedDate, PageCount: v.PageCount,
		Language: v.Language, Description: v.Description, SubjectTags: v.Categories,
		CoverURL: v.ImageLinks.Thumbnail, Source: p.Name(),
	}, nil
}

func (p *GoogleBooksProvider) FetchCover(ctx context.Context, sc *ServiceContext, isbn string) (*CoverResult, error) {
	resp, err := Fetch[googleVolumesResponse](p.client, sc, p.searchURL("isbn:"+isbn), p.fetchOpts("cover"))
	if err != nil || resp == nil || len(resp.Items) == 0 {
		return nil, err
	}
	img := resp.Items[0].VolumeInfo.ImageLinks
	link := img.Thumbnail
	if link == "" {
		link = img.SmallThumbnail
	}
	if link == "" {
		return nil, nil
	}
	return &CoverResult{URL: link, Source: CoverSourceGoogleBooks, Size: "thumbnail"}, nil
}

func (p *GoogleBooksProvider) ResolveISBN(ctx context.Context, sc *ServiceContext, title, author string) (*ISBNResolveResult, error) {
	q := fmt.Sprintf("intitle:%s", title)
	if author != "" {
		q += fmt.Sprintf("+inauthor:%s", author)
	}
	resp, err := Fetch[googleVolumesResponse](p.client, sc, p.searchURL(q), p.fetchOpts("isbn_resolution"))
	if err != nil || resp == nil || len(resp.Items) == 0 {
		return nil, err
	}
	v := resp.Items[0].VolumeInfo
	if TitleSimilarity(v.Title, title) < 0.7 {
		return nil, nil
	}
	for _, id := range v.IndustryIdentifiers {
		if id.Type == "ISBN_13" && ValidISBN(id.Identifier) {
			return &ISBNResolveResult{ISBN: id.Identifier, Confidence: 60, Source: p.Name()}, nil
		}
	}
	return nil, nil
}
