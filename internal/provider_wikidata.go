package internal

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// WikidataProvider supplies author biography and external-ID enrichment
// (spec.md §4.4), queried via Wikidata's SPARQL endpoint.
type WikidataProvider struct {
	client *Client
}

func NewWikidataProvider(client *Client) *WikidataProvider {
	return &WikidataProvider{client: client}
}

func (p *WikidataProvider) Name() string              { return "wikidata" }
func (p *WikidataProvider) ProviderType() ProviderType { return ProviderFree }

func (p *WikidataProvider) Capabilities() []Capability {
	return []Capability{CapabilityAuthorBio, CapabilityExternalIDs}
}

func (p *WikidataProvider) IsAvailable(ctx context.Context) bool { return true }

type wikidataSparqlResponse struct {
	Results struct {
		Bindings []struct {
			Person      struct{ Value string } `json:"person"`
			Description struct{ Value string } `json:"personDescription"`
			ViafID      struct{ Value string } `json:"viafID"`
			ISNI        struct{ Value string } `json:"isni"`
			GoodreadsID struct{ Value string } `json:"goodreadsID"`
			BirthDate   struct{ Value string } `json:"birthDate"`
			DeathDate   struct{ Value string } `json:"deathDate"`
		} `json:"bindings"`
	} `json:"results"`
}

// authorBioQuery is a fixed SPARQL template; the author name is the only
// variable, injected as a quoted literal rather than interpolated into
// query structure, closing off SPARQL injection the same way parameterized
// SQL closes off injection in persist.go.
const authorBioQuery = `
SELECT ?person ?personDescription ?viafID ?isni ?goodreadsID ?birthDate ?deathDate WHERE {
  ?person rdfs:label "%s"@en.
  ?person wdt:P31 wd:Q5.
  OPTIONAL { ?person wdt:P214 ?viafID. }
  OPTIONAL { ?person wdt:P213 ?isni. }
  OPTIONAL { ?person wdt:P2963 ?goodreadsID. }
  OPTIONAL { ?person wdt:P569 ?birthDate. }
  OPTIONAL { ?person wdt:P570 ?deathDate. }
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en". }
} LIMIT 1`

func (p *WikidataProvider) FetchAuthorBio(ctx context.Context, sc *ServiceContext, authorName string) (*Author, error) {
	q := url.Values{}
	q.Set("query", sparqlFor(authorName))
	q.Set("format", "json")
	u := "https://query.wikidata.org/sparql?" + q.Encode()

	resp, err := Fetch[wikidataSparqlResponse](p.client, sc, u, FetchOptions{
		TTL: 30 * 24 * time.Hour, Purpose: "author_bio",
	})
	if err != nil || resp == nil || len(resp.Results.Bindings) == 0 {
		return nil, err
	}
	b := resp.Results.Bindings[0]
	externalIDs := map[string]string{}
	if b.ViafID.Value != "" {
		externalIDs["viaf"] = b.ViafID.Value
	}
	if b.ISNI.Value != "" {
		externalIDs["isni"] = b.ISNI.Value
	}
	if b.GoodreadsID.Value != "" {
		externalIDs["goodreads"] = b.GoodreadsID.Value
	}
	return &Author{
		Name:           authorName,
		NormalizedName: NormalizeAuthorName(authorName),
		Bio:            b.Description.Value,
		BioSource:      p.Name(),
		BirthDate:      b.BirthDate.Value,
		DeathDate:      b.DeathDate.Value,
		ExternalIDs:    externalIDs,
	}, nil
}

func sparqlFor(authorName string) string {
	return fmt.Sprintf(authorBioQuery, escapeSparqlLiteral(authorName))
}

func escapeSparqlLiteral(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
