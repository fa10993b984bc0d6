package internal

import "context"

// Capability is a declared operation class a provider can implement. The
// set is closed (spec.md §4.4); orchestrators dispatch purely by capability
// lookup against the registry, never by reflection or provider name.
type Capability string

const (
	CapabilityISBNResolution   Capability = "isbn_resolution"
	CapabilityMetadata         Capability = "metadata"
	CapabilityCoverImages      Capability = "cover_images"
	CapabilityAuthorBio        Capability = "author_bio"
	CapabilitySubjectEnrichment Capability = "subject_enrichment"
	CapabilityBookGeneration   Capability = "book_generation"
	CapabilityRatings          Capability = "ratings"
	CapabilityEditionVariants  Capability = "edition_variants"
	CapabilityPublicDomain     Capability = "public_domain"
	CapabilitySubjectBrowsing  Capability = "subject_browsing"
	CapabilitySeriesInfo       Capability = "series_info"
	CapabilityAwards           Capability = "awards"
	CapabilityTranslations     Capability = "translations"
	CapabilityExternalIDs      Capability = "external_ids"
)

// ProviderType hints at ordering: free providers run first for free
// capabilities, the paid provider last to preserve quota, AI providers are
// only eligible for book generation.
type ProviderType string

const (
	ProviderFree ProviderType = "free"
	ProviderPaid ProviderType = "paid"
	ProviderAI   ProviderType = "ai"
)

// Provider is the base contract every capability implementation satisfies,
// grounded on the Provider/ResumableProvider/DeferrableProvider interface
// family in other_examples/.../FitGlue-server's enrichment providers —
// generalized here from FitGlue's activity-enrichment domain to this
// spec's book-metadata capabilities.
type Provider interface {
	Name() string
	ProviderType() ProviderType
	Capabilities() []Capability
	// IsAvailable reports true iff required secrets/keys are present and,
	// for paid providers, quota is not exhausted.
	IsAvailable(ctx context.Context) bool
}

// ISBNResolveResult is the outcome of an ISBN resolver's Search → Validate
// flow (spec.md §4.4). A nil result with no error means no candidate
// passed validation.
type ISBNResolveResult struct {
	ISBN       string
	Confidence int
	Source     string
	Metadata   map[string]string
}

// ISBNResolver implements capability ISBNResolution.
type ISBNResolver interface {
	Provider
	ResolveISBN(ctx context.Context, sc *ServiceContext, title, author string) (*ISBNResolveResult, error)
}

// MetadataProvider implements capability Metadata.
type MetadataProvider interface {
	Provider
	FetchMetadata(ctx context.Context, sc *ServiceContext, isbn string) (*BookMetadata, error)
}

// BatchMetadataProvider is an optional extension of MetadataProvider.
type BatchMetadataProvider interface {
	MetadataProvider
	BatchFetchMetadata(ctx context.Context, sc *ServiceContext, isbns []string) (map[string]*BookMetadata, error)
}

// CoverResult is the outcome of a cover provider lookup.
type CoverResult struct {
	URL    string
	Source CoverSource
	Size   string
}

// CoverProvider implements capability CoverImages.
type CoverProvider interface {
	Provider
	FetchCover(ctx context.Context, sc *ServiceContext, isbn string) (*CoverResult, error)
}

// PublicDomainReason is the closed set of justifications a public-domain
// check can report.
type PublicDomainReason string

const (
	ReasonPublicationDate      PublicDomainReason = "publication-date"
	ReasonCopyrightExpiration  PublicDomainReason = "copyright-expiration"
	ReasonExplicitLicense      PublicDomainReason = "explicit-license"
	ReasonAPIVerified          PublicDomainReason = "api-verified"
	ReasonUnknown              PublicDomainReason = "unknown"
)

// PublicDomainResult is the outcome of a public-domain check.
type PublicDomainResult struct {
	IsPublicDomain   bool
	Confidence       int
	Reason           PublicDomainReason
	CopyrightExpiry  string
	DownloadURL      string
}

// PublicDomainProvider implements capability PublicDomain.
type PublicDomainProvider interface {
	Provider
	CheckPublicDomain(ctx context.Context, sc *ServiceContext, isbn string) (*PublicDomainResult, error)
}

// BookGenerator implements capability BookGeneration. Only AI providers may
// implement this.
type BookGenerator interface {
	Provider
	GenerateBooks(ctx context.Context, sc *ServiceContext, prompt string, count int) ([]GeneratedBook, error)
}

// AuthorBioProvider implements capability AuthorBio.
type AuthorBioProvider interface {
	Provider
	FetchAuthorBio(ctx context.Context, sc *ServiceContext, authorName string) (*Author, error)
}

// DeferrableProvider is an optional extension gating orchestrator ordering:
// a provider that should run only after other providers have produced a
// baseline result. Grounded on FitGlue's DeferrableProvider, generalized
// here for metadata providers that enrich rather than originate a field
// (e.g. an AI summarizer that polishes a description already fetched).
type DeferrableProvider interface {
	Provider
	ShouldDefer() bool
}
