package internal

// Provider-trust bonuses from spec.md §4.10, added to completeness and
// capped at 100.
const (
	BonusUserCorrection = 50
	BonusPaidProvider   = 40
	BonusMainstreamFree = 30
	BonusCommunityFree  = 20
)

// EditionCompleteness is the weighted sum of populated fields for an
// Edition (sum of raw weights is 50); the external-ID bonus and
// provider-trust bonus are added by the caller, and QualityScore caps the
// total at 100.
func EditionCompleteness(e Edition) int {
	score := 0
	if e.Title != "" {
		score += 10
	}
	if e.Covers.Large != "" {
		score += 10
	}
	if e.Publisher != "" {
		score += 5
	}
	if e.PublicationDate != "" {
		score += 5
	}
	if e.PageCount > 0 {
		score += 5
	}
	if e.Language != "" {
		score += 5
	}
	if e.Format != "" {
		score += 5
	}
	if e.Covers.Medium != "" {
		score += 3
	}
	if e.Covers.Small != "" {
		score += 2
	}
	return score
}

// WorkCompleteness mirrors EditionCompleteness for Work, with the long/
// short description buckets mutually exclusive (long wins).
func WorkCompleteness(w Work) int {
	score := 0
	if w.Title != "" {
		score += 10
	}
	switch {
	case len(w.Description) > 200:
		score += 15
	case len(w.Description) > 50:
		score += 15
	}
	// cover_large is scored at the edition level in this model: a Work's
	// representative cover is read off its best edition, out of this
	// core's scope (spec.md §1 Non-goals names the read surface out).
	if len(w.SubjectTags) > 0 {
		score += 10
	}
	// original_language is not scored: Work carries no language field in
	// this model (language is tracked on the edition).
	if w.FirstPubYear > 0 {
		score += 5
	}
	return score
}

// AuthorCompleteness mirrors EditionCompleteness for Author, weighting the
// biography highest since it's the field the harvest workflow exists to
// fill.
func AuthorCompleteness(a Author) int {
	score := 0
	if a.Bio != "" {
		score += 20
	}
	if a.Nationality != "" {
		score += 5
	}
	if a.BirthDate != "" {
		score += 5
	}
	if a.DeathDate != "" {
		score += 3
	}
	if a.Gender != "" {
		score += 2
	}
	if len(a.Occupations) > 0 {
		score += 5
	}
	if len(a.Movements) > 0 {
		score += 5
	}
	if len(a.Awards) > 0 {
		score += 5
	}
	if len(a.Places) > 0 {
		score += 5
	}
	return score
}

// ExternalIDBonus adds 5 per distinct external-ID mapping. It is not capped
// itself; QualityScore caps the combined total at 100.
func ExternalIDBonus(externalIDs map[string]string) int {
	return 5 * len(externalIDs)
}

func cappedScore(base, bonus int) int {
	s := base + bonus
	if s > 100 {
		return 100
	}
	if s < 0 {
		return 0
	}
	return s
}

// QualityScore combines completeness with a provider-trust bonus, capped
// at 100, per spec.md §4.10.
func QualityScore(completeness int, providerBonus int) int {
	return cappedScore(completeness, providerBonus)
}

// ProviderBonus maps a provider type/tier to its trust bonus.
func ProviderBonus(tier string) int {
	switch tier {
	case "user-correction":
		return BonusUserCorrection
	case "paid-provider":
		return BonusPaidProvider
	case "mainstream-free":
		return BonusMainstreamFree
	case "community-free":
		return BonusCommunityFree
	default:
		return 0
	}
}

// writeDecision is the outcome of the merge-policy gate in spec.md §4.10.
type writeDecision int

const (
	writeSkip writeDecision = iota
	writeFull
	writeFieldsOnly
)

// decideWriteBack implements the merge policy: write if the row is new
// (handled by the caller before invoking this), write fully if incoming
// quality exceeds existing by more than 10, otherwise fill only empty
// fields, otherwise skip. An incoming score of exactly existing+10 is NOT
// a significant improvement (spec.md §8's boundary behavior) and falls
// through to field-filling.
func decideWriteBack(existingScore, incomingScore int, existing, incoming Edition) (writeDecision, Edition) {
	if incomingScore > existingScore+10 {
		return writeFull, incoming
	}
	merged := existing
	filled := false
	if merged.Title == "" && incoming.Title != "" {
		merged.Title = incoming.Title
		filled = true
	}
	if merged.Subtitle == "" && incoming.Subtitle != "" {
		merged.Subtitle = incoming.Subtitle
		filled = true
	}
	if merged.Publisher == "" && incoming.Publisher != "" {
		merged.Publisher = incoming.Publisher
		filled = true
	}
	if merged.PublicationDate == "" && incoming.PublicationDate != "" {
		merged.PublicationDate = incoming.PublicationDate
		filled = true
	}
	if merged.PageCount == 0 && incoming.PageCount != 0 {
		merged.PageCount = incoming.PageCount
		filled = true
	}
	if merged.Language == "" && incoming.Language != "" {
		merged.Language = incoming.Language
		filled = true
	}
	if merged.Format == "" && incoming.Format != "" {
		merged.Format = incoming.Format
		filled = true
	}
	if merged.Covers.Small == "" && incoming.Covers.Small != "" {
		merged.Covers.Small = incoming.Covers.Small
		filled = true
	}
	if merged.Covers.Medium == "" && incoming.Covers.Medium != "" {
		merged.Covers.Medium = incoming.Covers.Medium
		filled = true
	}
	if merged.Covers.Large == "" && incoming.Covers.Large != "" {
		merged.Covers.Large = incoming.Covers.Large
		filled = true
	}
	if !filled {
		return writeSkip, existing
	}
	return writeFieldsOnly, merged
}

// decideWriteBackWork is decideWriteBack's Work counterpart: same
// full-write-if->10-better, else fill-empty-fields-only, else skip gate.
func decideWriteBackWork(existingScore, incomingScore int, existing, incoming Work) (writeDecision, Work) {
	if incomingScore > existingScore+10 {
		return writeFull, incoming
	}
	merged := existing
	filled := false
	if merged.Title == "" && incoming.Title != "" {
		merged.Title = incoming.Title
		filled = true
	}
	if merged.Description == "" && incoming.Description != "" {
		merged.Description = incoming.Description
		filled = true
	}
	if len(merged.SubjectTags) == 0 && len(incoming.SubjectTags) > 0 {
		merged.SubjectTags = incoming.SubjectTags
		filled = true
	}
	if merged.FirstPubYear == 0 && incoming.FirstPubYear != 0 {
		merged.FirstPubYear = incoming.FirstPubYear
		filled = true
	}
	if !filled {
		return writeSkip, existing
	}
	return writeFieldsOnly, merged
}

// decideWriteBackAuthor is decideWriteBack's Author counterpart.
func decideWriteBackAuthor(existingScore, incomingScore int, existing, incoming Author) (writeDecision, Author) {
	if incomingScore > existingScore+10 {
		return writeFull, incoming
	}
	merged := existing
	filled := false
	if merged.Gender == "" && incoming.Gender != "" {
		merged.Gender = incoming.Gender
		filled = true
	}
	if merged.Nationality == "" && incoming.Nationality != "" {
		merged.Nationality = incoming.Nationality
		filled = true
	}
	if merged.BirthDate == "" && incoming.BirthDate != "" {
		merged.BirthDate = incoming.BirthDate
		filled = true
	}
	if merged.DeathDate == "" && incoming.DeathDate != "" {
		merged.DeathDate = incoming.DeathDate
		filled = true
	}
	if len(merged.Places) == 0 && len(incoming.Places) > 0 {
		merged.Places = incoming.Places
		filled = true
	}
	if len(merged.Occupations) == 0 && len(incoming.Occupations) > 0 {
		merged.Occupations = incoming.Occupations
		filled = true
	}
	if len(merged.Movements) == 0 && len(incoming.Movements) > 0 {
		merged.Movements = incoming.Movements
		filled = true
	}
	if len(merged.Awards) == 0 && len(incoming.Awards) > 0 {
		merged.Awards = incoming.Awards
		filled = true
	}
	if merged.Bio == "" && incoming.Bio != "" {
		merged.Bio = incoming.Bio
		merged.BioSource = incoming.BioSource
		filled = true
	}
	if len(incoming.ExternalIDs) > 0 {
		cloned := make(map[string]string, len(merged.ExternalIDs)+len(incoming.ExternalIDs))
		for k, v := range merged.ExternalIDs {
			cloned[k] = v
		}
		merged.ExternalIDs = cloned
		for k, v := range incoming.ExternalIDs {
			if _, exists := merged.ExternalIDs[k]; !exists {
				merged.ExternalIDs[k] = v
				filled = true
			}
		}
	}
	if !filled {
		return writeSkip, existing
	}
	return writeFieldsOnly, merged
}

// SyntheticWorkInitialScore and related constants from spec.md §4.10.
const (
	SyntheticWorkInitialScore        = 30
	SyntheticWorkFailedResolutionScore = 40
	SyntheticWorkEnhancedScore        = 80
	EnhancementCandidateThreshold     = 50
	MaxEnhancementsPerDay             = 500
)
