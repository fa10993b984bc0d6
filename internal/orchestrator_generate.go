package internal

import (
	"context"
	"fmt"
	"time"
)

// PromptVariant is a closed registry of named builders (spec.md §4.6,
// §9): free-form prompts from API input are forbidden to prevent
// injection and keep results comparable across runs.
type PromptVariant string

const (
	VariantBaseline               PromptVariant = "baseline"
	VariantDiversityEmphasis      PromptVariant = "diversity-emphasis"
	VariantOverlookedSignificance PromptVariant = "overlooked-significance"
	VariantGenreRotation          PromptVariant = "genre-rotation"
	VariantEraContextualized      PromptVariant = "era-contextualized"
	VariantAnnual                 PromptVariant = "annual"
)

var promptBuilders = map[PromptVariant]func(year, month int) string{
	VariantBaseline: func(year, month int) string {
		return fmt.Sprintf("List notable books published in %04d-%02d.", year, month)
	},
	VariantDiversityEmphasis: func(year, month int) string {
		return fmt.Sprintf("List notable books by authors from diverse backgrounds published in %04d-%02d.", year, month)
	},
	VariantOverlookedSignificance: func(year, month int) string {
		return fmt.Sprintf("List significant but commonly overlooked books published in %04d-%02d.", year, month)
	},
	VariantGenreRotation: func(year, month int) string {
		return fmt.Sprintf("List notable books across a rotating set of genres published in %04d-%02d.", year, month)
	},
	VariantEraContextualized: func(year, month int) string {
		return fmt.Sprintf("List notable books published in %04d-%02d, noting the cultural context of the era.", year, month)
	},
	VariantAnnual: func(year, month int) string {
		return fmt.Sprintf("List the most notable books of %04d.", year)
	},
}

// BuildPrompt rejects unknown variant names rather than accepting a
// free-form prompt, per spec.md §4.6's prompt-injection guard.
func BuildPrompt(variant PromptVariant, year, month int) (string, error) {
	builder, ok := promptBuilders[variant]
	if !ok {
		return "", wrapValidation("unknown prompt variant %q", variant)
	}
	return builder(year, month), nil
}

// GenerateOrchestrator uses only AI providers; first success wins, no
// further fallback ordering.
type GenerateOrchestrator struct {
	registry *Registry
}

func NewGenerateOrchestrator(reg *Registry) *GenerateOrchestrator {
	return &GenerateOrchestrator{registry: reg}
}

func (o *GenerateOrchestrator) GenerateBooks(sc *ServiceContext, variant PromptVariant, year, month, count int) ([]GeneratedBook, []attemptRecord, error) {
	prompt, err := BuildPrompt(variant, year, month)
	if err != nil {
		return nil, nil, err
	}

	providers := o.registry.GetAvailableProviders(sc.Context(), CapabilityBookGeneration)
	ordered := orderProviders(providers, nil, true)
	timeout := 30 * time.Second // generation is slow relative to lookup calls

	var attempts []attemptRecord
	for _, p := range ordered {
		generator, ok := p.(BookGenerator)
		if !ok {
			continue
		}
		result, rec := runAttempt(sc, p.Name(), timeout, func(ctx context.Context, child *ServiceContext) (*[]GeneratedBook, error) {
			books, err := generator.GenerateBooks(ctx, child, prompt, count)
			if err != nil {
				return nil, err
			}
			return &books, nil
		})
		attempts = append(attempts, rec)
		if result != nil {
			emitFallback(sc, "book_generation", "generate", attempts)
			return *result, attempts, nil
		}
	}
	emitFallback(sc, "book_generation", "generate", attempts)
	return nil, attempts, nil
}
