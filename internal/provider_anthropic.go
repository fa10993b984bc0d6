package internal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider is the sole AI provider (spec.md §4.4/§4.6): book
// generation only, never consulted for any other capability, and only ever
// ordered after the prompt has already been validated against the closed
// PromptVariant registry.
type AnthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model
	apiKey string
}

func NewAnthropicProvider(apiKey string, model anthropic.Model) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		apiKey: apiKey,
	}
}

func (p *AnthropicProvider) Name() string              { return "anthropic" }
func (p *AnthropicProvider) ProviderType() ProviderType { return ProviderAI }

func (p *AnthropicProvider) Capabilities() []Capability {
	return []Capability{CapabilityBookGeneration}
}

func (p *AnthropicProvider) IsAvailable(ctx context.Context) bool {
	return p.apiKey != ""
}

// generatedBookList is the JSON shape the system prompt instructs the model
// to emit, so the response can be parsed without an extra classification
// pass.
type generatedBookList struct {
	Books []GeneratedBook `json:"books"`
}

const bookGenerationSystemPrompt = `You produce structured lists of real, published books matching the user's
request. Respond with a single JSON object of the shape
{"books":[{"title":"","author":"","publisher":"","format":"","year":0,"significance":""}]}
and nothing else. Never invent books; omit an entry if you are not
confident it exists.`

func (p *AnthropicProvider) GenerateBooks(ctx context.Context, sc *ServiceContext, prompt string, count int) ([]GeneratedBook, error) {
	userPrompt := fmt.Sprintf("%s Return up to %d books.", prompt, count)

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: bookGenerationSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, wrapProvider(ErrProvider, p.Name(), err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, nil
	}

	var parsed generatedBookList
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		Log(ctx).Warn("anthropic response was not valid JSON", "err", Sanitize(err.Error()))
		return nil, nil
	}
	if len(parsed.Books) > count {
		parsed.Books = parsed.Books[:count]
	}
	return parsed.Books, nil
}
