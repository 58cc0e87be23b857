package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiProvider implements Provider using Google's Gemini models.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider initializes a new Gemini client.
// apiKey should be provided from environment variables.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

// Close cleans up the Gemini client resources.
func (p *GeminiProvider) Close() {
	p.client.Close()
}

// Chat sends the conversation and returns the full reply text.
func (p *GeminiProvider) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	model := p.model(opts)

	resp, err := model.GenerateContent(ctx, genai.Text(flattenMessages(messages)))
	if err != nil {
		return "", fmt.Errorf("gemini generation error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response candidates from Gemini")
	}
	return partsText(resp.Candidates[0].Content.Parts), nil
}

// StreamChat delivers the reply incrementally through emit.
func (p *GeminiProvider) StreamChat(ctx context.Context, messages []Message, opts ChatOptions, emit func(chunk string) error) error {
	model := p.model(opts)

	iter := model.GenerateContentStream(ctx, genai.Text(flattenMessages(messages)))
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("gemini stream error: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		if chunk := partsText(resp.Candidates[0].Content.Parts); chunk != "" {
			if err := emit(chunk); err != nil {
				return err
			}
		}
	}
}

// model builds a per-call handle. Use Gemini 2.0 Flash for low latency and
// cost efficiency.
func (p *GeminiProvider) model(opts ChatOptions) *genai.GenerativeModel {
	model := p.client.GenerativeModel("gemini-2.0-flash")
	if opts.JSONResponse {
		// Force JSON response for structured parsing.
		model.ResponseMIMEType = "application/json"
	}
	if opts.Temperature > 0 {
		model.SetTemperature(opts.Temperature)
	}
	return model
}

// flattenMessages combines system prompt and turns into a single prompt.
// Note: While Gemini supports SystemInstruction, appending context directly
// to the prompt is often more flexible for dynamic context injection per
// request.
func flattenMessages(messages []Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch m.Role {
		case RoleSystem:
			b.WriteString(m.Content)
		case RoleAssistant:
			b.WriteString("Assistant: " + m.Content)
		default:
			b.WriteString("User: " + m.Content)
		}
	}
	return b.String()
}

func partsText(parts []genai.Part) string {
	var b strings.Builder
	for _, part := range parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}
