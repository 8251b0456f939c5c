package suggest

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/mgpai22/chitra/internal/config"
)

// implements Suggester using Google Gemini
type GeminiSuggester struct {
	client  *genai.Client
	model   string
	options Options
}

func NewGeminiSuggester(
	ctx context.Context,
	apiKey string,
	opts Options,
) (*GeminiSuggester, error) {
	if apiKey == "" {
		return nil, &config.CredentialError{Service: "gemini", EnvVar: config.EnvGemini}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	return &GeminiSuggester{
		client:  client,
		model:   model,
		options: opts,
	}, nil
}

func (s *GeminiSuggester) Suggest(
	ctx context.Context,
	sentence string,
) (string, error) {
	prompt := buildPrompt(s.options, sentence)

	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := s.client.Models.GenerateContent(
		ctx,
		s.model,
		contents,
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return "", fmt.Errorf("suggestion failed: %w", err)
	}

	return parseGeminiResponse(result)
}

func parseGeminiResponse(result *genai.GenerateContentResponse) (string, error) {
	if result == nil || len(result.Candidates) == 0 {
		return "", fmt.Errorf("empty response from Gemini")
	}

	var responseText string
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				responseText += part.Text
			}
		}
		if responseText != "" {
			break
		}
	}

	if responseText == "" {
		return "", fmt.Errorf("no text in Gemini response")
	}

	return ParseSuggestion(responseText)
}
