package suggest

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mgpai22/chitra/internal/config"
)

// implements Suggester using Anthropic Claude
type AnthropicSuggester struct {
	client  anthropic.Client
	model   anthropic.Model
	options Options
}

func NewAnthropicSuggester(
	ctx context.Context,
	apiKey string,
	opts Options,
	clientOpts ...option.RequestOption,
) (*AnthropicSuggester, error) {
	if apiKey == "" {
		return nil, &config.CredentialError{Service: "anthropic", EnvVar: config.EnvAnthropic}
	}

	client := anthropic.NewClient(
		append([]option.RequestOption{option.WithAPIKey(apiKey)}, clientOpts...)...,
	)

	model := anthropic.Model(opts.Model)
	if opts.Model == "" {
		model = anthropic.ModelClaudeHaiku4_5
	}

	return &AnthropicSuggester{
		client:  client,
		model:   model,
		options: opts,
	}, nil
}

func (s *AnthropicSuggester) Suggest(
	ctx context.Context,
	sentence string,
) (string, error) {
	prompt := buildPrompt(s.options, sentence)

	message, err := s.client.Messages.New(
		ctx,
		anthropic.MessageNewParams{
			Model:     s.model,
			MaxTokens: 256,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(
					anthropic.NewTextBlock(prompt),
				),
			},
		},
	)
	if err != nil {
		return "", fmt.Errorf("suggestion failed: %w", err)
	}

	if message == nil || len(message.Content) == 0 {
		return "", fmt.Errorf("empty response from Anthropic")
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	if responseText == "" {
		return "", fmt.Errorf("no text in Anthropic response")
	}

	return ParseSuggestion(responseText)
}
