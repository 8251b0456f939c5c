package suggest

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mgpai22/chitra/internal/config"
)

// implements Suggester using OpenAI Chat Completions
type OpenAISuggester struct {
	client  openai.Client
	model   string
	options Options
}

func NewOpenAISuggester(
	ctx context.Context,
	apiKey string,
	opts Options,
	clientOpts ...option.RequestOption,
) (*OpenAISuggester, error) {
	if apiKey == "" {
		return nil, &config.CredentialError{Service: "openai", EnvVar: config.EnvOpenAI}
	}

	client := openai.NewClient(
		append([]option.RequestOption{option.WithAPIKey(apiKey)}, clientOpts...)...,
	)

	model := opts.Model
	if model == "" {
		model = "gpt-5-mini"
	}

	return &OpenAISuggester{
		client:  client,
		model:   model,
		options: opts,
	}, nil
}

func (s *OpenAISuggester) Suggest(
	ctx context.Context,
	sentence string,
) (string, error) {
	prompt := buildPrompt(s.options, sentence)

	completion, err := s.client.Chat.Completions.New(
		ctx,
		openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Model: s.model,
		},
	)
	if err != nil {
		return "", fmt.Errorf("suggestion failed: %w", err)
	}

	if completion == nil || len(completion.Choices) == 0 {
		return "", fmt.Errorf("empty response from OpenAI")
	}

	responseText := completion.Choices[0].Message.Content
	if responseText == "" {
		return "", fmt.Errorf("no text in OpenAI response")
	}

	return ParseSuggestion(responseText)
}
