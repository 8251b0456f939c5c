package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// turns a sentence into a short visual search phrase
type Suggester interface {
	// Suggest returns "" when the sentence has no clear visual.
	Suggest(ctx context.Context, sentence string) (string, error)
}

// suggestion service provider
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

type Options struct {
	Model  string
	Prompt string // extra instructions appended to the prompt

	// Languages, when set, tells the model which language a sentence is in
	// so it can still answer with an English search query.
	Languages LanguageDetector
}

// creates Suggester based on provider
func Factory(
	ctx context.Context,
	provider Provider,
	apiKey string,
	opts Options,
) (Suggester, error) {
	switch provider {
	case ProviderGemini:
		return NewGeminiSuggester(ctx, apiKey, opts)
	case ProviderOpenAI:
		return NewOpenAISuggester(ctx, apiKey, opts)
	case ProviderAnthropic:
		return NewAnthropicSuggester(ctx, apiKey, opts)
	default:
		return nil, fmt.Errorf("unsupported suggestion provider: %s", provider)
	}
}

// BuildPrompt creates the keyword prompt for LLM providers. language may be
// empty when unknown.
func BuildPrompt(sentence, language, extra string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Analyze this sentence: %q.\n", sentence))
	if language != "" && !strings.EqualFold(language, "english") {
		sb.WriteString(fmt.Sprintf(
			"The sentence is in %s. Write the keyword in English.\n",
			language,
		))
	}
	sb.WriteString(
		"Identify the most prominent visual keyword or short phrase (2-3 words max) suitable for an image search query.\n",
	)
	sb.WriteString("Focus on concrete nouns or distinct concepts.\n")
	sb.WriteString(
		"If the sentence is too abstract or no clear visual emerges, return null.\n",
	)

	if extra != "" {
		sb.WriteString(fmt.Sprintf("Additional instructions: %s\n", extra))
	}

	sb.WriteString(
		`Respond ONLY with a JSON object containing a single key "suggestion", `,
	)
	sb.WriteString(
		`for example {"suggestion": "red car"} or {"suggestion": null}.`,
	)

	return sb.String()
}

func buildPrompt(opts Options, sentence string) string {
	var language string
	if opts.Languages != nil {
		language, _ = opts.Languages.Detect(sentence)
	}
	return BuildPrompt(sentence, language, opts.Prompt)
}

// ParseSuggestion pulls the suggestion out of a model reply, tolerating code
// fences and text around the JSON. A null or blank suggestion yields "".
func ParseSuggestion(text string) (string, error) {
	text = cleanJSONResponse(text)
	if text == "" {
		return "", fmt.Errorf("empty response")
	}

	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		decoder := json.NewDecoder(strings.NewReader(text[i:]))
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			continue
		}
		if suggestion, ok := tryExtractSuggestion(raw); ok {
			return suggestion, nil
		}
	}

	return "", fmt.Errorf(
		"no suggestion JSON found in response: %s",
		truncateString(text, 200),
	)
}

func tryExtractSuggestion(raw json.RawMessage) (string, bool) {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return "", false
	}

	for _, key := range []string{"suggestion", "keyword", "query"} {
		fieldRaw, exists := wrapper[key]
		if !exists {
			continue
		}
		var value *string
		if err := json.Unmarshal(fieldRaw, &value); err != nil {
			return "", false
		}
		if value == nil {
			return "", true
		}
		return normalize(*value), true
	}

	return "", false
}

func normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	if strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		return ""
	}
	return strings.TrimSpace(s)
}

var jsonBlockRegex = regexp.MustCompile("```(?:json)?\\s*")

func cleanJSONResponse(s string) string {
	s = strings.TrimSpace(s)
	s = jsonBlockRegex.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
