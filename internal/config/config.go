package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingCredential marks configuration errors: a required service has
// no usable API key.
var ErrMissingCredential = errors.New("missing API credential")

// CredentialError names the service and the env var that should hold its key.
type CredentialError struct {
	Service string
	EnvVar  string
}

func (e *CredentialError) Error() string {
	if e.EnvVar == "" {
		return fmt.Sprintf("%s API key is required", e.Service)
	}
	return fmt.Sprintf(
		"%s API key is required: set %s environment variable",
		e.Service,
		e.EnvVar,
	)
}

func (e *CredentialError) Unwrap() error {
	return ErrMissingCredential
}

const (
	EnvAssemblyAI = "ASSEMBLYAI_API_KEY"
	EnvGemini     = "GEMINI_API_KEY"
	EnvOpenAI     = "OPENAI_API_KEY"
	EnvAnthropic  = "ANTHROPIC_API_KEY"
	EnvPixabay    = "PIXABAY_API_KEY"
	EnvPexels     = "PEXELS_API_KEY"

	EnvTranscriber  = "CHITRA_TRANSCRIBER"
	EnvSuggester    = "CHITRA_SUGGESTER"
	EnvImages       = "CHITRA_IMAGES"
	EnvSuggestModel = "CHITRA_SUGGEST_MODEL"
	EnvPresets      = "CHITRA_PRESETS"
	EnvPollTimeout  = "CHITRA_POLL_TIMEOUT"
)

const DefaultPollTimeout = 30 * time.Minute

// Config holds credentials and provider selection for one process.
type Config struct {
	Keys map[string]string // env var -> value

	Transcriber  string
	Suggester    string
	Images       string
	SuggestModel string
	PresetsFile  string
	PollTimeout  time.Duration // 0 disables the limit
}

// Load reads the given env files (missing ones are skipped), then ./.env,
// then the process environment. Values already in the environment win.
func Load(envFiles ...string) (*Config, error) {
	for _, path := range append(envFiles, ".env") {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Keys:         make(map[string]string),
		Transcriber:  getEnvOrDefault(EnvTranscriber, "assemblyai"),
		Suggester:    getEnvOrDefault(EnvSuggester, "gemini"),
		Images:       getEnvOrDefault(EnvImages, "pixabay"),
		SuggestModel: os.Getenv(EnvSuggestModel),
		PresetsFile:  os.Getenv(EnvPresets),
		PollTimeout:  DefaultPollTimeout,
	}

	for _, name := range []string{
		EnvAssemblyAI, EnvGemini, EnvOpenAI, EnvAnthropic, EnvPixabay, EnvPexels,
	} {
		cfg.Keys[name] = strings.TrimSpace(os.Getenv(name))
	}

	if raw := os.Getenv(EnvPollTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", EnvPollTimeout, raw, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("invalid %s %q: must not be negative", EnvPollTimeout, raw)
		}
		cfg.PollTimeout = d
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return strings.ToLower(value)
	}
	return defaultValue
}

// Key returns the credential stored under envVar, treating placeholder
// values such as YOUR_PIXABAY_API_KEY as unset.
func (c *Config) Key(envVar string) string {
	value := c.Keys[envVar]
	if strings.HasPrefix(strings.ToUpper(value), "YOUR_") {
		return ""
	}
	return value
}

// env var holding the key for a provider name
func EnvVarFor(provider string) string {
	switch provider {
	case "assemblyai":
		return EnvAssemblyAI
	case "gemini":
		return EnvGemini
	case "openai":
		return EnvOpenAI
	case "anthropic":
		return EnvAnthropic
	case "pixabay":
		return EnvPixabay
	case "pexels":
		return EnvPexels
	default:
		return ""
	}
}

// Validate reports every missing credential for the selected providers at once.
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]bool)

	for _, provider := range []string{c.Transcriber, c.Suggester, c.Images} {
		envVar := EnvVarFor(provider)
		if envVar == "" {
			errs = append(errs, fmt.Errorf("unknown provider %q", provider))
			continue
		}
		if seen[envVar] {
			continue
		}
		seen[envVar] = true
		if c.Key(envVar) == "" {
			errs = append(errs, &CredentialError{Service: provider, EnvVar: envVar})
		}
	}

	return errors.Join(errs...)
}
