package imagesearch

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// finds a stock image for a query
type Searcher interface {
	// Search returns the best hit's URL, or "" when nothing matched.
	Search(ctx context.Context, query string) (string, error)
}

// image search provider
type Provider string

const (
	ProviderPixabay Provider = "pixabay"
	ProviderPexels  Provider = "pexels"
)

const DefaultPerPage = 3

type Options struct {
	BaseURL    string // overrides the provider endpoint, used by tests
	PerPage    int
	HTTPClient *http.Client
}

func (o Options) perPage() int {
	if o.PerPage > 0 {
		return o.PerPage
	}
	return DefaultPerPage
}

func (o Options) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// creates Searcher based on provider
func Factory(provider Provider, apiKey string, opts Options) (Searcher, error) {
	switch provider {
	case ProviderPixabay:
		return NewPixabaySearcher(apiKey, opts)
	case ProviderPexels:
		return NewPexelsSearcher(apiKey, opts)
	default:
		return nil, fmt.Errorf("unsupported image provider: %s", provider)
	}
}

// non-2xx reply from an image API
type StatusError struct {
	Provider   Provider
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s search failed with status %d: %s", e.Provider, e.StatusCode, e.Body)
}
