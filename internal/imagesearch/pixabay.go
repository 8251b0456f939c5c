package imagesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mgpai22/chitra/internal/config"
)

const pixabayEndpoint = "https://pixabay.com/api/"

// implements Searcher using the Pixabay photo API
type PixabaySearcher struct {
	apiKey  string
	baseURL string
	options Options
	client  *http.Client
}

func NewPixabaySearcher(apiKey string, opts Options) (*PixabaySearcher, error) {
	if apiKey == "" {
		return nil, &config.CredentialError{Service: "pixabay", EnvVar: config.EnvPixabay}
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = pixabayEndpoint
	}

	return &PixabaySearcher{
		apiKey:  apiKey,
		baseURL: baseURL,
		options: opts,
		client:  opts.client(),
	}, nil
}

type pixabayResponse struct {
	Total int `json:"total"`
	Hits  []struct {
		WebformatURL  string `json:"webformatURL"`
		LargeImageURL string `json:"largeImageURL"`
	} `json:"hits"`
}

func (s *PixabaySearcher) Search(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil
	}

	params := url.Values{}
	params.Set("key", s.apiKey)
	params.Set("q", query)
	params.Set("image_type", "photo")
	params.Set("orientation", "horizontal")
	params.Set("safesearch", "true")
	params.Set("per_page", strconv.Itoa(s.options.perPage()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to search pixabay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &StatusError{
			Provider:   ProviderPixabay,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var result pixabayResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode pixabay response: %w", err)
	}

	for _, hit := range result.Hits {
		if hit.WebformatURL != "" {
			return hit.WebformatURL, nil
		}
		if hit.LargeImageURL != "" {
			return hit.LargeImageURL, nil
		}
	}
	return "", nil
}
