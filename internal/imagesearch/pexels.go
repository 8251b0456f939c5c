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

const pexelsEndpoint = "https://api.pexels.com/v1/search"

// implements Searcher using the Pexels photo API
type PexelsSearcher struct {
	apiKey  string
	baseURL string
	options Options
	client  *http.Client
}

func NewPexelsSearcher(apiKey string, opts Options) (*PexelsSearcher, error) {
	if apiKey == "" {
		return nil, &config.CredentialError{Service: "pexels", EnvVar: config.EnvPexels}
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = pexelsEndpoint
	}

	return &PexelsSearcher{
		apiKey:  apiKey,
		baseURL: baseURL,
		options: opts,
		client:  opts.client(),
	}, nil
}

type pexelsResponse struct {
	Photos []struct {
		Src struct {
			Landscape string `json:"landscape"`
			Large     string `json:"large"`
			Medium    string `json:"medium"`
		} `json:"src"`
	} `json:"photos"`
}

func (s *PexelsSearcher) Search(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("orientation", "landscape")
	params.Set("per_page", strconv.Itoa(s.options.perPage()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to search pexels: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &StatusError{
			Provider:   ProviderPexels,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var result pexelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode pexels response: %w", err)
	}

	for _, photo := range result.Photos {
		for _, candidate := range []string{photo.Src.Landscape, photo.Src.Large, photo.Src.Medium} {
			if candidate != "" {
				return candidate, nil
			}
		}
	}
	return "", nil
}
