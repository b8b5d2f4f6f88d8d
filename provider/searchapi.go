package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/use-agent/prospect/models"
)

const searchAPIBaseURL = "https://www.searchapi.io/api/v1/search"

// SearchAPI is the secondary search provider (single key, no rotation).
type SearchAPI struct {
	client  *http.Client
	key     string
	baseURL string
}

// NewSearchAPI creates a SearchAPI adapter with a fixed API key.
func NewSearchAPI(client *http.Client, key string) *SearchAPI {
	return &SearchAPI{client: client, key: key, baseURL: searchAPIBaseURL}
}

func (s *SearchAPI) Name() string { return "searchapi" }

type searchAPIResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

// Search executes one search call against SearchAPI's google engine.
func (s *SearchAPI) Search(ctx context.Context, q Query) ([]models.SerpResult, error) {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", q.FullTerm())
	params.Set("num", strconv.Itoa(q.Limit))
	if q.Country != "" {
		params.Set("gl", q.Country)
	}
	if q.Lang != "" {
		params.Set("hl", q.Lang)
	}
	if q.Location != "" {
		params.Set("location", q.Location)
	}
	if q.TBS != "" {
		params.Set("time_period", q.TBS)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("searchapi: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.key)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searchapi: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &Error{Provider: s.Name(), Status: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
	}

	var parsed searchAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("searchapi: decode response: %w", err)
	}

	results := make([]models.SerpResult, 0, len(parsed.OrganicResults))
	for _, o := range parsed.OrganicResults {
		if o.Link == "" {
			continue
		}
		results = append(results, models.SerpResult{
			URL:         o.Link,
			Title:       o.Title,
			Description: o.Snippet,
		})
		if len(results) == q.Limit {
			break
		}
	}
	return results, nil
}
