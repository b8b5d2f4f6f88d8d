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

const googleCSEBaseURL = "https://www.googleapis.com/customsearch/v1"

// googleCSEPageSize is the API's hard maximum for num per request.
const googleCSEPageSize = 10

// GoogleCSE is the tertiary search provider (Google Custom Search
// Engine JSON API, single key plus a shared engine id).
type GoogleCSE struct {
	client   *http.Client
	key      string
	engineID string
	baseURL  string
}

// NewGoogleCSE creates a Google CSE adapter.
func NewGoogleCSE(client *http.Client, key, engineID string) *GoogleCSE {
	return &GoogleCSE{client: client, key: key, engineID: engineID, baseURL: googleCSEBaseURL}
}

func (g *GoogleCSE) Name() string { return "google-cse" }

type googleCSEResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// Search pages through the CSE API until q.Limit results are collected
// or the API runs out of items.
func (g *GoogleCSE) Search(ctx context.Context, q Query) ([]models.SerpResult, error) {
	var results []models.SerpResult
	for start := 1; len(results) < q.Limit; start += googleCSEPageSize {
		page, err := g.page(ctx, q, start)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, r := range page {
			results = append(results, r)
			if len(results) == q.Limit {
				break
			}
		}
	}
	return results, nil
}

func (g *GoogleCSE) page(ctx context.Context, q Query, start int) ([]models.SerpResult, error) {
	num := q.Limit - (start - 1)
	if num > googleCSEPageSize {
		num = googleCSEPageSize
	}

	params := url.Values{}
	params.Set("key", g.key)
	params.Set("cx", g.engineID)
	params.Set("q", q.FullTerm())
	params.Set("num", strconv.Itoa(num))
	params.Set("start", strconv.Itoa(start))
	if q.Country != "" {
		params.Set("gl", q.Country)
	}
	if q.Lang != "" {
		params.Set("hl", q.Lang)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("google-cse: build request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google-cse: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &Error{Provider: g.Name(), Status: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
	}

	var parsed googleCSEResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("google-cse: decode response: %w", err)
	}

	results := make([]models.SerpResult, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link == "" {
			continue
		}
		results = append(results, models.SerpResult{
			URL:         item.Link,
			Title:       item.Title,
			Description: item.Snippet,
		})
	}
	return results, nil
}
