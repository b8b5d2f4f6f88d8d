package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/use-agent/prospect/models"
)

const serperBaseURL = "https://google.serper.dev/search"

// Serper is the primary, key-rotatable search provider.
type Serper struct {
	client  *http.Client
	baseURL string
}

// NewSerper creates a Serper adapter using the given HTTP client.
func NewSerper(client *http.Client) *Serper {
	return &Serper{client: client, baseURL: serperBaseURL}
}

func (s *Serper) Name() string { return "serper" }

type serperRequest struct {
	Q        string `json:"q"`
	Num      int    `json:"num"`
	GL       string `json:"gl,omitempty"`
	HL       string `json:"hl,omitempty"`
	TBS      string `json:"tbs,omitempty"`
	Location string `json:"location,omitempty"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// SearchWithKey executes one search call with the given API key.
// Rate-limit and authorization failures come back as *Error with
// Retryable()=true so the resolver can rotate to the next credential.
func (s *Serper) SearchWithKey(ctx context.Context, key string, q Query) ([]models.SerpResult, error) {
	payload, err := json.Marshal(serperRequest{
		Q:        q.FullTerm(),
		Num:      q.Limit,
		GL:       q.Country,
		HL:       q.Lang,
		TBS:      q.TBS,
		Location: q.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("serper: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("serper: build request: %w", err)
	}
	req.Header.Set("X-API-KEY", key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serper: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &Error{Provider: s.Name(), Status: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
	}

	var parsed serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("serper: decode response: %w", err)
	}

	results := make([]models.SerpResult, 0, len(parsed.Organic))
	for _, o := range parsed.Organic {
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
