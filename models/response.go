package models

// SerpResult is one raw search-engine result before any scraping.
// Produced only by a provider adapter and never mutated afterwards.
type SerpResult struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// DocumentMetadata holds per-document status information.
type DocumentMetadata struct {
	// SourceURL is the originally requested URL.
	SourceURL string `json:"source_url"`

	// StatusCode mirrors the HTTP status of the scrape, or a synthetic
	// code for policy rejections (403) and timeouts (408).
	StatusCode int `json:"status_code,omitempty"`

	// Error is populated for rejected, failed or timed-out documents.
	Error string `json:"error,omitempty"`
}

// Document is one aggregated result: SERP metadata merged with scrape
// output. Title and Description always come from the SERP when present;
// scrape-derived fields fill Content.
type Document struct {
	URL         string           `json:"url"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Content     string           `json:"content,omitempty"`
	Metadata    DocumentMetadata `json:"metadata"`
}

// SearchResponse is the response for POST /api/v1/search.
type SearchResponse struct {
	// Success indicates whether the request completed. Degraded batches
	// (timeouts, empty content) still report success with a warning.
	Success bool `json:"success"`

	// Data is the ordered document list, matching provider order.
	Data []Document `json:"data"`

	// Warning is set for degraded but successful responses.
	Warning string `json:"warning,omitempty"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"` // "healthy" or "degraded"
	Uptime  string `json:"uptime"`
	Queue   string `json:"queue"` // "ok" or the connection error
	Version string `json:"version"`
}
