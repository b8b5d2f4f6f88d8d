package models

// SearchRequest is the payload for POST /api/v1/search.
type SearchRequest struct {
	// Query is the search term. Required.
	Query string `json:"query" binding:"required"`

	// Limit is the maximum number of documents returned.
	// Default: 5. Max: 100.
	Limit int `json:"limit,omitempty" binding:"omitempty,min=1,max=100"`

	// TBS is an opaque time-range token passed through to the provider
	// (e.g. "qdr:d" for past day).
	TBS string `json:"tbs,omitempty"`

	// Lang is the result language code (e.g. "en").
	Lang string `json:"lang,omitempty"`

	// Country is the result country code (e.g. "us").
	Country string `json:"country,omitempty"`

	// Filter is a free-text filter appended to the provider query.
	Filter string `json:"filter,omitempty"`

	// Location is a geographic location string for localized results.
	Location string `json:"location,omitempty"`

	// Advanced enables advanced query operators on providers that
	// support them.
	Advanced bool `json:"advanced,omitempty"`

	// Formats lists the scrape output formats for each result
	// (e.g. "markdown", "html"). When empty no scraping happens and
	// only SERP metadata is returned.
	Formats []string `json:"formats,omitempty" binding:"omitempty,dive,oneof=markdown html text links"`

	// ScrapeTimeout is the per-result scrape deadline in seconds.
	// Default: 60. Max: 120.
	ScrapeTimeout int `json:"scrape_timeout,omitempty" binding:"omitempty,min=1,max=120"`

	// Origin tags where the request came from (e.g. "api", "playground").
	Origin string `json:"origin,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *SearchRequest) Defaults() {
	if r.Limit == 0 {
		r.Limit = 5
	}
	if r.ScrapeTimeout == 0 {
		r.ScrapeTimeout = 60
	}
	if r.Lang == "" {
		r.Lang = "en"
	}
	if r.Country == "" {
		r.Country = "us"
	}
	if r.Origin == "" {
		r.Origin = "api"
	}
}

// WantsScrape reports whether the caller requested any content-scraping
// formats. When false, the pipeline takes the SERP-only fast path.
func (r *SearchRequest) WantsScrape() bool {
	return len(r.Formats) > 0
}

// Tenant identifies the authenticated caller for priority and billing.
type Tenant struct {
	ID   string `json:"id"`
	Tier string `json:"tier"`
}
