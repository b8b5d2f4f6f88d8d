package provider

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	tls2 "github.com/refraction-networking/utls"

	"github.com/use-agent/prospect/models"
)

const (
	webFallbackBaseURL = "https://www.google.com/search"
	chromeUA           = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// WebFallback is the last-resort provider: an unauthenticated Google
// result-page fetch parsed with CSS selectors. Used only when no API
// credentials are configured at all. Requests go out with a Chrome TLS
// fingerprint (utls) to reduce bot detection.
type WebFallback struct {
	client  *http.Client
	baseURL string
}

// NewWebFallback creates the raw fallback provider with its own
// fingerprinted transport.
func NewWebFallback() *WebFallback {
	transport := &http.Transport{
		DialTLSContext: dialTLSChrome,
	}
	return &WebFallback{
		client:  &http.Client{Transport: transport},
		baseURL: webFallbackBaseURL,
	}
}

func (w *WebFallback) Name() string { return "web-fallback" }

// Search fetches one Google result page and extracts organic results.
func (w *WebFallback) Search(ctx context.Context, q Query) ([]models.SerpResult, error) {
	params := url.Values{}
	params.Set("q", q.FullTerm())
	params.Set("num", strconv.Itoa(q.Limit))
	if q.Country != "" {
		params.Set("gl", q.Country)
	}
	if q.Lang != "" {
		params.Set("hl", q.Lang)
	}
	if q.TBS != "" {
		params.Set("tbs", q.TBS)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("web-fallback: build request: %w", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web-fallback: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Provider: w.Name(), Status: resp.StatusCode, Message: "google returned non-200"}
	}

	body := io.LimitReader(resp.Body, 10*1024*1024) // 10 MB cap
	return parseGoogleSERP(body, q.Limit)
}

// parseGoogleSERP extracts organic results from a Google result page.
// Results are anchors wrapping an <h3> heading; ad and navigation links
// have no heading and are skipped.
func parseGoogleSERP(body io.Reader, limit int) ([]models.SerpResult, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("web-fallback: parse html: %w", err)
	}

	var results []models.SerpResult
	seen := make(map[string]struct{})

	doc.Find("a:has(h3)").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		target := cleanGoogleHref(href)
		if target == "" {
			return true
		}
		if _, dup := seen[target]; dup {
			return true
		}
		seen[target] = struct{}{}

		title := strings.TrimSpace(sel.Find("h3").First().Text())

		// The snippet lives in a sibling block within the same result
		// container, not inside the anchor.
		snippet := strings.TrimSpace(sel.Closest("div.g").Find(".VwiC3b").First().Text())

		results = append(results, models.SerpResult{
			URL:         target,
			Title:       title,
			Description: snippet,
		})
		return len(results) < limit
	})

	return results, nil
}

// cleanGoogleHref turns a SERP href into an absolute external URL.
// Google sometimes wraps targets as /url?q=<target>&...; relative or
// google-internal links are dropped.
func cleanGoogleHref(href string) string {
	if strings.HasPrefix(href, "/url?") {
		u, err := url.Parse(href)
		if err != nil {
			return ""
		}
		href = u.Query().Get("q")
	}
	if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "www.google.com" || host == "google.com" || strings.HasSuffix(host, ".google.com") {
		return ""
	}
	return href
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint
// via utls, so the fallback fetch does not present Go's TLS signature.
func dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{}
	rawConn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{
		ServerName: host,
	}, tls2.HelloChrome_Auto)

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}
