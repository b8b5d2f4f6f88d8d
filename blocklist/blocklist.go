// Package blocklist rejects URLs whose host matches a configured set of
// blocked domains. Blocked URLs never reach the scrape queue; they are
// resolved immediately to a rejection document by the pipeline.
package blocklist

import (
	"net/url"
	"strings"
)

// RejectionMessage is the fixed message attached to blocked documents.
const RejectionMessage = "this website is not supported, try a different query or url"

// DefaultDomains are blocked out of the box. Mostly social platforms
// whose terms prohibit automated scraping.
var DefaultDomains = []string{
	"facebook.com",
	"instagram.com",
	"tiktok.com",
	"x.com",
	"twitter.com",
	"linkedin.com",
	"reddit.com",
	"youtube.com",
}

// List holds blocked domains. Matching is by registrable-suffix: a
// domain entry blocks itself and all its subdomains. Immutable after
// construction, safe for concurrent use.
type List struct {
	domains []string
}

// New builds a List from the given domains plus DefaultDomains.
// Entries are lowercased and stripped of a leading "www.".
func New(extra []string) *List {
	seen := make(map[string]struct{})
	var domains []string
	for _, d := range append(append([]string{}, DefaultDomains...), extra...) {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d == "" {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		domains = append(domains, d)
	}
	return &List{domains: domains}
}

// Blocked reports whether rawURL's host is on the list. Unparseable
// URLs are not blocked; they fail later at scrape time instead.
func (l *List) Blocked(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, d := range l.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
