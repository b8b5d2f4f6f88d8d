// Package priority maps a subscription tier to an integer admission
// priority for the scrape job queue. Lower values dequeue sooner.
package priority

// Subscription tiers, highest-paying first.
const (
	TierScale    = "scale"
	TierStandard = "standard"
	TierStarter  = "starter"
	TierFree     = "free"
)

// Base offsets per call site. Search-derived scrapes are less urgent
// than direct single-URL scrapes, so they start from a larger base.
const (
	BaseScrape = 10
	BaseSearch = 20
)

// tierOffset orders tiers within one base band.
var tierOffset = map[string]int{
	TierScale:    0,
	TierStandard: 2,
	TierStarter:  4,
	TierFree:     8,
}

// For returns the admission priority for a tier at the given base
// offset. Unknown tiers rank with free. Pure function, safe to call
// concurrently.
func For(tier string, base int) int {
	off, ok := tierOffset[tier]
	if !ok {
		off = tierOffset[TierFree]
	}
	return base + off
}
