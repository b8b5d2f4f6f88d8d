package provider

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/prospect/keypool"
	"github.com/use-agent/prospect/metrics"
	"github.com/use-agent/prospect/models"
)

// Config selects and configures the provider chain. Exactly one variant
// is chosen at startup by configuration presence, in priority order:
// Serper keys, then SearchAPI key, then Google CSE key+id, then the raw
// web fallback.
type Config struct {
	SerperKeys   []string
	SearchAPIKey string
	GoogleCSEKey string
	GoogleCSEID  string

	// Timeout bounds each upstream HTTP call. Default: 15s.
	Timeout time.Duration
}

// Resolver executes searches against the single provider variant chosen
// at construction, driving credential rotation when that variant is
// key-rotatable.
type Resolver struct {
	keyed    KeyedProvider // set only for the rotatable variant
	pool     *keypool.Pool // credentials for keyed
	provider Provider      // set for all other variants
}

// NewResolver builds the provider chain once from config.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: cfg.Timeout}

	switch {
	case len(cfg.SerperKeys) > 0:
		pool, err := keypool.New(cfg.SerperKeys)
		if err != nil {
			return nil, err
		}
		return &Resolver{keyed: NewSerper(client), pool: pool}, nil
	case cfg.SearchAPIKey != "":
		return &Resolver{provider: NewSearchAPI(client, cfg.SearchAPIKey)}, nil
	case cfg.GoogleCSEKey != "" && cfg.GoogleCSEID != "":
		return &Resolver{provider: NewGoogleCSE(client, cfg.GoogleCSEKey, cfg.GoogleCSEID)}, nil
	default:
		return &Resolver{provider: NewWebFallback()}, nil
	}
}

// ProviderName reports which variant the resolver is configured with.
func (r *Resolver) ProviderName() string {
	if r.keyed != nil {
		return r.keyed.Name()
	}
	return r.provider.Name()
}

// Search resolves the query and fails open: any provider failure is
// logged and degrades to an empty result list, never an error. Callers
// must tolerate empty results.
func (r *Resolver) Search(ctx context.Context, q Query) []models.SerpResult {
	results, err := r.resolve(ctx, q)
	if err != nil {
		metrics.ProviderFailures.WithLabelValues(r.ProviderName()).Inc()
		slog.Error("search provider failed, degrading to empty results",
			"provider", r.ProviderName(),
			"query", q.Term,
			"error", err,
		)
		return nil
	}
	return results
}

// resolve executes the configured variant. For the key-rotatable
// variant it retries the same logical call with the next credential on
// rate-limit or authorization failures, each credential at most once.
func (r *Resolver) resolve(ctx context.Context, q Query) ([]models.SerpResult, error) {
	if r.keyed == nil {
		return r.provider.Search(ctx, q)
	}

	var last *Error
	// Cycle snapshots the rotation position once, so this call tries
	// each credential exactly once even when concurrent calls advance
	// the shared counter.
	cycle := r.pool.Cycle()
	for i, cred := range cycle {
		results, err := r.keyed.SearchWithKey(ctx, cred.Secret, q)
		if err == nil {
			return results, nil
		}

		pe, ok := AsProviderError(err)
		if !ok || !pe.Retryable() {
			return nil, err
		}
		last = pe
		slog.Warn("rotating provider credential after retryable failure",
			"provider", r.keyed.Name(),
			"credential", cred.Truncated(),
			"status", pe.Status,
			"attempt", i+1,
			"of", len(cycle),
		)
	}
	return nil, &ExhaustedError{Attempts: len(cycle), Last: last}
}
