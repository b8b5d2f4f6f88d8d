package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Provider  ProviderConfig
	Queue     QueueConfig
	Billing   BillingConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
	Blocklist BlocklistConfig
	Tenants   TenantConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// ProviderConfig selects the search provider chain. Presence decides
// the variant: Serper keys first, then SearchAPI, then Google CSE,
// then the raw web fallback.
type ProviderConfig struct {
	// SerperKeys is the ordered credential pool for the primary
	// provider. Rotation cycles through these.
	SerperKeys []string

	// SearchAPIKey enables the secondary provider.
	SearchAPIKey string

	// GoogleCSEKey and GoogleCSEID together enable the tertiary
	// provider (Custom Search Engine key + shared engine id).
	GoogleCSEKey string
	GoogleCSEID  string

	// Timeout bounds each upstream search HTTP call.
	Timeout time.Duration // default: 15s
}

// QueueConfig controls the Redis connection behind the job queue.
type QueueConfig struct {
	RedisAddr     string // default: "localhost:6379"
	RedisPassword string
	RedisDB       int
}

// BillingConfig controls the billing collaborator endpoints.
type BillingConfig struct {
	// ChargeEndpoint receives usage charges. Empty disables delivery.
	ChargeEndpoint string

	// Secret signs charge bodies with HMAC-SHA256 when set.
	Secret string

	// CreditCheckEndpoint gates requests on the tenant's balance.
	// Empty means every tenant is allowed.
	CreditCheckEndpoint string
}

// TenantAccess maps one API key to a tenant identity and tier.
type TenantAccess struct {
	Key      string
	TenantID string
	Tier     string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// Keys maps API keys to tenants. Format in the environment:
	// "key:tenant-id:tier" entries, comma separated.
	Keys []TenantAccess
}

// RateLimitConfig controls per-tenant rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per tenant.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per tenant.
	Burst int // default: 10
}

// CacheConfig controls the search response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses.
	MaxEntries int // default: 1000

	// MaxAge is how long a cached response stays servable.
	// Zero disables the cache.
	MaxAge time.Duration // default: 0 (off)
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"

	// File, when set, routes logs through a size-rotated file instead
	// of stdout.
	File       string
	MaxSizeMB  int // default: 100
	MaxBackups int // default: 3
}

// BlocklistConfig adds domains to the built-in blocklist.
type BlocklistConfig struct {
	ExtraDomains []string
}

// TenantConfig holds per-tenant business overrides.
type TenantConfig struct {
	// ResultLimits forces a maximum result count for specific tenants.
	// Environment format: "tenant-id=1" entries, comma separated.
	ResultLimits map[string]int
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("PROSPECT_HOST", "0.0.0.0"),
			Port: envIntOr("PROSPECT_PORT", 8080),
			Mode: envOr("PROSPECT_MODE", "release"),
		},
		Provider: ProviderConfig{
			SerperKeys:   envSliceOr("SERPER_API_KEYS", nil),
			SearchAPIKey: os.Getenv("SEARCHAPI_KEY"),
			GoogleCSEKey: os.Getenv("GOOGLE_CSE_KEY"),
			GoogleCSEID:  os.Getenv("GOOGLE_CSE_ID"),
			Timeout:      envDurationOr("PROSPECT_PROVIDER_TIMEOUT", 15*time.Second),
		},
		Queue: QueueConfig{
			RedisAddr:     envOr("PROSPECT_REDIS_ADDR", "localhost:6379"),
			RedisPassword: os.Getenv("PROSPECT_REDIS_PASSWORD"),
			RedisDB:       envIntOr("PROSPECT_REDIS_DB", 0),
		},
		Billing: BillingConfig{
			ChargeEndpoint:      os.Getenv("PROSPECT_BILLING_ENDPOINT"),
			Secret:              os.Getenv("PROSPECT_BILLING_SECRET"),
			CreditCheckEndpoint: os.Getenv("PROSPECT_CREDIT_CHECK_ENDPOINT"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PROSPECT_AUTH_ENABLED", true),
			Keys:    parseTenantKeys(os.Getenv("PROSPECT_API_KEYS")),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PROSPECT_RATE_RPS", 5.0),
			Burst:             envIntOr("PROSPECT_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("PROSPECT_CACHE_ENTRIES", 1000),
			MaxAge:     envDurationOr("PROSPECT_CACHE_MAX_AGE", 0),
		},
		Log: LogConfig{
			Level:      envOr("PROSPECT_LOG_LEVEL", "info"),
			Format:     envOr("PROSPECT_LOG_FORMAT", "json"),
			File:       os.Getenv("PROSPECT_LOG_FILE"),
			MaxSizeMB:  envIntOr("PROSPECT_LOG_MAX_SIZE_MB", 100),
			MaxBackups: envIntOr("PROSPECT_LOG_MAX_BACKUPS", 3),
		},
		Blocklist: BlocklistConfig{
			ExtraDomains: envSliceOr("PROSPECT_BLOCKED_DOMAINS", nil),
		},
		Tenants: TenantConfig{
			ResultLimits: parseTenantLimits(os.Getenv("PROSPECT_TENANT_LIMITS")),
		},
	}
}

// parseTenantKeys parses "key:tenant-id:tier" entries. Malformed
// entries are skipped.
func parseTenantKeys(raw string) []TenantAccess {
	var keys []TenantAccess
	for _, part := range strings.Split(raw, ",") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) != 3 {
			continue
		}
		if fields[0] == "" || fields[1] == "" {
			continue
		}
		keys = append(keys, TenantAccess{Key: fields[0], TenantID: fields[1], Tier: fields[2]})
	}
	return keys
}

// parseTenantLimits parses "tenant-id=limit" entries. Malformed or
// non-positive entries are skipped.
func parseTenantLimits(raw string) map[string]int {
	limits := make(map[string]int)
	for _, part := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || k == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			continue
		}
		limits[k] = n
	}
	return limits
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
