// Package provider resolves a search query against one of several
// interchangeable upstream search services and normalizes their
// responses into a single result shape.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/use-agent/prospect/models"
)

// Query is the normalized provider-facing search request.
type Query struct {
	Term     string
	Limit    int
	TBS      string
	Lang     string
	Country  string
	Location string
	Filter   string
}

// FullTerm returns the query with the free-text filter appended.
func (q Query) FullTerm() string {
	if q.Filter == "" {
		return q.Term
	}
	return q.Term + " " + q.Filter
}

// Provider executes one external search call. Implementations normalize
// upstream field names into models.SerpResult and never return more
// than q.Limit results.
type Provider interface {
	Name() string
	Search(ctx context.Context, q Query) ([]models.SerpResult, error)
}

// KeyedProvider is a provider whose credential is supplied per call so
// the resolver can rotate keys between retries.
type KeyedProvider interface {
	Name() string
	SearchWithKey(ctx context.Context, key string, q Query) ([]models.SerpResult, error)
}

// Error is a provider-level failure carrying the upstream HTTP status.
type Error struct {
	Provider string
	Status   int
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Message)
}

// Retryable reports whether the failure is in the rate-limit or
// authorization class, which credential rotation can recover from.
func (e *Error) Retryable() bool {
	switch e.Status {
	case 400, 403, 429:
		return true
	}
	return false
}

// ExhaustedError means every credential in the pool failed with a
// retryable error class. Last holds the final attempt's failure.
type ExhaustedError struct {
	Attempts int
	Last     *Error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d credentials exhausted, last: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// AsProviderError unwraps err into *Error if possible.
func AsProviderError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
