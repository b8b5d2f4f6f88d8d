// Package keypool provides round-robin rotation over a fixed set of
// provider API credentials. Rotation spreads load across equivalent keys
// so a single key is less likely to hit upstream rate limits.
package keypool

import (
	"errors"
	"sync/atomic"
)

// ErrEmptyPool is returned when a pool is constructed with no credentials.
var ErrEmptyPool = errors.New("keypool: no credentials configured")

// Credential is one opaque provider secret plus its position in the pool.
// The secret never leaves the process except through provider requests;
// use Truncated for logging.
type Credential struct {
	Secret string
	Index  int
}

// Truncated returns a log-safe prefix of the secret.
func (c Credential) Truncated() string {
	if len(c.Secret) <= 6 {
		return "******"
	}
	return c.Secret[:6] + "..."
}

// Pool serves credentials in round-robin order. It is safe for
// concurrent use; the shared index is an atomic counter so concurrent
// requests never observe a torn read.
type Pool struct {
	creds   []Credential
	counter atomic.Uint64
}

// New creates a pool from an ordered list of secrets. Empty strings are
// skipped. Returns ErrEmptyPool if no usable secret remains.
func New(secrets []string) (*Pool, error) {
	creds := make([]Credential, 0, len(secrets))
	for _, s := range secrets {
		if s == "" {
			continue
		}
		creds = append(creds, Credential{Secret: s, Index: len(creds)})
	}
	if len(creds) == 0 {
		return nil, ErrEmptyPool
	}
	return &Pool{creds: creds}, nil
}

// Next returns the next credential in cyclic order.
func (p *Pool) Next() Credential {
	idx := p.counter.Add(1) - 1
	return p.creds[idx%uint64(len(p.creds))]
}

// Cycle returns every credential exactly once, in rotation order
// starting from this call's position of the shared counter. Callers
// that may walk the whole pool use this instead of repeated Next calls:
// with Next, concurrent walkers can interleave and receive the same
// credential twice within one walk.
func (p *Pool) Cycle() []Credential {
	start := p.counter.Add(1) - 1
	out := make([]Credential, len(p.creds))
	for i := range p.creds {
		out[i] = p.creds[(start+uint64(i))%uint64(len(p.creds))]
	}
	return out
}

// Size returns the number of credentials in the pool.
func (p *Pool) Size() int {
	return len(p.creds)
}
