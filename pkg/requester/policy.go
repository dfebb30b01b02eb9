package requester

import (
	"math/rand"
	"time"
)

// PolicyClass groups categories that share a retry/backoff/timeout policy:
// every playlist fetch (Multivariant or Media Playlist) on one side, every
// segment fetch (init or media) on the other.
type PolicyClass int

const (
	PolicyPlaylist PolicyClass = iota
	PolicySegment
)

// Policy is one category class's retry/backoff/timeout configuration.
type Policy struct {
	MaxRetry    int
	Timeout     time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

func defaultPolicies() map[PolicyClass]Policy {
	return map[PolicyClass]Policy{
		PolicyPlaylist: {
			MaxRetry:    0,
			Timeout:     10 * time.Second,
			BackoffBase: 300 * time.Millisecond,
			BackoffMax:  3 * time.Second,
		},
		PolicySegment: {
			MaxRetry:    0,
			Timeout:     30 * time.Second,
			BackoffBase: 300 * time.Millisecond,
			BackoffMax:  3 * time.Second,
		},
	}
}

// backoffDelay computes min(base*2^(attempts-1), max) scaled by a jitter
// in [1, 1.3].
func backoffDelay(p Policy, attempts int) time.Duration {
	base := p.BackoffBase
	for i := 1; i < attempts; i++ {
		base *= 2
		if base > p.BackoffMax {
			base = p.BackoffMax
			break
		}
	}
	jitter := 1 + rand.Float64()*0.3
	return time.Duration(float64(base) * jitter)
}
