package executor

import (
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

type ResilienceConfig struct {
	BackoffSettings        *backoff.ExponentialBackOff
	MaxRetries             uint64
	CircuitBreakerSettings gobreaker.Settings
}

// DefaultResilienceConfig retries a dial a few times and opens a host's
// breaker after threshold consecutive connection failures.
func DefaultResilienceConfig(retries uint64, threshold uint32) *ResilienceConfig {
	if threshold == 0 {
		threshold = 5
	}
	return &ResilienceConfig{
		BackoffSettings: &backoff.ExponentialBackOff{
			InitialInterval:     500 * time.Millisecond,
			MaxInterval:         5 * time.Second,
			Multiplier:          1.5,
			RandomizationFactor: 0.5,
			MaxElapsedTime:      30 * time.Second,
			Stop:                backoff.Stop,
			Clock:               backoff.SystemClock,
		},
		MaxRetries: retries,
		CircuitBreakerSettings: gobreaker.Settings{
			MaxRequests: 1,
			Interval:    1 * time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			// a host that rejects credentials is reachable
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrAuth)
			},
		},
	}
}

// newBackOff returns a fresh policy per dial; ExponentialBackOff is stateful.
func (r *ResilienceConfig) newBackOff() backoff.BackOff {
	b := *r.BackoffSettings
	b.Reset()
	return backoff.WithMaxRetries(&b, r.MaxRetries)
}

// breakers keeps one circuit breaker per host name.
type breakers struct {
	settings gobreaker.Settings
	mu       sync.Mutex
	byHost   map[string]*gobreaker.CircuitBreaker
}

func newBreakers(settings gobreaker.Settings) *breakers {
	return &breakers{settings: settings, byHost: make(map[string]*gobreaker.CircuitBreaker)}
}

func (b *breakers) get(host string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.byHost[host]
	if !ok {
		st := b.settings
		st.Name = "connect:" + host
		cb = gobreaker.NewCircuitBreaker(st)
		b.byHost[host] = cb
	}
	return cb
}

// State reports the breaker state of host, closed for hosts never dialled.
func (b *breakers) State(host string) gobreaker.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.byHost[host]; ok {
		return cb.State()
	}
	return gobreaker.StateClosed
}
