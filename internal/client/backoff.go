package client

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultMaxAttempts bounds consecutive reconnect attempts.
	DefaultMaxAttempts = 5

	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = time.Minute
)

// NewReconnectBackOff returns the reconnect delay policy: 1s doubling on
// every attempt, without jitter.
func NewReconnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = reconnectBaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = reconnectMaxDelay
	b.Reset()
	return b
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
