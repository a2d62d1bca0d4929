package session

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	minSweepInterval = time.Millisecond
	maxSweepInterval = time.Minute
)

// SweepInterval returns how often a janitor should sweep for the given ttl.
func SweepInterval(ttl time.Duration) time.Duration {
	return max(minSweepInterval, min(ttl/2, maxSweepInterval))
}

// RunJanitor sweeps idle sessions until ctx is done. A non-positive ttl disables it.
// onRemove, when set, is called with the ids removed by each sweep.
func RunJanitor(ctx context.Context, store *MemoryStore, ttl time.Duration, logger hclog.Logger, onRemove func([]string)) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(SweepInterval(ttl))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := store.Sweep(store.clock.Now(), ttl)
			if len(removed) == 0 {
				continue
			}
			logger.Debug("swept idle sessions", "count", len(removed), "remaining", store.Len())
			if onRemove != nil {
				onRemove(removed)
			}
		}
	}
}
