package locks

import (
	"context"
	"sync"
	"time"

	"github.com/cordum/zipmark/core/infra/logging"
)

// Hold keeps an already acquired lock alive by renewing it every ttl/3 and
// returns the function that stops renewal and releases it. Release is
// idempotent. A renewal that reports the lock gone stops the loop.
func Hold(s Store, resource, owner string, ttl time.Duration) func() {
	ttl = normalizeTTL(ttl)
	interval := ttl / 3
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				ok, err := s.Renew(ctx, resource, owner, ttl)
				cancel()
				if err != nil {
					logging.Warn("locks", "renew failed", "resource", resource, "error", err)
					continue
				}
				if !ok {
					logging.Error("locks", "lock lost before release", "resource", resource)
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			if _, err := s.Release(context.Background(), resource, owner); err != nil {
				logging.Warn("locks", "release failed", "resource", resource, "error", err)
			}
		})
	}
}
