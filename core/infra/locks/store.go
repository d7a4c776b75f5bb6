package locks

import (
	"context"
	"errors"
	"time"
)

const (
	defaultTTL  = 30 * time.Second
	defaultPoll = 100 * time.Millisecond
)

// ErrBusy is returned by Wait when the context ends before the lock frees up.
var ErrBusy = errors.New("locks: resource busy")

// Store grants exclusive, expiring ownership of named resources.
type Store interface {
	// Acquire reports false without error when another owner holds resource.
	Acquire(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error)
	// Release reports false when owner no longer holds resource.
	Release(ctx context.Context, resource, owner string) (bool, error)
	Renew(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error)
}

// Wait polls Acquire until the lock is granted or ctx is done.
func Wait(ctx context.Context, s Store, resource, owner string, ttl, poll time.Duration) error {
	if poll <= 0 {
		poll = defaultPoll
	}
	for {
		ok, err := s.Acquire(ctx, resource, owner, ttl)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ErrBusy, ctx.Err())
		case <-timer.C:
		}
	}
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}
