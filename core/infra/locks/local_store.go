package locks

import (
	"context"
	"strings"
	"sync"
	"time"
)

// LocalStore is an in-process Store for single-node use and tests.
type LocalStore struct {
	mu   sync.Mutex
	held map[string]localLock
	now  func() time.Time
}

type localLock struct {
	owner     string
	expiresAt time.Time
}

// NewLocalStore returns an empty in-process lock table.
func NewLocalStore() *LocalStore {
	return &LocalStore{held: map[string]localLock{}, now: time.Now}
}

func (s *LocalStore) Acquire(_ context.Context, resource, owner string, ttl time.Duration) (bool, error) {
	resource, owner = strings.TrimSpace(resource), strings.TrimSpace(owner)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if cur, ok := s.held[resource]; ok && now.Before(cur.expiresAt) {
		return false, nil
	}
	s.held[resource] = localLock{owner: owner, expiresAt: now.Add(normalizeTTL(ttl))}
	return true, nil
}

func (s *LocalStore) Release(_ context.Context, resource, owner string) (bool, error) {
	resource, owner = strings.TrimSpace(resource), strings.TrimSpace(owner)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.held[resource]
	if !ok || cur.owner != owner {
		return false, nil
	}
	delete(s.held, resource)
	return true, nil
}

func (s *LocalStore) Renew(_ context.Context, resource, owner string, ttl time.Duration) (bool, error) {
	resource, owner = strings.TrimSpace(resource), strings.TrimSpace(owner)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.held[resource]
	if !ok || cur.owner != owner || !s.now().Before(cur.expiresAt) {
		return false, nil
	}
	cur.expiresAt = s.now().Add(normalizeTTL(ttl))
	s.held[resource] = cur
	return true, nil
}
