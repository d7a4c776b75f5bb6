package staging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cordum/zipmark/core/infra/logging"
	"github.com/cordum/zipmark/core/infra/metrics"
	"github.com/google/uuid"
)

const (
	sweepLock       = "staging:sweep"
	defaultInterval = 24 * time.Hour
)

// Janitor periodically removes customer staging directories.
type Janitor struct {
	stager    *Stager
	retention time.Duration
	interval  time.Duration
	owner     string
	metrics   metrics.Metrics
	now       func() time.Time
}

// NewJanitor sweeps directories whose mtime is older than retention. A zero
// retention removes every customer directory on each sweep.
func NewJanitor(stager *Stager, retention, interval time.Duration, m metrics.Metrics) *Janitor {
	if interval <= 0 {
		interval = defaultInterval
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &Janitor{
		stager:    stager,
		retention: retention,
		interval:  interval,
		owner:     uuid.NewString(),
		metrics:   m,
		now:       time.Now,
	}
}

// Start runs the sweep loop until the context is cancelled.
func (j *Janitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil {
				logging.Error(logComponent, "sweep failed", "error", err)
			}
		}
	}
}

// Sweep removes expired customer directories and returns how many were
// removed. Only one worker sweeps at a time; the others return 0. Customer
// directories whose lock is held are left for the next sweep.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	store := j.stager.locks
	ok, err := store.Acquire(ctx, sweepLock, j.owner, j.interval)
	if err != nil {
		return 0, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		logging.Info(logComponent, "sweep skipped, another worker holds the lock")
		return 0, nil
	}
	defer func() {
		if _, err := store.Release(context.Background(), sweepLock, j.owner); err != nil {
			logging.Warn(logComponent, "release sweep lock failed", "error", err)
		}
	}()

	tempDir := j.stager.TempDir()
	entries, err := os.ReadDir(tempDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read staging dir: %w", err)
	}

	cutoff := j.now().Add(-j.retention)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if j.retention > 0 && info.ModTime().After(cutoff) {
			continue
		}
		if j.removeCustomerDir(ctx, tempDir, e.Name()) {
			removed++
		}
	}
	j.metrics.AddStagingSwept(removed)
	if removed > 0 {
		logging.Info(logComponent, "sweep complete", "removed", removed)
	}
	return removed, nil
}

func (j *Janitor) removeCustomerDir(ctx context.Context, tempDir, name string) bool {
	store := j.stager.locks
	resource := fmt.Sprintf(customerLockF, name)
	ok, err := store.Acquire(ctx, resource, j.owner, j.stager.lockTTL)
	if err != nil || !ok {
		return false
	}
	defer func() { _, _ = store.Release(context.Background(), resource, j.owner) }()

	if err := os.RemoveAll(filepath.Join(tempDir, name)); err != nil {
		logging.Error(logComponent, "remove customer dir", "customer", name, "error", err)
		return false
	}
	return true
}
