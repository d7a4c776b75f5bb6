// Package staging owns the per-customer working copies handed to the
// engine and the janitor that sweeps them.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cordum/zipmark/core/infra/locks"
	"github.com/google/uuid"
)

const (
	tempDirName   = "temp"
	lockPoll      = 50 * time.Millisecond
	defaultTTL    = 30 * time.Second
	logComponent  = "staging"
	customerLockF = "staging:customer:%s"
	runDirPrefix  = "run-"
	runDirPattern = runDirPrefix + "*"
)

// ErrInvalidCustomer is returned for non-positive customer ids.
var ErrInvalidCustomer = errors.New("staging: invalid customer id")

// Stager copies source archives into <root>/temp/<customer>/ while holding
// an exclusive per-customer lock.
type Stager struct {
	root    string
	locks   locks.Store
	lockTTL time.Duration
}

// NewStager returns a stager rooted at root. A nil store falls back to
// in-process locks.
func NewStager(root string, store locks.Store, lockTTL time.Duration) *Stager {
	if store == nil {
		store = locks.NewLocalStore()
	}
	if lockTTL <= 0 {
		lockTTL = defaultTTL
	}
	return &Stager{root: root, locks: store, lockTTL: lockTTL}
}

// TempDir is the directory holding every customer directory.
func (s *Stager) TempDir() string {
	return filepath.Join(s.root, tempDirName)
}

// CustomerDir is where a customer's copies are staged.
func (s *Stager) CustomerDir(customerID int64) string {
	return filepath.Join(s.TempDir(), strconv.FormatInt(customerID, 10))
}

// Stage copies src into a fresh run directory under the customer
// directory, <root>/temp/<customer>/run-*/<basename>. Every run gets its own
// copy, so a file being served is never rewritten by a later download. The
// customer lock is renewed until release is called.
func (s *Stager) Stage(ctx context.Context, customerID int64, src string) (string, func(), error) {
	if customerID <= 0 {
		return "", nil, fmt.Errorf("%w: %d", ErrInvalidCustomer, customerID)
	}
	dir := s.CustomerDir(customerID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create staging dir: %w", err)
	}

	resource := fmt.Sprintf(customerLockF, strconv.FormatInt(customerID, 10))
	owner := uuid.NewString()
	if err := locks.Wait(ctx, s.locks, resource, owner, s.lockTTL, lockPoll); err != nil {
		return "", nil, fmt.Errorf("lock customer %d: %w", customerID, err)
	}
	release := locks.Hold(s.locks, resource, owner, s.lockTTL)

	runDir, err := os.MkdirTemp(dir, runDirPattern)
	if err != nil {
		release()
		return "", nil, fmt.Errorf("create run dir: %w", err)
	}
	dst := filepath.Join(runDir, filepath.Base(src))
	if err := copyFile(src, dst); err != nil {
		_ = os.RemoveAll(runDir)
		release()
		return "", nil, err
	}
	// Bump the directory mtime so the janitor sees recent activity.
	now := time.Now()
	_ = os.Chtimes(dir, now, now)
	return dst, release, nil
}

// Discard removes the run directory holding a staged copy. Paths outside
// the staging area are left alone.
func (s *Stager) Discard(staged string) error {
	runDir := filepath.Dir(staged)
	rel, err := filepath.Rel(s.TempDir(), runDir)
	rel = filepath.ToSlash(rel)
	if err != nil || strings.HasPrefix(rel, "../") || strings.Count(rel, "/") != 1 ||
		!strings.HasPrefix(filepath.Base(runDir), runDirPrefix) {
		return fmt.Errorf("staging: %s is not a staged copy", staged)
	}
	return os.RemoveAll(runDir)
}

func copyFile(src, dst string) error {
	// #nosec G304 -- source path is resolved by the dispatcher.
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	// #nosec G304 -- destination is inside the staging root.
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create staged copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("copy source: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("close staged copy: %w", err)
	}
	return nil
}
