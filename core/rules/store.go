package rules

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cordum/zipmark/core/infra/redisutil"
	"github.com/cordum/zipmark/core/watermark"
	"github.com/redis/go-redis/v9"
)

// Scope of a stored rule document.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeItem   Scope = "item"

	globalID     = "default"
	allowlistKey = "zipmark:allowlist"
)

// ErrNotFound is returned by Get when no document is stored.
var ErrNotFound = errors.New("rules: document not found")

// Document is a rule list stored at a given scope.
type Document struct {
	Scope    Scope            `json:"scope"`
	ScopeID  string           `json:"scope_id"`
	Rules    []watermark.Rule `json:"rules"`
	Revision int64            `json:"revision"`
	Updated  time.Time        `json:"updated_at"`
}

// Snapshot is a resolved rule list plus version/hash metadata.
type Snapshot struct {
	Version string           `json:"version"`
	Hash    string           `json:"hash"`
	Rules   []watermark.Rule `json:"rules"`
}

// Store persists rule documents in Redis.
type Store struct {
	client redis.UniversalClient
}

var _ Source = (*Store)(nil)

// NewStore creates a rule store backed by Redis.
func NewStore(url string) (*Store, error) {
	client, err := redisutil.Connect(url)
	if err != nil {
		return nil, err
	}
	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// SetGlobal replaces the global rule list.
func (s *Store) SetGlobal(ctx context.Context, rules []watermark.Rule) (*Document, error) {
	return s.set(ctx, ScopeGlobal, globalID, rules)
}

// SetItem replaces the rule list of one item.
func (s *Store) SetItem(ctx context.Context, itemID string, rules []watermark.Rule) (*Document, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, fmt.Errorf("item id required")
	}
	return s.set(ctx, ScopeItem, itemID, rules)
}

func (s *Store) set(ctx context.Context, scope Scope, id string, rules []watermark.Rule) (*Document, error) {
	doc := &Document{Scope: scope, ScopeID: id}
	prev, err := s.Get(ctx, scope, id)
	switch {
	case err == nil:
		doc.Revision = prev.Revision
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	doc.Rules = Sanitize(rules)
	doc.Revision++
	doc.Updated = time.Now().UTC()
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal doc: %w", err)
	}
	if err := s.client.Set(ctx, docKey(scope, id), payload, 0).Err(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Get fetches the document at scope/id.
func (s *Store) Get(ctx context.Context, scope Scope, id string) (*Document, error) {
	if scope == "" {
		return nil, fmt.Errorf("scope required")
	}
	data, err := s.client.Get(ctx, docKey(scope, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, scope, id)
	}
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal doc: %w", err)
	}
	doc.Rules = Sanitize(doc.Rules)
	return &doc, nil
}

// Global fetches the global rule document.
func (s *Store) Global(ctx context.Context) (*Document, error) {
	return s.Get(ctx, ScopeGlobal, globalID)
}

// DeleteItem removes an item's rule list.
func (s *Store) DeleteItem(ctx context.Context, itemID string) error {
	return s.client.Del(ctx, docKey(ScopeItem, strings.TrimSpace(itemID))).Err()
}

// ItemIDs lists the items that have a stored rule list, sorted.
func (s *Store) ItemIDs(ctx context.Context) ([]string, error) {
	prefix := docKey(ScopeItem, "")
	var ids []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan item rules: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Resolve returns global rules followed by the item's rules. Missing
// documents contribute nothing.
func (s *Store) Resolve(ctx context.Context, itemID string) ([]watermark.Rule, error) {
	snap, err := s.ResolveSnapshot(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return snap.Rules, nil
}

// ResolveSnapshot resolves rules and reports the revisions they came from.
func (s *Store) ResolveSnapshot(ctx context.Context, itemID string) (*Snapshot, error) {
	itemID = strings.TrimSpace(itemID)
	order := []struct {
		scope Scope
		id    string
	}{
		{ScopeGlobal, globalID},
		{ScopeItem, itemID},
	}
	var resolved []watermark.Rule
	parts := make([]string, 0, len(order))
	for _, item := range order {
		if item.scope != ScopeGlobal && item.id == "" {
			parts = append(parts, fmt.Sprintf("%s:0", item.scope))
			continue
		}
		doc, err := s.Get(ctx, item.scope, item.id)
		if errors.Is(err, ErrNotFound) {
			parts = append(parts, fmt.Sprintf("%s:0", item.scope))
			continue
		}
		if err != nil {
			return nil, err
		}
		parts = append(parts, fmt.Sprintf("%s:%d", item.scope, doc.Revision))
		resolved = append(resolved, doc.Rules...)
	}
	hash, err := rulesHash(resolved)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Version: strings.Join(parts, "|"), Hash: hash, Rules: resolved}, nil
}

// SetAllowlist replaces the archive allowlist. An empty list allows every archive.
func (s *Store) SetAllowlist(ctx context.Context, names []string) error {
	clean := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			clean = append(clean, n)
		}
	}
	payload, err := json.Marshal(clean)
	if err != nil {
		return fmt.Errorf("marshal allowlist: %w", err)
	}
	return s.client.Set(ctx, allowlistKey, payload, 0).Err()
}

func (s *Store) Allowlist(ctx context.Context) ([]string, error) {
	data, err := s.client.Get(ctx, allowlistKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("unmarshal allowlist: %w", err)
	}
	return names, nil
}

func rulesHash(rules []watermark.Rule) (string, error) {
	if rules == nil {
		rules = []watermark.Rule{}
	}
	encoded, err := json.Marshal(rules)
	if err != nil {
		return "", fmt.Errorf("encode rules: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

func docKey(scope Scope, id string) string {
	if scope == ScopeGlobal && id == "" {
		id = globalID
	}
	return fmt.Sprintf("zipmark:rules:%s:%s", scope, id)
}
