package rules

import (
	"context"
	"strings"

	"github.com/cordum/zipmark/core/infra/config"
	"github.com/cordum/zipmark/core/watermark"
)

// Source resolves the rule list and allowlist used for a request.
type Source interface {
	Resolve(ctx context.Context, itemID string) ([]watermark.Rule, error)
	// ResolveSnapshot resolves rules together with the version they came from.
	ResolveSnapshot(ctx context.Context, itemID string) (*Snapshot, error)
	Allowlist(ctx context.Context) ([]string, error)
}

// FileSource serves rules from a static rule file.
type FileSource struct {
	global    []watermark.Rule
	items     map[string][]watermark.Rule
	allowlist []string
}

var _ Source = (*FileSource)(nil)

// LoadFile reads, validates and sanitizes a rule file.
func LoadFile(path string) (*FileSource, error) {
	cfg, err := config.LoadRulesFile(path)
	if err != nil {
		return nil, err
	}
	return NewFileSource(cfg), nil
}

// NewFileSource builds a source from an already parsed rule file.
func NewFileSource(cfg *config.RulesFile) *FileSource {
	s := &FileSource{items: map[string][]watermark.Rule{}}
	if cfg == nil {
		return s
	}
	s.global = FromList(cfg.Global)
	for id, list := range cfg.Items {
		s.items[strings.TrimSpace(id)] = FromList(list)
	}
	for _, name := range cfg.Allowlist {
		if name = strings.TrimSpace(name); name != "" {
			s.allowlist = append(s.allowlist, name)
		}
	}
	return s
}

func (s *FileSource) Resolve(_ context.Context, itemID string) ([]watermark.Rule, error) {
	return Compose(s.global, s.items[strings.TrimSpace(itemID)]), nil
}

// ResolveSnapshot versions file rules by content, "file:<hash prefix>".
func (s *FileSource) ResolveSnapshot(ctx context.Context, itemID string) (*Snapshot, error) {
	resolved, err := s.Resolve(ctx, itemID)
	if err != nil {
		return nil, err
	}
	hash, err := rulesHash(resolved)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Version: "file:" + hash[:12], Hash: hash, Rules: resolved}, nil
}

func (s *FileSource) Allowlist(context.Context) ([]string, error) {
	out := make([]string, len(s.allowlist))
	copy(out, s.allowlist)
	return out, nil
}
