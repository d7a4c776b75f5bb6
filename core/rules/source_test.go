package rules

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cordum/zipmark/core/infra/config"
	"github.com/cordum/zipmark/core/watermark"
)

func TestLoadFileResolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	data := []byte(`
global:
  - type: append_text
    file: readme.txt
    content: "global"
items:
  "42":
    - type: add_file
      file: " LICENSE.txt "
      content: "{license_key}"
    - type: nonsense
      file: x
allowlist: [plugin.zip, " ", theme.zip]
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	src, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ctx := context.Background()

	got, err := src.Resolve(ctx, "42")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected global + 1 item rule, got %#v", got)
	}
	if got[0].ContentTemplate != "global" || got[1].Kind != watermark.KindInsertFile || got[1].TargetFile != "LICENSE.txt" {
		t.Fatalf("unexpected resolved rules %#v", got)
	}

	other, _ := src.Resolve(ctx, "7")
	if len(other) != 1 {
		t.Fatalf("expected only global rules for unknown item, got %#v", other)
	}

	allow, _ := src.Allowlist(ctx)
	if len(allow) != 2 || allow[0] != "plugin.zip" || allow[1] != "theme.zip" {
		t.Fatalf("unexpected allowlist %#v", allow)
	}
}

func TestLoadFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("global: {type: x}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected schema error")
	}
}

func TestNewFileSourceNil(t *testing.T) {
	src := NewFileSource(nil)
	got, err := src.Resolve(context.Background(), "1")
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty rules, got %#v err=%v", got, err)
	}
}

func TestFileSourceColumnsAndSnapshot(t *testing.T) {
	cfg, err := config.ParseRulesFile([]byte(`
global:
  type: [string_replacement, append_to_file]
  file: [plugin.php, readme.txt]
  search: [__KEY__]
  content: ["{license_key}", "\n{customer_id}"]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	src := NewFileSource(cfg)
	snap, err := src.ResolveSnapshot(context.Background(), "")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Rules) != 2 || snap.Rules[0].Kind != watermark.KindReplaceText || snap.Rules[1].SearchText != "" {
		t.Fatalf("unexpected rules %#v", snap.Rules)
	}
	if !strings.HasPrefix(snap.Version, "file:") || len(snap.Hash) != 64 || !strings.HasPrefix(snap.Hash, snap.Version[5:]) {
		t.Fatalf("unexpected version %q hash %q", snap.Version, snap.Hash)
	}
	again, _ := src.ResolveSnapshot(context.Background(), "")
	if again.Version != snap.Version {
		t.Fatalf("version must be stable for unchanged rules")
	}
}
