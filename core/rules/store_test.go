package rules

import (
	"context"
	"errors"
	"reflect"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/cordum/zipmark/core/watermark"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)
	store, err := NewStore("redis://" + srv.Addr())
	if err != nil {
		t.Fatalf("store init: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreResolveGlobalThenItem(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if _, err := store.SetGlobal(ctx, []watermark.Rule{{Kind: watermark.KindAppendText, TargetFile: "readme.txt", ContentTemplate: "g"}}); err != nil {
		t.Fatalf("set global: %v", err)
	}
	if _, err := store.SetItem(ctx, "42", []watermark.Rule{{Kind: "add_file", TargetFile: " LICENSE ", ContentTemplate: "i"}}); err != nil {
		t.Fatalf("set item: %v", err)
	}

	got, err := store.Resolve(ctx, "42")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 2 || got[0].ContentTemplate != "g" || got[1].Kind != watermark.KindInsertFile || got[1].TargetFile != "LICENSE" {
		t.Fatalf("unexpected rules %#v", got)
	}

	onlyGlobal, err := store.Resolve(ctx, "99")
	if err != nil {
		t.Fatalf("resolve missing item: %v", err)
	}
	if len(onlyGlobal) != 1 {
		t.Fatalf("expected global rules only, got %#v", onlyGlobal)
	}
}

func TestStoreRevisionsAndSnapshot(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	rules := []watermark.Rule{{Kind: watermark.KindInsertFile, TargetFile: "a", ContentTemplate: "x"}}

	doc, err := store.SetItem(ctx, "5", rules)
	if err != nil || doc.Revision != 1 {
		t.Fatalf("expected revision 1, got %+v err=%v", doc, err)
	}
	doc, err = store.SetItem(ctx, "5", rules)
	if err != nil || doc.Revision != 2 {
		t.Fatalf("expected revision 2, got %+v err=%v", doc, err)
	}

	snap, err := store.ResolveSnapshot(ctx, "5")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Version != "global:0|item:2" {
		t.Fatalf("unexpected version %q", snap.Version)
	}
	if snap.Hash == "" || len(snap.Rules) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	before := snap.Hash

	if _, err := store.SetItem(ctx, "5", append(rules, watermark.Rule{Kind: watermark.KindAppendText, TargetFile: "a", ContentTemplate: "y"})); err != nil {
		t.Fatalf("update: %v", err)
	}
	snap, _ = store.ResolveSnapshot(ctx, "5")
	if snap.Hash == before {
		t.Fatalf("expected hash to change with rules")
	}
}

func TestStoreGetAndDelete(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if _, err := store.Get(ctx, ScopeItem, "1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.SetItem(ctx, "1", nil); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := store.Get(ctx, ScopeItem, "1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := store.DeleteItem(ctx, "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, ScopeItem, "1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := store.SetItem(ctx, " ", nil); err == nil {
		t.Fatalf("expected error for empty item id")
	}
	if _, err := store.Get(ctx, "", "x"); err == nil {
		t.Fatalf("expected error for empty scope")
	}
}

func TestStoreItemIDs(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	ids, err := store.ItemIDs(ctx)
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected no items, got %v err=%v", ids, err)
	}
	if _, err := store.SetGlobal(ctx, nil); err != nil {
		t.Fatalf("set global: %v", err)
	}
	for _, id := range []string{"42", "12", "theme:7"} {
		if _, err := store.SetItem(ctx, id, nil); err != nil {
			t.Fatalf("set item %s: %v", id, err)
		}
	}
	ids, err = store.ItemIDs(ctx)
	if err != nil {
		t.Fatalf("item ids: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"12", "42", "theme:7"}) {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestStoreAllowlist(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	names, err := store.Allowlist(ctx)
	if err != nil || len(names) != 0 {
		t.Fatalf("expected empty allowlist, got %v err=%v", names, err)
	}
	if err := store.SetAllowlist(ctx, []string{" plugin.zip ", "", "theme.zip"}); err != nil {
		t.Fatalf("set allowlist: %v", err)
	}
	names, err = store.Allowlist(ctx)
	if err != nil {
		t.Fatalf("allowlist: %v", err)
	}
	if len(names) != 2 || names[0] != "plugin.zip" {
		t.Fatalf("unexpected allowlist %v", names)
	}
}
