package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cordum/zipmark/core/infra/config"
	"github.com/cordum/zipmark/core/rules"
)

func runRulesCmd(args []string) {
	if len(args) < 1 {
		usage()
		return
	}
	switch args[0] {
	case "push":
		fs := newFlagSet("rules push")
		file := fs.String("file", "", "rule file (yaml or json)")
		prune := fs.Bool("prune", false, "delete stored item rules missing from the file")
		fs.ParseArgs(args[1:])
		if *file == "" {
			fail("rule file required")
		}
		store, err := rules.NewStore(*fs.redis)
		check(err)
		defer store.Close()
		summary, err := pushRules(context.Background(), store, *file, *prune)
		check(err)
		printJSON(summary)
	case "show":
		fs := newFlagSet("rules show")
		item := fs.String("item", "", "item id")
		fs.ParseArgs(args[1:])
		store, err := rules.NewStore(*fs.redis)
		check(err)
		defer store.Close()
		snap, err := store.ResolveSnapshot(context.Background(), *item)
		check(err)
		printJSON(snap)
	case "export":
		fs := newFlagSet("rules export")
		out := fs.String("out", "", "output file (default stdout)")
		fs.ParseArgs(args[1:])
		store, err := rules.NewStore(*fs.redis)
		check(err)
		defer store.Close()
		cfg, err := exportRules(context.Background(), store)
		check(err)
		data, err := yaml.Marshal(cfg)
		check(err)
		if *out == "" {
			_, err = os.Stdout.Write(data)
			check(err)
			return
		}
		check(os.WriteFile(*out, data, 0o600))
	default:
		usage()
	}
}

type pushSummary struct {
	GlobalRevision int64            `json:"global_revision"`
	Items          map[string]int64 `json:"items"`
	Pruned         []string         `json:"pruned,omitempty"`
	Allowlist      []string         `json:"allowlist"`
}

func pushRules(ctx context.Context, store *rules.Store, path string, prune bool) (pushSummary, error) {
	cfg, err := config.LoadRulesFile(path)
	if err != nil {
		return pushSummary{}, err
	}
	summary := pushSummary{Items: map[string]int64{}}
	doc, err := store.SetGlobal(ctx, rules.FromList(cfg.Global))
	if err != nil {
		return summary, fmt.Errorf("push global rules: %w", err)
	}
	summary.GlobalRevision = doc.Revision

	ids := make([]string, 0, len(cfg.Items))
	for id := range cfg.Items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		doc, err := store.SetItem(ctx, id, rules.FromList(cfg.Items[id]))
		if err != nil {
			return summary, fmt.Errorf("push item %s: %w", id, err)
		}
		summary.Items[id] = doc.Revision
	}
	if prune {
		stored, err := store.ItemIDs(ctx)
		if err != nil {
			return summary, err
		}
		for _, id := range stored {
			if _, ok := cfg.Items[id]; ok {
				continue
			}
			if err := store.DeleteItem(ctx, id); err != nil {
				return summary, fmt.Errorf("prune item %s: %w", id, err)
			}
			summary.Pruned = append(summary.Pruned, id)
		}
	}
	if err := store.SetAllowlist(ctx, cfg.Allowlist); err != nil {
		return summary, fmt.Errorf("push allowlist: %w", err)
	}
	summary.Allowlist, err = store.Allowlist(ctx)
	return summary, err
}

// exportRules reads the stored rules back into rule file form, so the
// output can be edited and pushed again.
func exportRules(ctx context.Context, store *rules.Store) (*config.RulesFile, error) {
	cfg := &config.RulesFile{Items: map[string]config.RuleList{}}
	global, err := store.Global(ctx)
	switch {
	case err == nil:
		cfg.Global = config.RuleList{Rows: rules.ToRows(global.Rules)}
	case !errors.Is(err, rules.ErrNotFound):
		return nil, fmt.Errorf("export global rules: %w", err)
	}
	ids, err := store.ItemIDs(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		doc, err := store.Get(ctx, rules.ScopeItem, id)
		if errors.Is(err, rules.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("export item %s: %w", id, err)
		}
		cfg.Items[id] = config.RuleList{Rows: rules.ToRows(doc.Rules)}
	}
	if cfg.Allowlist, err = store.Allowlist(ctx); err != nil {
		return nil, fmt.Errorf("export allowlist: %w", err)
	}
	return cfg, nil
}
