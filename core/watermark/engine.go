package watermark

import (
	"fmt"

	"github.com/cordum/zipmark/core/infra/logging"
)

const logComponent = "watermark"

// Observer receives the outcome of every rule an engine evaluates.
type Observer interface {
	ObserveRule(kind Kind, outcome Outcome)
}

// RuleResult records how one rule was resolved and what it did.
type RuleResult struct {
	Index   int
	Rule    Rule
	Path    string
	Outcome Outcome
}

// Report summarizes one ApplyAll run.
type Report struct {
	Root    string
	Results []RuleResult
}

// Count returns the number of results with the given status.
func (r Report) Count(status Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome.Status == status {
			n++
		}
	}
	return n
}

// Engine applies ordered rule lists to archives. An Engine holds no per-run
// state and may be shared; each ApplyAll call owns its own PathCache.
type Engine struct {
	observer Observer
	quiet    bool
}

// NewEngine returns an engine that logs each rule outcome.
func NewEngine() *Engine {
	return &Engine{}
}

// WithObserver attaches an outcome observer, typically metrics.
func (e *Engine) WithObserver(o Observer) *Engine {
	e.observer = o
	return e
}

// Quiet disables per-rule logging.
func (e *Engine) Quiet() *Engine {
	e.quiet = true
	return e
}

// ApplyAll runs rules in order against a. Misses are skipped; the first
// write failure aborts the run and is returned wrapping ErrArchiveWrite.
// The root is detected once, before any rule mutates the archive.
func (e *Engine) ApplyAll(a Archive, rules []Rule, sub Substitution) (Report, error) {
	names := a.Names()
	root := DetectRoot(names)
	present := make(map[string]struct{}, len(names))
	for _, name := range names {
		present[name] = struct{}{}
	}
	cache := PathCache{}

	report := Report{Root: root, Results: make([]RuleResult, 0, len(rules))}
	for i, rule := range rules {
		path := root + rule.TargetFile
		var outcome Outcome
		switch {
		case rule.TargetFile == "":
			outcome = skipped(ReasonEmptyPath, nil)
		case needsExisting(rule.Kind) && !exists(cache, present, path):
			outcome = skipped(ReasonNotFound, nil)
		default:
			content := Render(rule.ContentTemplate, sub)
			outcome = Apply(a, cache, path, rule.Kind, rule.SearchText, content)
		}
		if outcome.Status == StatusApplied {
			present[path] = struct{}{}
		}

		report.Results = append(report.Results, RuleResult{Index: i, Rule: rule, Path: path, Outcome: outcome})
		e.observe(i, rule, path, outcome)

		if outcome.Fatal() {
			return report, fmt.Errorf("rule %d %s: %w", i, rule, outcome.Err)
		}
	}
	return report, nil
}

func needsExisting(kind Kind) bool {
	return kind == KindReplaceText || kind == KindAppendText
}

func exists(cache PathCache, present map[string]struct{}, path string) bool {
	if _, ok := cache.get(path); ok {
		return true
	}
	_, ok := present[path]
	return ok
}

func (e *Engine) observe(i int, rule Rule, path string, outcome Outcome) {
	if e.observer != nil {
		e.observer.ObserveRule(rule.Kind, outcome)
	}
	if e.quiet {
		return
	}
	switch outcome.Status {
	case StatusApplied:
		logging.Info(logComponent, "rule applied", "index", i, "kind", rule.Kind, "path", path)
	case StatusSkipped:
		kv := []any{"index", i, "kind", rule.Kind, "path", path, "reason", outcome.Reason}
		if outcome.Err != nil {
			kv = append(kv, "error", outcome.Err)
		}
		logging.Info(logComponent, "rule skipped", kv...)
	case StatusFatal:
		logging.Error(logComponent, "rule failed", "index", i, "kind", rule.Kind, "path", path, "error", outcome.Err)
	}
}
