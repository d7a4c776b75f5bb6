package watermark

import (
	"errors"
	"testing"
)

type recordingObserver struct {
	outcomes map[Status]int
}

func (r *recordingObserver) ObserveRule(_ Kind, outcome Outcome) {
	if r.outcomes == nil {
		r.outcomes = map[Status]int{}
	}
	r.outcomes[outcome.Status]++
}

func rootedArchive() *MemArchive {
	return NewMemArchive().
		Add("plugin/", "").
		Add("plugin/plugin.php", "<?php /* Plugin Name: Demo */").
		Add("plugin/readme.txt", "base")
}

func TestApplyAllSequentialAppends(t *testing.T) {
	a := rootedArchive()
	rules := []Rule{
		{Kind: KindAppendText, TargetFile: "readme.txt", ContentTemplate: "X"},
		{Kind: KindAppendText, TargetFile: "readme.txt", ContentTemplate: "Y"},
	}
	report, err := NewEngine().Quiet().ApplyAll(a, rules, Substitution{CustomerID: 1, PaymentID: 1})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if report.Root != "plugin/" {
		t.Fatalf("expected root plugin/, got %q", report.Root)
	}
	if got, _ := a.Content("plugin/readme.txt"); got != "baseXY" {
		t.Fatalf("expected baseXY, got %q", got)
	}
	if a.Reads != 1 {
		t.Fatalf("expected second rule to use cached content, archive reads=%d", a.Reads)
	}
	if report.Count(StatusApplied) != 2 {
		t.Fatalf("expected two applied rules")
	}
}

// staleArchive returns the original content on every read, like zip
// implementations that cannot re-read an entry rewritten in the same session.
type staleArchive struct {
	*MemArchive
	original map[string][]byte
}

func (s *staleArchive) Read(name string) ([]byte, error) {
	if data, ok := s.original[name]; ok {
		return data, nil
	}
	return s.MemArchive.Read(name)
}

func TestApplyAllSecondRuleSeesFirstEdit(t *testing.T) {
	mem := rootedArchive()
	a := &staleArchive{MemArchive: mem, original: map[string][]byte{"plugin/readme.txt": []byte("base")}}
	rules := []Rule{
		{Kind: KindAppendText, TargetFile: "readme.txt", ContentTemplate: "X"},
		{Kind: KindReplaceText, TargetFile: "readme.txt", SearchText: "baseX", ContentTemplate: "seen"},
	}
	if _, err := NewEngine().Quiet().ApplyAll(a, rules, Substitution{}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got, _ := mem.Content("plugin/readme.txt"); got != "seen" {
		t.Fatalf("expected replace to observe baseX, got %q", got)
	}
}

func TestApplyAllInsertThenReplace(t *testing.T) {
	a := rootedArchive().Add("plugin/id.txt", "stale id")
	rules := []Rule{
		{Kind: KindInsertFile, TargetFile: "id.txt", ContentTemplate: "customer={customer_id}"},
		{Kind: KindReplaceText, TargetFile: "id.txt", SearchText: "customer=", ContentTemplate: "c:"},
	}
	if _, err := NewEngine().Quiet().ApplyAll(a, rules, Substitution{CustomerID: 77, PaymentID: 1}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got, _ := a.Content("plugin/id.txt"); got != "c:77" {
		t.Fatalf("expected replace on inserted content, got %q", got)
	}
}

func TestApplyAllInsertNewThenAppend(t *testing.T) {
	a := rootedArchive()
	rules := []Rule{
		{Kind: KindInsertFile, TargetFile: "LICENSE.txt", ContentTemplate: "L"},
		{Kind: KindAppendText, TargetFile: "LICENSE.txt", ContentTemplate: "{payment_id}"},
	}
	if _, err := NewEngine().Quiet().ApplyAll(a, rules, Substitution{CustomerID: 1, PaymentID: 55}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got, _ := a.Content("plugin/LICENSE.txt"); got != "L55" {
		t.Fatalf("expected L55, got %q", got)
	}
}

func TestApplyAllMissingTarget(t *testing.T) {
	a := rootedArchive()
	before := a.Len()
	rules := []Rule{
		{Kind: KindReplaceText, TargetFile: "missing.php", SearchText: "a", ContentTemplate: "b"},
		{Kind: KindAppendText, TargetFile: "missing.php", ContentTemplate: "b"},
		{Kind: KindAppendText, TargetFile: "readme.txt", ContentTemplate: "!"},
	}
	obs := &recordingObserver{}
	report, err := NewEngine().Quiet().WithObserver(obs).ApplyAll(a, rules, Substitution{})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if a.Len() != before {
		t.Fatalf("expected entry count unchanged")
	}
	if report.Results[0].Outcome.Reason != ReasonNotFound || report.Results[1].Outcome.Reason != ReasonNotFound {
		t.Fatalf("expected not_found skips, got %+v", report.Results)
	}
	if got, _ := a.Content("plugin/readme.txt"); got != "base!" {
		t.Fatalf("expected later rule to still apply, got %q", got)
	}
	if obs.outcomes[StatusSkipped] != 2 || obs.outcomes[StatusApplied] != 1 {
		t.Fatalf("unexpected observed outcomes: %v", obs.outcomes)
	}
}

func TestApplyAllNoRoot(t *testing.T) {
	a := NewMemArchive().Add("a.txt", "1").Add("b.txt", "2")
	rules := []Rule{{Kind: KindAppendText, TargetFile: "a.txt", ContentTemplate: "+"}}
	report, err := NewEngine().Quiet().ApplyAll(a, rules, Substitution{})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if report.Root != "" || report.Results[0].Path != "a.txt" {
		t.Fatalf("expected unrooted path, got root=%q path=%q", report.Root, report.Results[0].Path)
	}
}

func TestApplyAllRootComputedBeforeMutation(t *testing.T) {
	a := rootedArchive()
	rules := []Rule{
		{Kind: KindInsertFile, TargetFile: "../outside.txt", ContentTemplate: "x"},
		{Kind: KindAppendText, TargetFile: "readme.txt", ContentTemplate: "!"},
	}
	report, err := NewEngine().Quiet().ApplyAll(a, rules, Substitution{})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if report.Results[1].Path != "plugin/readme.txt" {
		t.Fatalf("expected root to stay fixed for the run, got %q", report.Results[1].Path)
	}
}

func TestApplyAllEmptyInsertTarget(t *testing.T) {
	a := rootedArchive()
	report, err := NewEngine().Quiet().ApplyAll(a, []Rule{{Kind: KindInsertFile, ContentTemplate: "x"}}, Substitution{})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if report.Results[0].Outcome.Reason != ReasonEmptyPath || a.Writes != 0 {
		t.Fatalf("expected empty path skip without writes")
	}
}

func TestApplyAllFatalStopsRun(t *testing.T) {
	a := rootedArchive()
	a.WriteErr = errors.New("read-only archive")
	rules := []Rule{
		{Kind: KindInsertFile, TargetFile: "id.txt", ContentTemplate: "1"},
		{Kind: KindAppendText, TargetFile: "readme.txt", ContentTemplate: "2"},
	}
	report, err := NewEngine().Quiet().ApplyAll(a, rules, Substitution{})
	if !errors.Is(err, ErrArchiveWrite) {
		t.Fatalf("expected ErrArchiveWrite, got %v", err)
	}
	if len(report.Results) != 1 || !report.Results[0].Outcome.Fatal() {
		t.Fatalf("expected run to stop after first fatal rule, got %+v", report.Results)
	}
}

func TestApplyAllFreshCachePerRun(t *testing.T) {
	engine := NewEngine().Quiet()
	rules := []Rule{{Kind: KindAppendText, TargetFile: "readme.txt", ContentTemplate: "X"}}
	first := rootedArchive()
	second := rootedArchive()
	if _, err := engine.ApplyAll(first, rules, Substitution{}); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := engine.ApplyAll(second, rules, Substitution{}); err != nil {
		t.Fatalf("second: %v", err)
	}
	if got, _ := second.Content("plugin/readme.txt"); got != "baseX" {
		t.Fatalf("expected independent run, got %q", got)
	}
}
