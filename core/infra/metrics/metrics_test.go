package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cordum/zipmark/core/watermark"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func withTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	origReg := prometheus.DefaultRegisterer
	origGather := prometheus.DefaultGatherer
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGather
	})
	return reg
}

func TestNoopMetrics(t *testing.T) {
	var m Metrics = Noop{}
	m.ObserveRule(watermark.KindAppendText, watermark.Outcome{Status: watermark.StatusApplied})
	m.ObserveRun(RunWatermarked, 0.1)
	m.AddStagingSwept(3)
}

func TestPromMetrics(t *testing.T) {
	reg := withTestRegistry(t)
	m := NewProm("zipmark")
	m.ObserveRule(watermark.KindReplaceText, watermark.Outcome{Status: watermark.StatusSkipped, Reason: watermark.ReasonNotFound})
	m.ObserveRun(RunFallback, 0.25)
	m.AddStagingSwept(2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !hasMetric(families, "zipmark_rules_total", map[string]string{"kind": "replace_text", "status": "skipped"}) {
		t.Fatalf("expected rules metric")
	}
	if !hasMetric(families, "zipmark_runs_total", map[string]string{"status": "fallback"}) {
		t.Fatalf("expected runs metric")
	}
	if !hasMetric(families, "zipmark_run_duration_seconds", map[string]string{"status": "fallback"}) {
		t.Fatalf("expected run duration metric")
	}
	if got := counterValue(families, "zipmark_staging_swept_total"); got != 2 {
		t.Fatalf("expected 2 swept, got %v", got)
	}
}

func TestPromIgnoresNonPositiveSweep(t *testing.T) {
	reg := withTestRegistry(t)
	m := NewProm("zipmark")
	m.AddStagingSwept(0)
	m.AddStagingSwept(-1)
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got := counterValue(families, "zipmark_staging_swept_total"); got != 0 {
		t.Fatalf("expected 0 swept, got %v", got)
	}
}

func TestEngineReportsToObserver(t *testing.T) {
	reg := withTestRegistry(t)
	m := NewProm("zipmark")
	arc := watermark.MemArchiveFromMap(map[string]string{"pkg/": "", "pkg/readme.txt": "base"})
	rules := []watermark.Rule{
		{Kind: watermark.KindAppendText, TargetFile: "readme.txt", ContentTemplate: "X"},
		{Kind: watermark.KindAppendText, TargetFile: "missing.txt", ContentTemplate: "X"},
	}
	sub := watermark.Substitution{CustomerID: 1, PaymentID: 2}
	if _, err := watermark.NewEngine().Quiet().WithObserver(m).ApplyAll(arc, rules, sub); err != nil {
		t.Fatalf("apply: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !hasMetric(families, "zipmark_rules_total", map[string]string{"kind": "append_text", "status": "applied"}) {
		t.Fatalf("expected applied rule metric")
	}
	if !hasMetric(families, "zipmark_rules_total", map[string]string{"kind": "append_text", "status": "skipped"}) {
		t.Fatalf("expected skipped rule metric")
	}
}

func TestHandler(t *testing.T) {
	withTestRegistry(t)
	m := NewProm("zipmark")
	m.ObserveRun(RunWatermarked, 0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected metrics output")
	}
}

func counterValue(families []*dto.MetricFamily, name string) float64 {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func hasMetric(families []*dto.MetricFamily, name string, labels map[string]string) bool {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				return true
			}
		}
	}
	return false
}

func matchLabels(pairs []*dto.LabelPair, labels map[string]string) bool {
	if len(labels) == 0 {
		return true
	}
	found := 0
	for _, pair := range pairs {
		if val, ok := labels[pair.GetName()]; ok && pair.GetValue() == val {
			found++
		}
	}
	return found == len(labels)
}
