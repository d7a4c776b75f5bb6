// Package dispatch turns a download request into the path that should be
// served: a watermarked per-customer copy, or the untouched source when
// anything prevents watermarking.
package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cordum/zipmark/core/infra/locks"
	"github.com/cordum/zipmark/core/infra/logging"
	"github.com/cordum/zipmark/core/infra/metrics"
	"github.com/cordum/zipmark/core/receipts"
	"github.com/cordum/zipmark/core/rules"
	"github.com/cordum/zipmark/core/staging"
	"github.com/cordum/zipmark/core/watermark"
	"github.com/cordum/zipmark/core/ziparchive"
)

const logComponent = "dispatch"

// Reason explains why a request was served without a watermark.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonNotListed       Reason = "not_listed"
	ReasonMissingIdentity Reason = "missing_identity"
	ReasonRulesFailed     Reason = "rules_failed"
	ReasonStageFailed     Reason = "stage_failed"
	ReasonOpenFailed      Reason = "open_failed"
	ReasonEngineFailed    Reason = "engine_failed"
)

// Request identifies the archive to serve and who it is for.
type Request struct {
	RequestID  string `json:"request_id"`
	SourcePath string `json:"source_path"`
	// ItemID selects per-item rules. When empty the download id is used.
	ItemID     string `json:"item_id,omitempty"`
	LicenseKey string `json:"license_key,omitempty"`
	CustomerID int64  `json:"customer_id"`
	PaymentID  int64  `json:"payment_id"`
	DownloadID *int64 `json:"download_id,omitempty"`
}

func (r Request) itemID() string {
	if r.ItemID != "" {
		return r.ItemID
	}
	if r.DownloadID != nil {
		return strconv.FormatInt(*r.DownloadID, 10)
	}
	return ""
}

func (r Request) substitution() watermark.Substitution {
	return watermark.Substitution{
		LicenseKey: r.LicenseKey,
		CustomerID: r.CustomerID,
		DownloadID: r.DownloadID,
		PaymentID:  r.PaymentID,
	}
}

// Result says which file to serve.
type Result struct {
	RequestID   string           `json:"request_id"`
	Path        string           `json:"path"`
	Watermarked bool             `json:"watermarked"`
	Reason      Reason           `json:"reason,omitempty"`
	Report      watermark.Report `json:"-"`
	ReceiptID   string           `json:"receipt_id,omitempty"`
	SHA256      string           `json:"sha256,omitempty"`
	SizeBytes   int64            `json:"size_bytes,omitempty"`
}

// Dispatcher is safe for concurrent use. Requests for the same customer are
// serialized by the stager's lock.
type Dispatcher struct {
	stager   *staging.Stager
	source   rules.Source
	engine   *watermark.Engine
	receipts receipts.Store
	metrics  metrics.Metrics
	open     func(path string) (stagedArchive, error)
	now      func() time.Time
}

type stagedArchive interface {
	watermark.Archive
	Save(path string) error
	Close() error
}

func openZip(path string) (stagedArchive, error) {
	arc, err := ziparchive.Open(path)
	if err != nil {
		return nil, err
	}
	return arc, nil
}

// New builds a dispatcher. Receipts and metrics are optional.
func New(stager *staging.Stager, source rules.Source) *Dispatcher {
	return &Dispatcher{
		stager:  stager,
		source:  source,
		engine:  watermark.NewEngine(),
		metrics: metrics.Noop{},
		open:    openZip,
		now:     time.Now,
	}
}

// WithReceipts records a receipt for every watermarked copy.
func (d *Dispatcher) WithReceipts(store receipts.Store) *Dispatcher {
	d.receipts = store
	return d
}

// WithMetrics reports run and rule outcomes to m.
func (d *Dispatcher) WithMetrics(m metrics.Metrics) *Dispatcher {
	if m == nil {
		m = metrics.Noop{}
	}
	d.metrics = m
	d.engine = watermark.NewEngine().WithObserver(m)
	return d
}

// Dispatch never fails open: every problem falls back to the source path.
// The returned error is reserved for cancellation and lock contention, which
// the caller may retry.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	start := d.now()
	res, err := d.dispatch(ctx, req)
	status := metrics.RunFallback
	switch {
	case err != nil:
	case res.Watermarked:
		status = metrics.RunWatermarked
	case res.Reason == ReasonNotListed || res.Reason == ReasonMissingIdentity:
		status = metrics.RunSkipped
	}
	d.metrics.ObserveRun(status, d.now().Sub(start).Seconds())
	return res, err
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) (Result, error) {
	fallback := func(reason Reason, err error) Result {
		kv := []any{"request_id", req.RequestID, "source", req.SourcePath, "reason", reason}
		if err != nil {
			kv = append(kv, "error", err)
		}
		logging.Info(logComponent, "serving source", kv...)
		return Result{RequestID: req.RequestID, Path: req.SourcePath, Reason: reason}
	}

	basename := filepath.Base(req.SourcePath)
	allow, err := d.source.Allowlist(ctx)
	if err != nil {
		return fallback(ReasonRulesFailed, err), nil
	}
	if !rules.Allowed(allow, basename) {
		return fallback(ReasonNotListed, nil), nil
	}
	sub := req.substitution()
	if err := sub.Validate(); err != nil {
		return fallback(ReasonMissingIdentity, err), nil
	}
	snap, err := d.source.ResolveSnapshot(ctx, req.itemID())
	if err != nil {
		return fallback(ReasonRulesFailed, err), nil
	}

	staged, release, err := d.stager.Stage(ctx, req.CustomerID, req.SourcePath)
	if err != nil {
		if errors.Is(err, locks.ErrBusy) || ctx.Err() != nil {
			return fallback(ReasonStageFailed, err), err
		}
		return fallback(ReasonStageFailed, err), nil
	}
	defer release()

	report, err := d.watermark(staged, snap.Rules, sub)
	if err != nil {
		d.discard(staged)
		if errors.Is(err, errOpen) {
			return fallback(ReasonOpenFailed, err), nil
		}
		return fallback(ReasonEngineFailed, err), nil
	}

	sum, size, err := digest(staged)
	if err != nil {
		d.discard(staged)
		return fallback(ReasonEngineFailed, err), nil
	}
	res := Result{
		RequestID:   req.RequestID,
		Path:        staged,
		Watermarked: true,
		Report:      report,
		SHA256:      sum,
		SizeBytes:   size,
	}
	res.ReceiptID = d.recordReceipt(ctx, req, res, basename, snap.Version)
	logging.Info(logComponent, "watermarked",
		"request_id", req.RequestID,
		"customer_id", req.CustomerID,
		"path", staged,
		"applied", report.Count(watermark.StatusApplied),
		"skipped", report.Count(watermark.StatusSkipped),
	)
	return res, nil
}

var errOpen = errors.New("open staged archive")

func (d *Dispatcher) watermark(path string, ruleList []watermark.Rule, sub watermark.Substitution) (watermark.Report, error) {
	arc, err := d.open(path)
	if err != nil {
		return watermark.Report{}, fmt.Errorf("%w: %w", errOpen, err)
	}
	defer arc.Close()

	report, err := d.engine.ApplyAll(arc, ruleList, sub)
	if err != nil {
		return report, err
	}
	if err := arc.Save(path); err != nil {
		return report, fmt.Errorf("save archive: %w", err)
	}
	return report, nil
}

func (d *Dispatcher) discard(staged string) {
	if err := d.stager.Discard(staged); err != nil {
		logging.Warn(logComponent, "discard staged copy", "path", staged, "error", err)
	}
}

// recordReceipt stores version, the rule snapshot the run was built from.
func (d *Dispatcher) recordReceipt(ctx context.Context, req Request, res Result, archive, version string) string {
	if d.receipts == nil {
		return ""
	}
	id, err := d.receipts.Put(ctx, receipts.Receipt{
		RequestID:    req.RequestID,
		ItemID:       req.itemID(),
		CustomerID:   req.CustomerID,
		PaymentID:    req.PaymentID,
		DownloadID:   req.DownloadID,
		Archive:      archive,
		SHA256:       res.SHA256,
		SizeBytes:    res.SizeBytes,
		RulesApplied: res.Report.Count(watermark.StatusApplied),
		RulesSkipped: res.Report.Count(watermark.StatusSkipped),
		RulesVersion: version,
		Retention:    receipts.RetentionAudit,
	})
	if err != nil {
		logging.Warn(logComponent, "record receipt failed", "request_id", req.RequestID, "error", err)
		return ""
	}
	return id
}

func digest(path string) (string, int64, error) {
	// #nosec G304 -- path is the staged copy.
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
