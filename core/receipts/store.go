// Package receipts records which archive copy was produced for whom, so a
// leaked download can be traced back to a purchase.
package receipts

import (
	"context"
	"errors"
	"time"
)

// RetentionClass controls receipt TTL semantics.
type RetentionClass string

const (
	RetentionShort    RetentionClass = "short"
	RetentionStandard RetentionClass = "standard"
	RetentionAudit    RetentionClass = "audit"
)

// ErrNotFound is returned when a receipt is missing or expired.
var ErrNotFound = errors.New("receipts: not found")

// Receipt describes one watermarked archive handed to a customer.
type Receipt struct {
	ID           string         `json:"id"`
	RequestID    string         `json:"request_id,omitempty"`
	ItemID       string         `json:"item_id,omitempty"`
	CustomerID   int64          `json:"customer_id"`
	PaymentID    int64          `json:"payment_id"`
	DownloadID   *int64         `json:"download_id,omitempty"`
	Archive      string         `json:"archive"`
	SHA256       string         `json:"sha256"`
	SizeBytes    int64          `json:"size_bytes"`
	RulesApplied int            `json:"rules_applied"`
	RulesSkipped int            `json:"rules_skipped"`
	RulesVersion string         `json:"rules_version,omitempty"`
	Retention    RetentionClass `json:"retention,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Store persists receipts.
type Store interface {
	Put(ctx context.Context, r Receipt) (string, error)
	Get(ctx context.Context, id string) (Receipt, error)
	ListByCustomer(ctx context.Context, customerID int64, limit int64) ([]Receipt, error)
}
