package watermark

import (
	"errors"
	"strconv"
)

// ErrMissingIdentity means the download could not be attributed to a
// customer and an order.
var ErrMissingIdentity = errors.New("watermark: customer id and payment id are required")

// Substitution holds the per-download values available to templates.
type Substitution struct {
	LicenseKey string
	CustomerID int64
	DownloadID *int64
	PaymentID  int64
}

// Validate reports ErrMissingIdentity when either the customer or the
// payment id is zero. The engine itself never calls it.
func (s Substitution) Validate() error {
	if s.CustomerID == 0 || s.PaymentID == 0 {
		return ErrMissingIdentity
	}
	return nil
}

func (s Substitution) customerID() string {
	return strconv.FormatInt(s.CustomerID, 10)
}

func (s Substitution) paymentID() string {
	return strconv.FormatInt(s.PaymentID, 10)
}

func (s Substitution) downloadID() string {
	if s.DownloadID == nil {
		return ""
	}
	return strconv.FormatInt(*s.DownloadID, 10)
}
