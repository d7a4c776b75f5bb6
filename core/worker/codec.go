package worker

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cordum/zipmark/core/dispatch"
	"github.com/cordum/zipmark/core/watermark"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodeRequest renders a request as a bus payload.
func EncodeRequest(req dispatch.Request) (*structpb.Struct, error) {
	fields := map[string]any{
		"request_id":  req.RequestID,
		"source_path": req.SourcePath,
		"item_id":     req.ItemID,
		"license_key": req.LicenseKey,
		"customer_id": strconv.FormatInt(req.CustomerID, 10),
		"payment_id":  strconv.FormatInt(req.PaymentID, 10),
	}
	if req.DownloadID != nil {
		fields["download_id"] = strconv.FormatInt(*req.DownloadID, 10)
	}
	return structpb.NewStruct(fields)
}

// DecodeRequest reads a request payload. Ids may arrive as numbers or
// decimal strings. A missing request_id is generated.
func DecodeRequest(payload *structpb.Struct) (dispatch.Request, error) {
	if payload == nil {
		return dispatch.Request{}, fmt.Errorf("empty request payload")
	}
	f := payload.GetFields()
	req := dispatch.Request{
		RequestID:  str(f, "request_id"),
		SourcePath: str(f, "source_path"),
		ItemID:     str(f, "item_id"),
		LicenseKey: str(f, "license_key"),
	}
	if req.SourcePath == "" {
		return dispatch.Request{}, fmt.Errorf("source_path required")
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	var err error
	if req.CustomerID, _, err = integer(f, "customer_id"); err != nil {
		return dispatch.Request{}, err
	}
	if req.PaymentID, _, err = integer(f, "payment_id"); err != nil {
		return dispatch.Request{}, err
	}
	id, ok, err := integer(f, "download_id")
	if err != nil {
		return dispatch.Request{}, err
	}
	if ok {
		req.DownloadID = &id
	}
	return req, nil
}

// EncodeResult renders a dispatch result for zipmark.result.
func EncodeResult(res dispatch.Result, completed time.Time) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"request_id":    res.RequestID,
		"path":          res.Path,
		"watermarked":   res.Watermarked,
		"reason":        string(res.Reason),
		"receipt_id":    res.ReceiptID,
		"sha256":        res.SHA256,
		"size_bytes":    res.SizeBytes,
		"root":          res.Report.Root,
		"rules_applied": res.Report.Count(watermark.StatusApplied),
		"rules_skipped": res.Report.Count(watermark.StatusSkipped),
		"completed_at":  completed.UTC().Format(time.RFC3339Nano),
	})
}

func str(f map[string]*structpb.Value, key string) string {
	return strings.TrimSpace(f[key].GetStringValue())
}

func integer(f map[string]*structpb.Value, key string) (int64, bool, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return 0, false, fmt.Errorf("%s: not an integer: %v", key, n)
		}
		return int64(n), true, nil
	case *structpb.Value_StringValue:
		raw := strings.TrimSpace(kind.StringValue)
		if raw == "" {
			return 0, false, nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%s: %w", key, err)
		}
		return n, true, nil
	case *structpb.Value_NullValue:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("%s: unsupported type", key)
	}
}
