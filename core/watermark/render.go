package watermark

import (
	"encoding/base64"
	"math/big"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

const (
	tagLicenseKey = "license_key"
	tagCustomerID = "customer_id"
	tagDownloadID = "download_id"
	tagPaymentID  = "payment_id"
)

// LineBreak is the terminator written for \n, \r and \r\n escapes.
var LineBreak = platformLineBreak(runtime.GOOS)

// placeholderPattern matches {tag}, {tag attr} and {tag attr=value}. The
// value may be wrapped in double quotes as the admin help text shows.
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_]+)(?:\s+([A-Za-z_]+)(?:="?([A-Za-z0-9_]+)"?)?)?\}`)

// Render substitutes placeholders in template with values from sub and
// expands written line-break escapes. Unknown placeholders are left as-is.
func Render(template string, sub Substitution) string {
	if template == "" {
		return ""
	}
	out := replacePlain(template, sub)
	out = replaceAttributed(out, sub)
	return expandLineBreaks(out)
}

func replacePlain(s string, sub Substitution) string {
	s = strings.ReplaceAll(s, "{"+tagLicenseKey+"}", sub.LicenseKey)
	s = strings.ReplaceAll(s, "{"+tagCustomerID+"}", sub.customerID())
	s = strings.ReplaceAll(s, "{"+tagDownloadID+"}", sub.downloadID())
	s = strings.ReplaceAll(s, "{"+tagPaymentID+"}", sub.paymentID())
	return s
}

func replaceAttributed(s string, sub Substitution) string {
	for _, m := range placeholderPattern.FindAllStringSubmatch(s, -1) {
		token, tag, attr, value := m[0], m[1], m[2], m[3]
		if attr == "" && isPlainTag(tag) {
			continue
		}
		var rendered string
		switch tag {
		case tagCustomerID:
			id := sub.CustomerID
			if attr == "times" {
				if n, err := strconv.ParseInt(value, 10, 64); err == nil {
					id = timesOrRaw(id, n)
				}
			}
			rendered = strconv.FormatInt(id, 10)
		case tagLicenseKey:
			rendered = sub.LicenseKey
			if attr == "encoded" && value == "base64" {
				rendered = base64.StdEncoding.EncodeToString([]byte(sub.LicenseKey))
			}
		default:
			continue
		}
		s = strings.ReplaceAll(s, token, rendered)
	}
	return s
}

// timesOrRaw returns id*n, or id unchanged when the product overflows int64.
func timesOrRaw(id, n int64) int64 {
	p := new(big.Int).Mul(big.NewInt(id), big.NewInt(n))
	if !p.IsInt64() {
		return id
	}
	return p.Int64()
}

func isPlainTag(tag string) bool {
	switch tag {
	case tagLicenseKey, tagCustomerID, tagDownloadID, tagPaymentID:
		return true
	default:
		return false
	}
}

// expandLineBreaks rewrites the written escapes \r\n, \n and \r, with one or
// two backslashes, to LineBreak. Longer forms are listed first so a doubled
// escape never leaves a stray backslash behind.
func expandLineBreaks(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	return strings.NewReplacer(
		`\\r\\n`, LineBreak,
		`\r\n`, LineBreak,
		`\\n`, LineBreak,
		`\\r`, LineBreak,
		`\n`, LineBreak,
		`\r`, LineBreak,
	).Replace(s)
}

func platformLineBreak(goos string) string {
	if goos == "windows" {
		return "\r\n"
	}
	return "\n"
}
