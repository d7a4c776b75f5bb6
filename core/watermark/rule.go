package watermark

import (
	"errors"
	"fmt"
	"strings"
)

// Kind selects the patch operation a rule performs.
type Kind string

const (
	KindInsertFile  Kind = "insert_file"
	KindReplaceText Kind = "replace_text"
	KindAppendText  Kind = "append_text"
)

// ErrUnknownKind is returned by ParseKind for unrecognized operation names.
var ErrUnknownKind = errors.New("watermark: unknown rule kind")

// ParseKind maps a persisted operation name to a Kind. The names written by
// the legacy settings screen (add_file, string_replacement, append_to_file)
// are accepted alongside the canonical ones.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(KindInsertFile), "add_file":
		return KindInsertFile, nil
	case string(KindReplaceText), "string_replacement":
		return KindReplaceText, nil
	case string(KindAppendText), "append_to_file":
		return KindAppendText, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
}

// Valid reports whether k is one of the three supported operations.
func (k Kind) Valid() bool {
	switch k {
	case KindInsertFile, KindReplaceText, KindAppendText:
		return true
	default:
		return false
	}
}

// Rule is one configured patch instruction.
type Rule struct {
	Kind            Kind   `json:"type" yaml:"type"`
	TargetFile      string `json:"file" yaml:"file"`
	SearchText      string `json:"search,omitempty" yaml:"search,omitempty"`
	ContentTemplate string `json:"content" yaml:"content"`
}

func (r Rule) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.TargetFile)
}
