package watermark

import (
	"errors"
	"testing"
)

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"insert_file":        KindInsertFile,
		"add_file":           KindInsertFile,
		" Replace_Text ":     KindReplaceText,
		"string_replacement": KindReplaceText,
		"append_text":        KindAppendText,
		"append_to_file":     KindAppendText,
	}
	for raw, expect := range cases {
		got, err := ParseKind(raw)
		if err != nil || got != expect {
			t.Fatalf("raw %q expected %s got %s err=%v", raw, expect, got, err)
		}
	}
	if _, err := ParseKind("rename"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestSubstitutionValidate(t *testing.T) {
	if err := (Substitution{CustomerID: 1, PaymentID: 2}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (Substitution{CustomerID: 1}).Validate(); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected missing identity for zero payment")
	}
	if err := (Substitution{PaymentID: 1}).Validate(); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected missing identity for zero customer")
	}
}
