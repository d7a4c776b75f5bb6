package watermark

import "testing"

func int64Ptr(v int64) *int64 { return &v }

func TestRenderUnknownTagUnchanged(t *testing.T) {
	subs := []Substitution{
		{},
		{LicenseKey: "KEY", CustomerID: 42, PaymentID: 7, DownloadID: int64Ptr(3)},
	}
	for _, sub := range subs {
		if got := Render("{unknown_tag}", sub); got != "{unknown_tag}" {
			t.Fatalf("expected unknown tag untouched, got %q", got)
		}
		if got := Render("{unknown_tag times=2}", sub); got != "{unknown_tag times=2}" {
			t.Fatalf("expected unknown attributed tag untouched, got %q", got)
		}
	}
}

func TestRenderPlainPlaceholders(t *testing.T) {
	sub := Substitution{LicenseKey: "ABC-123", CustomerID: 42, PaymentID: 9001, DownloadID: int64Ptr(17)}
	if got := Render("id={customer_id}", sub); got != "id=42" {
		t.Fatalf("unexpected render: %q", got)
	}
	got := Render("{license_key}/{customer_id}/{download_id}/{payment_id}/{customer_id}", sub)
	if got != "ABC-123/42/17/9001/42" {
		t.Fatalf("unexpected render: %q", got)
	}
	if got := Render("{Customer_ID}", sub); got != "{Customer_ID}" {
		t.Fatalf("expected case-sensitive match, got %q", got)
	}
}

func TestRenderAbsentDownloadID(t *testing.T) {
	sub := Substitution{CustomerID: 1, PaymentID: 2}
	if got := Render("d=[{download_id}]", sub); got != "d=[]" {
		t.Fatalf("expected empty download id, got %q", got)
	}
}

func TestRenderCustomerTimes(t *testing.T) {
	sub := Substitution{CustomerID: 5}
	if got := Render("{customer_id times=3}", sub); got != "15" {
		t.Fatalf("expected 15, got %q", got)
	}
	if got := Render("{customer_id times=abc}", sub); got != "5" {
		t.Fatalf("expected raw id for non-numeric factor, got %q", got)
	}
	if got := Render("{customer_id other=3}", sub); got != "5" {
		t.Fatalf("expected raw id for unknown attribute, got %q", got)
	}
	if got := Render("{customer_id times}", sub); got != "5" {
		t.Fatalf("expected raw id for missing value, got %q", got)
	}
}

func TestRenderCustomerTimesOverflow(t *testing.T) {
	sub := Substitution{CustomerID: 3_000_000_000_000_000_000}
	if got := Render("{customer_id times=2}", sub); got != "6000000000000000000" {
		t.Fatalf("expected product within range, got %q", got)
	}
	if got := Render("{customer_id times=4}", sub); got != "3000000000000000000" {
		t.Fatalf("expected raw id on overflow, got %q", got)
	}
}

func TestRenderLicenseBase64(t *testing.T) {
	sub := Substitution{LicenseKey: "AB"}
	if got := Render("{license_key encoded=base64}", sub); got != "QUI=" {
		t.Fatalf("expected QUI=, got %q", got)
	}
	if got := Render(`{license_key encoded="base64"}`, sub); got != "QUI=" {
		t.Fatalf("expected quoted value accepted, got %q", got)
	}
	if got := Render("{license_key encoded=hex}", sub); got != "AB" {
		t.Fatalf("expected raw key for unknown encoding, got %q", got)
	}
}

func TestRenderMultiplePlaceholdersNotGreedy(t *testing.T) {
	sub := Substitution{LicenseKey: "AB", CustomerID: 4, PaymentID: 1}
	got := Render("{customer_id times=2}-{license_key encoded=base64}-{customer_id}", sub)
	if got != "8-QUI=-4" {
		t.Fatalf("unexpected render: %q", got)
	}
}

func TestRenderLineBreaks(t *testing.T) {
	expect := "a" + LineBreak + "b"
	for _, tmpl := range []string{`a\r\nb`, `a\\r\\nb`, `a\nb`, `a\\nb`, `a\rb`, `a\\rb`} {
		if got := Render(tmpl, Substitution{}); got != expect {
			t.Fatalf("template %q expected %q got %q", tmpl, expect, got)
		}
	}
	got := Render(`Licensed to {customer_id}\nOrder {payment_id}\n`, Substitution{CustomerID: 3, PaymentID: 4})
	if got != "Licensed to 3"+LineBreak+"Order 4"+LineBreak {
		t.Fatalf("unexpected multi-line render: %q", got)
	}
}

func TestPlatformLineBreak(t *testing.T) {
	if platformLineBreak("windows") != "\r\n" {
		t.Fatalf("expected CRLF on windows")
	}
	if platformLineBreak("linux") != "\n" {
		t.Fatalf("expected LF on linux")
	}
}

func TestRenderEmpty(t *testing.T) {
	if got := Render("", Substitution{CustomerID: 1}); got != "" {
		t.Fatalf("expected empty render, got %q", got)
	}
}
