package buildinfo

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func stamp(t *testing.T, version, commit, date string) {
	t.Helper()
	v, c, d := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = v, c, d })
	Version, Commit, Date = version, commit, date
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	out, flags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(out)
		log.SetFlags(flags)
	})
	return &buf
}

func TestInfoUnstamped(t *testing.T) {
	stamp(t, "dev", "unknown", "unknown")
	if got := Info(); got != "version=dev commit=unknown date=unknown" {
		t.Fatalf("unexpected unstamped info %q", got)
	}
}

func TestLogWorkerStartup(t *testing.T) {
	stamp(t, "0.4.0", "9f1c2e7", "2026-03-01")
	buf := captureLog(t)

	Log("zipmark-worker", "staging_dir", "/srv/zipmark", "jetstream", true)

	got := strings.TrimSpace(buf.String())
	want := "[ZIPMARK-WORKER] starting version=0.4.0 commit=9f1c2e7 date=2026-03-01 staging_dir=/srv/zipmark jetstream=true"
	if got != want {
		t.Fatalf("unexpected startup line:\n got %s\nwant %s", got, want)
	}
}

func TestFieldsNotAliased(t *testing.T) {
	stamp(t, "0.4.0", "9f1c2e7", "2026-03-01")
	captureLog(t)
	Log("zipmarkctl", "extra", 1)
	if fields := Fields(); len(fields) != 6 || fields[5] != "2026-03-01" {
		t.Fatalf("extra pairs leaked into Fields: %v", fields)
	}
}
