package watermark

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrArchiveWrite marks a failed write or delete. A run that hits it leaves
// the archive partially patched.
var ErrArchiveWrite = errors.New("watermark: archive write failed")

// Status classifies what happened to a single rule.
type Status int

const (
	StatusApplied Status = iota
	StatusSkipped
	StatusFatal
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusSkipped:
		return "skipped"
	case StatusFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Reason explains a skipped or fatal outcome.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonNotFound    Reason = "not_found"
	ReasonUnreadable  Reason = "unreadable"
	ReasonNoChange    Reason = "no_change"
	ReasonEmptyPath   Reason = "empty_path"
	ReasonUnknownKind Reason = "unknown_kind"
	ReasonWriteFailed Reason = "write_failed"
)

// Outcome is the result of applying one rule. Skipped outcomes are expected
// and never stop a run; fatal ones do.
type Outcome struct {
	Status Status
	Reason Reason
	Err    error
}

// Fatal reports whether the run must abort.
func (o Outcome) Fatal() bool {
	return o.Status == StatusFatal
}

func applied() Outcome {
	return Outcome{Status: StatusApplied}
}

func skipped(reason Reason, err error) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason, Err: err}
}

func fatal(op, path string, err error) Outcome {
	return Outcome{
		Status: StatusFatal,
		Reason: ReasonWriteFailed,
		Err:    fmt.Errorf("%w: %s %s: %w", ErrArchiveWrite, op, path, err),
	}
}

// Apply performs one patch operation on path. content is already rendered;
// search is only used by KindReplaceText.
func Apply(a Archive, cache PathCache, path string, kind Kind, search, content string) Outcome {
	switch kind {
	case KindInsertFile:
		if path == "" {
			return skipped(ReasonEmptyPath, nil)
		}
		data := []byte(content)
		if err := a.Write(path, data); err != nil {
			return fatal("write", path, err)
		}
		cache.put(path, data)
		return applied()

	case KindReplaceText:
		current, out, ok := currentContent(a, cache, path)
		if !ok {
			return out
		}
		if search == "" {
			return skipped(ReasonNoChange, nil)
		}
		next := bytes.ReplaceAll(current, []byte(search), []byte(content))
		if bytes.Equal(next, current) {
			return skipped(ReasonNoChange, nil)
		}
		return rewrite(a, cache, path, next)

	case KindAppendText:
		current, out, ok := currentContent(a, cache, path)
		if !ok {
			return out
		}
		if content == "" {
			return skipped(ReasonNoChange, nil)
		}
		next := make([]byte, 0, len(current)+len(content))
		next = append(next, current...)
		next = append(next, content...)
		return rewrite(a, cache, path, next)

	default:
		return skipped(ReasonUnknownKind, fmt.Errorf("%w: %q", ErrUnknownKind, kind))
	}
}

// currentContent returns the cached content for path, reading it from the
// archive on first use.
func currentContent(a Archive, cache PathCache, path string) ([]byte, Outcome, bool) {
	if path == "" {
		return nil, skipped(ReasonEmptyPath, nil), false
	}
	if data, ok := cache.get(path); ok {
		return data, Outcome{}, true
	}
	data, err := a.Read(path)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, skipped(ReasonNotFound, err), false
		}
		return nil, skipped(ReasonUnreadable, err), false
	}
	cache.put(path, data)
	return data, Outcome{}, true
}

func rewrite(a Archive, cache PathCache, path string, data []byte) Outcome {
	if err := a.Delete(path); err != nil {
		return fatal("delete", path, err)
	}
	if err := a.Write(path, data); err != nil {
		return fatal("write", path, err)
	}
	cache.put(path, data)
	return applied()
}
