// Package rules loads, sanitizes and persists watermark rule lists.
package rules

import (
	"strings"

	"github.com/cordum/zipmark/core/infra/config"
	"github.com/cordum/zipmark/core/infra/logging"
	"github.com/cordum/zipmark/core/watermark"
)

const logComponent = "rules"

// Sanitize normalizes rules the way the admin form stores them: kind,
// target and search are trimmed, content keeps its whitespace but loses
// NUL bytes. Rows with an unknown kind are dropped.
func Sanitize(in []watermark.Rule) []watermark.Rule {
	out := make([]watermark.Rule, 0, len(in))
	for i, r := range in {
		kind, err := watermark.ParseKind(string(r.Kind))
		if err != nil {
			logging.Warn(logComponent, "dropping rule", "index", i, "type", r.Kind, "error", err)
			continue
		}
		out = append(out, watermark.Rule{
			Kind:            kind,
			TargetFile:      strings.TrimSpace(stripNUL(r.TargetFile)),
			SearchText:      strings.TrimSpace(stripNUL(r.SearchText)),
			ContentTemplate: stripNUL(r.ContentTemplate),
		})
	}
	return out
}

// FromColumns turns the column arrays posted by a repeater form into rule
// rows. The type column drives the row count; missing cells are empty.
func FromColumns(types, files, searches, contents []string) []watermark.Rule {
	out := make([]watermark.Rule, 0, len(types))
	for i, t := range types {
		out = append(out, watermark.Rule{
			Kind:            watermark.Kind(t),
			TargetFile:      cell(files, i),
			SearchText:      cell(searches, i),
			ContentTemplate: cell(contents, i),
		})
	}
	return out
}

// FromRows converts rule file rows and sanitizes them.
func FromRows(rows []config.RuleRow) []watermark.Rule {
	out := make([]watermark.Rule, 0, len(rows))
	for _, row := range rows {
		out = append(out, watermark.Rule{
			Kind:            watermark.Kind(row.Type),
			TargetFile:      row.File,
			SearchText:      row.Search,
			ContentTemplate: row.Content,
		})
	}
	return Sanitize(out)
}

// FromList converts a rule file list in either layout and sanitizes it.
func FromList(l config.RuleList) []watermark.Rule {
	if c := l.Columns; c != nil {
		return Sanitize(FromColumns(c.Type, c.File, c.Search, c.Content))
	}
	return FromRows(l.Rows)
}

// ToRows is the inverse of FromRows.
func ToRows(in []watermark.Rule) []config.RuleRow {
	out := make([]config.RuleRow, 0, len(in))
	for _, r := range in {
		out = append(out, config.RuleRow{
			Type:    string(r.Kind),
			File:    r.TargetFile,
			Search:  r.SearchText,
			Content: r.ContentTemplate,
		})
	}
	return out
}

// Compose returns the rule list for one item: global rules first, then the
// item's own rules.
func Compose(global, item []watermark.Rule) []watermark.Rule {
	out := make([]watermark.Rule, 0, len(global)+len(item))
	out = append(out, global...)
	return append(out, item...)
}

// Allowed reports whether an archive basename may be watermarked. An empty
// allowlist allows everything.
func Allowed(allowlist []string, basename string) bool {
	if len(allowlist) == 0 {
		return true
	}
	for _, name := range allowlist {
		if strings.TrimSpace(name) == basename {
			return true
		}
	}
	return false
}

func cell(col []string, i int) string {
	if i < len(col) {
		return col[i]
	}
	return ""
}

func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
