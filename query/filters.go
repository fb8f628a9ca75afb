// Package query implements the Query Executor: stats, cursor-paginated
// queries, and jump-to-time against a committed index cache directory.
package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Filters mirrors LogFilters from the external interface. All fields
// are optional; the zero value matches everything.
type Filters struct {
	TsFrom        *int64 `json:"tsFrom,omitempty"`
	TsTo          *int64 `json:"tsTo,omitempty"`
	Levels        []string `json:"levels,omitempty"`
	Tag           string `json:"tag,omitempty"`
	Pid           *int32 `json:"pid,omitempty"`
	Tid           *int32 `json:"tid,omitempty"`
	Text          string `json:"text,omitempty"`
	NotText       string `json:"notText,omitempty"`
	TextMode      string `json:"textMode,omitempty"` // "plain" | "regex"
	CaseSensitive bool   `json:"caseSensitive,omitempty"`
}

// TagAlternatives splits Tag on "|" into its OR alternatives.
func (f Filters) TagAlternatives() []string {
	if f.Tag == "" {
		return nil
	}
	parts := strings.Split(f.Tag, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TextAlternatives splits Text on "|" into plain-mode OR alternatives.
// Only meaningful when TextMode is "plain" (or empty, which defaults to
// plain); in regex mode Text is compiled as a single pattern.
func (f Filters) TextAlternatives() []string {
	if f.Text == "" {
		return nil
	}
	return strings.Split(f.Text, "|")
}

// Fingerprint computes the stable 64-bit digest of the canonicalised
// filter set that cursors are validated against.
func (f Filters) Fingerprint() uint64 {
	var sb strings.Builder
	writeInt64Ptr := func(p *int64) {
		if p == nil {
			sb.WriteString("-")
			return
		}
		sb.WriteString(strconv.FormatInt(*p, 10))
	}
	writeInt32Ptr := func(p *int32) {
		if p == nil {
			sb.WriteString("-")
			return
		}
		sb.WriteString(strconv.FormatInt(int64(*p), 10))
	}

	sb.WriteString("tsFrom=")
	writeInt64Ptr(f.TsFrom)
	sb.WriteString("|tsTo=")
	writeInt64Ptr(f.TsTo)

	levels := append([]string(nil), f.Levels...)
	sort.Strings(levels)
	sb.WriteString("|levels=")
	sb.WriteString(strings.Join(levels, ","))

	sb.WriteString("|tag=")
	sb.WriteString(f.Tag)
	sb.WriteString("|pid=")
	writeInt32Ptr(f.Pid)
	sb.WriteString("|tid=")
	writeInt32Ptr(f.Tid)
	sb.WriteString("|text=")
	sb.WriteString(f.Text)
	sb.WriteString("|notText=")
	sb.WriteString(f.NotText)
	mode := f.TextMode
	if mode == "" {
		mode = "plain"
	}
	sb.WriteString("|textMode=")
	sb.WriteString(mode)
	sb.WriteString(fmt.Sprintf("|caseSensitive=%v", f.CaseSensitive))

	return xxhash.Sum64String(sb.String())
}

// IsEmpty reports whether f matches every row, letting callers take the
// O(1) summary-only path instead of a candidate scan.
func (f Filters) IsEmpty() bool {
	return f.TsFrom == nil && f.TsTo == nil && len(f.Levels) == 0 &&
		f.Tag == "" && f.Pid == nil && f.Tid == nil &&
		f.Text == "" && f.NotText == ""
}

func (f Filters) levelSet() map[string]bool {
	if len(f.Levels) == 0 {
		return nil
	}
	m := make(map[string]bool, len(f.Levels))
	for _, l := range f.Levels {
		m[l] = true
	}
	return m
}
