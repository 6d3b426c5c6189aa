// Package search runs a literal, case-sensitive substring search across the
// native stores of every supported tool.
package search

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/iksnae/agent-sessions/internal"
	"github.com/iksnae/agent-sessions/internal/decoder"
)

// DefaultContextChars is the snippet context on each side of a hit
const DefaultContextChars = 50

// Query is one search request
type Query struct {
	Text         string
	ContextChars int
	// MaxMatches keeps only the newest N matches after sorting. Zero keeps all.
	MaxMatches int
}

// Match is one occurrence of the query in one record
type Match struct {
	Source      internal.Source
	SessionID   string
	SortTime    *float64
	DisplayTime string
	Snippet     string
	Meta        string
	Ref         decoder.Ref
}

// Occurrences returns the byte offset of every occurrence of needle in text.
// Overlapping occurrences are included.
func Occurrences(text, needle string) []int {
	if needle == "" {
		return nil
	}
	var idx []int
	start := 0
	for start <= len(text) {
		i := strings.Index(text[start:], needle)
		if i < 0 {
			break
		}
		idx = append(idx, start+i)
		start += i + 1
	}
	return idx
}

// Snippet returns up to contextChars characters on each side of the hit at
// idx, collapsed onto one line.
func Snippet(text string, idx, needleLen, contextChars int) string {
	start := idx
	for n := 0; n < contextChars && start > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(text[:start])
		start -= size
	}
	end := min(len(text), idx+needleLen)
	for n := 0; n < contextChars && end < len(text); n++ {
		_, size := utf8.DecodeRuneInString(text[end:])
		end += size
	}
	return compact(text[start:end])
}

// compact collapses whitespace runs into single spaces
func compact(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// hits emits one match per occurrence of q in text
func hits(text string, q Query, fn func(snippet string)) {
	for _, i := range Occurrences(text, q.Text) {
		fn(Snippet(text, i, len(q.Text), q.ContextChars))
	}
}

// Sort orders matches oldest first with unknown timestamps ahead of all
// known ones. Ties keep their discovery order.
func Sort(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].SortTime, matches[j].SortTime
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return *a < *b
	})
}

// Cap keeps the last n matches. n <= 0 keeps everything.
func Cap(matches []Match, n int) []Match {
	if n <= 0 || len(matches) <= n {
		return matches
	}
	return matches[len(matches)-n:]
}

// stamp is a match's sort key and display form
type stamp struct {
	sort    *float64
	display string
}

// stampOf sorts by the first value that parses as a time and displays the
// first value that is present.
func stampOf(values ...interface{}) stamp {
	var st stamp
	shown := false
	for _, v := range values {
		if v == nil {
			continue
		}
		if !shown {
			st.display = internal.FormatTime(v)
			shown = true
		}
		if st.sort == nil {
			if f, ok := internal.SortTime(v); ok {
				st.sort = &f
			}
		}
	}
	if !shown {
		st.display = "?"
	}
	return st
}

func mtimeValue(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// value converts a gjson result to a plain value, nil when absent or null
func value(r gjson.Result) interface{} {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	return r.Value()
}

// truthy picks the first value that is set and not empty, zero or false
func truthy(values ...interface{}) interface{} {
	for _, v := range values {
		switch x := v.(type) {
		case nil:
			continue
		case string:
			if x == "" {
				continue
			}
		case float64:
			if x == 0 {
				continue
			}
		case bool:
			if !x {
				continue
			}
		}
		return v
	}
	return nil
}

// textOf returns a string result verbatim and anything else as raw JSON
func textOf(r gjson.Result) string {
	if r.Type == gjson.String {
		return r.String()
	}
	return r.Raw
}

// metaLine joins key=value pairs, skipping empty values
func metaLine(pairs ...string) string {
	var parts []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", pairs[i], pairs[i+1]))
	}
	return compact(strings.Join(parts, " "))
}
