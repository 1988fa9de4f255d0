// Package vocab is the command vocabulary of a machine: command words and a
// human description of each, used for inline help and search.
package vocab

import (
	"sort"
	"strings"
)

// Table maps command words to descriptions. It is read-only after New.
type Table struct {
	words []string
	desc  map[string]string
}

// New builds a table. Words are matched case-insensitively.
func New(commands map[string]string) *Table {
	t := &Table{desc: make(map[string]string, len(commands))}
	for w, d := range commands {
		key := strings.ToUpper(strings.TrimSpace(w))
		if key == "" {
			continue
		}
		if _, dup := t.desc[key]; !dup {
			t.words = append(t.words, key)
		}
		t.desc[key] = d
	}
	sort.Strings(t.words)
	return t
}

func (t *Table) Len() int { return len(t.words) }

// Words returns the command words in sorted order.
func (t *Table) Words() []string {
	return append([]string(nil), t.words...)
}

// Describe returns the description of the first word of line.
func (t *Table) Describe(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false
	}
	d, ok := t.desc[strings.ToUpper(fields[0])]
	return d, ok
}

// Span is a highlighted byte range [Start, End) of a description.
type Span struct {
	Start int
	End   int
}

// Match is one search hit.
type Match struct {
	Command     string
	Description string
	Spans       []Span
}

// Search returns every command whose description contains all needles,
// ignoring case. Blank needles are ignored; with none left every command
// matches.
func (t *Table) Search(needles ...string) []Match {
	var terms []string
	for _, n := range needles {
		if n = strings.TrimSpace(n); n != "" {
			terms = append(terms, strings.ToLower(n))
		}
	}

	var out []Match
	for _, w := range t.words {
		d := t.desc[w]
		lower := strings.ToLower(d)
		matched := true
		for _, term := range terms {
			if !strings.Contains(lower, term) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		m := Match{Command: w, Description: d}
		// Case folding can change byte lengths outside ASCII.
		if len(lower) == len(d) {
			m.Spans = highlight(lower, terms)
		}
		out = append(out, m)
	}
	return out
}

// SearchLine splits input on whitespace and searches for every word.
func (t *Table) SearchLine(input string) []Match {
	return t.Search(strings.Fields(input)...)
}

// highlight returns the merged, sorted occurrences of terms in s.
func highlight(s string, terms []string) []Span {
	var spans []Span
	for _, term := range terms {
		for from := 0; ; {
			i := strings.Index(s[from:], term)
			if i < 0 {
				break
			}
			start := from + i
			spans = append(spans, Span{Start: start, End: start + len(term)})
			from = start + len(term)
		}
	}
	if len(spans) < 2 {
		return spans
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	merged := spans[:1]
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.Start <= last.End {
			last.End = max(last.End, sp.End)
			continue
		}
		merged = append(merged, sp)
	}
	return merged
}
