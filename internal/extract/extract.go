// Package extract finds BetterDiscord Webpack lookups in source text and
// turns each call site into user-triggerable actions.
package extract

import (
	"regexp"
	"sort"

	"github.com/phobologic/bdcompanion/internal/model"
)

// Action titles shown next to a call site.
const (
	TryFindTitle    = "BetterDiscord: Try to Find"
	OpenSourceTitle = "BetterDiscord: Open Module Source"
)

// Source produces actions for the full text of one document.
// Implementations must not retain or modify text.
type Source interface {
	Extract(text string) []model.Action
}

type compiledPattern struct {
	pattern model.Pattern
	rule    *regexp.Regexp
}

// Extractor is the regex-based Source. It is safe for concurrent use.
type Extractor struct {
	patterns []compiledPattern
}

// New returns an Extractor for the given patterns.
func New(patterns []model.Pattern) *Extractor {
	e := &Extractor{patterns: make([]compiledPattern, 0, len(patterns))}
	for _, p := range patterns {
		e.patterns = append(e.patterns, compiledPattern{pattern: p, rule: callRule(p)})
	}
	return e
}

// Default returns an Extractor for the registered Patterns.
func Default() *Extractor {
	return New(Patterns)
}

// Extract returns the actions for every call site in text, grouped by
// pattern in registry order and by position within each pattern.
func (e *Extractor) Extract(text string) []model.Action {
	var (
		actions []model.Action
		idx     *LineIndex
	)
	for _, cp := range e.patterns {
		for _, m := range cp.rule.FindAllStringSubmatchIndex(text, -1) {
			q := ParseQuery(text[m[2]:m[3]])
			if len(q.Strings) == 0 {
				continue
			}
			if idx == nil {
				idx = NewLineIndex(text)
			}
			line, _ := idx.Position(m[0])
			actions = append(actions, Actions(cp.pattern, q, line)...)
		}
	}
	return actions
}

// Actions builds the try-find and open-source pair for one call site
// anchored at column 0 of line. It returns nil when q has no strings.
func Actions(p model.Pattern, q model.ParsedQuery, line int) []model.Action {
	if len(q.Strings) == 0 {
		return nil
	}
	r := model.Range{Line: line, Column: 0}
	return []model.Action{
		{
			Range:       r,
			Title:       TryFindTitle,
			Command:     model.TryFind,
			Query:       q.Strings,
			PatternType: p.Type,
			Options:     q.Options,
		},
		{
			Range:       r,
			Title:       OpenSourceTitle,
			Command:     model.OpenSource,
			Query:       q.Strings,
			PatternType: p.Type,
			Options:     q.Options,
		},
	}
}

// LineIndex converts byte offsets of a document into zero-based
// (line, column) positions.
type LineIndex struct {
	starts []int
}

// NewLineIndex records the start offset of every line in text.
func NewLineIndex(text string) *LineIndex {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{starts: starts}
}

// Position returns the line and byte column of offset.
func (l *LineIndex) Position(offset int) (line, column int) {
	line = sort.SearchInts(l.starts, offset+1) - 1
	if line < 0 {
		line = 0
	}
	return line, offset - l.starts[line]
}
