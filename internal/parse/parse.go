// Package parse locates BetterDiscord lookup calls using tree-sitter.
package parse

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/bdcompanion/internal/extract"
	"github.com/phobologic/bdcompanion/internal/lang"
	"github.com/phobologic/bdcompanion/internal/model"
)

// CallSite is one call expression found in a syntax tree.
type CallSite struct {
	Callee string // function or member property name
	Args   string // argument text without the surrounding parentheses
	Line   int    // zero-based line of the call expression
}

// FindCalls parses source and returns every call captured by query, in
// document order. The parser must be created for the correct language.
func FindCalls(parser *sitter.Parser, query *sitter.Query, source []byte) []CallSite {
	if len(source) == 0 {
		return nil
	}

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil
	}
	defer tree.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, tree.RootNode())

	var calls []CallSite
	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, source)

		var callNode, calleeNode, argsNode *sitter.Node
		for _, c := range match.Captures {
			switch query.CaptureNameForId(c.Index) {
			case "call":
				callNode = c.Node
			case "callee":
				calleeNode = c.Node
			case "args":
				argsNode = c.Node
			}
		}
		if callNode == nil || calleeNode == nil || argsNode == nil {
			continue
		}

		calls = append(calls, CallSite{
			Callee: lang.NodeText(calleeNode, source),
			Args:   stripParens(lang.NodeText(argsNode, source)),
			Line:   int(callNode.StartPoint().Row),
		})
	}
	return calls
}

func stripParens(s string) string {
	s = strings.TrimPrefix(s, "(")
	return strings.TrimSuffix(s, ")")
}

// Extractor is an extract.Source that finds call sites structurally, so
// lookups inside comments or strings are ignored. Argument parsing is shared
// with the regex extractor.
type Extractor struct {
	lang     *lang.Language
	query    *sitter.Query
	patterns map[string]model.Pattern
}

// NewExtractor returns a syntax-aware extractor for l and the given patterns.
func NewExtractor(l *lang.Language, patterns []model.Pattern) (*Extractor, error) {
	q, err := l.GetCallQuery()
	if err != nil {
		return nil, fmt.Errorf("%s call query: %w", l.Name, err)
	}
	byName := make(map[string]model.Pattern, len(patterns))
	for _, p := range patterns {
		byName[p.Name] = p
	}
	return &Extractor{lang: l, query: q, patterns: byName}, nil
}

// Extract returns the actions for every recognized call in text.
func (e *Extractor) Extract(text string) []model.Action {
	parser := e.lang.NewParser()
	defer parser.Close()

	var actions []model.Action
	for _, call := range FindCalls(parser, e.query, []byte(text)) {
		p, ok := e.patterns[call.Callee]
		if !ok {
			continue
		}
		actions = append(actions, extract.Actions(p, extract.ParseQuery(call.Args), call.Line)...)
	}
	return actions
}
