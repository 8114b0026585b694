package extract

import (
	"regexp"
	"strings"

	"github.com/phobologic/bdcompanion/internal/model"
)

var (
	stringLiteralRe = regexp.MustCompile(`"([^"]*)"|'([^']*)'`)
	objectLiteralRe = regexp.MustCompile(`\{[^}]*\}`)
	optionPairRe    = regexp.MustCompile(`(\w+)\s*:\s*([^,}]+)`)
)

// ParseQuery turns the raw argument text of one call into a ParsedQuery.
// It is a surface scan: escaped quotes, nested calls and multi-line
// literals are not understood.
//
// Strings inside the first object literal belong to the options and are
// not collected as search keys. Braces inside a string literal never open
// or close that object. Every collected string is escaped with
// EscapeLiteral.
func ParseQuery(args string) model.ParsedQuery {
	q := model.ParsedQuery{Options: model.Options{}}

	literals := stringLiteralRe.FindAllStringSubmatchIndex(args, -1)

	masked := []byte(args)
	for _, m := range literals {
		for i := m[0]; i < m[1]; i++ {
			masked[i] = '_'
		}
	}

	obj := objectLiteralRe.FindIndex(masked)
	if obj != nil {
		q.Options = parseOptions(args[obj[0]:obj[1]], masked[obj[0]:obj[1]])
	}

	for _, m := range literals {
		if obj != nil && m[0] >= obj[0] && m[1] <= obj[1] {
			continue
		}
		var s string
		if m[2] >= 0 {
			s = args[m[2]:m[3]]
		} else {
			s = args[m[4]:m[5]]
		}
		q.Strings = append(q.Strings, EscapeLiteral(s))
	}
	return q
}

// parseOptions reads key: value pairs from object. Pair boundaries are
// found in masked, where string literals are blanked out, so commas and
// braces inside quoted values stay part of the value.
func parseOptions(object string, masked []byte) model.Options {
	opts := model.Options{}
	for _, m := range optionPairRe.FindAllSubmatchIndex(masked, -1) {
		key := strings.Trim(object[m[2]:m[3]], `"'`)
		opts[key] = optionValue(strings.TrimSpace(object[m[4]:m[5]]))
	}
	return opts
}

// optionValue coerces the literals true and false. Anything else stays
// text, with one layer of matching quotes removed.
func optionValue(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if len(raw) >= 2 {
		first, last := raw[0], raw[len(raw)-1]
		if (first == '"' || first == '\'') && first == last {
			return raw[1 : len(raw)-1]
		}
	}
	return raw
}

// EscapeLiteral backslash-escapes the regex metacharacters
// . * + ? ^ $ { } ( ) | [ ] \ so s matches itself literally on the peer.
func EscapeLiteral(s string) string {
	return regexp.QuoteMeta(s)
}
