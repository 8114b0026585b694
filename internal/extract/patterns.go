package extract

import (
	"regexp"

	"github.com/phobologic/bdcompanion/internal/model"
)

// Patterns lists the BetterDiscord Webpack lookups that produce actions,
// in the order their matches are reported.
var Patterns = []model.Pattern{
	{Name: "getByKeys", Type: "keys"},
	{Name: "getAllByKeys", Type: "keys"},
	{Name: "getByPrototypeKeys", Type: "prototypeKeys"},
	{Name: "getAllByPrototypeKeys", Type: "prototypeKeys"},
	{Name: "getByStrings", Type: "strings"},
	{Name: "getAllByStrings", Type: "strings"},
	{Name: "getBySource", Type: "source"},
	{Name: "getAllBySource", Type: "source"},
	{Name: "getStore", Type: "store"},
}

var patternsByName = func() map[string]model.Pattern {
	m := make(map[string]model.Pattern, len(Patterns))
	for _, p := range Patterns {
		m[p.Name] = p
	}
	return m
}()

// Lookup returns the registered pattern with the given function name.
func Lookup(name string) (model.Pattern, bool) {
	p, ok := patternsByName[name]
	return p, ok
}

// callRule compiles the call-site rule for a pattern. The single capture
// group holds the raw argument text between the parentheses.
func callRule(p model.Pattern) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(p.Name) + `\s*\(([^)]*)\)`)
}
