// Package model defines core data structures for bdcompanion.
package model

// Command identifies what the BetterDiscord companion should do with a query.
type Command string

const (
	TryFind    Command = "tryFind"
	OpenSource Command = "openSource"
)

// Valid reports whether c is one of the known commands.
func (c Command) Valid() bool {
	return c == TryFind || c == OpenSource
}

// Pattern is a named BetterDiscord Webpack lookup recognized in source text.
type Pattern struct {
	Name string // function name, e.g. "getByKeys"
	Type string // search filter kind sent to the peer, e.g. "keys"
}

// Options holds the key/value pairs of an inline option object.
// Values are either bool or string.
type Options map[string]any

// ParsedQuery is the structured form of one call site's arguments.
type ParsedQuery struct {
	Strings []string
	Options Options
}

// Range anchors an action in a document. Line and Column are zero-based.
type Range struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Action is a user-triggerable command attached to a call site.
type Action struct {
	Range       Range    `json:"range"`
	Title       string   `json:"title"`
	Command     Command  `json:"command"`
	Query       []string `json:"query"`
	PatternType string   `json:"type"`
	Options     Options  `json:"options,omitempty"`
}

// FileActions holds the actions found in a single file.
type FileActions struct {
	Path    string   `json:"path"`
	Actions []Action `json:"actions"`
}
