package bridge

import "context"

// Notifier is the status channel shown to the user.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

// PickItem is one entry of a selection menu.
type PickItem struct {
	Label  string
	Detail string
}

// Picker presents a menu and returns the chosen index. ok is false when the
// user dismissed the menu without choosing.
type Picker interface {
	Pick(ctx context.Context, items []PickItem) (index int, ok bool, err error)
}

// SourceOpener shows a module's source to the user. id may be empty.
type SourceOpener interface {
	OpenSource(ctx context.Context, source, id string) error
}
