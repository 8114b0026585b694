package console

import "github.com/charmbracelet/log"

// Notifier shows status messages from the bridge through a logger.
type Notifier struct {
	logger *log.Logger
}

// NewNotifier returns a Notifier writing through logger.
func NewNotifier(logger *log.Logger) *Notifier {
	return &Notifier{logger: logger}
}

// Info shows an informational message.
func (n *Notifier) Info(msg string) {
	n.logger.Info(msg)
}

// Error shows an error message.
func (n *Notifier) Error(msg string) {
	n.logger.Error(msg)
}
