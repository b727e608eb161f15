// ABOUTME: Push notifications for operator-relevant bot events via shoutrrr.
// ABOUTME: Sender abstracts dispatch so tests avoid hitting real services.

package notify

import (
	"log/slog"

	"github.com/nicholas-fedor/shoutrrr"
)

// Sender abstracts message dispatch so the notifier can be tested without
// hitting real services.
type Sender interface {
	Send(shoutrrrURL, message string) error
}

// ShoutrrrSender dispatches via the shoutrrr library.
type ShoutrrrSender struct{}

func (ShoutrrrSender) Send(url, message string) error {
	return shoutrrr.Send(url, message)
}

// Notifier fans a message out to every configured service URL. A Notifier
// with no URLs is a no-op, so callers never need to nil-check.
type Notifier struct {
	urls   []string
	sender Sender
	logger *slog.Logger
}

// New creates a notifier for the given shoutrrr URLs.
func New(urls []string, sender Sender, logger *slog.Logger) *Notifier {
	if sender == nil {
		sender = ShoutrrrSender{}
	}
	return &Notifier{urls: urls, sender: sender, logger: logger}
}

// Send delivers the message to all configured services. Delivery failures
// are logged per service; the first error is returned.
func (n *Notifier) Send(message string) error {
	var firstErr error
	for _, url := range n.urls {
		if err := n.sender.Send(url, message); err != nil {
			n.logger.Warn("notification delivery failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
