package ui

import (
	"fmt"
	"os/exec"
	"runtime"
)

// NotificationSender sends one desktop notification
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// Notifier announces finished batches on the console and the desktop
type Notifier struct {
	sender NotificationSender
}

// NewNotifier picks a sender for the current platform. Other platforms only
// print.
func NewNotifier() *Notifier {
	var sender NotificationSender
	switch runtime.GOOS {
	case "linux":
		sender = &LinuxNotificationSender{}
	case "darwin":
		sender = &MacOSNotificationSender{}
	}
	return &Notifier{sender: sender}
}

// NewNotifierWithSender creates a Notifier with an explicit sender
func NewNotifierWithSender(sender NotificationSender) *Notifier {
	return &Notifier{sender: sender}
}

// BatchFinished reports a batch outcome. Failures use the error color.
func (n *Notifier) BatchFinished(name string, bt *BatchTracker) {
	title := "igaudience: " + name
	msg := bt.Summary()

	bt.mu.Lock()
	failed := bt.Failed
	bt.mu.Unlock()
	if failed > 0 {
		printf(true, "\n%s: %s\n", Red(title), Red(msg))
	} else {
		printf(false, "\n%s: %s\n", Green(title), Green(msg))
	}

	if n.sender != nil {
		_ = n.sender.Send(title, msg)
	}
}
