package ui

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"igarchiver/pkg/config"
)

// Notification types accepted in the configuration
const (
	NotifyTerminal = "terminal"
	NotifyDesktop  = "desktop"
	NotifyNone     = "none"
)

// NotificationSender interface for platform-specific notification implementations
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", "--app-name=igarchiver", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// WindowsNotificationSender sends notifications on Windows using PowerShell
type WindowsNotificationSender struct{}

func (w *WindowsNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		$template = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
		$text = $template.GetElementsByTagName("text")
		$text.Item(0).AppendChild($template.CreateTextNode('%s')) | Out-Null
		$text.Item(1).AppendChild($template.CreateTextNode('%s')) | Out-Null
		$toast = [Windows.UI.Notifications.ToastNotification]::new($template)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("igarchiver").Show($toast)
	`, psQuote(title), psQuote(message))

	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
}

func psQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// platformSender returns the desktop sender for the current OS, or nil
func platformSender() NotificationSender {
	switch runtime.GOOS {
	case "linux":
		return &LinuxNotificationSender{}
	case "darwin":
		return &MacOSNotificationSender{}
	case "windows":
		return &WindowsNotificationSender{}
	default:
		return nil
	}
}

// DesktopNotificationsSupported reports whether this OS has a desktop sender
func DesktopNotificationsSupported() bool {
	return platformSender() != nil
}

// Notifier announces the end of a run on the terminal and, when configured,
// on the desktop
type Notifier struct {
	cfg    config.NotificationConfig
	out    io.Writer
	sender NotificationSender
}

// NewNotifier creates a Notifier for the configured notification type
func NewNotifier(cfg config.NotificationConfig) *Notifier {
	n := &Notifier{cfg: cfg, out: os.Stdout}
	if cfg.NotificationType == NotifyDesktop {
		n.sender = platformSender()
	}
	return n
}

// NewNotifierWithSender creates a Notifier with an explicit sender and output
func NewNotifierWithSender(cfg config.NotificationConfig, sender NotificationSender, out io.Writer) *Notifier {
	return &Notifier{cfg: cfg, out: out, sender: sender}
}

func (n *Notifier) active() bool {
	return n.cfg.Enabled && n.cfg.NotificationType != NotifyNone
}

// Complete announces a finished run
func (n *Notifier) Complete(title, message string) {
	if !n.active() || !n.cfg.OnComplete {
		return
	}
	fmt.Fprintf(n.out, "\n%s: %s\n", Green(title), message)
	n.send(title, message)
}

// Error announces a failed run
func (n *Notifier) Error(title, message string) {
	if !n.active() || !n.cfg.OnError {
		return
	}
	fmt.Fprintf(n.out, "\n%s: %s\n", Red(title), Red(message))
	n.send(title, message)
}

func (n *Notifier) send(title, message string) {
	if n.sender == nil {
		return
	}
	// Desktop notifications are best effort
	_ = n.sender.Send(title, message)
}
