// Package notify delivers batch notifications to the developer
// distribution list.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Subject is used wherever a channel supports one.
const Subject = "fixbot notification"

// Notifier delivers a message to recipients. Recipients are addresses the
// channel understands; a channel may ignore them and use its own target.
type Notifier interface {
	Notify(ctx context.Context, message string, recipients []string) error
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, message string, recipients []string) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification", "recipients", strings.Join(recipients, ","), "message", message)
	return nil
}

// Multi fans a notification out to every notifier. All notifiers are
// attempted; their errors are joined.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, message string, recipients []string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, message, recipients); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SplitRecipients parses a comma-separated recipient list.
func SplitRecipients(csv string) []string {
	var out []string
	for _, r := range strings.Split(csv, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// PullRequestOpened formats the notification for an opened pull request.
func PullRequestOpened(ticketKey, title, url string) string {
	return fmt.Sprintf("Automated PR created for %s: %s (%s)", ticketKey, title, url)
}
