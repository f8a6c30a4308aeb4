// Package notify reports classification runs to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/davehedengren/conference-talk-grace-works-classifier/pipeline"
)

// MessageSender sends messages to Telegram.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string, html bool) (int64, error)
}

// Notifier sends run summaries to a configured chat.
type Notifier struct {
	sender MessageSender
	chatID int64
}

// NewNotifier creates a notifier for the given chat.
func NewNotifier(sender MessageSender, chatID int64) *Notifier {
	return &Notifier{
		sender: sender,
		chatID: chatID,
	}
}

// RunComplete sends a summary of a finished classification run.
func (n *Notifier) RunComplete(ctx context.Context, summary *pipeline.Summary) error {
	if _, err := n.sender.SendMessage(ctx, n.chatID, FormatRunMessage(summary), true); err != nil {
		return fmt.Errorf("send run summary: %w", err)
	}
	return nil
}

// RunFailed sends a failure notice for a classification run.
func (n *Notifier) RunFailed(ctx context.Context, runErr error) error {
	if _, err := n.sender.SendMessage(ctx, n.chatID, FormatFailureMessage(runErr), true); err != nil {
		return fmt.Errorf("send failure notice: %w", err)
	}
	return nil
}

// FormatRunMessage formats a run summary for display in Telegram.
func FormatRunMessage(summary *pipeline.Summary) string {
	return fmt.Sprintf(
		"📖 <b>Classification run complete</b>\n\n"+
			"📄 %d talks processed (%d carried over)\n"+
			"✅ %d succeeded | ❌ %d failed | ♻️ %d cache hits\n"+
			"⏱ %s\n\n"+
			"<code>%s</code>",
		summary.Processed, summary.CarriedOver,
		summary.Succeeded, summary.Failed, summary.CacheHits,
		summary.Duration.Round(time.Second),
		html.EscapeString(summary.OutputPath),
	)
}

// FormatFailureMessage formats a failed run for display in Telegram.
func FormatFailureMessage(runErr error) string {
	return fmt.Sprintf(
		"⚠️ <b>Classification run failed</b>\n\n<code>%s</code>",
		html.EscapeString(runErr.Error()),
	)
}
