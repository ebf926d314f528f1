package notify

import (
	"context"
	"log/slog"

	"rigshare/internal/app/policies"
)

// BestEffort sends notifications without ever failing the caller. Failures
// are logged at WARN and counted through OnDrop.
type BestEffort struct {
	Notifier policies.Notifier
	Logger   *slog.Logger
	OnDrop   func(template string)
}

func (b *BestEffort) Send(ctx context.Context, notes ...policies.Notification) {
	if b == nil || b.Notifier == nil {
		return
	}
	for _, n := range notes {
		if n.RecipientID == "" {
			continue
		}
		if err := b.Notifier.Notify(ctx, n); err != nil {
			if b.Logger != nil {
				b.Logger.Warn("notification dropped", "template", n.Template, "recipient_id", n.RecipientID, "error", err)
			}
			if b.OnDrop != nil {
				b.OnDrop(n.Template)
			}
		}
	}
}

// Pair builds the same notification for both parties of a transaction.
func Pair(template, subject, dedupe string, data map[string]string, first, second string) []policies.Notification {
	out := make([]policies.Notification, 0, 2)
	for _, to := range []string{first, second} {
		out = append(out, policies.Notification{
			Template:    template,
			RecipientID: to,
			Subject:     subject,
			Data:        data,
			DedupeKey:   dedupe + ":" + to,
		})
	}
	return out
}
