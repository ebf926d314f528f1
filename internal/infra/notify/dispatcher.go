package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/IBM/sarama"

	appnotify "rigshare/internal/app/notify"
	"rigshare/internal/app/outbox"
	"rigshare/internal/app/policies"
)

// Inbox records which notifications were already delivered.
type Inbox interface {
	// Seen marks id as received and reports whether it was already marked.
	Seen(ctx context.Context, id string) (bool, error)
	// Forget clears a mark so a failed delivery can be retried.
	Forget(ctx context.Context, id string) error
}

// Sender is the final delivery channel (email, SMS, push).
type Sender interface {
	Send(ctx context.Context, n policies.Notification) error
}

// Dispatcher delivers notification requests exactly once per dedupe key.
type Dispatcher struct {
	Inbox  Inbox
	Sender Sender
	Logger *slog.Logger
}

func (d *Dispatcher) Deliver(ctx context.Context, n policies.Notification) error {
	if d.Sender == nil {
		return errors.New("notify: sender not configured")
	}
	key := n.DedupeKey
	if d.Inbox != nil && key != "" {
		seen, err := d.Inbox.Seen(ctx, key)
		if err != nil {
			return err
		}
		if seen {
			d.logger().Debug("notification already delivered", "dedupe_key", key)
			return nil
		}
	}
	if err := d.Sender.Send(ctx, n); err != nil {
		if d.Inbox != nil && key != "" {
			_ = d.Inbox.Forget(ctx, key)
		}
		return err
	}
	return nil
}

// DeliverRecord handles an outbox record directly. Domain events are ignored.
func (d *Dispatcher) DeliverRecord(ctx context.Context, rec outbox.EventRecord) error {
	n, err := appnotify.Decode(rec)
	if errors.Is(err, appnotify.ErrNotNotification) {
		return nil
	}
	if err != nil {
		return err
	}
	return d.Deliver(ctx, n)
}

type cloudEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Handle consumes a relayed outbox record from Kafka.
func (d *Dispatcher) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var evt cloudEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		d.logger().Warn("notification message undecodable", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return nil
	}
	if strings.TrimSuffix(evt.Type, ".v1") != appnotify.RecordName {
		return nil
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		if h != nil {
			headers[string(h.Key)] = string(h.Value)
		}
	}
	err := d.DeliverRecord(ctx, outbox.EventRecord{
		ID:      evt.ID,
		Name:    appnotify.RecordName,
		Payload: evt.Data,
		Headers: headers,
	})
	if err != nil {
		d.logger().Warn("notification delivery failed", "event_id", evt.ID, "error", err)
	}
	return err
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// LogSender writes notifications to the log. It is the delivery channel
// until a mail provider is wired in.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, n policies.Notification) error {
	if s.Logger != nil {
		s.Logger.InfoContext(ctx, "notification sent",
			"template", n.Template, "recipient_id", n.RecipientID, "subject", n.Subject, "dedupe_key", n.DedupeKey)
	}
	return nil
}
