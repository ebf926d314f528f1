package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"rigshare/internal/app/outbox"
	"rigshare/internal/app/policies"
)

// RecordName names notification requests in the outbox.
const RecordName = "notification.requested"

const (
	KindNotification = "notification"
	HeaderDedupeKey  = "dedupe_key"
)

var ErrNotNotification = errors.New("notify: record is not a notification request")

// OutboxNotifier queues notifications in the outbox so they are delivered
// at least once by the relay, after the surrounding unit commits.
type OutboxNotifier struct {
	Outbox      outbox.Outbox
	IDGenerator func() string
	Clock       func() time.Time
}

func (n OutboxNotifier) Notify(ctx context.Context, note policies.Notification) error {
	if n.Outbox == nil {
		return errors.New("notify: outbox not configured")
	}
	payload, err := json.Marshal(note)
	if err != nil {
		return err
	}
	idGen := n.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}
	now := time.Now().UTC()
	if n.Clock != nil {
		now = n.Clock().UTC()
	}
	return n.Outbox.Add(ctx, outbox.EventRecord{
		ID:         idGen(),
		Name:       RecordName,
		Payload:    payload,
		OccurredAt: now,
		Aggregate:  note.RecipientID,
		Headers: map[string]string{
			outbox.HeaderKind: KindNotification,
			HeaderDedupeKey:   note.DedupeKey,
		},
	})
}

// Decode reverses OutboxNotifier for a record taken from the outbox.
func Decode(rec outbox.EventRecord) (policies.Notification, error) {
	if rec.Name != RecordName && rec.Headers[outbox.HeaderKind] != KindNotification {
		return policies.Notification{}, ErrNotNotification
	}
	var note policies.Notification
	if err := json.Unmarshal(rec.Payload, &note); err != nil {
		return policies.Notification{}, err
	}
	if note.DedupeKey == "" {
		note.DedupeKey = rec.ID
	}
	return note, nil
}

var _ policies.Notifier = OutboxNotifier{}
