package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/require"

	appnotify "rigshare/internal/app/notify"
	"rigshare/internal/app/outbox"
	"rigshare/internal/app/policies"
	"rigshare/internal/infra/storage/memory"
)

type countingSender struct {
	sent []policies.Notification
	fail bool
}

func (s *countingSender) Send(_ context.Context, n policies.Notification) error {
	if s.fail {
		return errors.New("mail relay down")
	}
	s.sent = append(s.sent, n)
	return nil
}

type bufferOutbox struct{ recs []outbox.EventRecord }

func (b *bufferOutbox) Add(_ context.Context, r outbox.EventRecord) error {
	b.recs = append(b.recs, r)
	return nil
}
func (b *bufferOutbox) Flush(context.Context) error { return nil }

func TestDispatcherDeduplicatesRedeliveries(t *testing.T) {
	ctx := context.Background()
	sender := &countingSender{}
	d := &Dispatcher{Inbox: memory.NewInbox(), Sender: sender}
	n := policies.Notification{Template: policies.TemplatePaymentReceived, RecipientID: "host-1", DedupeKey: "bk-1:paid:host-1"}

	require.NoError(t, d.Deliver(ctx, n))
	require.NoError(t, d.Deliver(ctx, n))
	require.Len(t, sender.sent, 1)
}

func TestDispatcherRetriesAfterSendFailure(t *testing.T) {
	ctx := context.Background()
	sender := &countingSender{fail: true}
	d := &Dispatcher{Inbox: memory.NewInbox(), Sender: sender}
	n := policies.Notification{RecipientID: "buyer-1", DedupeKey: "k"}

	require.Error(t, d.Deliver(ctx, n))
	sender.fail = false
	require.NoError(t, d.Deliver(ctx, n))
	require.Len(t, sender.sent, 1)
}

func TestHandleKafkaMessage(t *testing.T) {
	ctx := context.Background()
	box := &bufferOutbox{}
	note := policies.Notification{Template: policies.TemplateDisputeOpened, RecipientID: "seller-1", DedupeKey: "st-1:dispute:seller-1"}
	require.NoError(t, appnotify.OutboxNotifier{Outbox: box}.Notify(ctx, note))

	value, err := json.Marshal(map[string]any{
		"id":   box.recs[0].ID,
		"type": appnotify.RecordName + ".v1",
		"data": json.RawMessage(box.recs[0].Payload),
	})
	require.NoError(t, err)

	sender := &countingSender{}
	d := &Dispatcher{Inbox: memory.NewInbox(), Sender: sender}
	msg := &sarama.ConsumerMessage{Topic: "notification.events.v1", Value: value}
	require.NoError(t, d.Handle(ctx, msg))
	require.NoError(t, d.Handle(ctx, msg))
	require.Equal(t, []policies.Notification{note}, sender.sent)

	other := &sarama.ConsumerMessage{Value: []byte(`{"id":"e1","type":"booking.created.v1","data":{}}`)}
	require.NoError(t, d.Handle(ctx, other))
	require.Len(t, sender.sent, 1)
}
