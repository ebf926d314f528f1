package memory

import (
	"context"
	"sync"

	appoutbox "rigshare/internal/app/outbox"
)

// Outbox buffers records until Flush and hands them to Deliver. It stands
// in for the Mongo outbox and Kafka relay in demo mode and in tests.
type Outbox struct {
	mu      sync.Mutex
	pending []appoutbox.EventRecord
	sent    []appoutbox.EventRecord
	Deliver func(ctx context.Context, rec appoutbox.EventRecord) error
}

func NewOutbox(deliver func(ctx context.Context, rec appoutbox.EventRecord) error) *Outbox {
	return &Outbox{Deliver: deliver}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(o.pending, record)
	return nil
}

// Flush delivers buffered records in order. A failed record and everything
// after it stay buffered for the next flush.
func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for len(o.pending) > 0 {
		rec := o.pending[0]
		if o.Deliver != nil {
			if err := o.Deliver(ctx, rec); err != nil {
				return err
			}
		}
		o.sent = append(o.sent, rec)
		o.pending = o.pending[1:]
	}
	return nil
}

// Sent returns the records delivered so far.
func (o *Outbox) Sent() []appoutbox.EventRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]appoutbox.EventRecord(nil), o.sent...)
}

// Pending returns the records not yet flushed.
func (o *Outbox) Pending() []appoutbox.EventRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]appoutbox.EventRecord(nil), o.pending...)
}

var _ appoutbox.Outbox = (*Outbox)(nil)
