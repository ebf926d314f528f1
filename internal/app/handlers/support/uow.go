package support

import (
	"context"
	"log/slog"

	"rigshare/internal/app/outbox"
	"rigshare/internal/app/uow"
	"rigshare/internal/domain/shared/events"
)

// BeginReadOnlyUnit reuses the ambient unit or opens a read-only one. The
// returned cleanup is nil when the unit was borrowed.
func BeginReadOnlyUnit(ctx context.Context, factory uow.UoWFactory) (uow.UnitOfWork, context.Context, func(), error) {
	if unit, ok := uow.FromContext(ctx); ok {
		return unit, ctx, nil, nil
	}
	if factory == nil {
		return nil, ctx, nil, uow.ErrUnitOfWorkMissing
	}
	unit, err := factory.Begin(ctx, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, ctx, nil, err
	}
	execCtx := uow.ContextWithUnitOfWork(ctx, unit)
	return unit, execCtx, func() { _ = unit.Rollback(execCtx) }, nil
}

type eventSource interface {
	DrainEvents() []events.DomainEvent
}

// FlushEvents moves the pending events of each aggregate into the outbox.
func FlushEvents(ctx context.Context, box outbox.Outbox, encoder outbox.EventEncoder, sources ...eventSource) error {
	for _, src := range sources {
		if err := outbox.RecordDomainEvents(ctx, box, encoder, src.DrainEvents()); err != nil {
			return err
		}
	}
	return nil
}

// Logger returns l or a discard logger.
func Logger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.New(slog.DiscardHandler)
}
