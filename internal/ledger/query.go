package ledger

import (
	"context"

	"github.com/agenttrust/trustcore/internal/domain"
	"github.com/agenttrust/trustcore/internal/errs"
	"github.com/agenttrust/trustcore/internal/store"
)

// GetByID returns the event with the given id.
func (l *Ledger) GetByID(ctx context.Context, id int64) (*domain.Event, error) {
	ev, err := l.store.Events().GetByID(ctx, id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, errs.New(errs.NotFound, "event not found")
		}
		return nil, errs.Wrap(errs.Internal, "get event", err)
	}
	return ev, nil
}

// GetByHash returns the event with the given hash.
func (l *Ledger) GetByHash(ctx context.Context, hash string) (*domain.Event, error) {
	ev, err := l.store.Events().GetByHash(ctx, hash)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, errs.New(errs.NotFound, "event not found")
		}
		return nil, errs.Wrap(errs.Internal, "get event by hash", err)
	}
	return ev, nil
}

// Query returns events matching filter, newest first (spec §4.6).
func (l *Ledger) Query(ctx context.Context, filter store.EventFilter) ([]*domain.Event, error) {
	events, err := l.store.Events().Query(ctx, filter)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "query events", err)
	}
	return events, nil
}

// Count returns the number of events matching filter.
func (l *Ledger) Count(ctx context.Context, filter store.EventFilter) (int64, error) {
	n, err := l.store.Events().Count(ctx, filter)
	if err != nil {
		return 0, errs.Wrap(errs.Internal, "count events", err)
	}
	return n, nil
}

// LastHash returns the hash of the highest (timestamp, id) event for
// agentID, or nil if the chain is empty.
func (l *Ledger) LastHash(ctx context.Context, agentID string) (*string, error) {
	ev, err := l.store.Events().LastForAgent(ctx, agentID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "load chain head", err)
	}
	if ev == nil {
		return nil, nil
	}
	return &ev.Hash, nil
}
