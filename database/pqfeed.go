package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tripsplit-backend/ledger"
	"tripsplit-backend/services"

	"github.com/lib/pq"
)

// PGFeed listens for expense change notifications and resolves each id
// against the store. After a reconnect, notifications may have been missed,
// so Resync (if set) is called to reload everything.
type PGFeed struct {
	URL    string
	Store  services.Store
	Resync func(ctx context.Context) error
}

func (f *PGFeed) Watch(ctx context.Context, apply func(services.Change)) error {
	listener := pq.NewListener(f.URL, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Warn("postgres listener event", "event", ev, "error", err)
		}
	})
	defer listener.Close()

	if err := listener.Listen(NotifyChannel); err != nil {
		return fmt.Errorf("listening on %s: %w", NotifyChannel, err)
	}
	slog.Info("watching postgres change feed", "channel", NotifyChannel)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-listener.Notify:
			if n == nil {
				slog.Info("postgres listener reconnected")
				if f.Resync != nil {
					if err := f.Resync(ctx); err != nil {
						slog.Error("resync after reconnect failed", "error", err)
					}
				}
				continue
			}
			f.resolve(ctx, n.Extra, apply)
		case <-time.After(90 * time.Second):
			go func() {
				if err := listener.Ping(); err != nil {
					slog.Warn("postgres listener ping failed", "error", err)
				}
			}()
		}
	}
}

func (f *PGFeed) resolve(ctx context.Context, id string, apply func(services.Change)) {
	e, err := f.Store.Get(ctx, id)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		apply(services.Change{ID: id})
	case err != nil:
		slog.Error("loading changed expense", "expense_id", id, "error", err)
	default:
		apply(services.Change{ID: id, Expense: &e})
	}
}
