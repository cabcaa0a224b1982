package devchain

import (
	"context"
	"log/slog"
	"time"

	"github.com/daviddao/megagrid/internal/chain"
)

// tailLimit caps how many events one read pulls from the log.
const tailLimit = 512

// Feed tails the devnet log. Each Watch call runs its own cursor, watcher
// and polling fallback, so the two subscriptions are fully independent.
type Feed struct {
	store    *Store
	poll     time.Duration
	debounce time.Duration
	log      *slog.Logger
}

// NewFeed returns a feed over store. poll is the fallback interval used
// when file notifications are missed.
func NewFeed(store *Store, poll time.Duration, log *slog.Logger) *Feed {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Feed{store: store, poll: poll, debounce: 50 * time.Millisecond, log: log}
}

// WatchSingle delivers single-cell events appended after the call.
func (f *Feed) WatchSingle(ctx context.Context, sink chan<- []chain.SingleColored) error {
	return f.tail(ctx, KindSingle, func(events []Event) bool {
		out := make([]chain.SingleColored, 0, len(events))
		for _, e := range events {
			for i, id := range e.IDs {
				out = append(out, chain.SingleColored{ID: id, Color: e.Colors[i]})
			}
		}
		return send(ctx, sink, out)
	})
}

// WatchBatch delivers batch events appended after the call.
func (f *Feed) WatchBatch(ctx context.Context, sink chan<- []chain.BatchColored) error {
	return f.tail(ctx, KindBatch, func(events []Event) bool {
		out := make([]chain.BatchColored, len(events))
		for i, e := range events {
			out[i] = chain.BatchColored{IDs: e.IDs, Colors: e.Colors}
		}
		return send(ctx, sink, out)
	})
}

func send[T any](ctx context.Context, sink chan<- []T, v []T) bool {
	select {
	case sink <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

func (f *Feed) tail(ctx context.Context, kind string, deliver func([]Event) bool) error {
	cursor, err := f.store.Head(ctx)
	if err != nil {
		return err
	}
	changes, err := watchLog(ctx, f.store.Path(), f.debounce, f.log)
	if err != nil {
		return err
	}
	go func() {
		ticker := time.NewTicker(f.poll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
			case <-ticker.C:
			}
			for {
				events, err := f.store.EventsSince(ctx, kind, cursor, tailLimit)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					f.log.Warn("devnet tail failed", "kind", kind, "err", err)
					break
				}
				if len(events) == 0 {
					break
				}
				cursor = events[len(events)-1].Seq
				if !deliver(events) {
					return
				}
				if len(events) < tailLimit {
					break
				}
			}
		}
	}()
	return nil
}
