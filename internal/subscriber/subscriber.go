// Package subscriber keeps the two event subscriptions of a session open
// and exposes each as a channel of ordered batches.
//
// Order is preserved within a channel. The two channels are independent:
// consumers must not assume any ordering between a single-cell delivery and
// a batch delivery.
package subscriber

import (
	"context"
	"log/slog"

	"github.com/daviddao/megagrid/internal/chain"
)

// queueDepth bounds how many undrained deliveries a subscription holds
// before the feed blocks.
const queueDepth = 64

// Subscription is the pair of open event streams.
type Subscription struct {
	singles chan []chain.SingleColored
	batches chan []chain.BatchColored

	// SingleErr and BatchErr hold setup failures. A failed subscription
	// simply never delivers.
	SingleErr error
	BatchErr  error
}

// Start opens both subscriptions on feed. They stay open until ctx ends.
// A nil feed, or a feed that cannot subscribe, yields a subscription that
// never delivers on the affected channel.
func Start(ctx context.Context, feed chain.Feed, log *slog.Logger) *Subscription {
	if log == nil {
		log = slog.Default()
	}
	s := &Subscription{
		singles: make(chan []chain.SingleColored, queueDepth),
		batches: make(chan []chain.BatchColored, queueDepth),
	}
	if feed == nil {
		log.Debug("no event feed; subscriptions skipped")
		return s
	}
	if err := feed.WatchSingle(ctx, s.singles); err != nil {
		s.SingleErr = err
		log.Debug("single-cell subscription skipped", "err", err)
	}
	if err := feed.WatchBatch(ctx, s.batches); err != nil {
		s.BatchErr = err
		log.Debug("batch subscription skipped", "err", err)
	}
	return s
}

// Singles delivers confirmed single-cell events.
func (s *Subscription) Singles() <-chan []chain.SingleColored { return s.singles }

// Batches delivers confirmed batch events.
func (s *Subscription) Batches() <-chan []chain.BatchColored { return s.batches }
