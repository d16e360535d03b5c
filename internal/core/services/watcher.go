package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

// TicketWatchFilter selects every mutation kind the router handles. It is
// evaluated by the feed source.
const TicketWatchFilter = `{"operationType": {"$in": ["replace", "insert", "update", "delete"]}}`

// Watcher is a running feed consumer. Creating one starts consumption;
// Stop cancels it and waits for the subscription to be released.
type Watcher struct {
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// StartWatcher runs consumer with handler on its own goroutine.
func StartWatcher(ctx context.Context, consumer *FeedConsumer, handler ports.EventHandler) *Watcher {
	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(w.done)
		consumer.Run(ctx, handler)
	}()

	return w
}

// WatcherConfig holds the ticket watcher's feed settings.
type WatcherConfig struct {
	Consumer FeedConsumerConfig
}

// NewTicketWatcher starts the combined ticket watcher: inserts, updates,
// replaces and deletes through one subscription with full documents looked
// up for updates.
func NewTicketWatcher(
	ctx context.Context,
	feed ports.TicketFeed,
	router *EventRouter,
	metrics ports.MetricsRecorder,
	logger *slog.Logger,
	cfg WatcherConfig,
) *Watcher {
	consumerCfg := cfg.Consumer
	if consumerCfg.Name == "" {
		consumerCfg.Name = "tickets"
	}
	consumerCfg.Filter = ports.ExpressionFilter(TicketWatchFilter)
	consumerCfg.FullDocument = ports.FullDocumentUpdateLookup

	consumer := NewFeedConsumer(feed, consumerCfg, metrics, logger)
	return StartWatcher(ctx, consumer, router.Route)
}

// Stop cancels the watcher and waits until its loop has exited or ctx ends.
// The in-flight handler, if any, is allowed to return first.
func (w *Watcher) Stop(ctx context.Context) error {
	w.stopOnce.Do(w.cancel)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the watcher's loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}
