package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
	"github.com/lorrc/service-desk-notifier/internal/infrastructure/logging"
)

const (
	// DefaultPollWait bounds each wait for the next event.
	DefaultPollWait = 5 * time.Second

	defaultCloseTimeout = 5 * time.Second
)

// FeedConsumerConfig holds the subscription parameters for one feed.
type FeedConsumerConfig struct {
	Name         string
	Filter       ports.FeedFilter
	FullDocument ports.FullDocumentMode
	PollWait     time.Duration
	CloseTimeout time.Duration
	// NewBackOff paces reconnects. Nil uses an exponential backoff that
	// never gives up.
	NewBackOff func() backoff.BackOff
}

// FeedConsumer owns a resumable subscription to a ticket feed. Events are
// handled one at a time, in feed order, and the resume cursor only moves
// past an event after its handler has returned.
type FeedConsumer struct {
	feed    ports.TicketFeed
	cfg     FeedConsumerConfig
	metrics ports.MetricsRecorder
	logger  *slog.Logger

	// cursor is only touched by the goroutine running Run.
	cursor domain.ResumeToken
}

// NewFeedConsumer creates a new feed consumer
func NewFeedConsumer(
	feed ports.TicketFeed,
	cfg FeedConsumerConfig,
	metrics ports.MetricsRecorder,
	logger *slog.Logger,
) *FeedConsumer {
	if cfg.PollWait <= 0 {
		cfg.PollWait = DefaultPollWait
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = defaultCloseTimeout
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = defaultReconnectBackOff
	}
	return &FeedConsumer{
		feed:    feed,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With("component", "feed_consumer", "feed", cfg.Name),
	}
}

func defaultReconnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Run consumes the feed until ctx is cancelled. Subscription failures are
// logged and followed by a reconnect from the last cursor; Run itself never
// fails.
func (c *FeedConsumer) Run(ctx context.Context, handler ports.EventHandler) {
	ctx = logging.WithWatcher(ctx, c.cfg.Name)
	reconnect := c.cfg.NewBackOff()

	c.logger.InfoContext(ctx, "change feed consumer started")
	defer c.logger.InfoContext(ctx, "change feed consumer stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		err := c.consume(ctx, handler, reconnect)
		if ctx.Err() != nil {
			return
		}

		wait := reconnect.NextBackOff()
		if wait == backoff.Stop {
			wait = c.cfg.PollWait
		}
		c.metrics.Reconnect()
		c.logger.WarnContext(ctx, "change feed subscription failed, reconnecting",
			"error", err,
			"resuming", !c.cursor.IsZero(),
			"retry_in", wait,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// consume runs one subscription until it fails or ctx ends. The returned
// error is meaningful only while ctx is live.
func (c *FeedConsumer) consume(ctx context.Context, handler ports.EventHandler, reconnect backoff.BackOff) error {
	sub, err := c.feed.Watch(ctx, ports.WatchOptions{
		Filter:       c.cfg.Filter,
		FullDocument: c.cfg.FullDocument,
		MaxAwait:     c.cfg.PollWait,
		ResumeAfter:  c.cursor,
	})
	if err != nil {
		return fmt.Errorf("open change feed: %w", err)
	}
	defer c.release(ctx, sub)

	reconnect.Reset()
	c.logger.DebugContext(ctx, "change feed subscription opened", "resuming", !c.cursor.IsZero())

	for {
		if ctx.Err() != nil {
			return nil
		}

		if !sub.TryNext(ctx) {
			if err := sub.Err(); err != nil {
				return fmt.Errorf("read change feed: %w", err)
			}
			// Empty batch: nothing is pending, so the post-batch position is safe.
			c.advance(sub.ResumeToken())
			continue
		}

		event, err := sub.Event()
		if err != nil {
			c.metrics.ClassificationFailure("undecodable_event")
			logging.Fatal(ctx, c.logger, "change event could not be decoded", "error", err)
			c.advance(sub.ResumeToken())
			continue
		}

		c.metrics.EventReceived(event.Operation)
		c.handle(ctx, handler, event)
		c.advance(sub.ResumeToken())
	}
}

// handle runs the handler to completion. A panicking handler is logged and
// treated as handled so one bad document cannot wedge the feed.
func (c *FeedConsumer) handle(ctx context.Context, handler ports.EventHandler, event domain.ChangeEvent) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			logging.LogPanic(logging.WithTicketID(ctx, event.TicketID()), c.logger, p)
		}
		c.metrics.EventHandled(event.Operation, time.Since(start))
	}()

	handler(ctx, event)
}

func (c *FeedConsumer) advance(token domain.ResumeToken) {
	if token.IsZero() {
		return
	}
	c.cursor = append(c.cursor[:0:0], token...)
}

// release closes the subscription with a context detached from ctx, which
// is usually already cancelled on this path.
func (c *FeedConsumer) release(ctx context.Context, sub ports.FeedSubscription) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.CloseTimeout)
	defer cancel()

	if err := sub.Close(closeCtx); err != nil {
		c.logger.WarnContext(ctx, "failed to close change feed subscription", "error", err)
	}
}

// Cursor returns the last recorded resume position. It must not be called
// while Run is active.
func (c *FeedConsumer) Cursor() domain.ResumeToken {
	return c.cursor
}
