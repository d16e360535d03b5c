package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-notifier/internal/core/errors"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

// DefaultFanoutConcurrency bounds simultaneous deliveries for one event.
const DefaultFanoutConcurrency = 4

// DispatcherConfig holds fan-out configuration
type DispatcherConfig struct {
	Concurrency int
	// SendTimeout bounds a single delivery. Zero means no bound beyond ctx.
	SendTimeout time.Duration
}

// DispatchReport summarizes one fan-out.
type DispatchReport struct {
	Recipients int
	Delivered  int
	Failed     int
	// Abandoned counts recipients never attempted because ctx ended.
	Abandoned int
}

// FanoutDispatcher hands notifications to the channel. Failures are logged
// and counted per recipient and never returned to the feed loop.
type FanoutDispatcher struct {
	channel     ports.NotificationChannel
	metrics     ports.MetricsRecorder
	logger      *slog.Logger
	concurrency int
	sendTimeout time.Duration
}

// NewFanoutDispatcher creates a new dispatcher
func NewFanoutDispatcher(
	channel ports.NotificationChannel,
	metrics ports.MetricsRecorder,
	logger *slog.Logger,
	cfg DispatcherConfig,
) *FanoutDispatcher {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = DefaultFanoutConcurrency
	}
	return &FanoutDispatcher{
		channel:     channel,
		metrics:     metrics,
		logger:      logger.With("component", "fanout_dispatcher"),
		concurrency: concurrency,
		sendTimeout: cfg.SendTimeout,
	}
}

// DispatchAll sends update to every recipient with bounded parallelism and
// returns once all attempts have finished.
func (d *FanoutDispatcher) DispatchAll(ctx context.Context, update domain.NotificationUpdate, recipients []string) DispatchReport {
	report := DispatchReport{Recipients: len(recipients)}
	if len(recipients) == 0 {
		return report
	}

	var mu sync.Mutex
	failures := apperrors.NewDeliveryErrors()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for i, recipient := range recipients {
		if gctx.Err() != nil {
			report.Abandoned = len(recipients) - i
			break
		}
		g.Go(func() error {
			if err := d.send(gctx, update.WithOwner(recipient)); err != nil {
				mu.Lock()
				failures.Add(recipient, err)
				mu.Unlock()
			}
			// Never fail the group: one recipient must not cancel its siblings.
			return nil
		})
	}
	_ = g.Wait()

	report.Failed = len(failures.Failures)
	report.Delivered = report.Recipients - report.Failed - report.Abandoned

	if failures.HasErrors() || report.Abandoned > 0 {
		d.logger.WarnContext(ctx, "fan-out completed with failures",
			"update_type", update.Type,
			"parent_id", update.ParentID,
			"recipients", report.Recipients,
			"failed", report.Failed,
			"abandoned", report.Abandoned,
		)
	} else {
		d.logger.DebugContext(ctx, "fan-out completed",
			"update_type", update.Type,
			"parent_id", update.ParentID,
			"recipients", report.Recipients,
		)
	}

	return report
}

// Dispatch sends a single-recipient update and waits for the result.
// The error is already logged; callers only inspect it in tests.
func (d *FanoutDispatcher) Dispatch(ctx context.Context, update domain.NotificationUpdate) error {
	return d.send(ctx, update)
}

// Revoke withdraws every notification whose parent is entityID.
func (d *FanoutDispatcher) Revoke(ctx context.Context, entityID string) error {
	ctx, cancel := d.withSendTimeout(ctx)
	defer cancel()

	err := d.channel.Revoke(ctx, entityID)
	d.metrics.Revocation(err)
	if err != nil {
		d.logger.WarnContext(ctx, "failed to revoke notifications",
			"entity_id", entityID,
			"error", err,
		)
		return err
	}

	d.logger.DebugContext(ctx, "notifications revoked", "entity_id", entityID)
	return nil
}

func (d *FanoutDispatcher) send(ctx context.Context, update domain.NotificationUpdate) error {
	ctx, cancel := d.withSendTimeout(ctx)
	defer cancel()

	err := d.channel.Send(ctx, update)
	d.metrics.Delivery(update.Type, err)
	if err != nil {
		d.logger.WarnContext(ctx, "failed to deliver notification",
			"recipient_id", update.OwnerID,
			"update_type", update.Type,
			"parent_id", update.ParentID,
			"error", err,
		)
	}
	return err
}

func (d *FanoutDispatcher) withSendTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.sendTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.sendTimeout)
}
