package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-notifier/internal/core/errors"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
	"github.com/lorrc/service-desk-notifier/internal/infrastructure/logging"
)

// EventRouter classifies ticket change events and sends each to the matching
// notification path. It never returns an error to the feed loop.
type EventRouter struct {
	notifier   *LifecycleNotifier
	dispatcher *FanoutDispatcher
	metrics    ports.MetricsRecorder
	logger     *slog.Logger
}

// NewEventRouter creates a new event router
func NewEventRouter(
	notifier *LifecycleNotifier,
	dispatcher *FanoutDispatcher,
	metrics ports.MetricsRecorder,
	logger *slog.Logger,
) *EventRouter {
	return &EventRouter{
		notifier:   notifier,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger.With("component", "event_router"),
	}
}

// Route handles one change event. Failures are logged according to their
// class and the event is skipped.
func (r *EventRouter) Route(ctx context.Context, event domain.ChangeEvent) {
	ctx = logging.WithTicketID(ctx, event.TicketID())

	if err := r.route(ctx, event); err != nil {
		r.report(ctx, event, apperrors.NewEventError(err, event.TicketID(), event.Operation.String()))
	}
}

func (r *EventRouter) route(ctx context.Context, event domain.ChangeEvent) error {
	switch event.Operation {
	case domain.OperationDelete:
		if event.DocumentKey == "" {
			return apperrors.ErrMissingDocumentKey
		}
		// Revoke failures are logged by the dispatcher.
		_ = r.dispatcher.Revoke(ctx, event.DocumentKey)
		return nil

	case domain.OperationInsert:
		if event.FullDocument == nil {
			return apperrors.ErrMissingFullDocument
		}
		return r.notifier.OnCreate(ctx, event.FullDocument)

	case domain.OperationUpdate, domain.OperationReplace:
		if event.FullDocument == nil {
			return apperrors.ErrMissingFullDocument
		}
		return r.notifier.OnTransition(ctx, event.FullDocument)

	case domain.OperationUnknown:
		return apperrors.ErrUnknownOperation

	default:
		return apperrors.ErrUnknownOperation
	}
}

func (r *EventRouter) report(ctx context.Context, event domain.ChangeEvent, err error) {
	attrs := []any{
		"operation", event.Operation.String(),
		"error", err,
	}
	if event.Operation == domain.OperationUnknown && event.RawOperation != "" {
		attrs = append(attrs, "raw_operation", event.RawOperation)
	}

	switch reason := skipReason(err); {
	case reason == "unsupported_status":
		r.metrics.ClassificationFailure(reason)
		r.logger.WarnContext(ctx, "ticket status is not supported for notifications", attrs...)
	case reason != "":
		r.metrics.ClassificationFailure(reason)
		logging.Fatal(ctx, r.logger, "change event skipped", attrs...)
	case errors.Is(err, context.Canceled):
		r.logger.DebugContext(ctx, "change event abandoned on shutdown", attrs...)
	default:
		r.logger.ErrorContext(ctx, "failed to process change event", attrs...)
	}
}

// skipReason names classification and invariant failures. Other errors
// (lookups, cancellation) return "".
func skipReason(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrUnsupportedStatus):
		return "unsupported_status"
	case errors.Is(err, apperrors.ErrUnknownOperation):
		return "unknown_operation"
	case errors.Is(err, apperrors.ErrMissingDocumentKey):
		return "missing_document_key"
	case errors.Is(err, apperrors.ErrMissingFullDocument):
		return "missing_full_document"
	case errors.Is(err, apperrors.ErrMissingExecuter):
		return "missing_executer"
	case errors.Is(err, apperrors.ErrMissingAuthor):
		return "missing_author"
	case errors.Is(err, apperrors.ErrMissingFeedback):
		return "missing_feedback"
	case errors.Is(err, apperrors.ErrMissingPosition):
		return "missing_position"
	case errors.Is(err, apperrors.ErrMissingBuilding):
		return "missing_building"
	case errors.Is(err, apperrors.ErrNegativeMask):
		return "negative_access_mask"
	default:
		return ""
	}
}
