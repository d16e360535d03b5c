package ports

import (
	"context"
	"time"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
)

// FullDocumentMode selects what a feed attaches to update events.
type FullDocumentMode int

const (
	// FullDocumentDefault attaches documents to inserts and replaces only.
	FullDocumentDefault FullDocumentMode = iota
	// FullDocumentUpdateLookup also looks up the current document for updates.
	FullDocumentUpdateLookup
)

// FeedFilter restricts a subscription on the feed source's side.
// Exactly one of Operations or Expression is set.
type FeedFilter struct {
	Operations []domain.OperationKind
	Expression string
}

// OperationFilter matches events of the given kinds.
func OperationFilter(kinds ...domain.OperationKind) FeedFilter {
	return FeedFilter{Operations: kinds}
}

// ExpressionFilter matches events with a predicate expression evaluated by
// the feed source.
func ExpressionFilter(expr string) FeedFilter {
	return FeedFilter{Expression: expr}
}

// IsExpression reports whether the filter is a raw expression.
func (f FeedFilter) IsExpression() bool {
	return f.Expression != ""
}

// WatchOptions configures a feed subscription.
type WatchOptions struct {
	Filter       FeedFilter
	FullDocument FullDocumentMode
	// MaxAwait bounds how long a single TryNext waits for new events.
	MaxAwait time.Duration
	// ResumeAfter is empty on the first subscription.
	ResumeAfter domain.ResumeToken
}

// TicketFeed produces an ordered, resumable stream of ticket mutations.
type TicketFeed interface {
	Watch(ctx context.Context, opts WatchOptions) (FeedSubscription, error)
}

// FeedSubscription is an open cursor on a TicketFeed. It must be closed on
// every exit path.
type FeedSubscription interface {
	// TryNext waits at most MaxAwait for the next event. It returns false
	// when no event arrived or the subscription failed; Err tells which.
	TryNext(ctx context.Context) bool
	// Event decodes the event TryNext positioned on.
	Event() (domain.ChangeEvent, error)
	// ResumeToken is the position after the current event, or after the
	// last empty batch.
	ResumeToken() domain.ResumeToken
	Err() error
	Close(ctx context.Context) error
}

// PersonnelLookup resolves principals from the directory.
type PersonnelLookup interface {
	ByBuildingAndAccess(ctx context.Context, buildingID string, required domain.AccessMask) ([]string, error)
	ByPosition(ctx context.Context, positionID string) ([]string, error)
}

// NotificationPreferences filters principals by their opt-ins.
type NotificationPreferences interface {
	FilterEnabled(ctx context.Context, principalIDs []string, category domain.NotificationCategory) ([]string, error)
}

// BuildingLookup derives the building an apartment belongs to.
type BuildingLookup interface {
	BuildingIDByApartment(ctx context.Context, apartmentID string) (string, error)
}

// NotificationChannel delivers notifications to users. Delivery is best
// effort; the watcher logs failures and never retries.
type NotificationChannel interface {
	Send(ctx context.Context, update domain.NotificationUpdate) error
	Revoke(ctx context.Context, entityID string) error
}

// EventHandler processes one change event.
type EventHandler func(ctx context.Context, event domain.ChangeEvent)

// MetricsRecorder receives watcher counters.
type MetricsRecorder interface {
	EventReceived(operation domain.OperationKind)
	EventHandled(operation domain.OperationKind, duration time.Duration)
	Reconnect()
	ClassificationFailure(reason string)
	Delivery(updateType domain.UpdateType, err error)
	Revocation(err error)
}
