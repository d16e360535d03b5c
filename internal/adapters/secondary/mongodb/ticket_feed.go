package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/lorrc/service-desk-notifier/internal/config"
	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-notifier/internal/core/errors"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

var _ ports.TicketFeed = (*TicketFeed)(nil)

// Connect opens a client and verifies the deployment is reachable.
func Connect(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URI).
		SetAppName("ticket-notifier"))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// TicketFeed watches the ticket collection through change streams.
type TicketFeed struct {
	collection *mongo.Collection
}

// NewTicketFeed creates a feed over the configured ticket collection. Reads
// go to the configured member with majority read concern, so only durable
// changes are announced.
func NewTicketFeed(client *mongo.Client, cfg config.MongoConfig) (*TicketFeed, error) {
	mode, err := readpref.ModeFromString(cfg.ReadPreference)
	if err != nil {
		return nil, fmt.Errorf("read preference %q: %w", cfg.ReadPreference, err)
	}
	pref, err := readpref.New(mode)
	if err != nil {
		return nil, fmt.Errorf("read preference %q: %w", cfg.ReadPreference, err)
	}

	collection := client.Database(cfg.Database).Collection(cfg.TicketCollection,
		options.Collection().
			SetReadPreference(pref).
			SetReadConcern(readconcern.Majority()))

	return &TicketFeed{collection: collection}, nil
}

// Watch opens a change stream. A non-empty ResumeAfter resumes strictly after
// that position; StartAfter is used so a token taken from an invalidate
// event is also accepted.
func (f *TicketFeed) Watch(ctx context.Context, opts ports.WatchOptions) (ports.FeedSubscription, error) {
	pipeline, err := buildPipeline(opts.Filter)
	if err != nil {
		return nil, err
	}

	streamOpts := options.ChangeStream()
	if opts.FullDocument == ports.FullDocumentUpdateLookup {
		streamOpts.SetFullDocument(options.UpdateLookup)
	}
	if opts.MaxAwait > 0 {
		streamOpts.SetMaxAwaitTime(opts.MaxAwait)
	}
	if !opts.ResumeAfter.IsZero() {
		streamOpts.SetStartAfter(bson.Raw(opts.ResumeAfter))
	}

	stream, err := f.collection.Watch(ctx, pipeline, streamOpts)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", f.collection.Name(), err)
	}
	return &subscription{stream: stream}, nil
}

// buildPipeline turns a feed filter into a single $match stage.
func buildPipeline(filter ports.FeedFilter) (mongo.Pipeline, error) {
	if filter.IsExpression() {
		var match bson.D
		if err := bson.UnmarshalExtJSON([]byte(filter.Expression), false, &match); err != nil {
			return nil, fmt.Errorf("parse feed filter: %w", err)
		}
		return mongo.Pipeline{{{Key: "$match", Value: match}}}, nil
	}

	if len(filter.Operations) == 0 {
		return mongo.Pipeline{}, nil
	}
	names := make(bson.A, 0, len(filter.Operations))
	for _, kind := range filter.Operations {
		if kind == domain.OperationUnknown {
			return nil, fmt.Errorf("%w: cannot filter on it", apperrors.ErrUnknownOperation)
		}
		names = append(names, kind.String())
	}
	return mongo.Pipeline{{{
		Key:   "$match",
		Value: bson.D{{Key: "operationType", Value: bson.D{{Key: "$in", Value: names}}}},
	}}}, nil
}

// subscription adapts a mongo change stream to ports.FeedSubscription.
type subscription struct {
	stream *mongo.ChangeStream
	err    error
}

func (s *subscription) TryNext(ctx context.Context) bool {
	if s.stream.TryNext(ctx) {
		return true
	}
	// A dead cursor without an error means the server ended the stream,
	// e.g. after the collection was dropped.
	if s.stream.Err() == nil && s.stream.ID() == 0 {
		s.err = apperrors.ErrFeedClosed
	}
	return false
}

func (s *subscription) Event() (domain.ChangeEvent, error) {
	var change changeDocument
	if err := s.stream.Decode(&change); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("decode change event: %w", err)
	}
	return change.toDomain(s.ResumeToken())
}

func (s *subscription) ResumeToken() domain.ResumeToken {
	token := s.stream.ResumeToken()
	if len(token) == 0 {
		return nil
	}
	return domain.ResumeToken(append([]byte(nil), token...))
}

func (s *subscription) Err() error {
	if err := s.stream.Err(); err != nil {
		return err
	}
	return s.err
}

func (s *subscription) Close(ctx context.Context) error {
	return s.stream.Close(ctx)
}

// Ping reports whether the deployment answers within timeout.
func Ping(ctx context.Context, client *mongo.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return client.Ping(ctx, readpref.PrimaryPreferred())
}
