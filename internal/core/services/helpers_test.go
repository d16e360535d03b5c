package services_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
	"github.com/lorrc/service-desk-notifier/internal/infrastructure/logging"
	"github.com/lorrc/service-desk-notifier/internal/infrastructure/metrics"
)

// token encodes a feed position. Position n means "after the n-th event".
func token(pos int) domain.ResumeToken {
	return domain.ResumeToken(fmt.Sprintf("%08d", pos))
}

func position(t domain.ResumeToken) int {
	if t.IsZero() {
		return 0
	}
	n, err := strconv.Atoi(string(t))
	if err != nil {
		panic(err)
	}
	return n
}

// fakeFeed is an in-memory, append-only change log with injectable faults.
type fakeFeed struct {
	mu       sync.Mutex
	events   []domain.ChangeEvent
	watches  []ports.WatchOptions
	subs     []*fakeSubscription
	watchErr []error       // consumed in order by Watch
	failAt   map[int]bool  // fail once when a subscription reaches this position
	badAt    map[int]bool  // event at this position cannot be decoded
	appended chan struct{} // signals new events to blocked subscriptions
}

func newFakeFeed(events ...domain.ChangeEvent) *fakeFeed {
	return &fakeFeed{
		events:   events,
		failAt:   map[int]bool{},
		badAt:    map[int]bool{},
		appended: make(chan struct{}, 1),
	}
}

func (f *fakeFeed) Append(events ...domain.ChangeEvent) {
	f.mu.Lock()
	f.events = append(f.events, events...)
	f.mu.Unlock()
	select {
	case f.appended <- struct{}{}:
	default:
	}
}

func (f *fakeFeed) Watch(_ context.Context, opts ports.WatchOptions) (ports.FeedSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.watches = append(f.watches, opts)
	if len(f.watchErr) > 0 {
		err := f.watchErr[0]
		f.watchErr = f.watchErr[1:]
		return nil, err
	}

	sub := &fakeSubscription{
		feed:    f,
		pos:     position(opts.ResumeAfter),
		current: -1,
		wait:    opts.MaxAwait,
	}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeFeed) Watches() []ports.WatchOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.WatchOptions(nil), f.watches...)
}

func (f *fakeFeed) Subscriptions() []*fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeSubscription(nil), f.subs...)
}

type fakeSubscription struct {
	feed    *fakeFeed
	pos     int
	current int
	wait    time.Duration
	err     error
	closed  atomic.Bool
}

func (s *fakeSubscription) TryNext(ctx context.Context) bool {
	f := s.feed
	f.mu.Lock()
	if f.failAt[s.pos] {
		delete(f.failAt, s.pos)
		f.mu.Unlock()
		s.err = errors.New("connection reset by peer")
		return false
	}
	if s.pos < len(f.events) {
		s.current = s.pos
		s.pos++
		f.mu.Unlock()
		return true
	}
	f.mu.Unlock()

	timer := time.NewTimer(s.wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-f.appended:
	case <-timer.C:
	}
	return false
}

func (s *fakeSubscription) Event() (domain.ChangeEvent, error) {
	f := s.feed
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.badAt[s.current] {
		return domain.ChangeEvent{}, errors.New("cannot decode status")
	}
	event := f.events[s.current]
	event.ResumeToken = token(s.current + 1)
	return event, nil
}

func (s *fakeSubscription) ResumeToken() domain.ResumeToken {
	if s.pos == 0 {
		return nil
	}
	return token(s.pos)
}

func (s *fakeSubscription) Err() error {
	return s.err
}

func (s *fakeSubscription) Close(context.Context) error {
	s.closed.Store(true)
	return nil
}

// countingMetrics counts the measurements the consumer tests assert on.
type countingMetrics struct {
	metrics.Nop
	received    atomic.Int64
	handled     atomic.Int64
	reconnects  atomic.Int64
	mu          sync.Mutex
	skipReasons []string
}

func (m *countingMetrics) EventReceived(domain.OperationKind) { m.received.Add(1) }

func (m *countingMetrics) EventHandled(domain.OperationKind, time.Duration) { m.handled.Add(1) }

func (m *countingMetrics) Reconnect() { m.reconnects.Add(1) }

func (m *countingMetrics) ClassificationFailure(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipReasons = append(m.skipReasons, reason)
}

func (m *countingMetrics) Reasons() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.skipReasons...)
}

// recordingChannel is a NotificationChannel that records deliveries and can
// be told to fail or block per recipient.
type recordingChannel struct {
	mu       sync.Mutex
	sent     []domain.NotificationUpdate
	revoked  []string
	failFor  map[string]error
	delay    time.Duration
	inFlight atomic.Int64
	peak     atomic.Int64
}

func newRecordingChannel() *recordingChannel {
	return &recordingChannel{failFor: map[string]error{}}
}

func (c *recordingChannel) Send(ctx context.Context, update domain.NotificationUpdate) error {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		peak := c.peak.Load()
		if n <= peak || c.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.failFor[update.OwnerID]; ok {
		return err
	}
	c.sent = append(c.sent, update)
	return nil
}

func (c *recordingChannel) Revoke(_ context.Context, entityID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked = append(c.revoked, entityID)
	return nil
}

func (c *recordingChannel) Sent() []domain.NotificationUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.NotificationUpdate(nil), c.sent...)
}

func (c *recordingChannel) Revoked() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.revoked...)
}

// logBuffer collects JSON log records from concurrent goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) Records() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err == nil {
			records = append(records, record)
		}
	}
	return records
}

// Levels returns the level of every record with the given message.
func (b *logBuffer) Levels(msg string) []string {
	var levels []string
	for _, r := range b.Records() {
		if r["msg"] == msg {
			levels = append(levels, fmt.Sprint(r["level"]))
		}
	}
	return levels
}

func newBufferedLogger(buf *logBuffer) *slog.Logger {
	return logging.NewLogger(logging.Config{
		Level:       "debug",
		Format:      "json",
		Output:      buf,
		ServiceName: "ticket-notifier",
		Environment: "test",
	})
}

func strPtr(s string) *string {
	return &s
}
