// Package metrics exposes watcher counters to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-notifier/internal/core/errors"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

const namespace = "ticket_notifier"

// Recorder implements ports.MetricsRecorder on a private registry.
type Recorder struct {
	registry        *prometheus.Registry
	eventsReceived  *prometheus.CounterVec
	handleDuration  *prometheus.HistogramVec
	reconnects      prometheus.Counter
	classifyFailure *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	revocations     *prometheus.CounterVec
}

var _ ports.MetricsRecorder = (*Recorder)(nil)

// NewRecorder registers the watcher metrics together with the Go runtime
// and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_received_total",
			Help:      "Change events received from the ticket feed.",
		}, []string{"operation"}),
		handleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "event_handle_seconds",
			Help:      "Time spent handling one change event, including delivery.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Feed subscriptions re-established after a failure.",
		}),
		classifyFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "skipped_events_total",
			Help:      "Events skipped because they could not be classified or violated an invariant.",
		}, []string{"reason"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "deliveries_total",
			Help:      "Notification deliveries by update type and outcome.",
		}, []string{"update_type", "outcome"}),
		revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "revocations_total",
			Help:      "Revoke directives by outcome.",
		}, []string{"outcome"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.eventsReceived,
		r.handleDuration,
		r.reconnects,
		r.classifyFailure,
		r.deliveries,
		r.revocations,
	)

	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) EventReceived(operation domain.OperationKind) {
	r.eventsReceived.WithLabelValues(operation.String()).Inc()
}

func (r *Recorder) EventHandled(operation domain.OperationKind, duration time.Duration) {
	r.handleDuration.WithLabelValues(operation.String()).Observe(duration.Seconds())
}

func (r *Recorder) Reconnect() {
	r.reconnects.Inc()
}

func (r *Recorder) ClassificationFailure(reason string) {
	r.classifyFailure.WithLabelValues(reason).Inc()
}

func (r *Recorder) Delivery(updateType domain.UpdateType, err error) {
	r.deliveries.WithLabelValues(string(updateType), outcome(err)).Inc()
}

func (r *Recorder) Revocation(err error) {
	r.revocations.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "delivered"
	case errors.Is(err, apperrors.ErrRecipientNotConnected):
		return "offline"
	default:
		return "failed"
	}
}

// Nop discards every measurement.
type Nop struct{}

var _ ports.MetricsRecorder = Nop{}

func (Nop) EventReceived(domain.OperationKind)                {}
func (Nop) EventHandled(domain.OperationKind, time.Duration) {}
func (Nop) Reconnect()                                       {}
func (Nop) ClassificationFailure(string)                     {}
func (Nop) Delivery(domain.UpdateType, error)                {}
func (Nop) Revocation(error)                                 {}
