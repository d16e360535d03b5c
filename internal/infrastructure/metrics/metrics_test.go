package metrics

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-notifier/internal/core/errors"
)

func TestRecorder_DeliveryOutcomes(t *testing.T) {
	r := NewRecorder()

	r.Delivery(domain.UpdateTicketCreated, nil)
	r.Delivery(domain.UpdateTicketCreated, nil)
	r.Delivery(domain.UpdateTicketCreated, fmt.Errorf("send: %w", apperrors.ErrRecipientNotConnected))
	r.Delivery(domain.UpdateTicketStatusChanged, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.deliveries.WithLabelValues("TICKET_CREATED", "delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.deliveries.WithLabelValues("TICKET_CREATED", "offline")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.deliveries.WithLabelValues("TICKET_STATUS_CHANGED", "failed")))
}

func TestRecorder_FeedCounters(t *testing.T) {
	r := NewRecorder()

	r.EventReceived(domain.OperationInsert)
	r.EventReceived(domain.OperationDelete)
	r.EventReceived(domain.OperationDelete)
	r.Reconnect()
	r.ClassificationFailure("unknown_operation")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.eventsReceived.WithLabelValues("insert")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.eventsReceived.WithLabelValues("delete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.reconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.classifyFailure.WithLabelValues("unknown_operation")))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.Revocation(nil)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `ticket_notifier_dispatch_revocations_total{outcome="delivered"} 1`), body)
}
