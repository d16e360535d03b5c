package errors

import (
	"errors"
	"fmt"
)

// Classification errors - an event cannot be mapped to a notification
var (
	ErrUnknownOperation    = errors.New("unknown change operation")
	ErrMissingDocumentKey  = errors.New("change event has no document key")
	ErrMissingFullDocument = errors.New("change event has no full document")
	ErrUnsupportedStatus   = errors.New("ticket status does not produce notifications")
)

// Invariant errors - a ticket is missing a field its lifecycle state requires
var (
	ErrMissingExecuter = errors.New("ticket has no executer")
	ErrMissingAuthor   = errors.New("ticket has no author")
	ErrMissingFeedback = errors.New("ticket has no feedback")
	ErrMissingPosition = errors.New("ticket has no position")
	ErrMissingBuilding = errors.New("ticket has no derivable building")
)

// Feed errors
var (
	ErrFeedClosed = errors.New("change feed closed by source")
)

// Lookup and access errors
var (
	ErrBuildingNotFound = errors.New("building not found for apartment")
	ErrNegativeMask     = errors.New("access mask must not be negative")
)

// Delivery errors
var (
	ErrRecipientNotConnected = errors.New("recipient is not connected")
	ErrChannelClosed         = errors.New("notification channel closed")
)

// EventError ties a classification or invariant failure to the event that
// produced it, so log lines carry the ticket and operation.
type EventError struct {
	Err       error
	TicketID  string
	Operation string
}

func (e *EventError) Error() string {
	if e.TicketID == "" {
		return fmt.Sprintf("%s event: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s event for ticket %s: %v", e.Operation, e.TicketID, e.Err)
}

func (e *EventError) Unwrap() error {
	return e.Err
}

// NewEventError wraps err with the ticket id and operation name.
func NewEventError(err error, ticketID, operation string) *EventError {
	return &EventError{
		Err:       err,
		TicketID:  ticketID,
		Operation: operation,
	}
}

// DeliveryErrors collects per-recipient failures of a fan-out.
type DeliveryErrors struct {
	Failures map[string]error
}

func NewDeliveryErrors() *DeliveryErrors {
	return &DeliveryErrors{
		Failures: make(map[string]error),
	}
}

func (d *DeliveryErrors) Add(recipientID string, err error) {
	d.Failures[recipientID] = err
}

func (d *DeliveryErrors) HasErrors() bool {
	return len(d.Failures) > 0
}

func (d *DeliveryErrors) Error() string {
	return fmt.Sprintf("delivery failed for %d recipient(s)", len(d.Failures))
}
