package domain

import (
	"time"
)

// TicketStatus represents the lifecycle states of a ticket.
// Values are stored as integers in ticket documents, in declaration order.
type TicketStatus int32

const (
	StatusOpen TicketStatus = iota
	StatusAssigned
	StatusRejected
	StatusReviewed
	StatusFinished
	StatusClosed
)

// IsValid reports whether the status is one of the known lifecycle states.
func (s TicketStatus) IsValid() bool {
	return s >= StatusOpen && s <= StatusClosed
}

// String returns the lower-case name used in notification messages.
func (s TicketStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusAssigned:
		return "assigned"
	case StatusRejected:
		return "rejected"
	case StatusReviewed:
		return "reviewed"
	case StatusFinished:
		return "finished"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Feedback is the author's evaluation of a finished ticket.
type Feedback struct {
	Mark    int
	Comment string
}

// Ticket is a snapshot of a ticket document as delivered by the change feed.
// The watcher never mutates or persists it.
type Ticket struct {
	ID               string
	Header           string
	Status           TicketStatus
	ApartmentID      string
	PositionID       *string
	AuthorID         string
	ExecuterID       *string
	RejectionComment *string
	Feedback         *Feedback
	CreationTime     time.Time
	AcceptedTime     time.Time
	ClosedTime       time.Time
	RejectionTime    time.Time
}

// IsPositionTargeted reports whether the ticket was raised against a staff
// position rather than the building administration. Any non-null position
// id counts, including an empty one.
func (t *Ticket) IsPositionTargeted() bool {
	return t.PositionID != nil
}

// Executer returns the executer id and whether one is set.
func (t *Ticket) Executer() (string, bool) {
	if t.ExecuterID == nil || *t.ExecuterID == "" {
		return "", false
	}
	return *t.ExecuterID, true
}

// Position returns the position id and whether one is set.
func (t *Ticket) Position() (string, bool) {
	if !t.IsPositionTargeted() {
		return "", false
	}
	return *t.PositionID, true
}

// HasRejectionComment reports whether the rejection carried a message.
func (t *Ticket) HasRejectionComment() bool {
	return t.RejectionComment != nil
}
