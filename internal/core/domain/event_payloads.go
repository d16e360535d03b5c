package domain

import "fmt"

// UpdateType identifies the kind of notification sent to a user.
type UpdateType string

const (
	UpdateTicketCreated          UpdateType = "TICKET_CREATED"
	UpdateTicketStatusChanged    UpdateType = "TICKET_STATUS_CHANGED"
	UpdateTicketWasAssignedToYou UpdateType = "TICKET_WAS_ASSIGNED_TO_YOU"
)

// NotificationUpdate is one notification addressed to one recipient.
// It is built per event and never persisted by the watcher.
type NotificationUpdate struct {
	Type       UpdateType `json:"updateType"`
	ParentID   string     `json:"parentId"`
	BuildingID string     `json:"buildingId"`
	OwnerID    string     `json:"updateOwnerId"`
	Message    string     `json:"message"`
}

// WithOwner returns a copy of the update addressed to ownerID.
func (u NotificationUpdate) WithOwner(ownerID string) NotificationUpdate {
	u.OwnerID = ownerID
	return u
}

// TicketCreatedMessage is the message sent to admins or position staff.
func TicketCreatedMessage(t *Ticket) string {
	return fmt.Sprintf("New ticket created: %s", t.Header)
}

// TicketRejectedMessage is the message sent to the author of a rejected
// ticket. The comment is appended only when present.
func TicketRejectedMessage(t *Ticket) string {
	if t.HasRejectionComment() {
		return fmt.Sprintf("Ticket %s was rejected with message %s", t.Header, *t.RejectionComment)
	}
	return fmt.Sprintf("Ticket %s was rejected", t.Header)
}

// TicketFinishedMessage is the message sent to the executer once the author
// has rated the work.
func TicketFinishedMessage(t *Ticket) string {
	return fmt.Sprintf("Ticket %s closed with mark %d", t.Header, t.Feedback.Mark)
}

// TicketStatusChangedMessage reports an assigned, reviewed or closed ticket.
func TicketStatusChangedMessage(t *Ticket) string {
	return fmt.Sprintf("Ticket %s changed status to %s", t.Header, t.Status)
}

// TicketAssignedMessage is the personal message for a new executer.
func TicketAssignedMessage(t *Ticket) string {
	return fmt.Sprintf("You were assigned to %s", t.Header)
}

// RevokeDirective tells connected clients to withdraw every notification
// whose parent is EntityID.
type RevokeDirective struct {
	EntityID string `json:"entityId"`
}
