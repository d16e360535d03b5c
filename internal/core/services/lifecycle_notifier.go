package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-notifier/internal/core/errors"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

// LifecycleNotifier decides who is told what about a ticket, based only on
// the ticket's current state.
type LifecycleNotifier struct {
	buildings  ports.BuildingLookup
	recipients *RecipientResolver
	dispatcher *FanoutDispatcher
	logger     *slog.Logger
}

// NewLifecycleNotifier creates a new lifecycle notifier
func NewLifecycleNotifier(
	buildings ports.BuildingLookup,
	recipients *RecipientResolver,
	dispatcher *FanoutDispatcher,
	logger *slog.Logger,
) *LifecycleNotifier {
	return &LifecycleNotifier{
		buildings:  buildings,
		recipients: recipients,
		dispatcher: dispatcher,
		logger:     logger.With("component", "lifecycle_notifier"),
	}
}

// OnCreate announces a new ticket to the building admins, or to the staff of
// the position it was raised against.
func (n *LifecycleNotifier) OnCreate(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.IsPositionTargeted() {
		return n.notifyPositionStaff(ctx, ticket)
	}
	return n.notifyAdmins(ctx, ticket)
}

func (n *LifecycleNotifier) notifyAdmins(ctx context.Context, ticket *domain.Ticket) error {
	buildingID, err := n.buildingOf(ctx, ticket)
	if err != nil {
		return err
	}

	admins, err := n.recipients.ResolveAdmins(ctx, buildingID)
	if err != nil {
		return err
	}
	if len(admins) == 0 {
		n.logger.DebugContext(ctx, "no admins with ticket notifications", "building_id", buildingID)
		return nil
	}

	n.dispatcher.DispatchAll(ctx, ticketCreated(ticket, buildingID), admins)
	return nil
}

func (n *LifecycleNotifier) notifyPositionStaff(ctx context.Context, ticket *domain.Ticket) error {
	positionID, ok := ticket.Position()
	if !ok {
		return apperrors.ErrMissingPosition
	}

	staff, err := n.recipients.ResolvePositionPersonnel(ctx, positionID)
	if err != nil {
		return err
	}
	if len(staff) == 0 {
		return nil
	}

	buildingID, err := n.buildingOf(ctx, ticket)
	if err != nil {
		return err
	}

	n.dispatcher.DispatchAll(ctx, ticketCreated(ticket, buildingID), staff)
	return nil
}

// OnTransition notifies the author or executer about the ticket's current
// status. Assigned produces two notifications for the executer, sent in
// order.
func (n *LifecycleNotifier) OnTransition(ctx context.Context, ticket *domain.Ticket) error {
	notices, err := transitionNotices(ticket)
	if err != nil {
		return err
	}

	buildingID, err := n.buildingOf(ctx, ticket)
	if err != nil {
		return err
	}

	for _, notice := range notices {
		// Delivery failures are logged by the dispatcher and do not stop
		// the remaining notices.
		_ = n.dispatcher.Dispatch(ctx, domain.NotificationUpdate{
			Type:       notice.updateType,
			ParentID:   ticket.ID,
			BuildingID: buildingID,
			OwnerID:    notice.recipientID,
			Message:    notice.message,
		})
	}
	return nil
}

// notice is one single-recipient notification derived from a ticket.
type notice struct {
	recipientID string
	updateType  domain.UpdateType
	message     string
}

// transitionNotices maps a ticket's status and fields to the notifications
// it produces. It performs no I/O. Assigned without an executer yields no
// notices at all, since neither of its two notices would have a recipient.
func transitionNotices(ticket *domain.Ticket) ([]notice, error) {
	switch ticket.Status {
	case domain.StatusRejected:
		if ticket.AuthorID == "" {
			return nil, apperrors.ErrMissingAuthor
		}
		return []notice{{
			recipientID: ticket.AuthorID,
			updateType:  domain.UpdateTicketStatusChanged,
			message:     domain.TicketRejectedMessage(ticket),
		}}, nil

	case domain.StatusFinished:
		executerID, ok := ticket.Executer()
		if !ok {
			return nil, apperrors.ErrMissingExecuter
		}
		if ticket.Feedback == nil {
			return nil, apperrors.ErrMissingFeedback
		}
		return []notice{{
			recipientID: executerID,
			updateType:  domain.UpdateTicketStatusChanged,
			message:     domain.TicketFinishedMessage(ticket),
		}}, nil

	case domain.StatusAssigned:
		executerID, ok := ticket.Executer()
		if !ok {
			return nil, apperrors.ErrMissingExecuter
		}
		return []notice{
			{
				recipientID: executerID,
				updateType:  domain.UpdateTicketStatusChanged,
				message:     domain.TicketStatusChangedMessage(ticket),
			},
			{
				recipientID: executerID,
				updateType:  domain.UpdateTicketWasAssignedToYou,
				message:     domain.TicketAssignedMessage(ticket),
			},
		}, nil

	case domain.StatusReviewed, domain.StatusClosed:
		executerID, ok := ticket.Executer()
		if !ok {
			return nil, apperrors.ErrMissingExecuter
		}
		return []notice{{
			recipientID: executerID,
			updateType:  domain.UpdateTicketStatusChanged,
			message:     domain.TicketStatusChangedMessage(ticket),
		}}, nil

	case domain.StatusOpen:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedStatus, ticket.Status)

	default:
		return nil, fmt.Errorf("%w: %d", apperrors.ErrUnsupportedStatus, ticket.Status)
	}
}

func (n *LifecycleNotifier) buildingOf(ctx context.Context, ticket *domain.Ticket) (string, error) {
	if ticket.ApartmentID == "" {
		return "", apperrors.ErrMissingBuilding
	}

	buildingID, err := n.buildings.BuildingIDByApartment(ctx, ticket.ApartmentID)
	switch {
	case errors.Is(err, apperrors.ErrBuildingNotFound):
		return "", fmt.Errorf("%w: apartment %s: %w", apperrors.ErrMissingBuilding, ticket.ApartmentID, err)
	case err != nil:
		return "", fmt.Errorf("lookup building of apartment %s: %w", ticket.ApartmentID, err)
	case buildingID == "":
		return "", fmt.Errorf("%w: apartment %s", apperrors.ErrMissingBuilding, ticket.ApartmentID)
	}
	return buildingID, nil
}

func ticketCreated(ticket *domain.Ticket, buildingID string) domain.NotificationUpdate {
	return domain.NotificationUpdate{
		Type:       domain.UpdateTicketCreated,
		ParentID:   ticket.ID,
		BuildingID: buildingID,
		Message:    domain.TicketCreatedMessage(ticket),
	}
}
