package mongodb

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
)

// ticketDocument is the stored shape of a ticket. Times are unix seconds.
type ticketDocument struct {
	ID               bson.RawValue     `bson:"_id"`
	Header           string            `bson:"header"`
	Status           int32             `bson:"status"`
	ApartmentID      string            `bson:"apartId"`
	PositionID       *string           `bson:"positionId,omitempty"`
	AuthorID         string            `bson:"authorId"`
	ExecuterID       *string           `bson:"executerId,omitempty"`
	RejectionComment *string           `bson:"rejectionComment,omitempty"`
	Feedback         *feedbackDocument `bson:"feedback,omitempty"`
	CreationTime     int64             `bson:"creationTime"`
	AcceptedTime     int64             `bson:"acceptedTime"`
	ClosedTime       int64             `bson:"closedTime"`
	RejectionTime    int64             `bson:"rejectionTime"`
}

type feedbackDocument struct {
	Mark    int    `bson:"mark"`
	Comment string `bson:"comment"`
}

// changeDocument is the subset of a change stream event the watcher reads.
type changeDocument struct {
	OperationType string              `bson:"operationType"`
	DocumentKey   documentKey         `bson:"documentKey"`
	FullDocument  *ticketDocument     `bson:"fullDocument"`
	ClusterTime   primitive.Timestamp `bson:"clusterTime"`
}

type documentKey struct {
	ID bson.RawValue `bson:"_id"`
}

func (d *ticketDocument) toDomain() (*domain.Ticket, error) {
	id, err := idString(d.ID)
	if err != nil {
		return nil, fmt.Errorf("ticket id: %w", err)
	}

	ticket := &domain.Ticket{
		ID:               id,
		Header:           d.Header,
		Status:           domain.TicketStatus(d.Status),
		ApartmentID:      d.ApartmentID,
		PositionID:       d.PositionID,
		AuthorID:         d.AuthorID,
		ExecuterID:       d.ExecuterID,
		RejectionComment: d.RejectionComment,
		CreationTime:     unixTime(d.CreationTime),
		AcceptedTime:     unixTime(d.AcceptedTime),
		ClosedTime:       unixTime(d.ClosedTime),
		RejectionTime:    unixTime(d.RejectionTime),
	}
	if d.Feedback != nil {
		ticket.Feedback = &domain.Feedback{Mark: d.Feedback.Mark, Comment: d.Feedback.Comment}
	}
	return ticket, nil
}

func (c *changeDocument) toDomain(token domain.ResumeToken) (domain.ChangeEvent, error) {
	event := domain.ChangeEvent{
		Operation:    domain.ParseOperationKind(c.OperationType),
		RawOperation: c.OperationType,
		ResumeToken:  token,
	}
	if c.ClusterTime.T != 0 {
		event.ClusterTime = time.Unix(int64(c.ClusterTime.T), 0).UTC()
	}

	if c.DocumentKey.ID.Type != 0 {
		key, err := idString(c.DocumentKey.ID)
		if err != nil {
			return domain.ChangeEvent{}, fmt.Errorf("document key: %w", err)
		}
		event.DocumentKey = key
	}

	if c.FullDocument != nil {
		ticket, err := c.FullDocument.toDomain()
		if err != nil {
			return domain.ChangeEvent{}, err
		}
		event.FullDocument = ticket
	}
	return event, nil
}

// idString renders ObjectID and string ids the same way clients see them.
func idString(v bson.RawValue) (string, error) {
	switch v.Type {
	case bsontype.ObjectID:
		return v.ObjectID().Hex(), nil
	case bsontype.String:
		return v.StringValue(), nil
	case 0, bsontype.Null, bsontype.Undefined:
		return "", nil
	default:
		return "", fmt.Errorf("unsupported id type %s", v.Type)
	}
}

func unixTime(seconds int64) time.Time {
	if seconds == 0 {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}
