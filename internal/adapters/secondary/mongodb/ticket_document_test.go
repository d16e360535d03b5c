package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-notifier/internal/core/errors"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
)

func TestChangeDocument_Decode(t *testing.T) {
	oid := primitive.NewObjectID()
	raw, err := bson.Marshal(bson.D{
		{Key: "_id", Value: bson.D{{Key: "_data", Value: "8263"}}},
		{Key: "operationType", Value: "update"},
		{Key: "clusterTime", Value: primitive.Timestamp{T: 1700000000, I: 1}},
		{Key: "documentKey", Value: bson.D{{Key: "_id", Value: oid}}},
		{Key: "fullDocument", Value: bson.D{
			{Key: "_id", Value: oid},
			{Key: "header", Value: "Broken lift"},
			{Key: "status", Value: int32(4)},
			{Key: "apartId", Value: "A1"},
			{Key: "authorId", Value: "U1"},
			{Key: "executerId", Value: "U9"},
			{Key: "feedback", Value: bson.D{{Key: "mark", Value: 5}, {Key: "comment", Value: "fast"}}},
			{Key: "creationTime", Value: int64(1699990000)},
		}},
	})
	require.NoError(t, err)

	var change changeDocument
	require.NoError(t, bson.Unmarshal(raw, &change))
	event, err := change.toDomain(domain.ResumeToken("tok"))
	require.NoError(t, err)

	assert.Equal(t, domain.OperationUpdate, event.Operation)
	assert.Equal(t, oid.Hex(), event.DocumentKey)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), event.ClusterTime)
	assert.Equal(t, domain.ResumeToken("tok"), event.ResumeToken)

	require.NotNil(t, event.FullDocument)
	ticket := event.FullDocument
	assert.Equal(t, oid.Hex(), ticket.ID)
	assert.Equal(t, "Broken lift", ticket.Header)
	assert.Equal(t, domain.StatusFinished, ticket.Status)
	assert.Equal(t, "A1", ticket.ApartmentID)
	assert.False(t, ticket.IsPositionTargeted())
	executer, ok := ticket.Executer()
	assert.True(t, ok)
	assert.Equal(t, "U9", executer)
	require.NotNil(t, ticket.Feedback)
	assert.Equal(t, 5, ticket.Feedback.Mark)
	assert.Equal(t, time.Unix(1699990000, 0).UTC(), ticket.CreationTime)
	assert.True(t, ticket.ClosedTime.IsZero())
}

func TestChangeDocument_DecodeDelete(t *testing.T) {
	raw, err := bson.Marshal(bson.D{
		{Key: "operationType", Value: "delete"},
		{Key: "documentKey", Value: bson.D{{Key: "_id", Value: "T1"}}},
	})
	require.NoError(t, err)

	var change changeDocument
	require.NoError(t, bson.Unmarshal(raw, &change))
	event, err := change.toDomain(nil)
	require.NoError(t, err)

	assert.Equal(t, domain.OperationDelete, event.Operation)
	assert.Equal(t, "T1", event.DocumentKey)
	assert.Nil(t, event.FullDocument)
}

func TestChangeDocument_UnknownOperationKeepsRawName(t *testing.T) {
	change := changeDocument{OperationType: "invalidate"}

	event, err := change.toDomain(nil)
	require.NoError(t, err)

	assert.Equal(t, domain.OperationUnknown, event.Operation)
	assert.Equal(t, "invalidate", event.RawOperation)
	assert.Empty(t, event.DocumentKey)
}

func TestIDString_RejectsUnsupportedTypes(t *testing.T) {
	_, raw, err := bson.MarshalValue(int64(7))
	require.NoError(t, err)

	_, err = idString(bson.RawValue{Type: bson.TypeInt64, Value: raw})
	assert.Error(t, err)
}

func TestBuildPipeline(t *testing.T) {
	t.Run("operation filter", func(t *testing.T) {
		pipeline, err := buildPipeline(ports.OperationFilter(domain.OperationInsert, domain.OperationDelete))
		require.NoError(t, err)

		assert.Equal(t, bson.D{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "delete"}}}},
		}}}, pipeline[0])
	})

	t.Run("expression filter", func(t *testing.T) {
		pipeline, err := buildPipeline(ports.ExpressionFilter(
			`{"operationType": {"$in": ["replace", "insert", "update", "delete"]}}`))
		require.NoError(t, err)
		require.Len(t, pipeline, 1)

		match, ok := pipeline[0][0].Value.(bson.D)
		require.True(t, ok)
		assert.Equal(t, "operationType", match[0].Key)
	})

	t.Run("invalid expression", func(t *testing.T) {
		_, err := buildPipeline(ports.ExpressionFilter(`{operationType: `))
		assert.Error(t, err)
	})

	t.Run("unknown operation cannot be filtered", func(t *testing.T) {
		_, err := buildPipeline(ports.OperationFilter(domain.OperationUnknown))
		assert.ErrorIs(t, err, apperrors.ErrUnknownOperation)
	})

	t.Run("empty filter matches everything", func(t *testing.T) {
		pipeline, err := buildPipeline(ports.FeedFilter{})
		require.NoError(t, err)
		assert.Empty(t, pipeline)
	})
}
