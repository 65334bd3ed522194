package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/vine/pkg/kafka"
	"github.com/Ramsey-B/vine/pkg/models"
)

type fakePublisher struct {
	msgs []kafka.Message
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func upsert(inserted bool, previous *string) *models.UpsertResult {
	return &models.UpsertResult{
		Mapping: &models.SupplierProductMapping{
			ID:              "map-1",
			SupplierID:      "sup-1",
			SupplierSKU:     "CM-15",
			MasterProductID: "p-margaux-2015",
			MatchConfidence: 100,
			MatchMethod:     models.MatchMethodIdentifierExact,
			SourceImportID:  "imp-1",
		},
		Inserted:          inserted,
		PreviousProductID: previous,
	}
}

func TestEmitMapping_EventTypeFollowsAction(t *testing.T) {
	old := "p-margaux-2016"
	same := "p-margaux-2015"
	tests := []struct {
		name   string
		result *models.UpsertResult
		want   EventType
	}{
		{"created", upsert(true, nil), EventTypeMappingCreated},
		{"relinked", upsert(false, &old), EventTypeMappingRelinked},
		{"updated", upsert(false, &same), EventTypeMappingUpdated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			e := NewEmitter(pub, testLogger())

			require.NoError(t, e.EmitMapping(context.Background(), tt.result, "line-1", false))
			require.Len(t, pub.msgs, 1)
			msg := pub.msgs[0]
			assert.Equal(t, "sup-1/CM-15", msg.Key)
			assert.Equal(t, string(tt.want), msg.Headers["event_type"])

			var event MappingEvent
			require.NoError(t, json.Unmarshal(msg.Value, &event))
			assert.Equal(t, tt.want, event.EventType)
			assert.Equal(t, SchemaVersion, event.SchemaVersion)
			assert.Equal(t, "p-margaux-2015", event.MasterProductID)
			assert.Equal(t, "imp-1", event.ImportID)
			assert.Equal(t, "line-1", event.ImportLineID)
		})
	}
}

func TestEmitMapping_EventIDIsStable(t *testing.T) {
	pub := &fakePublisher{}
	e := NewEmitter(pub, testLogger())

	require.NoError(t, e.EmitMapping(context.Background(), upsert(true, nil), "line-1", false))
	require.NoError(t, e.EmitMapping(context.Background(), upsert(true, nil), "line-1", false))
	require.NoError(t, e.EmitMapping(context.Background(), upsert(true, nil), "line-2", false))

	ids := make([]string, 0, 3)
	for _, m := range pub.msgs {
		var event MappingEvent
		require.NoError(t, json.Unmarshal(m.Value, &event))
		ids = append(ids, event.EventID)
	}
	assert.Equal(t, ids[0], ids[1])
	assert.NotEqual(t, ids[0], ids[2])
}

func TestEmitReviewEnqueued(t *testing.T) {
	pub := &fakePublisher{}
	e := NewEmitter(pub, testLogger())

	err := e.EmitReviewEnqueued(context.Background(), models.ReviewQueueItem{
		ImportLineID: "line-7",
		ImportID:     "imp-1",
		SupplierID:   "sup-1",
		Kind:         models.ReviewKindAdjudication,
		Decision:     models.DecisionReviewQueue,
		Candidates:   []models.Candidate{{ProductID: "a"}, {ProductID: "b"}},
	})
	require.NoError(t, err)
	require.Len(t, pub.msgs, 1)

	var event ReviewEnqueuedEvent
	require.NoError(t, json.Unmarshal(pub.msgs[0].Value, &event))
	assert.Equal(t, EventTypeReviewEnqueued, event.EventType)
	assert.Equal(t, 2, event.Candidates)
	assert.Equal(t, models.ReviewKindAdjudication, event.Kind)
}

func TestEmitter_PublishFailureIsReturned(t *testing.T) {
	e := NewEmitter(&fakePublisher{err: errors.New("broker down")}, testLogger())

	err := e.EmitImportMatched(context.Background(), "sup-1", models.MatchSummary{ImportID: "imp-1"})
	assert.EqualError(t, err, "broker down")
}

func TestEmitter_NilIsDisabled(t *testing.T) {
	var e *Emitter

	assert.NoError(t, e.EmitMapping(context.Background(), upsert(true, nil), "line-1", false))
	assert.NoError(t, e.EmitReviewEnqueued(context.Background(), models.ReviewQueueItem{}))
	assert.NoError(t, e.EmitImportMatched(context.Background(), "sup-1", models.MatchSummary{}))
}
