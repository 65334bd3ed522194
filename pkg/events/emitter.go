// Package events publishes mapping, review and import lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/vine/pkg/fingerprint"
	"github.com/Ramsey-B/vine/pkg/kafka"
	"github.com/Ramsey-B/vine/pkg/metrics"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/tracing"

	appctx "github.com/Ramsey-B/vine/pkg/context"
)

// Publisher is satisfied by kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// Emitter turns committed matching results into events. A nil Emitter
// drops everything, which is how events are disabled.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
	now       func() time.Time
}

func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// base builds the envelope. The event id is derived from its content so a
// replayed line produces the same id and consumers can deduplicate.
func (e *Emitter) base(ctx context.Context, eventType EventType, supplierID, importID string, keyParts ...string) BaseEvent {
	return BaseEvent{
		EventID:       fingerprint.Strings(append([]string{string(eventType), importID}, keyParts...)...),
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		SupplierID:    supplierID,
		ImportID:      importID,
		Timestamp:     e.now(),
		CorrelationID: appctx.GetRequestID(ctx),
	}
}

// EmitMapping publishes mapping.created, mapping.relinked or mapping.updated.
func (e *Emitter) EmitMapping(ctx context.Context, result *models.UpsertResult, lineID string, auditSampled bool) error {
	if e == nil || result == nil || result.Mapping == nil {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMapping")
	defer span.End()

	m := result.Mapping
	eventType := MappingEventType(result.Action())
	event := MappingEvent{
		BaseEvent:         e.base(ctx, eventType, m.SupplierID, m.SourceImportID, lineID, m.MasterProductID),
		MappingID:         m.ID,
		SupplierSKU:       m.SupplierSKU,
		MasterProductID:   m.MasterProductID,
		PreviousProductID: result.PreviousProductID,
		Confidence:        m.MatchConfidence,
		Method:            m.MatchMethod,
		ImportLineID:      lineID,
		AuditSampled:      auditSampled,
	}
	return e.publish(ctx, eventType, m.SupplierID+"/"+m.SupplierSKU, event)
}

// EmitReviewEnqueued publishes review.enqueued.
func (e *Emitter) EmitReviewEnqueued(ctx context.Context, item models.ReviewQueueItem) error {
	if e == nil {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitReviewEnqueued")
	defer span.End()

	event := ReviewEnqueuedEvent{
		BaseEvent:    e.base(ctx, EventTypeReviewEnqueued, item.SupplierID, item.ImportID, item.ImportLineID),
		ImportLineID: item.ImportLineID,
		Kind:         item.Kind,
		Decision:     item.Decision,
		Candidates:   len(item.Candidates),
	}
	return e.publish(ctx, EventTypeReviewEnqueued, item.ImportLineID, event)
}

// EmitImportMatched publishes import.matched.
func (e *Emitter) EmitImportMatched(ctx context.Context, supplierID string, summary models.MatchSummary) error {
	if e == nil {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitImportMatched")
	defer span.End()

	event := ImportMatchedEvent{
		BaseEvent: e.base(ctx, EventTypeImportMatched, supplierID, summary.ImportID),
		Summary:   summary,
	}
	return e.publish(ctx, EventTypeImportMatched, summary.ImportID, event)
}

func (e *Emitter) publish(ctx context.Context, eventType EventType, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = e.publisher.Publish(ctx, kafka.Message{
		Key:   key,
		Value: data,
		Headers: map[string]string{
			"event_type":     string(eventType),
			"schema_version": SchemaVersion,
		},
	})
	if err != nil {
		metrics.EventsPublished.WithLabelValues(string(eventType), "error").Inc()
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}

	metrics.EventsPublished.WithLabelValues(string(eventType), "ok").Inc()
	return nil
}
