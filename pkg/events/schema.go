package events

import (
	"time"

	"github.com/Ramsey-B/vine/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

type EventType string

const (
	EventTypeMappingCreated  EventType = "mapping.created"
	EventTypeMappingRelinked EventType = "mapping.relinked"
	EventTypeMappingUpdated  EventType = "mapping.updated"
	EventTypeReviewEnqueued  EventType = "review.enqueued"
	EventTypeImportMatched   EventType = "import.matched"
)

// MappingEventType maps an upsert action onto its event type.
func MappingEventType(action models.MappingAction) EventType {
	switch action {
	case models.MappingActionCreated:
		return EventTypeMappingCreated
	case models.MappingActionRelinked:
		return EventTypeMappingRelinked
	default:
		return EventTypeMappingUpdated
	}
}

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID       string    `json:"event_id"`
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	SupplierID    string    `json:"supplier_id"`
	ImportID      string    `json:"import_id"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// MappingEvent is emitted after a supplier SKU mapping commit.
type MappingEvent struct {
	BaseEvent
	MappingID         string             `json:"mapping_id"`
	SupplierSKU       string             `json:"supplier_sku"`
	MasterProductID   string             `json:"master_product_id"`
	PreviousProductID *string            `json:"previous_product_id,omitempty"`
	Confidence        float64            `json:"confidence"`
	Method            models.MatchMethod `json:"method"`
	ImportLineID      string             `json:"import_line_id"`
	AuditSampled      bool               `json:"audit_sampled"`
}

// ReviewEnqueuedEvent is emitted after a review item commit.
type ReviewEnqueuedEvent struct {
	BaseEvent
	ImportLineID string            `json:"import_line_id"`
	Kind         models.ReviewKind `json:"kind"`
	Decision     models.Decision   `json:"decision"`
	Candidates   int               `json:"candidates"`
}

// ImportMatchedEvent is emitted once when a job finalizes.
type ImportMatchedEvent struct {
	BaseEvent
	Summary models.MatchSummary `json:"summary"`
}
