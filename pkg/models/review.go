package models

import "time"

type ReviewKind string

const (
	// ReviewKindAdjudication asks a reviewer to pick a product or confirm no match.
	ReviewKindAdjudication ReviewKind = "adjudication"
	// ReviewKindAuditSample asks a reviewer to confirm an already applied auto match.
	ReviewKindAuditSample ReviewKind = "audit_sample"
)

const ReviewStatusPending = "pending"

// ReviewQueueItem is one pending human task, at most one per import line.
type ReviewQueueItem struct {
	ID           string      `json:"id" db:"id"`
	ImportLineID string      `json:"import_line_id" db:"import_line_id"`
	ImportID     string      `json:"import_id" db:"import_id"`
	SupplierID   string      `json:"supplier_id" db:"supplier_id"`
	SupplierSKU  string      `json:"supplier_sku,omitempty" db:"supplier_sku"`
	Kind         ReviewKind  `json:"kind" db:"kind"`
	Decision     Decision    `json:"decision" db:"decision"`
	LineSnapshot ImportLine  `json:"line_snapshot" db:"-"`
	Candidates   []Candidate `json:"candidates" db:"-"`
	Status       string      `json:"status" db:"status"`
	Reason       string      `json:"reason,omitempty" db:"reason"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}
