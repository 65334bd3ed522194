package models

import "time"

// SupplierProductMapping links a supplier SKU to a master product. One row per
// (supplier_id, supplier_sku).
type SupplierProductMapping struct {
	ID              string      `json:"id" db:"id"`
	SupplierID      string      `json:"supplier_id" db:"supplier_id"`
	SupplierSKU     string      `json:"supplier_sku" db:"supplier_sku"`
	MasterProductID string      `json:"master_product_id" db:"master_product_id"`
	MatchConfidence float64     `json:"match_confidence" db:"match_confidence"`
	MatchMethod     MatchMethod `json:"match_method" db:"match_method"`
	MatchReasons    []string    `json:"match_reasons" db:"-"`
	SourceImportID  string      `json:"source_import_id" db:"source_import_id"`
	SourceLineID    string      `json:"source_line_id" db:"source_line_id"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// UpsertResult describes what an upsert did to the mapping row.
type UpsertResult struct {
	Mapping           *SupplierProductMapping
	Inserted          bool
	PreviousProductID *string
	PreviousScore     *float64
}

// Action classifies the upsert for the audit trail.
func (r UpsertResult) Action() MappingAction {
	switch {
	case r.Inserted:
		return MappingActionCreated
	case r.PreviousProductID != nil && *r.PreviousProductID != r.Mapping.MasterProductID:
		return MappingActionRelinked
	default:
		return MappingActionUpdated
	}
}

type MappingAction string

const (
	MappingActionCreated  MappingAction = "created"
	MappingActionRelinked MappingAction = "relinked"
	MappingActionUpdated  MappingAction = "updated"
)

// MappingAuditEntry is one append-only record of a mapping write.
type MappingAuditEntry struct {
	ID                string        `json:"id" db:"id"`
	MappingID         string        `json:"mapping_id" db:"mapping_id"`
	SupplierID        string        `json:"supplier_id" db:"supplier_id"`
	SupplierSKU       string        `json:"supplier_sku" db:"supplier_sku"`
	Action            MappingAction `json:"action" db:"action"`
	PreviousProductID *string       `json:"previous_product_id,omitempty" db:"previous_product_id"`
	MasterProductID   string        `json:"master_product_id" db:"master_product_id"`
	Confidence        float64       `json:"confidence" db:"confidence"`
	Method            MatchMethod   `json:"method" db:"method"`
	ImportID          string        `json:"import_id" db:"import_id"`
	ImportLineID      string        `json:"import_line_id" db:"import_line_id"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
}
