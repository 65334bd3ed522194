package models

import "time"

type ImportJobStatus string

const (
	ImportJobStatusPending  ImportJobStatus = "PENDING"
	ImportJobStatusMatching ImportJobStatus = "MATCHING"
	ImportJobStatusMatched  ImportJobStatus = "MATCHED"
	ImportJobStatusFailed   ImportJobStatus = "FAILED"
)

type LineStatus string

const (
	LineStatusPending        LineStatus = "PENDING"
	LineStatusAutoMatched    LineStatus = "AUTO_MATCHED"
	LineStatusSamplingReview LineStatus = "SAMPLING_REVIEW"
	LineStatusNeedsReview    LineStatus = "NEEDS_REVIEW"
	LineStatusNoMatch        LineStatus = "NO_MATCH"
	LineStatusError          LineStatus = "ERROR"
)

// ImportJob is one supplier catalog submission.
type ImportJob struct {
	ID                  string          `json:"id" db:"id"`
	SupplierID          string          `json:"supplier_id" db:"supplier_id"`
	Status              ImportJobStatus `json:"status" db:"status"`
	TotalLines          int             `json:"total_lines" db:"total_lines"`
	AutoMatchedCount    int             `json:"auto_matched_count" db:"auto_matched_count"`
	SamplingReviewCount int             `json:"sampling_review_count" db:"sampling_review_count"`
	NeedsReviewCount    int             `json:"needs_review_count" db:"needs_review_count"`
	NoMatchCount        int             `json:"no_match_count" db:"no_match_count"`
	ErrorCount          int             `json:"error_count" db:"error_count"`
	ErrorSamples        []LineError     `json:"error_samples" db:"-"`
	StartedAt           *time.Time      `json:"started_at,omitempty" db:"started_at"`
	MatchedAt           *time.Time      `json:"matched_at,omitempty" db:"matched_at"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
}

// Summary renders the stored counters; the job row is the source of truth.
func (j *ImportJob) Summary() *MatchSummary {
	samples := j.ErrorSamples
	if samples == nil {
		samples = []LineError{}
	}
	return &MatchSummary{
		ImportID:       j.ID,
		Status:         j.Status,
		Total:          j.TotalLines,
		AutoMatched:    j.AutoMatchedCount,
		SamplingReview: j.SamplingReviewCount,
		NeedsReview:    j.NeedsReviewCount,
		NoMatch:        j.NoMatchCount,
		Errors:         j.ErrorCount,
		ErrorSamples:   samples,
	}
}

// ImportLine is one raw supplier product record. Raw fields are stored as
// received; an empty string means the supplier left the field blank.
type ImportLine struct {
	ID         string `json:"id" db:"id"`
	ImportID   string `json:"import_id" db:"import_id"`
	LineNumber int    `json:"line_number" db:"line_number"`

	BarcodeEach string `json:"barcode_each,omitempty" db:"barcode_each"`
	BarcodeCase string `json:"barcode_case,omitempty" db:"barcode_case"`
	SupplierSKU string `json:"supplier_sku,omitempty" db:"supplier_sku"`

	Producer string `json:"producer,omitempty" db:"producer"`
	Name     string `json:"name,omitempty" db:"name"`
	Vintage  string `json:"vintage,omitempty" db:"vintage"`
	Volume   string `json:"volume,omitempty" db:"volume"`
	ABV      string `json:"abv,omitempty" db:"abv"`
	PackType string `json:"pack_type,omitempty" db:"pack_type"`
	Country  string `json:"country,omitempty" db:"country"`
	Region   string `json:"region,omitempty" db:"region"`
	Grape    string `json:"grape,omitempty" db:"grape"`

	MatchStatus       LineStatus         `json:"match_status" db:"match_status"`
	MatchDecision     *Decision          `json:"match_decision,omitempty" db:"match_decision"`
	MatchMethod       *MatchMethod       `json:"match_method,omitempty" db:"match_method"`
	ConfidenceScore   *float64           `json:"confidence_score,omitempty" db:"confidence_score"`
	MatchedProductID  *string            `json:"matched_product_id,omitempty" db:"matched_product_id"`
	MatchedFamilyID   *string            `json:"matched_family_id,omitempty" db:"matched_family_id"`
	GuardrailFailures []GuardrailFailure `json:"guardrail_failures,omitempty" db:"-"`
	MatchReasons      []string           `json:"match_reasons,omitempty" db:"-"`
	AuditSampled      bool               `json:"audit_sampled" db:"audit_sampled"`
	ErrorReason       *string            `json:"error_reason,omitempty" db:"error_reason"`
	MatchedAt         *time.Time         `json:"matched_at,omitempty" db:"matched_at"`
}

// LineOutcome is the terminal state written to a line in its transaction.
type LineOutcome struct {
	Status            LineStatus
	Decision          Decision
	Method            MatchMethod
	Score             *float64
	ProductID         *string
	FamilyID          *string
	GuardrailFailures []GuardrailFailure
	Reasons           []string
	AuditSampled      bool
	ErrorReason       *string
}

// ErrorOutcome is the outcome recorded for a line that could not be matched or persisted.
func ErrorOutcome(reason string) LineOutcome {
	return LineOutcome{
		Status:      LineStatusError,
		Decision:    DecisionError,
		Method:      MatchMethodNone,
		Reasons:     []string{reason},
		ErrorReason: &reason,
	}
}

type LineError struct {
	LineID     string `json:"line_id"`
	LineNumber int    `json:"line_number"`
	Reason     string `json:"reason"`
}

// StatusCounts tallies lines per status.
type StatusCounts map[LineStatus]int

func (c StatusCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// MatchSummary is returned by every matching run, including partial failures.
type MatchSummary struct {
	ImportID       string          `json:"import_id"`
	Status         ImportJobStatus `json:"status"`
	Total          int             `json:"total"`
	AutoMatched    int             `json:"auto_matched"`
	SamplingReview int             `json:"sampling_review"`
	NeedsReview    int             `json:"needs_review"`
	NoMatch        int             `json:"no_match"`
	Errors         int             `json:"errors"`
	ErrorSamples   []LineError     `json:"error_samples"`
}
