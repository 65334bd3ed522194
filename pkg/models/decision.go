package models

import "fmt"

// Decision is the closed set of per-line matching outcomes.
type Decision string

const (
	DecisionAutoMatch             Decision = "AUTO_MATCH"
	DecisionAutoMatchWithSampling Decision = "AUTO_MATCH_WITH_SAMPLING_REVIEW"
	DecisionReviewQueue           Decision = "REVIEW_QUEUE"
	DecisionNoMatch               Decision = "NO_MATCH"
	DecisionError                 Decision = "ERROR"
)

var decisions = map[Decision]struct{}{
	DecisionAutoMatch:             {},
	DecisionAutoMatchWithSampling: {},
	DecisionReviewQueue:           {},
	DecisionNoMatch:               {},
	DecisionError:                 {},
}

// ParseDecision rejects anything outside the closed set.
func ParseDecision(s string) (Decision, error) {
	d := Decision(s)
	if _, ok := decisions[d]; !ok {
		return "", fmt.Errorf("unknown decision %q", s)
	}
	return d, nil
}

func (d Decision) Valid() bool {
	_, ok := decisions[d]
	return ok
}

// CreatesMapping reports whether the decision links the supplier SKU immediately.
func (d Decision) CreatesMapping() bool {
	return d == DecisionAutoMatch || d == DecisionAutoMatchWithSampling
}

// NeedsAdjudication reports whether the decision goes to the human review queue.
func (d Decision) NeedsAdjudication() bool {
	return d == DecisionReviewQueue || d == DecisionNoMatch
}

// LineStatus maps a decision onto the terminal line status it produces.
func (d Decision) LineStatus() (LineStatus, error) {
	switch d {
	case DecisionAutoMatch:
		return LineStatusAutoMatched, nil
	case DecisionAutoMatchWithSampling:
		return LineStatusSamplingReview, nil
	case DecisionReviewQueue:
		return LineStatusNeedsReview, nil
	case DecisionNoMatch:
		return LineStatusNoMatch, nil
	case DecisionError:
		return LineStatusError, nil
	default:
		return "", fmt.Errorf("unknown decision %q", string(d))
	}
}

// MatchMethod records how a line was resolved.
type MatchMethod string

const (
	MatchMethodIdentifierExact MatchMethod = "identifier_exact"
	MatchMethodFuzzyText       MatchMethod = "fuzzy_text"
	MatchMethodNone            MatchMethod = "none"
)

type GuardrailCode string

const (
	GuardrailVintageMismatch  GuardrailCode = "vintage_mismatch"
	GuardrailABVMismatch      GuardrailCode = "abv_mismatch"
	GuardrailPackTypeMismatch GuardrailCode = "pack_type_mismatch"
	GuardrailPackSizeMismatch GuardrailCode = "pack_size_mismatch"
	GuardrailVolumeMismatch   GuardrailCode = "volume_mismatch"
)

type GuardrailFailure struct {
	Code   GuardrailCode `json:"code"`
	Detail string        `json:"detail"`
}

// Candidate is one scored catalog product for a line.
type Candidate struct {
	ProductID         string             `json:"product_id"`
	FamilyID          string             `json:"family_id,omitempty"`
	Producer          string             `json:"producer"`
	Name              string             `json:"name"`
	Vintage           *int               `json:"vintage,omitempty"`
	VolumeML          *int               `json:"volume_ml,omitempty"`
	Score             float64            `json:"score"`
	NameSimilarity    float64            `json:"name_similarity"`
	FieldScores       map[string]float64 `json:"field_scores,omitempty"`
	Reasons           []string           `json:"reasons"`
	GuardrailFailures []GuardrailFailure `json:"guardrail_failures,omitempty"`
}

// MatchResult is everything the pipeline decided for one line, before persistence.
type MatchResult struct {
	Decision          Decision           `json:"decision"`
	Method            MatchMethod        `json:"method"`
	Score             float64            `json:"score"`
	Selected          *Candidate         `json:"selected,omitempty"`
	Candidates        []Candidate        `json:"candidates"`
	GuardrailFailures []GuardrailFailure `json:"guardrail_failures,omitempty"`
	Reasons           []string           `json:"reasons"`
	AuditSampled      bool               `json:"audit_sampled"`
}
