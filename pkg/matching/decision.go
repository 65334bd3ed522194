package matching

import "github.com/Ramsey-B/vine/pkg/models"

// DecisionInput is everything Decide looks at.
type DecisionInput struct {
	Score             float64
	GuardrailFailures []models.GuardrailFailure
	CandidateCount    int
	// RunnerUpScore is the second best candidate's score, nil with fewer than two.
	RunnerUpScore   *float64
	IdentifierExact bool
}

// Decide maps a scored line onto a decision. It is pure; the first rule that
// applies wins:
//
//	no candidate or score below Review  -> NO_MATCH
//	any guardrail failure               -> REVIEW_QUEUE
//	runner-up within AmbiguityMargin    -> REVIEW_QUEUE (not for identifier hits)
//	score >= Auto                       -> AUTO_MATCH
//	score >= Sampling                   -> AUTO_MATCH_WITH_SAMPLING_REVIEW
//	otherwise                           -> REVIEW_QUEUE
func Decide(in DecisionInput, t Thresholds) models.Decision {
	if in.CandidateCount == 0 || in.Score < t.Review {
		return models.DecisionNoMatch
	}
	if len(in.GuardrailFailures) > 0 {
		return models.DecisionReviewQueue
	}
	if !in.IdentifierExact && in.RunnerUpScore != nil && in.Score-*in.RunnerUpScore < t.AmbiguityMargin {
		return models.DecisionReviewQueue
	}
	if in.Score >= t.Auto {
		return models.DecisionAutoMatch
	}
	if in.Score >= t.Sampling {
		return models.DecisionAutoMatchWithSampling
	}
	return models.DecisionReviewQueue
}
