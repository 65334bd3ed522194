package matching

import (
	"strconv"

	"github.com/Ramsey-B/vine/pkg/fingerprint"
)

// Sampler picks sampling-band lines for audit. Selection depends only on the
// import and line number, so re-runs select the same lines.
type Sampler struct {
	rate float64
}

func NewSampler(rate float64) Sampler {
	return Sampler{rate: rate}
}

func (s Sampler) Selected(importID string, lineNumber int) bool {
	if s.rate <= 0 {
		return false
	}
	if s.rate >= 1 {
		return true
	}
	return fingerprint.Bucket(importID, strconv.Itoa(lineNumber)) < s.rate
}
