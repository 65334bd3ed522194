package matching

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// GuardrailPolicy decides how guardrail failures interact with ranking.
type GuardrailPolicy string

const (
	// GuardrailPolicyTopOnly lets the top ranked candidate's guardrails decide.
	GuardrailPolicyTopOnly GuardrailPolicy = "top_only"
	// GuardrailPolicyNextPassing discards failing candidates and decides on the
	// best passing one.
	GuardrailPolicyNextPassing GuardrailPolicy = "next_passing"
)

// Thresholds are the calibratable decision cutoffs on the 0-100 score.
type Thresholds struct {
	Auto            float64 `yaml:"auto" json:"auto"`
	Sampling        float64 `yaml:"sampling" json:"sampling"`
	Review          float64 `yaml:"review" json:"review"`
	AmbiguityMargin float64 `yaml:"ambiguity_margin" json:"ambiguity_margin"`
}

func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{"auto": t.Auto, "sampling": t.Sampling, "review": t.Review} {
		if v < 0 || v > 100 {
			return fmt.Errorf("threshold %s must be within 0..100, got %v", name, v)
		}
	}
	if !(t.Review <= t.Sampling && t.Sampling <= t.Auto) {
		return fmt.Errorf("thresholds must satisfy review <= sampling <= auto, got %v/%v/%v", t.Review, t.Sampling, t.Auto)
	}
	if t.AmbiguityMargin < 0 {
		return fmt.Errorf("ambiguity margin must not be negative, got %v", t.AmbiguityMargin)
	}
	return nil
}

// Weights of each scored field. Missing fields drop out of the mean.
type Weights struct {
	Name     float64 `yaml:"name" json:"name"`
	Producer float64 `yaml:"producer" json:"producer"`
	Vintage  float64 `yaml:"vintage" json:"vintage"`
	Volume   float64 `yaml:"volume" json:"volume"`
	Region   float64 `yaml:"region" json:"region"`
	Grape    float64 `yaml:"grape" json:"grape"`
}

func (w Weights) asMap() map[string]float64 {
	return map[string]float64{
		fieldName:     w.Name,
		fieldProducer: w.Producer,
		fieldVintage:  w.Vintage,
		fieldVolume:   w.Volume,
		fieldRegion:   w.Region,
		fieldGrape:    w.Grape,
	}
}

// Config contains configuration for the matching service.
type Config struct {
	Thresholds        Thresholds      `yaml:"thresholds"`
	Weights           Weights         `yaml:"weights"`
	SamplingRate      float64         `yaml:"sampling_rate"`
	GuardrailPolicy   GuardrailPolicy `yaml:"guardrail_policy"`
	ABVTolerance      float64         `yaml:"abv_tolerance"`
	VolumeToleranceML int             `yaml:"volume_tolerance_ml"`
	TopN              int             `yaml:"top_n"`
	CandidateCap      int             `yaml:"candidate_cap"`
	// NameTokenFloor is the minimum token similarity credited by name scoring.
	NameTokenFloor float64 `yaml:"name_token_floor"`
	// RequireSKUForAuto downgrades auto decisions on lines without a SKU,
	// since there is no key to map them under.
	RequireSKUForAuto bool `yaml:"require_sku_for_auto"`
}

// DefaultConfig returns the uncalibrated defaults.
func DefaultConfig() Config {
	return Config{
		Thresholds: Thresholds{
			Auto:            92,
			Sampling:        85,
			Review:          60,
			AmbiguityMargin: 3,
		},
		Weights: Weights{
			Name:     0.45,
			Producer: 0.20,
			Vintage:  0.10,
			Volume:   0.10,
			Region:   0.08,
			Grape:    0.07,
		},
		SamplingRate:      0.25,
		GuardrailPolicy:   GuardrailPolicyTopOnly,
		ABVTolerance:      0.5,
		VolumeToleranceML: 0,
		TopN:              5,
		CandidateCap:      200,
		NameTokenFloor:    0.75,
		RequireSKUForAuto: true,
	}
}

func (c Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling rate must be within 0..1, got %v", c.SamplingRate)
	}
	switch c.GuardrailPolicy {
	case GuardrailPolicyTopOnly, GuardrailPolicyNextPassing:
	default:
		return fmt.Errorf("unknown guardrail policy %q", c.GuardrailPolicy)
	}
	if c.TopN < 1 || c.CandidateCap < c.TopN {
		return fmt.Errorf("top_n must be >= 1 and candidate_cap >= top_n, got %d/%d", c.TopN, c.CandidateCap)
	}
	if c.ABVTolerance < 0 || c.VolumeToleranceML < 0 {
		return fmt.Errorf("tolerances must not be negative")
	}
	total := 0.0
	for _, w := range c.Weights.asMap() {
		if w < 0 {
			return fmt.Errorf("weights must not be negative")
		}
		total += w
	}
	if total == 0 {
		return fmt.Errorf("at least one weight must be positive")
	}
	return nil
}

// LoadCalibration overlays a YAML calibration file onto base. Keys absent from
// the file keep their base value.
func LoadCalibration(path string, base Config) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, errors.Wrapf(err, "failed to read calibration file %s", path)
	}

	cfg := base
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return base, errors.Wrapf(err, "failed to parse calibration file %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return base, errors.Wrapf(err, "invalid calibration file %s", path)
	}
	return cfg, nil
}
