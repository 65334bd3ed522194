// Package matching resolves supplier import lines against the master catalog:
// identifier lookup first, then blocked fuzzy scoring, guardrails and a pure
// decision function.
package matching

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/normalizers"
	"github.com/Ramsey-B/vine/pkg/tracing"
)

// Service runs the full per-line pipeline. It only reads; persistence is the
// caller's job.
type Service struct {
	log        ectologger.Logger
	catalog    Catalog
	resolver   *IdentifierResolver
	fuzzy      *FuzzyMatcher
	guardrails *GuardrailChecker
	sampler    Sampler
	validate   *validator.Validate
	cfg        Config
}

func NewService(log ectologger.Logger, catalog Catalog, mappings MappingLookup, cfg Config) *Service {
	scorer := NewScorer()
	return &Service{
		log:        log,
		catalog:    catalog,
		resolver:   NewIdentifierResolver(catalog, mappings),
		fuzzy:      NewFuzzyMatcher(catalog, scorer, cfg),
		guardrails: NewGuardrailChecker(cfg),
		sampler:    NewSampler(cfg.SamplingRate),
		validate:   validator.New(),
		cfg:        cfg,
	}
}

func (s *Service) Config() Config {
	return s.cfg
}

// Ping checks that the catalog can be read.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.catalog.Ping(ctx); err != nil {
		return errors.Wrap(models.ErrCatalogUnavailable, err.Error())
	}
	return nil
}

type lineInput struct {
	LineNumber  int    `validate:"gte=1"`
	Name        string `validate:"required_without_all=Producer BarcodeEach BarcodeCase SupplierSKU,max=500"`
	Producer    string `validate:"max=300"`
	BarcodeEach string `validate:"max=64"`
	BarcodeCase string `validate:"max=64"`
	SupplierSKU string `validate:"max=128"`
}

// Validate rejects lines that carry nothing to match on.
func (s *Service) Validate(line models.ImportLine) error {
	err := s.validate.Struct(lineInput{
		LineNumber:  line.LineNumber,
		Name:        line.Name,
		Producer:    line.Producer,
		BarcodeEach: line.BarcodeEach,
		BarcodeCase: line.BarcodeCase,
		SupplierSKU: line.SupplierSKU,
	})
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Errorf("%w: %s failed %s", models.ErrMalformedLine, verrs[0].Field(), verrs[0].Tag())
	}
	return fmt.Errorf("%w: %v", models.ErrMalformedLine, err)
}

// Match decides one line. Errors are line-level: malformed input or a failed
// catalog lookup.
func (s *Service) Match(ctx context.Context, supplierID, importID string, line models.ImportLine) (*models.MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.Match")
	defer span.End()

	if err := s.Validate(line); err != nil {
		return nil, err
	}

	w := normalizers.NormalizeLine(line)
	reasons := append([]string{}, w.Notes...)

	hit, notes, err := s.resolver.Resolve(ctx, supplierID, w)
	if err != nil {
		return nil, err
	}
	reasons = append(reasons, notes...)

	var result *models.MatchResult
	if hit != nil {
		result = s.decideIdentifier(w, hit)
	} else {
		ranked, err := s.fuzzy.Rank(ctx, w)
		if err != nil {
			return nil, err
		}
		result = s.decideFuzzy(w, ranked)
	}
	result.Reasons = append(reasons, result.Reasons...)

	if result.Decision.CreatesMapping() && w.SKU == "" && s.cfg.RequireSKUForAuto {
		result.Decision = models.DecisionReviewQueue
		result.Reasons = append(result.Reasons, "no supplier_sku to map under, sent to review")
	}

	if result.Decision == models.DecisionAutoMatchWithSampling && s.sampler.Selected(importID, line.LineNumber) {
		result.AuditSampled = true
		result.Reasons = append(result.Reasons, "selected for audit sample")
	}

	tracing.SetAttributes(ctx,
		attribute.String("matching.decision", string(result.Decision)),
		attribute.Float64("matching.score", result.Score),
	)
	s.log.WithContext(ctx).WithFields(map[string]any{
		"import_id":   importID,
		"line_number": line.LineNumber,
		"decision":    result.Decision,
		"method":      result.Method,
		"score":       result.Score,
	}).Debug("Matched import line")

	return result, nil
}

func (s *Service) decideIdentifier(w normalizers.Wine, hit *IdentifierHit) *models.MatchResult {
	failures := s.guardrails.Check(w, hit.Product)
	cw := normalizers.NormalizeProduct(hit.Product)
	cand := models.Candidate{
		ProductID:         hit.Product.ID,
		FamilyID:          hit.Product.FamilyID,
		Producer:          hit.Product.Producer,
		Name:              hit.Product.Name,
		Vintage:           cw.Vintage,
		VolumeML:          cw.VolumeML,
		Score:             100,
		NameSimilarity:    1,
		Reasons:           []string{hit.Reason},
		GuardrailFailures: failures,
	}

	decision := Decide(DecisionInput{
		Score:             100,
		GuardrailFailures: failures,
		CandidateCount:    1,
		IdentifierExact:   true,
	}, s.cfg.Thresholds)

	return &models.MatchResult{
		Decision:          decision,
		Method:            models.MatchMethodIdentifierExact,
		Score:             100,
		Selected:          &cand,
		Candidates:        []models.Candidate{cand},
		GuardrailFailures: failures,
		Reasons:           append([]string{hit.Reason}, failureReasons(failures)...),
	}
}

func (s *Service) decideFuzzy(w normalizers.Wine, ranked []Scored) *models.MatchResult {
	if len(ranked) == 0 {
		return &models.MatchResult{
			Decision:   models.DecisionNoMatch,
			Method:     models.MatchMethodNone,
			Candidates: []models.Candidate{},
			Reasons:    []string{"no catalog candidates share a blocking key"},
		}
	}

	candidates := make([]models.Candidate, len(ranked))
	passing := make([]int, 0, len(ranked))
	for i := range ranked {
		ranked[i].GuardrailFailures = s.guardrails.Check(w, ranked[i].Product)
		candidates[i] = ranked[i].Candidate
		if len(ranked[i].GuardrailFailures) == 0 {
			passing = append(passing, i)
		}
	}

	selected, runnerUp := 0, 1
	if s.cfg.GuardrailPolicy == GuardrailPolicyNextPassing && len(passing) > 0 {
		selected, runnerUp = passing[0], -1
		if len(passing) > 1 {
			runnerUp = passing[1]
		}
	}

	top := ranked[selected]
	in := DecisionInput{
		Score:             top.Score,
		GuardrailFailures: top.GuardrailFailures,
		CandidateCount:    len(ranked),
	}
	if runnerUp >= 0 && runnerUp < len(ranked) {
		score := ranked[runnerUp].Score
		in.RunnerUpScore = &score
	}
	decision := Decide(in, s.cfg.Thresholds)

	reasons := append([]string{}, top.Reasons...)
	if selected != 0 {
		reasons = append(reasons, fmt.Sprintf("%d higher ranked candidates failed guardrails", selected))
	}
	reasons = append(reasons, failureReasons(top.GuardrailFailures)...)
	if in.RunnerUpScore != nil && len(top.GuardrailFailures) == 0 && top.Score-*in.RunnerUpScore < s.cfg.Thresholds.AmbiguityMargin {
		reasons = append(reasons, fmt.Sprintf("ambiguous: runner-up %s scored %.2f", ranked[runnerUp].ProductID, *in.RunnerUpScore))
	}

	sel := candidates[selected]
	return &models.MatchResult{
		Decision:          decision,
		Method:            models.MatchMethodFuzzyText,
		Score:             top.Score,
		Selected:          &sel,
		Candidates:        candidates,
		GuardrailFailures: top.GuardrailFailures,
		Reasons:           reasons,
	}
}

func failureReasons(failures []models.GuardrailFailure) []string {
	out := make([]string, 0, len(failures))
	for _, f := range failures {
		out = append(out, fmt.Sprintf("guardrail %s: %s", f.Code, f.Detail))
	}
	return out
}
