package matching

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/normalizers"
	"github.com/Ramsey-B/vine/pkg/tracing"
)

const (
	fieldName     = "name"
	fieldProducer = "producer"
	fieldVintage  = "vintage"
	fieldVolume   = "volume"
	fieldRegion   = "region"
	fieldGrape    = "grape"
)

// Scored is a ranked candidate together with what guardrails need.
type Scored struct {
	models.Candidate
	Product models.CatalogProduct
	Wine    normalizers.Wine
}

// FuzzyMatcher scores blocked catalog candidates against a line.
type FuzzyMatcher struct {
	catalog Catalog
	scorer  *Scorer
	cfg     Config
}

func NewFuzzyMatcher(catalog Catalog, scorer *Scorer, cfg Config) *FuzzyMatcher {
	return &FuzzyMatcher{catalog: catalog, scorer: scorer, cfg: cfg}
}

// Rank returns at most TopN candidates, best first, with deterministic ties.
func (m *FuzzyMatcher) Rank(ctx context.Context, line normalizers.Wine) ([]Scored, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.FuzzyMatcher.Rank")
	defer span.End()

	if !line.HasText() {
		return nil, nil
	}

	keys := KeysFor(line, m.scorer)
	if keys.Empty() {
		return nil, nil
	}

	products, err := m.catalog.FindCandidates(ctx, keys, m.cfg.CandidateCap)
	if err != nil {
		return nil, errors.Wrap(err, "candidate lookup failed")
	}
	tracing.SetAttributes(ctx, attribute.Int("matching.blocked_candidates", len(products)))

	scored := make([]Scored, 0, len(products))
	for _, p := range products {
		cw := normalizers.NormalizeProduct(p)
		scored = append(scored, Scored{
			Candidate: m.Score(line, cw, p),
			Product:   p,
			Wine:      cw,
		})
	}

	sortScored(scored, line.Vintage)
	if len(scored) > m.cfg.TopN {
		scored = scored[:m.cfg.TopN]
	}
	return scored, nil
}

func sortScored(scored []Scored, lineVintage *int) {
	vintageHit := func(s Scored) bool {
		return lineVintage != nil && s.Wine.Vintage != nil && *s.Wine.Vintage == *lineVintage
	}
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.NameSimilarity != b.NameSimilarity {
			return a.NameSimilarity > b.NameSimilarity
		}
		if va, vb := vintageHit(a), vintageHit(b); va != vb {
			return va
		}
		return a.ProductID < b.ProductID
	})
}

// Score compares a normalized line with one normalized catalog product.
func (m *FuzzyMatcher) Score(line, cand normalizers.Wine, p models.CatalogProduct) models.Candidate {
	scores := map[string]float64{}
	var reasons []string

	nameSim := m.nameSimilarity(line, cand)
	if len(line.NameTokens) > 0 && (len(cand.NameTokens) > 0 || len(cand.ProducerTokens) > 0) {
		scores[fieldName] = nameSim
		reasons = append(reasons, fmt.Sprintf("name %s: %s", pct(nameSim),
			renderEdit(strings.Join(line.NameTokens, " "), strings.Join(cand.NameTokens, " "))))
	} else {
		reasons = append(reasons, "name not compared")
	}

	if line.Producer != "" && cand.Producer != "" {
		sim := m.scorer.JaroWinkler(line.Producer, cand.Producer)
		scores[fieldProducer] = sim
		if sim == 1 {
			reasons = append(reasons, "producer matches")
		} else {
			reasons = append(reasons, fmt.Sprintf("producer %s: %s", pct(sim), renderEdit(line.Producer, cand.Producer)))
		}
	}

	switch {
	case line.Vintage == nil && cand.Vintage == nil:
		scores[fieldVintage] = 1
		reasons = append(reasons, "non-vintage on both sides")
	case line.Vintage == nil:
		scores[fieldVintage] = 0.5
		reasons = append(reasons, fmt.Sprintf("vintage absent on line, catalog %d", *cand.Vintage))
	case cand.Vintage == nil:
		scores[fieldVintage] = 0.5
		reasons = append(reasons, fmt.Sprintf("vintage %d, absent in catalog", *line.Vintage))
	case *line.Vintage == *cand.Vintage:
		scores[fieldVintage] = 1
		reasons = append(reasons, fmt.Sprintf("vintage %d matches", *line.Vintage))
	default:
		scores[fieldVintage] = 0
		reasons = append(reasons, fmt.Sprintf("vintage %d vs %d", *line.Vintage, *cand.Vintage))
	}

	if line.VolumeML != nil && cand.VolumeML != nil {
		if abs(*line.VolumeML-*cand.VolumeML) <= m.cfg.VolumeToleranceML {
			scores[fieldVolume] = 1
			reasons = append(reasons, fmt.Sprintf("volume %dml matches", *cand.VolumeML))
		} else {
			scores[fieldVolume] = 0
			reasons = append(reasons, fmt.Sprintf("volume %dml vs %dml", *line.VolumeML, *cand.VolumeML))
		}
	}

	if line.Region != "" && cand.Region != "" {
		sim := m.scorer.JaroWinkler(line.Region, cand.Region)
		scores[fieldRegion] = sim
		reasons = append(reasons, fmt.Sprintf("region %s", pct(sim)))
	}

	if len(line.Grapes) > 0 && len(cand.Grapes) > 0 {
		sim := normalizers.Jaccard(line.Grapes, cand.Grapes)
		scores[fieldGrape] = sim
		reasons = append(reasons, fmt.Sprintf("grapes %s", pct(sim)))
	}

	score := Round2(100 * m.scorer.WeightedScore(scores, m.cfg.Weights.asMap()))
	for k, v := range scores {
		scores[k] = math.Round(v*10000) / 10000
	}

	return models.Candidate{
		ProductID:      p.ID,
		FamilyID:       p.FamilyID,
		Producer:       p.Producer,
		Name:           p.Name,
		Vintage:        cand.Vintage,
		VolumeML:       cand.VolumeML,
		Score:          score,
		NameSimilarity: nameSim,
		FieldScores:    scores,
		Reasons:        reasons,
	}
}

// nameSimilarity takes the best of the plain name comparison and comparisons
// that fold the producer into either side, since suppliers often repeat the
// producer in the product name.
func (m *FuzzyMatcher) nameSimilarity(line, cand normalizers.Wine) float64 {
	if len(line.NameTokens) == 0 {
		return 0
	}
	floor := m.cfg.NameTokenFloor
	best := m.scorer.TokenSimilarity(line.NameTokens, cand.NameTokens, floor)

	candFull := append(append([]string{}, cand.ProducerTokens...), cand.NameTokens...)
	if sim := m.scorer.TokenSimilarity(line.NameTokens, candFull, floor); sim > best {
		best = sim
	}
	if len(line.ProducerTokens) > 0 {
		lineFull := append(append([]string{}, line.ProducerTokens...), line.NameTokens...)
		if sim := m.scorer.TokenSimilarity(lineFull, candFull, floor); sim > best {
			best = sim
		}
	}
	return best
}

func pct(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
