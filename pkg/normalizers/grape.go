package normalizers

import (
	"regexp"
	"sort"
	"strings"
)

var grapeAliases = map[string]string{
	"shiraz":            "syrah",
	"pinot grigio":      "pinot gris",
	"grauburgunder":     "pinot gris",
	"spatburgunder":     "pinot noir",
	"pinot nero":        "pinot noir",
	"garnacha":          "grenache",
	"cannonau":          "grenache",
	"tinta roriz":       "tempranillo",
	"tinto fino":        "tempranillo",
	"aragonez":          "tempranillo",
	"monastrell":        "mourvedre",
	"mataro":            "mourvedre",
	"primitivo":         "zinfandel",
	"cab sauv":          "cabernet sauvignon",
	"cabernet":          "cabernet sauvignon",
	"sauv blanc":        "sauvignon blanc",
	"weissburgunder":    "pinot blanc",
	"pinot bianco":      "pinot blanc",
	"cot":               "malbec",
	"sangiovese grosso": "sangiovese",
	"brunello":          "sangiovese",
	"prugnolo gentile":  "sangiovese",
}

var grapeSeparators = regexp.MustCompile(`\s*(?:[,/&+;]|\band\b|\boch\b|\bund\b|\by\b|\bet\b)\s*`)

var grapePercent = regexp.MustCompile(`\b\d+(?:\.\d+)?\s*%?`)

// NormalizeGrapes splits a blend description into canonical variety names,
// sorted and de-duplicated. "Shiraz/Cabernet 60%" yields [cabernet sauvignon syrah].
func NormalizeGrapes(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	lowered := strings.ToLower(raw)
	parts := grapeSeparators.Split(lowered, -1)

	seen := map[string]bool{}
	var out []string
	for _, part := range parts {
		g := FoldText(grapePercent.ReplaceAllString(part, " "))
		if g == "" {
			continue
		}
		if canonical, ok := grapeAliases[g]; ok {
			g = canonical
		}
		if !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}
	sort.Strings(out)
	return out
}

// Jaccard is |a ∩ b| / |a ∪ b| over string sets.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	set := make(map[string]int, len(a)+len(b))
	for _, v := range a {
		set[v] |= 1
	}
	for _, v := range b {
		set[v] |= 2
	}
	inter := 0
	for _, mask := range set {
		if mask == 3 {
			inter++
		}
	}
	return float64(inter) / float64(len(set))
}
