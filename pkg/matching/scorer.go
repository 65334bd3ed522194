package matching

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// Scorer provides string and value comparison algorithms. All methods work on
// runes so folded non-ASCII text compares correctly.
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// JaroWinkler returns a similarity between 0.0 and 1.0.
func (s *Scorer) JaroWinkler(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	jaro := jaro(ra, rb)

	prefix := 0
	for i := 0; i < len(ra) && i < len(rb) && i < 4; i++ {
		if ra[i] != rb[i] {
			break
		}
		prefix++
	}
	return jaro + float64(prefix)*0.1*(1.0-jaro)
}

func jaro(a, b []rune) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	matchDist := max(len(a), len(b))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(a))
	bMatches := make([]bool, len(b))
	matches := 0
	for i := range a {
		start := max(0, i-matchDist)
		end := min(len(b), i+matchDist+1)
		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0.0
	}

	transpositions := 0
	k := 0
	for i := range a {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2
	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}

// Soundex encodes a folded token. Non-letters are skipped; an input with no
// letters encodes to "".
func (s *Scorer) Soundex(str string) string {
	var first rune
	var code strings.Builder
	prev := byte('0')
	for _, r := range strings.ToUpper(str) {
		if !unicode.IsLetter(r) {
			continue
		}
		c := soundexCode(r)
		if first == 0 {
			first = r
			prev = c
			continue
		}
		// H and W do not separate equal codes
		if r == 'H' || r == 'W' {
			continue
		}
		if c != '0' && c != prev && code.Len() < 3 {
			code.WriteByte(c)
		}
		prev = c
	}
	if first == 0 {
		return ""
	}
	out := string(first) + code.String()
	for len([]rune(out)) < 4 {
		out += "0"
	}
	return out
}

func soundexCode(char rune) byte {
	switch char {
	case 'B', 'F', 'P', 'V':
		return '1'
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return '2'
	case 'D', 'T':
		return '3'
	case 'L':
		return '4'
	case 'M', 'N':
		return '5'
	case 'R':
		return '6'
	default:
		return '0'
	}
}

// TokenSimilarity is a symmetric soft token overlap: every token is credited
// with its best Jaro-Winkler match on the other side when that match reaches
// floor, and the credits are averaged over both token lists.
func (s *Scorer) TokenSimilarity(a, b []string, floor float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	best := func(tok string, others []string) float64 {
		top := 0.0
		for _, o := range others {
			if sim := s.JaroWinkler(tok, o); sim > top {
				top = sim
			}
		}
		if top < floor {
			return 0
		}
		return top
	}

	sum := 0.0
	for _, tok := range a {
		sum += best(tok, b)
	}
	for _, tok := range b {
		sum += best(tok, a)
	}
	return sum / float64(len(a)+len(b))
}

// WeightedScore is the weighted mean of the scored fields. Fields are summed
// in key order so the result does not depend on map iteration.
func (s *Scorer) WeightedScore(scores map[string]float64, weights map[string]float64) float64 {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var total, sum float64
	for _, k := range keys {
		w, ok := weights[k]
		if !ok {
			continue
		}
		sum += scores[k] * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// Round2 rounds to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
