package normalizers

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// letters that NFD does not decompose into base + mark
var ligatures = strings.NewReplacer(
	"ø", "o", "Ø", "o",
	"æ", "ae", "Æ", "ae",
	"œ", "oe", "Œ", "oe",
	"ß", "ss",
	"ł", "l", "Ł", "l",
	"đ", "d", "Đ", "d",
)

// FoldText lowercases, strips diacritics, turns punctuation into spaces and
// collapses whitespace. "Château d'Yquem" becomes "chateau d yquem".
func FoldText(s string) string {
	if s == "" {
		return ""
	}

	// transformers carry state; build one per call
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, ligatures.Replace(s))
	if err != nil {
		stripped = s
	}

	var b strings.Builder
	b.Grow(len(stripped))
	space := true
	for _, r := range strings.ToLower(stripped) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		// keep decimal separators inside numbers for volume tokens
		if (r == '.' || r == ',') && !space {
			b.WriteRune(r)
			continue
		}
		if !space {
			b.WriteRune(' ')
			space = true
		}
	}

	out := strings.TrimSpace(b.String())
	return cleanSeparators(out)
}

// cleanSeparators drops '.' and ',' that are not between two digits.
func cleanSeparators(s string) string {
	if !strings.ContainsAny(s, ".,") {
		return s
	}
	rs := []rune(s)
	var b strings.Builder
	for i, r := range rs {
		if r == '.' || r == ',' {
			if i > 0 && i < len(rs)-1 && unicode.IsDigit(rs[i-1]) && unicode.IsDigit(rs[i+1]) {
				b.WriteRune('.')
				continue
			}
			if i > 0 && rs[i-1] != ' ' && i < len(rs)-1 && rs[i+1] != ' ' {
				b.WriteRune(' ')
			}
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens splits folded text into tokens.
func Tokens(s string) []string {
	return strings.Fields(FoldText(s))
}

var (
	yearToken   = regexp.MustCompile(`^(19|20)\d{2}$`)
	volumeToken = regexp.MustCompile(`^(\d+x)?\d+(\.\d+)?(ml|cl|dl|l|ltr|liter|litre)$`)
	unitToken   = map[string]bool{"ml": true, "cl": true, "dl": true, "l": true, "ltr": true, "nv": true}
)

// NameTokens returns the descriptive tokens of a product name with vintage and
// volume tokens removed.
func NameTokens(s string) []string {
	tokens := Tokens(s)
	out := tokens[:0]
	for i, tok := range tokens {
		if yearToken.MatchString(tok) || volumeToken.MatchString(tok) {
			continue
		}
		// "75 cl" split across two tokens
		if unitToken[tok] {
			continue
		}
		if isNumber(tok) && i+1 < len(tokens) && unitToken[tokens[i+1]] && tokens[i+1] != "nv" {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// ExtractVintage returns the last plausible year embedded in free text.
func ExtractVintage(s string) *int {
	var found *int
	for _, tok := range Tokens(s) {
		if !yearToken.MatchString(tok) {
			continue
		}
		y, err := strconv.Atoi(tok)
		if err != nil || y < MinVintage || y > MaxVintage {
			continue
		}
		year := y
		found = &year
	}
	return found
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// StopWords are frequent wine vocabulary that must not drive candidate blocking.
var StopWords = map[string]bool{
	"chateau": true, "domaine": true, "dom": true, "bodegas": true, "bodega": true,
	"tenuta": true, "weingut": true, "cantina": true, "cave": true, "maison": true,
	"estate": true, "winery": true, "vineyards": true, "cellars": true,
	"the": true, "and": true, "och": true, "und": true, "et": true, "y": true,
	"de": true, "des": true, "du": true, "la": true, "le": true, "les": true,
	"di": true, "del": true, "della": true, "dei": true, "von": true, "van": true,
	"wine": true, "vin": true, "vino": true, "vinho": true, "wein": true,
	"red": true, "white": true, "rose": true, "rouge": true, "blanc": true,
	"rosso": true, "bianco": true, "tinto": true, "blanco": true,
	"reserve": true, "reserva": true, "riserva": true, "cuvee": true, "grand": true, "cru": true,
	"docg": true, "doc": true, "aoc": true, "aop": true, "igt": true, "do": true, "doca": true,
}

// Significant reports whether a token is useful as a blocking key.
func Significant(tok string) bool {
	return len([]rune(tok)) >= 3 && !StopWords[tok] && !isNumber(tok)
}
