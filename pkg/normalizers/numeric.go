package normalizers

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Ramsey-B/vine/pkg/models"
)

const (
	MinVintage = 1900
	MaxVintage = 2100
)

var ErrUnparseable = errors.New("unparseable value")

var nonVintage = map[string]bool{
	"nv": true, "n v": true, "non vintage": true, "nonvintage": true, "sa": true, "s a": true, "ej arg": true,
}

// ParseVintage returns nil for blank or non-vintage markers. "'15" reads as
// 2015. A range such as "2015/2016" names more than one vintage and is an
// error.
func ParseVintage(raw string) (*int, error) {
	s := FoldText(raw)
	if s == "" || nonVintage[s] {
		return nil, nil
	}

	fields := strings.Fields(s)
	if len(fields) > 1 {
		years := 0
		for _, f := range fields {
			if y, err := strconv.Atoi(f); err == nil && y >= MinVintage && y <= MaxVintage {
				years++
			}
		}
		if years > 1 {
			return nil, fmt.Errorf("%w: vintage %q names multiple vintages", ErrUnparseable, raw)
		}
		return nil, fmt.Errorf("%w: vintage %q", ErrUnparseable, raw)
	}

	y, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("%w: vintage %q", ErrUnparseable, raw)
	}
	if len(fields[0]) == 2 && shortYear(raw) {
		y = expandShortYear(y)
	}
	if y < MinVintage || y > MaxVintage {
		return nil, fmt.Errorf("%w: vintage %d out of range", ErrUnparseable, y)
	}
	return &y, nil
}

// shortYear reports an apostrophe-abbreviated year like '15.
func shortYear(raw string) bool {
	raw = strings.TrimSpace(raw)
	return strings.HasPrefix(raw, "'") || strings.HasPrefix(raw, "’")
}

// expandShortYear reads 00-50 as 20xx and 51-99 as 19xx.
func expandShortYear(yy int) int {
	if yy <= 50 {
		return 2000 + yy
	}
	return 1900 + yy
}

var volumePattern = regexp.MustCompile(`^(?:(\d+)\s*x\s*)?(\d+(?:\.\d+)?)\s*(ml|cl|dl|l|ltr|liter|litre|liters|litres)?$`)

var volumeFactor = map[string]float64{
	"ml": 1, "cl": 10, "dl": 100,
	"l": 1000, "ltr": 1000, "liter": 1000, "litre": 1000, "liters": 1000, "litres": 1000,
}

// ParseVolumeML parses "750ml", "75 cl", "0,75 l", "6x75cl" or a bare number
// into millilitres per unit. Bare numbers up to 5 are litres, above 5 up to
// 150 are centilitres and above 150 are millilitres.
func ParseVolumeML(raw string) (*int, error) {
	ml, _, err := parseVolume(raw)
	return ml, err
}

func parseVolume(raw string) (*int, *int, error) {
	s := strings.ReplaceAll(FoldText(raw), " ", "")
	if s == "" {
		return nil, nil, nil
	}
	m := volumePattern.FindStringSubmatch(s)
	if m == nil {
		return nil, nil, fmt.Errorf("%w: volume %q", ErrUnparseable, raw)
	}

	n, err := strconv.ParseFloat(m[2], 64)
	if err != nil || n <= 0 {
		return nil, nil, fmt.Errorf("%w: volume %q", ErrUnparseable, raw)
	}

	factor, ok := volumeFactor[m[3]]
	if !ok {
		switch {
		case n <= 5:
			factor = 1000
		case n <= 150:
			factor = 10
		default:
			factor = 1
		}
	}

	ml := int(math.Round(n * factor))
	var units *int
	if m[1] != "" {
		u, err := strconv.Atoi(m[1])
		if err == nil && u > 0 {
			units = &u
		}
	}
	return &ml, units, nil
}

// abvWords are label words around an ABV figure, as in "alc. 13% vol" or
// "ABV 13.5%".
var abvWords = map[string]bool{
	"alc": true, "abv": true, "vol": true, "alcohol": true, "volume": true, "by": true,
}

// ParseABV parses "13.5%", "13,5 % vol", "alc. 13%", "ABV 13.5%" or "13.5".
func ParseABV(raw string) (*float64, error) {
	s := FoldText(raw)
	if s == "" {
		return nil, nil
	}

	var number string
	for _, f := range strings.Fields(s) {
		if abvWords[f] {
			continue
		}
		if number != "" {
			return nil, fmt.Errorf("%w: abv %q", ErrUnparseable, raw)
		}
		number = f
	}
	if number == "" {
		return nil, fmt.Errorf("%w: abv %q", ErrUnparseable, raw)
	}

	v, err := strconv.ParseFloat(number, 64)
	if err != nil || v < 0 || v > 100 {
		return nil, fmt.Errorf("%w: abv %q", ErrUnparseable, raw)
	}
	return &v, nil
}

var packAliases = map[string]models.PackType{
	"single": models.PackTypeSingle, "bottle": models.PackTypeSingle, "btl": models.PackTypeSingle,
	"each": models.PackTypeSingle, "ea": models.PackTypeSingle, "unit": models.PackTypeSingle,
	"flaska": models.PackTypeSingle, "st": models.PackTypeSingle, "styck": models.PackTypeSingle,
	"case": models.PackTypeCase, "cs": models.PackTypeCase, "box": models.PackTypeCase,
	"carton": models.PackTypeCase, "kartong": models.PackTypeCase, "lada": models.PackTypeCase,
	"ctn": models.PackTypeCase,
}

var casePattern = regexp.MustCompile(`(?:^|\s)(?:case|cs|box|carton|kartong|lada|ctn)?\s*(?:of\s*)?(\d+)\s*(?:x|st|pack|pk|btl|bottles)?(?:\s|$)`)

// ParsePack normalizes a pack type and its units per case. The volume field is
// consulted for "6x75cl" style values. An unrecognized non-empty pack type is
// an error; blank means unknown.
func ParsePack(packType, volume string) (models.PackType, *int, error) {
	_, volUnits, _ := parseVolume(volume)

	s := FoldText(packType)
	if s == "" {
		if volUnits != nil && *volUnits > 1 {
			return models.PackTypeCase, volUnits, nil
		}
		return "", nil, nil
	}

	if pt, ok := packAliases[s]; ok {
		if pt == models.PackTypeCase {
			return pt, volUnits, nil
		}
		return pt, nil, nil
	}

	// "case 6", "6 x", "12 pack", "case of 6"
	for word, pt := range packAliases {
		if pt != models.PackTypeCase || !strings.Contains(s, word) {
			continue
		}
		if m := casePattern.FindStringSubmatch(s); m != nil {
			if u, err := strconv.Atoi(m[1]); err == nil && u > 0 {
				return models.PackTypeCase, &u, nil
			}
		}
		return models.PackTypeCase, volUnits, nil
	}

	if m := casePattern.FindStringSubmatch(s); m != nil {
		if u, err := strconv.Atoi(m[1]); err == nil {
			if u == 1 {
				return models.PackTypeSingle, nil, nil
			}
			if u > 1 {
				return models.PackTypeCase, &u, nil
			}
		}
	}

	return "", nil, fmt.Errorf("%w: pack type %q", ErrUnparseable, packType)
}
