package normalizers

import "strings"

// countryAliases maps folded country names, including Swedish and local
// spellings, to ISO 3166 alpha-2 codes.
var countryAliases = map[string]string{}

func init() {
	for code, names := range map[string][]string{
		"FR": {"france", "frankrike", "frankreich", "fra"},
		"IT": {"italy", "italien", "italia", "ita"},
		"ES": {"spain", "spanien", "espana", "esp"},
		"PT": {"portugal", "prt"},
		"DE": {"germany", "tyskland", "deutschland", "deu", "ger"},
		"AT": {"austria", "osterrike", "osterreich", "aut"},
		"US": {"usa", "united states", "united states of america", "forenta staterna", "america"},
		"AU": {"australia", "australien", "aus"},
		"NZ": {"new zealand", "nya zeeland", "nzl"},
		"CL": {"chile", "chl"},
		"AR": {"argentina", "argentinien", "arg"},
		"ZA": {"south africa", "sydafrika", "rsa", "zaf"},
		"HU": {"hungary", "ungern", "hun"},
		"GR": {"greece", "grekland", "grc"},
		"SE": {"sweden", "sverige", "swe"},
		"GB": {"united kingdom", "england", "storbritannien", "uk", "gbr"},
		"LB": {"lebanon", "libanon", "lbn"},
	} {
		countryAliases[strings.ToLower(code)] = code
		for _, name := range names {
			countryAliases[name] = code
		}
	}
}

// NormalizeCountry returns an ISO code for known countries and the folded,
// upper-cased input otherwise, so unknown values still compare consistently.
func NormalizeCountry(raw string) string {
	s := FoldText(raw)
	if s == "" {
		return ""
	}
	if code, ok := countryAliases[s]; ok {
		return code
	}
	return strings.ToUpper(s)
}

// CountriesCompatible is true when the countries are equal or either is unknown.
func CountriesCompatible(a, b string) bool {
	return a == "" || b == "" || a == b
}
