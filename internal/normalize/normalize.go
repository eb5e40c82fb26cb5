package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	numericRegex    = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)
	postalRegex     = regexp.MustCompile(`\b(\d{5})\b`)
	nonAlnumRegex   = regexp.MustCompile(`[^a-z0-9]+`)
	accentStripping = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// legalTokens are organization legal-form and filler tokens removed when
// deriving the dedup key for a center name. Comparison happens after accent
// stripping and lowercasing.
var legalTokens = map[string]bool{
	"sarl": true, "sas": true, "sasu": true, "eurl": true, "sa": true,
	"snc": true, "sci": true, "scop": true, "scic": true, "gie": true,
	"association": true, "asso": true, "societe": true, "ste": true,
	"centre": true, "organisme": true, "institut": true, "ecole": true,
	"cfa": true, "greta": true, "formation": true, "formations": true,
	"de": true, "du": true, "des": true, "la": true, "le": true, "les": true,
	"et": true, "and": true, "d": true, "l": true,
}

// regionKeywords maps accent-stripped lowercase markers to canonical region
// names used by the export summary.
var regionKeywords = map[string]string{
	"ile-de-france":              "Île-de-France",
	"ile de france":              "Île-de-France",
	"auvergne-rhone-alpes":       "Auvergne-Rhône-Alpes",
	"nouvelle-aquitaine":         "Nouvelle-Aquitaine",
	"occitanie":                  "Occitanie",
	"hauts-de-france":            "Hauts-de-France",
	"grand est":                  "Grand Est",
	"provence-alpes-cote d'azur": "Provence-Alpes-Côte d'Azur",
	"bretagne":                   "Bretagne",
	"normandie":                  "Normandie",
	"pays de la loire":           "Pays de la Loire",
	"bourgogne-franche-comte":    "Bourgogne-Franche-Comté",
	"centre-val de loire":        "Centre-Val de Loire",
	"corse":                      "Corse",
}

// lookup resolves a dotted path inside a raw record.
func lookup(raw map[string]any, path string) any {
	cur := any(raw)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

// PickString returns the first candidate key whose value is a non-empty
// trimmed string. Key order encodes priority across known historical field
// names; keys may be dotted paths into nested objects.
func PickString(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := lookup(raw, key).(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// PickNumber returns the first candidate convertible to a finite number.
// String candidates are stripped of non-numeric characters and a decimal
// comma is converted to a period before parsing.
func PickNumber(raw map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		switch v := lookup(raw, key).(type) {
		case float64:
			if !math.IsInf(v, 0) && !math.IsNaN(v) {
				return v, true
			}
		case int:
			return float64(v), true
		case string:
			if n, ok := ParseNumber(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// ParseNumber coerces a locale-formatted string ("1 234,56 €") into a float.
func ParseNumber(s string) (float64, bool) {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	match := numericRegex.FindString(compact)
	if match == "" {
		return 0, false
	}
	match = strings.ReplaceAll(match, ",", ".")
	n, err := strconv.ParseFloat(match, 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

// Round2 rounds an amount to two decimals, the precision stored for prices.
func Round2(n float64) float64 {
	return math.Round(n*100) / 100
}

// RoundHours converts a free-text duration into rounded hours.
func RoundHours(s string) (int, bool) {
	n, ok := ParseNumber(s)
	if !ok {
		return 0, false
	}
	return int(math.Round(n)), true
}

// StripAccents removes diacritics, keeping base characters.
func StripAccents(s string) string {
	out, _, err := transform.String(accentStripping, s)
	if err != nil {
		return s
	}
	return out
}

// CenterKey derives the dedup key for a center name: lowercase,
// accent-stripped, legal-form tokens removed, non-alphanumerics collapsed to
// single spaces. When token removal would erase the whole string, the
// token-intact form is returned instead, so a key is never empty for a
// non-empty name.
func CenterKey(name string) string {
	base := nonAlnumRegex.ReplaceAllString(strings.ToLower(StripAccents(name)), " ")
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}

	var kept []string
	for _, tok := range strings.Fields(base) {
		if !legalTokens[tok] {
			kept = append(kept, tok)
		}
	}
	if len(kept) == 0 {
		return base
	}
	return strings.Join(kept, " ")
}

// Address holds the fields recognized inside a free-text address block.
type Address struct {
	PostalCode string
	City       string
	Region     string
	Country    string
}

// ParseAddress splits a free-text block on newlines and commas and assigns
// fields first-match-wins: a 5-digit token marks the postal code with the
// rest of the segment as city, a segment containing "France" sets the
// country, a segment matching region keywords sets the region.
func ParseAddress(block string) Address {
	var addr Address

	segments := strings.FieldsFunc(block, func(r rune) bool {
		return r == '\n' || r == ','
	})

	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		flat := strings.ToLower(StripAccents(seg))

		if addr.PostalCode == "" {
			if loc := postalRegex.FindStringIndex(seg); loc != nil {
				addr.PostalCode = seg[loc[0]:loc[1]]
				if city := strings.TrimSpace(seg[loc[1]:]); city != "" && addr.City == "" {
					addr.City = city
				}
				continue
			}
		}

		if addr.Country == "" && strings.Contains(flat, "france") {
			// Region names containing "France" should not consume the
			// segment before the region check sees it.
			if region := matchRegion(flat); region != "" && addr.Region == "" {
				addr.Region = region
			}
			addr.Country = "FR"
			continue
		}

		if addr.Region == "" {
			if region := matchRegion(flat); region != "" {
				addr.Region = region
				continue
			}
		}
	}

	return addr
}

func matchRegion(flat string) string {
	for marker, canonical := range regionKeywords {
		if strings.Contains(flat, marker) {
			return canonical
		}
	}
	return ""
}
