package registry

import (
	"strings"

	"formascrape/internal/normalize"
)

// Civility tokens marking a registry denomination as a personal name
// ("MONSIEUR JEAN DUPONT") rather than a company name.
var civilityTokens = map[string]bool{
	"m":        true,
	"mr":       true,
	"mme":      true,
	"mlle":     true,
	"monsieur": true,
	"madame":   true,
	"mademoiselle": true,
}

// BestMatch picks the registry record to accept for a center, or nil.
//
// A record is accepted when its normalized denomination equals the center's
// normalized name exactly, or when the denomination carries a civility token
// and every token of the center name appears among the denomination tokens.
// The personal-name rule is deliberately permissive: common surnames can
// collide, and tightening it without fixtures from the live dataset would
// reject sole-trader centers that register under "MONSIEUR <name>". Ties
// are broken by the most recent declaration date.
func BestMatch(records []Record, centerName, normalizedName string) *Record {
	var best *Record

	for i := range records {
		r := &records[i]
		if !acceptable(r, centerName, normalizedName) {
			continue
		}
		if best == nil || r.DeclarationDate > best.DeclarationDate {
			best = r
		}
	}
	return best
}

func acceptable(r *Record, centerName, normalizedName string) bool {
	if normalize.CenterKey(r.Denomination) == normalizedName {
		return true
	}
	return personalNameMatch(r.Denomination, centerName)
}

// personalNameMatch accepts a denomination that names an individual and
// covers every token of the target name.
func personalNameMatch(denomination, centerName string) bool {
	recordTokens := nameTokens(denomination)

	hasCivility := false
	tokenSet := make(map[string]bool, len(recordTokens))
	for _, t := range recordTokens {
		if civilityTokens[t] {
			hasCivility = true
			continue
		}
		tokenSet[t] = true
	}
	if !hasCivility {
		return false
	}

	target := nameTokens(centerName)
	if len(target) == 0 {
		return false
	}
	for _, t := range target {
		if civilityTokens[t] {
			continue
		}
		if !tokenSet[t] {
			return false
		}
	}
	return true
}

func nameTokens(s string) []string {
	s = strings.ToLower(normalize.StripAccents(s))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}
