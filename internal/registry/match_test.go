package registry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBestMatchExactDenomination(t *testing.T) {
	records := []Record{
		{Denomination: "LINGUA PLUS SARL", Siren: "111111111"},
		{Denomination: "LINGUA FORMATION", Siren: "222222222"},
	}
	m := BestMatch(records, "Lingua Plus SARL", "lingua plus")
	require.NotNil(t, m)
	assert.Equal(t, "111111111", m.Siren)
}

func TestBestMatchPersonalName(t *testing.T) {
	records := []Record{
		{Denomination: "MONSIEUR JEAN DUPONT", Siren: "333333333"},
	}
	m := BestMatch(records, "Jean Dupont", "jean dupont")
	require.NotNil(t, m)
	assert.Equal(t, "333333333", m.Siren)
}

func TestBestMatchPersonalNameIsPermissive(t *testing.T) {
	// The record carries an extra middle name; token inclusion of the
	// target name still accepts it. Common surnames can collide under
	// this rule; it is kept as-is rather than tightened blindly.
	records := []Record{
		{Denomination: "MADAME MARIE CLAIRE MARTIN", Siren: "444444444"},
	}
	m := BestMatch(records, "Marie Martin", "marie martin")
	require.NotNil(t, m)
	assert.Equal(t, "444444444", m.Siren)
}

func TestBestMatchRejectsWithoutCivility(t *testing.T) {
	// A partial company-name overlap is not enough.
	records := []Record{
		{Denomination: "JEAN DUPONT CONSULTING", Siren: "555555555"},
	}
	assert.Nil(t, BestMatch(records, "Jean Dupont", "jean dupont"))
}

func TestBestMatchRejectsMissingToken(t *testing.T) {
	records := []Record{
		{Denomination: "MONSIEUR JEAN MARTIN", Siren: "666666666"},
	}
	assert.Nil(t, BestMatch(records, "Jean Dupont", "jean dupont"))
}

func TestBestMatchTieBreakByDeclarationDate(t *testing.T) {
	records := []Record{
		{Denomination: "LINGUA PLUS", Siren: "111111111", DeclarationDate: "2022-05-01"},
		{Denomination: "LINGUA PLUS", Siren: "777777777", DeclarationDate: "2024-03-15"},
		{Denomination: "LINGUA PLUS", Siren: "888888888", DeclarationDate: "2023-01-01"},
	}
	m := BestMatch(records, "Lingua Plus", "lingua plus")
	require.NotNil(t, m)
	assert.Equal(t, "777777777", m.Siren)
}

func TestBestMatchNone(t *testing.T) {
	assert.Nil(t, BestMatch(nil, "Lingua Plus", "lingua plus"))
	assert.Nil(t, BestMatch([]Record{{Denomination: "AUTRE CHOSE"}}, "Lingua Plus", "lingua plus"))
}

func TestRecordDecodesFlexibleCounts(t *testing.T) {
	payload := []byte(`{
		"denomination": "LINGUA PLUS",
		"siren": "111111111",
		"siretetablissementdeclarant": "11111111100011",
		"nbstagiaires": 120,
		"nbstagiairesconfies": "35",
		"effectifformateurs": null,
		"datedeclaration": "2024-03-15"
	}`)

	var r Record
	require.NoError(t, json.Unmarshal(payload, &r))

	require.NotNil(t, r.Trainees.Ptr())
	assert.Equal(t, int64(120), *r.Trainees.Ptr())
	require.NotNil(t, r.TraineesHosted.Ptr())
	assert.Equal(t, int64(35), *r.TraineesHosted.Ptr())
	assert.Nil(t, r.Trainers.Ptr())
}
