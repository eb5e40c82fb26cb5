package crawler

import (
	"encoding/json"
	"math"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"formascrape/internal/normalize"
	"formascrape/internal/store"
	apperr "formascrape/pkg/errors"
)

// Item is one list record normalized into persister inputs.
type Item struct {
	Key       string
	CenterKey string
	Center    store.CenterInput
	Training  store.TrainingInput
}

// ExtractItem normalizes a shape-varying raw record. Items without a
// resolvable title or detail URL, or whose center name normalizes to empty,
// cannot be upserted and are rejected.
func ExtractItem(raw RawItem, queryName, baseURL string) (*Item, error) {
	title := normalize.PickString(raw,
		"intitule", "intituleFormation", "titre", "title", "libelle")
	detailURL := normalize.PickString(raw,
		"detailUrl", "lienFormation", "url", "lien")
	if title == "" || detailURL == "" {
		return nil, apperr.NewValidation("extract", "item missing title or detail url")
	}
	detailURL = resolveURL(baseURL, detailURL)

	centerName := normalize.PickString(raw,
		"organisme.nom", "organisme.raisonSociale", "nomOrganisme", "organisme", "raisonSociale", "center")
	centerKey := normalize.CenterKey(centerName)
	if centerKey == "" {
		return nil, apperr.NewValidation("extract", "center name normalizes to empty")
	}

	priceText := normalize.PickString(raw,
		"prixTotal", "prix", "tarif", "price", "coutTotal")
	var price *float64
	if n, ok := normalize.PickNumber(raw,
		"prixTotal", "prix", "tarif", "price", "coutTotal.montant", "coutTotal"); ok {
		v := normalize.Round2(n)
		price = &v
	}

	durationText := normalize.PickString(raw,
		"dureeTotale", "duree", "duration", "nbHeures")
	var durationHours *int64
	if n, ok := normalize.PickNumber(raw,
		"nbHeures", "dureeTotale", "duree", "duration"); ok {
		v := int64(math.Round(n))
		durationHours = &v
	}

	centerAddr := normalize.ParseAddress(normalize.PickString(raw,
		"organisme.adresse", "adresseOrganisme", "adresse"))

	item := &Item{
		Key:       ItemKey(raw),
		CenterKey: centerKey,
		Center: store.CenterInput{
			ExternalID: normalize.PickString(raw, "organisme.id", "idOrganisme", "numeroOrganisme"),
			Name:       centerName,
			City:       firstNonEmpty(normalize.PickString(raw, "organisme.ville", "villeOrganisme"), centerAddr.City),
			PostalCode: firstNonEmpty(normalize.PickString(raw, "organisme.codePostal"), centerAddr.PostalCode),
			Region:     centerAddr.Region,
			Country:    centerAddr.Country,
		},
		Training: store.TrainingInput{
			ExternalID:    normalize.PickString(raw, "id", "idFormation", "numeroFormation", "idAction"),
			DetailURL:     detailURL,
			Title:         title,
			Summary:       normalize.PickString(raw, "description", "resume", "objectif", "summary"),
			Modality:      normalize.PickString(raw, "modalite", "modalites", "typeParcours", "modality"),
			Certification: normalize.PickString(raw, "certification", "diplome", "certifiante"),
			Location:      normalize.PickString(raw, "lieu", "ville", "localisation", "location"),
			Region:        firstNonEmpty(normalize.PickString(raw, "region"), centerAddr.Region),
			PriceText:     priceText,
			Price:         price,
			DurationText:  durationText,
			DurationHours: durationHours,
			StartDate:     normalize.PickString(raw, "dateDebut", "debutSession", "startDate"),
			EndDate:       normalize.PickString(raw, "dateFin", "finSession", "endDate"),
			QueryName:     queryName,
		},
	}

	if rawJSON, err := json.Marshal(raw); err == nil {
		item.Training.RawList = string(rawJSON)
	}
	return item, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func resolveURL(baseURL, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// ParseAPIBodies decodes intercepted JSON search responses. The result array
// has moved between envelope keys across revisions; each known envelope is
// probed, falling back to a top-level array.
func ParseAPIBodies(bodies [][]byte) []RawItem {
	var items []RawItem
	for _, body := range bodies {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(body, &envelope); err == nil {
			for _, key := range []string{"resultats", "results", "formations", "items", "hits"} {
				if rawList, ok := envelope[key]; ok {
					items = append(items, decodeItemArray(rawList)...)
					break
				}
			}
			continue
		}
		items = append(items, decodeItemArray(body)...)
	}
	return items
}

func decodeItemArray(raw []byte) []RawItem {
	var list []RawItem
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	return list
}

// ParseCards extracts raw items from rendered DOM result cards. Values land
// under the same candidate keys the API shapes use, so ExtractItem treats
// both sources identically.
func ParseCards(html string, sel Selectors, baseURL string) ([]RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, apperr.NewParsing("cards", "parse document", err)
	}
	return cardsFromDoc(doc, sel, baseURL), nil
}

func cardsFromDoc(doc *goquery.Document, sel Selectors, baseURL string) []RawItem {
	var items []RawItem
	doc.Find(sel.Card).Each(func(_ int, card *goquery.Selection) {
		raw := RawItem{}
		setIf(raw, "title", firstText(card, sel.Title))
		setIf(raw, "organisme", firstText(card, sel.Center))
		setIf(raw, "lieu", firstText(card, sel.Location))
		setIf(raw, "prix", firstText(card, sel.Price))
		setIf(raw, "duree", firstText(card, sel.Duration))
		setIf(raw, "modalite", firstText(card, sel.Modality))
		setIf(raw, "description", firstText(card, sel.Summary))
		if href := firstAttr(card, sel.Link, "href"); href != "" {
			raw["detailUrl"] = resolveURL(baseURL, href)
		}
		if len(raw) > 0 {
			items = append(items, raw)
		}
	})
	return items
}

// firstText returns the text of the first matching candidate selector.
func firstText(card *goquery.Selection, candidates []string) string {
	for _, c := range candidates {
		if found := card.Find(c); found.Length() > 0 {
			if text := strings.TrimSpace(found.First().Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

func firstAttr(card *goquery.Selection, candidates []string, attr string) string {
	for _, c := range candidates {
		if found := card.Find(c); found.Length() > 0 {
			if v, ok := found.First().Attr(attr); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

func setIf(raw RawItem, key, value string) {
	if value != "" {
		raw[key] = value
	}
}
