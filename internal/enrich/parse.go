package enrich

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"formascrape/internal/normalize"
	"formascrape/logger"
	apperr "formascrape/pkg/errors"
)

// Candidate selectors per field, in priority order across site revisions.
// No single fixed selector is ever trusted.
var (
	priceSelectors = []string{
		".prix-total", ".price-amount", "[data-test='price']", ".tarif", ".prix",
	}
	durationSelectors = []string{
		".duree-totale", "[data-test='duration']", ".duration", ".duree",
	}
	summarySelectors = []string{
		".description-formation", ".objectifs", "section.description", ".presentation",
	}
	addressSelectors = []string{
		".adresse", ".coordonnees address", "address", ".contact-address",
	}
	contactListSelectors = []string{
		".coordonnees li", "ul.contact li", ".contact-item",
	}

	emailRegex = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRegex = regexp.MustCompile(`(?:\+33|0)\s?[1-9](?:[\s.\-]?\d{2}){4}`)
)

// Detail holds the structured fields extracted from one detail page.
type Detail struct {
	PriceText     string
	Price         *float64
	DurationText  string
	DurationHours *int64
	Summary       string
	Address       normalize.Address
	Email         string
	Phone         string
	Website       string
	Raw           string
}

// ParseDetail extracts structured fields from a detail page. It returns a
// parsing error when no selector yields any data, which callers treat as a
// terminal skip: a shape this unrecognizable will not improve on retry.
func ParseDetail(html string) (*Detail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, apperr.NewParsing("detail", "parse document", err)
	}

	var d Detail

	if text := firstSelectorText(doc, priceSelectors); text != "" {
		d.PriceText = text
		if n, ok := normalize.ParseNumber(text); ok {
			v := normalize.Round2(n)
			d.Price = &v
		}
	}

	if text := firstSelectorText(doc, durationSelectors); text != "" {
		d.DurationText = text
		if n, ok := normalize.ParseNumber(text); ok {
			v := int64(math.Round(n))
			d.DurationHours = &v
		}
	}

	d.Summary = firstSelectorText(doc, summarySelectors)

	if block := firstSelectorText(doc, addressSelectors); block != "" {
		d.Address = normalize.ParseAddress(block)
	}

	d.Email, d.Phone, d.Website = extractContacts(doc)

	if d.PriceText == "" && d.DurationText == "" && d.Summary == "" &&
		d.Email == "" && d.Phone == "" && d.Website == "" && d.Address == (normalize.Address{}) {
		return nil, apperr.NewParsing("detail", "no extractable data", nil)
	}

	if raw, err := json.Marshal(map[string]string{
		"price":    d.PriceText,
		"duration": d.DurationText,
		"summary":  d.Summary,
		"email":    d.Email,
		"phone":    d.Phone,
		"website":  d.Website,
	}); err == nil {
		d.Raw = string(raw)
	}

	return &d, nil
}

func firstSelectorText(doc *goquery.Document, candidates []string) string {
	for _, sel := range candidates {
		if found := doc.Find(sel); found.Length() > 0 {
			if text := squashSpace(found.First().Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

// extractContacts scans mailto:/tel:/http anchors first, then icon-adjacent
// contact list items.
func extractContacts(doc *goquery.Document) (email, phone, website string) {
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		switch {
		case strings.HasPrefix(href, "mailto:"):
			if email == "" {
				email = strings.TrimPrefix(href, "mailto:")
				if i := strings.IndexByte(email, '?'); i >= 0 {
					email = email[:i]
				}
			}
		case strings.HasPrefix(href, "tel:"):
			if phone == "" {
				phone = strings.TrimPrefix(href, "tel:")
			}
		case strings.HasPrefix(href, "http"):
			if website == "" && isExternalSite(a) {
				website = href
			}
		}
	})

	for _, sel := range contactListSelectors {
		doc.Find(sel).Each(func(_ int, li *goquery.Selection) {
			text := li.Text()
			if email == "" {
				email = emailRegex.FindString(text)
			}
			if phone == "" {
				phone = squashSpace(phoneRegex.FindString(text))
			}
		})
	}

	if website != "" {
		sanitized, truncated := normalize.SanitizeWebsite(website)
		if truncated {
			logger.Get().Warn().Str("url", sanitized).Msg("Website URL truncated to storage limit")
		}
		website = sanitized
	}
	return email, phone, website
}

// isExternalSite filters out the marketplace's own navigation links, keeping
// only anchors flagged as the provider's site.
func isExternalSite(a *goquery.Selection) bool {
	if _, ok := a.Attr("data-external"); ok {
		return true
	}
	if rel, ok := a.Attr("rel"); ok && strings.Contains(rel, "external") {
		return true
	}
	class, _ := a.Attr("class")
	return strings.Contains(class, "site-web") || strings.Contains(class, "website")
}

func squashSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
