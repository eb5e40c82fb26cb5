package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"formascrape/config"
	"formascrape/internal/browser"
	"formascrape/logger"
)

// searchAPIFragment identifies the search API responses worth intercepting.
const searchAPIFragment = "recherche"

// offsetPager drives the offset-paginated site revision: each round
// navigates to a search URL embedding {offset, pageSize} and harvests items
// from intercepted JSON responses, falling back to rendered DOM cards.
type offsetPager struct {
	session  *browser.Session
	sel      Selectors
	capture  *browser.Capture
	query    config.Query
	baseURL  string
	pageSize int
	offset   int
}

func newOffsetPager(session *browser.Session, sel Selectors, q config.Query, baseURL string, pageSize int) *offsetPager {
	return &offsetPager{
		session:  session,
		sel:      sel,
		capture:  session.CaptureJSON(searchAPIFragment),
		query:    q,
		baseURL:  baseURL,
		pageSize: pageSize,
	}
}

// NextBatch navigates to the next page and returns its items. A short page
// means the last page was reached.
func (p *offsetPager) NextBatch() ([]RawItem, bool, error) {
	pageURL := buildSearchURL(p.baseURL, p.query, p.offset, p.pageSize)
	p.offset += p.pageSize

	// Stale captures from the previous round must not leak into this one.
	p.capture.Drain()

	if err := p.session.Navigate(pageURL); err != nil {
		return nil, true, err
	}

	items := ParseAPIBodies(p.capture.Drain())
	if len(items) == 0 {
		html, err := p.session.HTML()
		if err != nil {
			return nil, true, err
		}
		items, err = ParseCards(html, p.sel, p.baseURL)
		if err != nil {
			logger.Get().Warn().Err(err).Str("url", pageURL).Msg("card extraction failed")
		}
	}

	return items, len(items) >= p.pageSize, nil
}

func buildSearchURL(baseURL string, q config.Query, offset, pageSize int) string {
	values := url.Values{}
	if q.Keywords != "" {
		values.Set("quoi", q.Keywords)
	}
	if q.Where != "" {
		values.Set("ou", q.Where)
	}
	values.Set("debut", fmt.Sprintf("%d", offset))
	values.Set("nombre", fmt.Sprintf("%d", pageSize))

	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	return baseURL + sep + values.Encode()
}
