package crawler

import (
	"time"

	"formascrape/config"
	"formascrape/internal/browser"
	"formascrape/logger"
)

// revealPager drives the incremental site revision: navigate once, then
// repeatedly click the "show more" control and wait for the card count to
// strictly increase, extracting only the newly appended slice each round.
// Slicing is by count, not identity; the dedup key guards against the site
// reshuffling cards.
type revealPager struct {
	session    *browser.Session
	sel        Selectors
	query      config.Query
	baseURL    string
	navTimeout time.Duration

	started   bool
	lastCount int
}

func newRevealPager(session *browser.Session, sel Selectors, q config.Query, baseURL string, navTimeout time.Duration) *revealPager {
	return &revealPager{
		session:    session,
		sel:        sel,
		query:      q,
		baseURL:    baseURL,
		navTimeout: navTimeout,
	}
}

// NextBatch reveals one more batch of cards. It reports no more rounds when
// the control is absent or the count fails to grow within the navigation
// timeout.
func (p *revealPager) NextBatch() ([]RawItem, bool, error) {
	if !p.started {
		p.started = true
		pageURL := buildSearchURL(p.baseURL, p.query, 0, 0)
		if err := p.session.Navigate(pageURL); err != nil {
			return nil, true, err
		}
		items, err := p.currentCards()
		if err != nil {
			return nil, true, err
		}
		p.lastCount = len(items)
		return items, p.session.HasNode(p.sel.ShowMore), nil
	}

	if !p.session.HasNode(p.sel.ShowMore) {
		return nil, false, nil
	}
	if err := p.session.Click(p.sel.ShowMore); err != nil {
		return nil, true, err
	}

	grown := p.waitForGrowth()
	if !grown {
		logger.Get().Debug().Str("query", p.query.Name).Msg("card count stopped growing")
		return nil, false, nil
	}

	items, err := p.currentCards()
	if err != nil {
		return nil, true, err
	}
	if len(items) <= p.lastCount {
		return nil, false, nil
	}
	fresh := items[p.lastCount:]
	p.lastCount = len(items)
	return fresh, true, nil
}

// waitForGrowth polls the card count until it strictly exceeds the previous
// count or the navigation timeout elapses.
func (p *revealPager) waitForGrowth() bool {
	deadline := time.Now().Add(p.navTimeout)
	for time.Now().Before(deadline) {
		count, err := p.session.CountNodes(p.sel.Card)
		if err == nil && count > p.lastCount {
			return true
		}
		time.Sleep(500 * time.Millisecond)
	}
	return false
}

func (p *revealPager) currentCards() ([]RawItem, error) {
	html, err := p.session.HTML()
	if err != nil {
		return nil, err
	}
	return ParseCards(html, p.sel, p.baseURL)
}
