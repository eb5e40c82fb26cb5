package crawler

// RawItem is one scraped record before normalization. The marketplace has
// shipped several API and DOM shapes over time, so keys are unpredictable;
// extraction probes known historical names in priority order.
type RawItem map[string]any

// Pager advances one search query through its result pages. Both site
// revisions are covered: offset-paginated search URLs and the incremental
// "show more" reveal.
type Pager interface {
	// NextBatch returns the raw items revealed by advancing one round and
	// whether more rounds may follow. A navigation failure yields an error;
	// the extractor treats it as an empty round, not a fatal condition.
	NextBatch() ([]RawItem, bool, error)
}

// Selectors contains the CSS selectors for the rendered result cards.
// Several candidates per field tolerate site revisions; first match wins.
type Selectors struct {
	Card       string
	ShowMore   string
	Title      []string
	Link       []string
	Center     []string
	Location   []string
	Price      []string
	Duration   []string
	Modality   []string
	Summary    []string
}

// DefaultSelectors covers the card shapes observed across site revisions.
func DefaultSelectors() Selectors {
	return Selectors{
		Card:     "div.result-card, article.formation-card, li.resultat",
		ShowMore: "button.show-more, button.voir-plus, a.load-more",
		Title:    []string{"h2.title", "h3.intitule", ".card-title"},
		Link:     []string{"a.detail-link", "a[href*='/formation/']", "a"},
		Center:   []string{".organisme", ".center-name", ".card-subtitle"},
		Location: []string{".lieu", ".location", ".card-place"},
		Price:    []string{".prix", ".price", ".card-price"},
		Duration: []string{".duree", ".duration"},
		Modality: []string{".modalite", ".modality"},
		Summary:  []string{".description", ".summary", "p.card-text"},
	}
}
