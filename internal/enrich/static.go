package enrich

import (
	"io"

	"formascrape/helpers"
	apperr "formascrape/pkg/errors"
)

// StaticFetcher loads detail pages over plain HTTP with randomized browser
// headers, skipping the browser entirely. Markup rendered server-side parses
// the same either way, and a fleet of static workers is far cheaper than a
// fleet of browser sessions.
type StaticFetcher struct {
	body string
}

func NewStaticFetcher() *StaticFetcher {
	return &StaticFetcher{}
}

// Navigate fetches the page body; the result is served by the next HTML call.
func (f *StaticFetcher) Navigate(url string) error {
	f.body = ""
	r, err := helpers.FetchWithRandomHeaders(url)
	if err != nil {
		return apperr.NewNetwork("detail", url, err)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return apperr.NewNetwork("detail", url, err)
	}
	f.body = string(b)
	return nil
}

func (f *StaticFetcher) HTML() (string, error) {
	return f.body, nil
}
