package crawler

import (
	"context"
	"encoding/json"
	"errors"

	"formascrape/config"
	"formascrape/helpers"
	"formascrape/internal/browser"
	"formascrape/internal/store"
	"formascrape/logger"
	apperr "formascrape/pkg/errors"
	"formascrape/services/publisher"
)

// Persister receives normalized items. *store.Store satisfies it.
type Persister interface {
	PersistListing(ctx context.Context, center store.CenterInput, normalizedName string, training store.TrainingInput, onePerCenter bool) (int64, bool, error)
}

// PagerFactory builds the pager for one query, selecting the pagination
// strategy per query configuration.
type PagerFactory func(session *browser.Session, q config.Query) Pager

// Stats summarizes one query run.
type Stats struct {
	Rounds    int
	Harvested int
	Persisted int
	Created   int
	Skipped   int
}

// Extractor retrieves all distinct items for each configured query and hands
// them to the persister.
type Extractor struct {
	cfg      config.Config
	store    Persister
	pub      publisher.Publisher
	sel      Selectors
	newPager PagerFactory
}

// New creates an extractor. pub may be nil when stream notifications are not
// configured.
func New(cfg config.Config, st Persister, pub publisher.Publisher) *Extractor {
	e := &Extractor{
		cfg:   cfg,
		store: st,
		pub:   pub,
		sel:   DefaultSelectors(),
	}
	e.newPager = func(session *browser.Session, q config.Query) Pager {
		if q.Strategy == config.StrategyReveal {
			return newRevealPager(session, e.sel, q, cfg.SearchBaseURL, cfg.NavTimeout)
		}
		return newOffsetPager(session, e.sel, q, cfg.SearchBaseURL, cfg.PageSize)
	}
	return e
}

// Run processes every query on one browser session. A launch failure is
// fatal; a failure inside one query aborts that query only.
func (e *Extractor) Run(ctx context.Context, queries []config.Query, session *browser.Session) error {
	log := logger.Get()

	for _, q := range queries {
		stats, err := e.RunQuery(ctx, session, q)
		if err != nil {
			log.Error().Err(err).Str("query", q.Name).Msg("query aborted")
			var serr *apperr.ScrapeError
			if errors.As(err, &serr) && serr.Type == apperr.ErrorTypeRateLimit {
				return err
			}
			continue
		}
		log.Info().
			Str("query", q.Name).
			Int("rounds", stats.Rounds).
			Int("harvested", stats.Harvested).
			Int("persisted", stats.Persisted).
			Int("created", stats.Created).
			Int("skipped", stats.Skipped).
			Msg("query complete")
	}

	if e.pub != nil {
		if err := e.pub.TrimStreams(); err != nil {
			log.Warn().Err(err).Msg("stream trimming failed")
		}
	}
	return ctx.Err()
}

// RunQuery drives one query through its rounds until the page cap, a round
// with nothing new, or the pager reports the end. The pacing delay applies
// after every round including the last, so moving on to the next query
// never produces back-to-back requests.
func (e *Extractor) RunQuery(ctx context.Context, session *browser.Session, q config.Query) (Stats, error) {
	log := logger.Get().WithField("query", q.Name)
	pager := e.newPager(session, q)
	seen := make(map[string]struct{})
	var stats Stats

	for round := 1; round <= e.cfg.MaxPages; round++ {
		stats.Rounds = round

		items, more, err := pager.NextBatch()
		if err != nil {
			var serr *apperr.ScrapeError
			if errors.As(err, &serr) && serr.Type == apperr.ErrorTypeRateLimit {
				return stats, err
			}
			// One failed round yields no items; the stop-condition check
			// below decides whether the query ends.
			log.Warn().Err(err).Int("round", round).Msg("round failed")
			items = nil
		}

		fresh := 0
		for _, raw := range items {
			key := ItemKey(raw)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			fresh++
			stats.Harvested++

			item, err := ExtractItem(raw, q.Name, e.cfg.SearchBaseURL)
			if err != nil {
				log.Warn().Err(err).Msg("item discarded")
				stats.Skipped++
				continue
			}

			id, created, err := e.store.PersistListing(ctx, item.Center, item.CenterKey, item.Training, e.cfg.OneTrainingPerCenter)
			if errors.Is(err, store.ErrDuplicatePolicy) {
				log.Debug().Str("center", item.Center.Name).Msg("center already owns a training")
				stats.Skipped++
				continue
			}
			if err != nil {
				log.Error().Err(err).Str("url", item.Training.DetailURL).Msg("persist failed")
				stats.Skipped++
				continue
			}
			stats.Persisted++
			if created {
				stats.Created++
				e.publish(id, item)
			}
		}

		if err := helpers.Sleep(ctx, e.cfg.DelayMin, e.cfg.DelayMax); err != nil {
			return stats, err
		}
		if !more || fresh == 0 {
			break
		}
	}

	return stats, nil
}

func (e *Extractor) publish(id int64, item *Item) {
	if e.pub == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"id":     id,
		"title":  item.Training.Title,
		"url":    item.Training.DetailURL,
		"center": item.Center.Name,
		"query":  item.Training.QueryName,
	})
	if err != nil {
		return
	}
	if err := e.pub.Publish("training", payload); err != nil {
		logger.Get().Warn().Err(err).Msg("publish failed")
	}
}
