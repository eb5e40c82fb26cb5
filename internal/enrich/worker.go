package enrich

import (
	"context"
	"database/sql"
	"errors"

	"formascrape/config"
	"formascrape/helpers"
	"formascrape/internal/store"
	"formascrape/logger"
	apperr "formascrape/pkg/errors"
)

// Backlog is the persistence surface the worker drains. *store.Store
// satisfies it.
type Backlog interface {
	NextPendingDetail(ctx context.Context) (*store.Training, error)
	TouchDetailAttempt(ctx context.Context, id int64) error
	MarkDetailDone(ctx context.Context, id int64) error
	ApplyEnrichment(ctx context.Context, e store.Enrichment) error
}

// Fetcher loads one detail page and returns its rendered HTML.
type Fetcher interface {
	Navigate(url string) error
	HTML() (string, error)
}

// Stats summarizes one drain pass.
type Stats struct {
	Visited  int
	Enriched int
	Skipped  int
	Failed   int
	Fallback int
}

// Worker drains the detail backlog: oldest-attempted item first, one page
// per visit, with human-pace delays between visits. Each worker runs against
// its own browser session; the claim-by-timestamp scheme in the backlog
// keeps concurrent workers off the same row.
type Worker struct {
	cfg     *config.Config
	backlog Backlog
	fetcher Fetcher
	log     *logger.Logger
}

func NewWorker(cfg *config.Config, backlog Backlog, fetcher Fetcher) *Worker {
	return &Worker{
		cfg:     cfg,
		backlog: backlog,
		fetcher: fetcher,
		log:     logger.Get().WithField("component", "enrich"),
	}
}

// Run drains the backlog until it is empty, the batch budget is spent, or
// the context ends. DetailBatchSize zero means unbounded.
func (w *Worker) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if w.cfg.DetailBatchSize > 0 && stats.Visited >= w.cfg.DetailBatchSize {
			w.log.Info().Int("visited", stats.Visited).Msg("Batch budget spent")
			return stats, nil
		}

		t, err := w.backlog.NextPendingDetail(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			w.log.Info().Int("enriched", stats.Enriched).Msg("Backlog drained")
			return stats, nil
		}
		if err != nil {
			return stats, apperr.NewStorage("detail", "next pending", err)
		}

		// Items with no detail URL can never be enriched; resolve them
		// immediately so they stop cycling through the backlog.
		if t.DetailURL == "" {
			if err := w.backlog.MarkDetailDone(ctx, t.ID); err != nil {
				return stats, apperr.NewStorage("detail", "mark done", err)
			}
			stats.Skipped++
			continue
		}

		// Claim before the visit. A crash mid-visit leaves the item
		// pending but cycled to the back of the queue.
		if err := w.backlog.TouchDetailAttempt(ctx, t.ID); err != nil {
			return stats, apperr.NewStorage("detail", "claim item", err)
		}
		stats.Visited++

		if err := w.visit(ctx, t, &stats); err != nil {
			return stats, err
		}

		if err := helpers.Sleep(ctx, w.cfg.DelayMin, w.cfg.DelayMax); err != nil {
			return stats, err
		}
	}
}

func (w *Worker) visit(ctx context.Context, t *store.Training, stats *Stats) error {
	log := w.log.WithField("training_id", t.ID).WithField("url", t.DetailURL)

	if err := w.fetcher.Navigate(t.DetailURL); err != nil {
		var serr *apperr.ScrapeError
		if errors.As(err, &serr) && serr.Type == apperr.ErrorTypeRateLimit {
			return err
		}
		log.Warn().Err(err).Msg("Detail navigation failed, item stays pending")
		stats.Failed++
		return helpers.PenaltySleep(ctx, w.cfg.DelayMin, w.cfg.DelayMax)
	}

	html, err := w.fetcher.HTML()
	if err != nil {
		log.Warn().Err(err).Msg("Detail snapshot failed, item stays pending")
		stats.Failed++
		return helpers.PenaltySleep(ctx, w.cfg.DelayMin, w.cfg.DelayMax)
	}

	detail, err := ParseDetail(html)
	if err != nil {
		// An unrecognizable page shape will not improve on retry.
		log.Warn().Err(err).Msg("No extractable data, resolving item")
		if err := w.backlog.MarkDetailDone(ctx, t.ID); err != nil {
			return apperr.NewStorage("detail", "mark done", err)
		}
		stats.Skipped++
		return nil
	}

	e := buildEnrichment(t, detail)
	if err := w.backlog.ApplyEnrichment(ctx, e); err != nil {
		// Fall back to the minimal resolution so the visit is not
		// repeated; both errors surface in the log.
		log.Error().Err(err).Msg("Enrichment transaction failed, falling back to minimal resolution")
		if ferr := w.backlog.MarkDetailDone(ctx, t.ID); ferr != nil {
			log.Error().Err(ferr).Msg("Minimal resolution also failed")
			return apperr.NewStorage("detail", "fallback mark done", ferr)
		}
		stats.Fallback++
		return nil
	}

	stats.Enriched++
	log.Debug().Msg("Detail enriched")
	return nil
}

func buildEnrichment(t *store.Training, d *Detail) store.Enrichment {
	return store.Enrichment{
		TrainingID:    t.ID,
		CenterID:      t.CenterID,
		PriceText:     d.PriceText,
		Price:         d.Price,
		DurationText:  d.DurationText,
		DurationHours: d.DurationHours,
		Summary:       d.Summary,
		RawDetail:     d.Raw,
		CenterAddress: store.CenterInput{
			PostalCode: d.Address.PostalCode,
			City:       d.Address.City,
			Region:     d.Address.Region,
			Country:    d.Address.Country,
			Email:      d.Email,
			Phone:      d.Phone,
			Website:    d.Website,
		},
	}
}
