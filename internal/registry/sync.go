package registry

import (
	"context"
	"encoding/json"

	"formascrape/config"
	"formascrape/helpers"
	"formascrape/internal/store"
	"formascrape/logger"
	apperr "formascrape/pkg/errors"
)

// Index is the persistence surface the syncer works against. *store.Store
// satisfies it.
type Index interface {
	CentersMissingRegistry(ctx context.Context, limit int) ([]*store.Center, error)
	ApplyRegistry(ctx context.Context, centerID int64, u store.RegistryUpdate) error
}

// Stats summarizes one cross-reference pass.
type Stats struct {
	Scanned   int
	Matched   int
	Unmatched int
	Failed    int
}

// Syncer fills registry identifiers for centers that have none.
type Syncer struct {
	cfg    *config.Config
	index  Index
	client *Client
	log    *logger.Logger
}

func NewSyncer(cfg *config.Config, index Index, client *Client) *Syncer {
	return &Syncer{
		cfg:    cfg,
		index:  index,
		client: client,
		log:    logger.Get().WithField("component", "registry"),
	}
}

// Run looks up every center missing both SIREN and SIRET. Lookups that
// exhaust their retries are logged and skipped; the center stays eligible
// for the next pass. No accepted match leaves the center untouched.
func (s *Syncer) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	centers, err := s.index.CentersMissingRegistry(ctx, 0)
	if err != nil {
		return stats, apperr.NewStorage("registry", "list centers", err)
	}
	s.log.Info().Int("centers", len(centers)).Msg("Cross-referencing registry")

	for _, c := range centers {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Scanned++

		log := s.log.WithField("center_id", c.ID).WithField("name", c.Name)

		records, err := s.client.Search(ctx, c.Name)
		if err != nil {
			log.Warn().Err(err).Msg("Registry lookup failed, center stays eligible")
			stats.Failed++
			continue
		}

		match := BestMatch(records, c.Name, c.NormalizedName)
		if match == nil {
			log.Debug().Int("candidates", len(records)).Msg("No acceptable registry match")
			stats.Unmatched++
			continue
		}

		update := store.RegistryUpdate{
			Siren:             match.Siren,
			Siret:             match.Siret,
			DeclaredTrainees:  match.Trainees.Ptr(),
			DelegatedTrainees: match.TraineesHosted.Ptr(),
			DeclaredTrainers:  match.Trainers.Ptr(),
			FiscalYearStart:   match.FiscalYearStart,
		}
		if raw, err := json.Marshal(match); err == nil {
			update.RegistryRaw = string(raw)
		}

		if err := s.index.ApplyRegistry(ctx, c.ID, update); err != nil {
			return stats, apperr.NewStorage("registry", "apply match", err)
		}
		stats.Matched++
		log.Info().Str("siren", match.Siren).Str("siret", match.Siret).Msg("Registry match applied")

		if err := helpers.Sleep(ctx, s.cfg.DelayMin/3, s.cfg.DelayMax/3); err != nil {
			return stats, err
		}
	}

	return stats, nil
}
