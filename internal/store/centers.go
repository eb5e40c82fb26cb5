package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const centerColumns = `id, COALESCE(external_id, ''), name, normalized_name, city, postal_code,
	region, country, email, phone, website, siren, siret,
	declared_trainees, delegated_trainees, declared_trainers, fiscal_year_start,
	registry_raw, registry_synced_at, last_list_scraped_at, last_detail_scraped_at,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCenter(row rowScanner) (*Center, error) {
	var c Center
	err := row.Scan(
		&c.ID, &c.ExternalID, &c.Name, &c.NormalizedName, &c.City, &c.PostalCode,
		&c.Region, &c.Country, &c.Email, &c.Phone, &c.Website, &c.Siren, &c.Siret,
		&c.DeclaredTrainees, &c.DelegatedTrainees, &c.DeclaredTrainers, &c.FiscalYearStart,
		&c.RegistryRaw, &c.RegistrySyncedAt, &c.LastListScrapedAt, &c.LastDetailScrapedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CenterByExternalID looks a center up by its marketplace identifier.
func (s *Store) CenterByExternalID(ctx context.Context, externalID string) (*Center, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+centerColumns+` FROM centers WHERE external_id = ?`, externalID)
	return scanCenter(row)
}

// CenterByNormalizedName looks a center up by its derived dedup key.
func (s *Store) CenterByNormalizedName(ctx context.Context, key string) (*Center, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+centerColumns+` FROM centers WHERE normalized_name = ? ORDER BY id LIMIT 1`, key)
	return scanCenter(row)
}

// CenterByID fetches one center row.
func (s *Store) CenterByID(ctx context.Context, id int64) (*Center, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+centerColumns+` FROM centers WHERE id = ?`, id)
	return scanCenter(row)
}

// resolveCenterTx finds or creates the center for a listing inside the
// persist transaction. Resolution is keyed on the external id when present,
// else on the normalized name. Existing rows are updated non-destructively:
// a field is only overwritten when the incoming value is non-empty.
func resolveCenterTx(ctx context.Context, tx *sql.Tx, in CenterInput, normalizedName string, now time.Time) (int64, error) {
	var (
		id  int64
		err error
	)
	if in.ExternalID != "" {
		err = tx.QueryRowContext(ctx, `SELECT id FROM centers WHERE external_id = ?`, in.ExternalID).Scan(&id)
	} else {
		err = tx.QueryRowContext(ctx, `SELECT id FROM centers WHERE normalized_name = ? ORDER BY id LIMIT 1`, normalizedName).Scan(&id)
	}

	switch {
	case err == nil:
		if uerr := updateCenterFieldsTx(ctx, tx, id, in, now); uerr != nil {
			return 0, uerr
		}
		if _, uerr := tx.ExecContext(ctx,
			`UPDATE centers SET last_list_scraped_at = ? WHERE id = ?`, now, id); uerr != nil {
			return 0, fmt.Errorf("touch center %d: %w", id, uerr)
		}
		return id, nil
	case errors.Is(err, sql.ErrNoRows):
		res, ierr := tx.ExecContext(ctx, `
			INSERT INTO centers (external_id, name, normalized_name, city, postal_code, region, country,
				email, phone, website, last_list_scraped_at, created_at, updated_at)
			VALUES (NULLIF(?, ''), ?, ?, ?, ?, ?, COALESCE(NULLIF(?, ''), 'FR'), ?, ?, ?, ?, ?, ?)`,
			in.ExternalID, in.Name, normalizedName, in.City, in.PostalCode, in.Region, in.Country,
			in.Email, in.Phone, in.Website, now, now, now,
		)
		if ierr != nil {
			return 0, fmt.Errorf("insert center: %w", ierr)
		}
		return res.LastInsertId()
	default:
		return 0, fmt.Errorf("lookup center: %w", err)
	}
}

// updateCenterFieldsTx applies the non-empty-wins update used both by the
// list persister and by the enrichment transaction.
func updateCenterFieldsTx(ctx context.Context, tx *sql.Tx, id int64, in CenterInput, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE centers SET
		  name = CASE WHEN ? <> '' THEN ? ELSE name END,
		  city = CASE WHEN ? <> '' THEN ? ELSE city END,
		  postal_code = CASE WHEN ? <> '' THEN ? ELSE postal_code END,
		  region = CASE WHEN ? <> '' THEN ? ELSE region END,
		  country = CASE WHEN ? <> '' THEN ? ELSE country END,
		  email = CASE WHEN ? <> '' THEN ? ELSE email END,
		  phone = CASE WHEN ? <> '' THEN ? ELSE phone END,
		  website = CASE WHEN ? <> '' THEN ? ELSE website END,
		  updated_at = ?
		WHERE id = ?`,
		in.Name, in.Name,
		in.City, in.City,
		in.PostalCode, in.PostalCode,
		in.Region, in.Region,
		in.Country, in.Country,
		in.Email, in.Email,
		in.Phone, in.Phone,
		in.Website, in.Website,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("update center %d: %w", id, err)
	}
	return nil
}

// RegistryUpdate carries the fields accepted from an open-data registry match.
type RegistryUpdate struct {
	Siren             string
	Siret             string
	DeclaredTrainees  *int64
	DelegatedTrainees *int64
	DeclaredTrainers  *int64
	FiscalYearStart   string
	RegistryRaw       string
}

// ApplyRegistry records a registry match on a center. Counts overwrite only
// when present; identifiers only when non-empty.
func (s *Store) ApplyRegistry(ctx context.Context, centerID int64, u RegistryUpdate) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE centers SET
		  siren = CASE WHEN ? <> '' THEN ? ELSE siren END,
		  siret = CASE WHEN ? <> '' THEN ? ELSE siret END,
		  declared_trainees = COALESCE(?, declared_trainees),
		  delegated_trainees = COALESCE(?, delegated_trainees),
		  declared_trainers = COALESCE(?, declared_trainers),
		  fiscal_year_start = CASE WHEN ? <> '' THEN ? ELSE fiscal_year_start END,
		  registry_raw = CASE WHEN ? <> '' THEN ? ELSE registry_raw END,
		  registry_synced_at = ?,
		  updated_at = ?
		WHERE id = ?`,
		u.Siren, u.Siren,
		u.Siret, u.Siret,
		u.DeclaredTrainees, u.DelegatedTrainees, u.DeclaredTrainers,
		u.FiscalYearStart, u.FiscalYearStart,
		u.RegistryRaw, u.RegistryRaw,
		now, now, centerID,
	)
	if err != nil {
		return fmt.Errorf("apply registry to center %d: %w", centerID, err)
	}
	return nil
}

// CentersMissingRegistry returns centers without any registry identifier.
func (s *Store) CentersMissingRegistry(ctx context.Context, limit int) ([]*Center, error) {
	query := `SELECT ` + centerColumns + ` FROM centers WHERE siren = '' AND siret = '' ORDER BY id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var centers []*Center
	for rows.Next() {
		c, err := scanCenter(rows)
		if err != nil {
			return nil, err
		}
		centers = append(centers, c)
	}
	return centers, rows.Err()
}
