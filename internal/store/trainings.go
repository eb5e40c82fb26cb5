package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const trainingColumns = `id, center_id, external_id, detail_url, title, summary, modality,
	certification, location, region, price_text, price, duration_text, duration_hours,
	start_date, end_date, query_name, raw_list, raw_detail, needs_detail,
	last_list_scraped_at, last_detail_scraped_at, created_at, updated_at`

func scanTraining(row rowScanner) (*Training, error) {
	var t Training
	err := row.Scan(
		&t.ID, &t.CenterID, &t.ExternalID, &t.DetailURL, &t.Title, &t.Summary, &t.Modality,
		&t.Certification, &t.Location, &t.Region, &t.PriceText, &t.Price, &t.DurationText, &t.DurationHours,
		&t.StartDate, &t.EndDate, &t.QueryName, &t.RawList, &t.RawDetail, &t.NeedsDetail,
		&t.LastListScrapedAt, &t.LastDetailScrapedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ErrDuplicatePolicy reports a listing skipped by the one-training-per-center
// policy during initial population passes.
var ErrDuplicatePolicy = errors.New("store: center already owns a training")

// PersistListing upserts one normalized list item: the owning center is
// resolved (external id first, normalized name otherwise), then the training
// is upserted keyed on its detail URL. On conflict every normalized field is
// overwritten, the listing is re-flagged for detail enrichment, and the
// list-scrape timestamp refreshed. Returns the training id and whether the
// row was created.
func (s *Store) PersistListing(ctx context.Context, center CenterInput, normalizedName string, training TrainingInput, onePerCenter bool) (int64, bool, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	centerID, err := resolveCenterTx(ctx, tx, center, normalizedName, now)
	if err != nil {
		return 0, false, err
	}

	var existingID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM trainings WHERE detail_url = ?`, training.DetailURL).Scan(&existingID)
	created := errors.Is(err, sql.ErrNoRows)
	if err != nil && !created {
		return 0, false, fmt.Errorf("lookup training: %w", err)
	}

	if created && onePerCenter {
		var owned int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM trainings WHERE center_id = ?`, centerID).Scan(&owned); err != nil {
			return 0, false, fmt.Errorf("count center trainings: %w", err)
		}
		if owned > 0 {
			return 0, false, ErrDuplicatePolicy
		}
	}

	if created {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO trainings (center_id, external_id, detail_url, title, summary, modality,
				certification, location, region, price_text, price, duration_text, duration_hours,
				start_date, end_date, query_name, raw_list, needs_detail,
				last_list_scraped_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
			centerID, training.ExternalID, training.DetailURL, training.Title, training.Summary, training.Modality,
			training.Certification, training.Location, training.Region, training.PriceText, training.Price,
			training.DurationText, training.DurationHours, training.StartDate, training.EndDate,
			training.QueryName, training.RawList, now, now, now,
		)
		if err != nil {
			return 0, false, fmt.Errorf("insert training: %w", err)
		}
		existingID, err = res.LastInsertId()
		if err != nil {
			return 0, false, err
		}
	} else {
		_, err := tx.ExecContext(ctx, `
			UPDATE trainings SET
			  center_id = ?, external_id = ?, title = ?, summary = ?, modality = ?,
			  certification = ?, location = ?, region = ?, price_text = ?, price = ?,
			  duration_text = ?, duration_hours = ?, start_date = ?, end_date = ?,
			  query_name = ?, raw_list = ?, needs_detail = 1,
			  last_list_scraped_at = ?, updated_at = ?
			WHERE id = ?`,
			centerID, training.ExternalID, training.Title, training.Summary, training.Modality,
			training.Certification, training.Location, training.Region, training.PriceText, training.Price,
			training.DurationText, training.DurationHours, training.StartDate, training.EndDate,
			training.QueryName, training.RawList, now, now, existingID,
		)
		if err != nil {
			return 0, false, fmt.Errorf("update training: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit tx: %w", err)
	}
	return existingID, created, nil
}

// TrainingByID fetches one training row.
func (s *Store) TrainingByID(ctx context.Context, id int64) (*Training, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trainingColumns+` FROM trainings WHERE id = ?`, id)
	return scanTraining(row)
}

// NextPendingDetail returns the least-recently-attempted backlog item:
// needs_detail set, ordered by last detail attempt (never-attempted first),
// id as tiebreak. sql.ErrNoRows signals an empty backlog.
func (s *Store) NextPendingDetail(ctx context.Context) (*Training, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+trainingColumns+` FROM trainings
		WHERE needs_detail = 1
		ORDER BY last_detail_scraped_at ASC NULLS FIRST, id ASC
		LIMIT 1`)
	return scanTraining(row)
}

// PendingDetailCount returns the backlog size.
func (s *Store) PendingDetailCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trainings WHERE needs_detail = 1`).Scan(&n)
	return n, err
}

// TouchDetailAttempt bumps the detail-scrape timestamp without resolving the
// item, cycling it to the back of the backlog after a failed visit.
func (s *Store) TouchDetailAttempt(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE trainings SET last_detail_scraped_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	return err
}

// MarkDetailDone flips needs_detail off with no other field changes. Used
// when the item has nothing to fetch and as the minimal fallback when the
// full enrichment transaction fails.
func (s *Store) MarkDetailDone(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE trainings SET needs_detail = 0, last_detail_scraped_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	return err
}

// ApplyEnrichment records a successful detail visit in one transaction
// touching the training and its owning center together, so a partially
// applied enrichment is never observable.
func (s *Store) ApplyEnrichment(ctx context.Context, e Enrichment) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE trainings SET
		  price_text = CASE WHEN ? <> '' THEN ? ELSE price_text END,
		  price = COALESCE(?, price),
		  duration_text = CASE WHEN ? <> '' THEN ? ELSE duration_text END,
		  duration_hours = COALESCE(?, duration_hours),
		  summary = CASE WHEN ? <> '' THEN ? ELSE summary END,
		  raw_detail = CASE WHEN ? <> '' THEN ? ELSE raw_detail END,
		  needs_detail = 0,
		  last_detail_scraped_at = ?,
		  updated_at = ?
		WHERE id = ?`,
		e.PriceText, e.PriceText,
		e.Price,
		e.DurationText, e.DurationText,
		e.DurationHours,
		e.Summary, e.Summary,
		e.RawDetail, e.RawDetail,
		now, now, e.TrainingID,
	)
	if err != nil {
		return fmt.Errorf("update training %d: %w", e.TrainingID, err)
	}

	if err := updateCenterFieldsTx(ctx, tx, e.CenterID, e.CenterAddress, now); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE centers SET last_detail_scraped_at = ? WHERE id = ?`, now, e.CenterID)
	if err != nil {
		return fmt.Errorf("touch center %d: %w", e.CenterID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Clear deletes every training then every center inside one transaction and
// reports the counts removed.
func (s *Store) Clear(ctx context.Context) (int64, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM trainings`)
	if err != nil {
		return 0, 0, fmt.Errorf("clear trainings: %w", err)
	}
	trainings, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, `DELETE FROM centers`)
	if err != nil {
		return 0, 0, fmt.Errorf("clear centers: %w", err)
	}
	centers, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit tx: %w", err)
	}
	return trainings, centers, nil
}
