package store

import (
	"context"
	"strings"
	"time"
)

// cleanCondition selects centers considered complete for prospecting lists:
// both registry identifiers, a city, an email, and at least one of phone or
// website.
const cleanCondition = `siren <> '' AND siret <> '' AND city <> '' AND email <> ''
	AND (phone <> '' OR website <> '')`

// MaxIDs returns the highest center and training ids, the upper bounds used
// when bisecting export ranges.
func (s *Store) MaxIDs(ctx context.Context) (int64, int64, error) {
	var centerMax, trainingMax int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM centers`).Scan(&centerMax); err != nil {
		return 0, 0, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM trainings`).Scan(&trainingMax); err != nil {
		return 0, 0, err
	}
	return centerMax, trainingMax, nil
}

// CentersPage returns centers with afterID < id <= maxID, in id order.
func (s *Store) CentersPage(ctx context.Context, afterID, maxID int64, limit int, createdAfter *time.Time, cleanOnly bool) ([]*Center, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + centerColumns + ` FROM centers WHERE id > ? AND id <= ?`)
	args := []any{afterID, maxID}
	if createdAfter != nil {
		sb.WriteString(` AND created_at >= ?`)
		args = append(args, createdAfter.UTC())
	}
	if cleanOnly {
		sb.WriteString(` AND ` + cleanCondition)
	}
	sb.WriteString(` ORDER BY id LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
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

// TrainingsPage returns trainings with afterID < id <= maxID, in id order.
func (s *Store) TrainingsPage(ctx context.Context, afterID, maxID int64, limit int, createdAfter *time.Time) ([]*Training, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + trainingColumns + ` FROM trainings WHERE id > ? AND id <= ?`)
	args := []any{afterID, maxID}
	if createdAfter != nil {
		sb.WriteString(` AND created_at >= ?`)
		args = append(args, createdAfter.UTC())
	}
	sb.WriteString(` ORDER BY id LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trainings []*Training
	for rows.Next() {
		t, err := scanTraining(rows)
		if err != nil {
			return nil, err
		}
		trainings = append(trainings, t)
	}
	return trainings, rows.Err()
}

// TitleRef is one row of the training title index used for title filtering.
type TitleRef struct {
	ID       int64
	CenterID int64
	Title    string
}

// TrainingTitleIndex returns (id, center_id, title) for every training, so
// the exporter can apply its diacritic-insensitive title filter in one pass.
func (s *Store) TrainingTitleIndex(ctx context.Context) ([]TitleRef, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, center_id, title FROM trainings ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []TitleRef
	for rows.Next() {
		var r TitleRef
		if err := rows.Scan(&r.ID, &r.CenterID, &r.Title); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}
