package store

import "fmt"

const schema = `
CREATE TABLE IF NOT EXISTS centers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  external_id TEXT UNIQUE,
  name TEXT NOT NULL,
  normalized_name TEXT NOT NULL,
  city TEXT NOT NULL DEFAULT '',
  postal_code TEXT NOT NULL DEFAULT '',
  region TEXT NOT NULL DEFAULT '',
  country TEXT NOT NULL DEFAULT 'FR',
  email TEXT NOT NULL DEFAULT '',
  phone TEXT NOT NULL DEFAULT '',
  website TEXT NOT NULL DEFAULT '',
  siren TEXT NOT NULL DEFAULT '',
  siret TEXT NOT NULL DEFAULT '',
  declared_trainees INTEGER,
  delegated_trainees INTEGER,
  declared_trainers INTEGER,
  fiscal_year_start TEXT NOT NULL DEFAULT '',
  registry_raw TEXT NOT NULL DEFAULT '',
  registry_synced_at TIMESTAMP,
  last_list_scraped_at TIMESTAMP,
  last_detail_scraped_at TIMESTAMP,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_centers_normalized_name ON centers(normalized_name);
CREATE INDEX IF NOT EXISTS idx_centers_siren ON centers(siren);

CREATE TABLE IF NOT EXISTS trainings (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  center_id INTEGER NOT NULL REFERENCES centers(id),
  external_id TEXT NOT NULL DEFAULT '',
  detail_url TEXT NOT NULL UNIQUE,
  title TEXT NOT NULL,
  summary TEXT NOT NULL DEFAULT '',
  modality TEXT NOT NULL DEFAULT '',
  certification TEXT NOT NULL DEFAULT '',
  location TEXT NOT NULL DEFAULT '',
  region TEXT NOT NULL DEFAULT '',
  price_text TEXT NOT NULL DEFAULT '',
  price REAL,
  duration_text TEXT NOT NULL DEFAULT '',
  duration_hours INTEGER,
  start_date TEXT NOT NULL DEFAULT '',
  end_date TEXT NOT NULL DEFAULT '',
  query_name TEXT NOT NULL DEFAULT '',
  raw_list TEXT NOT NULL DEFAULT '',
  raw_detail TEXT NOT NULL DEFAULT '',
  needs_detail INTEGER NOT NULL DEFAULT 1,
  last_list_scraped_at TIMESTAMP,
  last_detail_scraped_at TIMESTAMP,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_trainings_center ON trainings(center_id);
CREATE INDEX IF NOT EXISTS idx_trainings_backlog ON trainings(needs_detail, last_detail_scraped_at);
`

// Migrate creates the schema when missing
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
