package store

import "time"

// Center is a training-provider organization row.
type Center struct {
	ID                  int64
	ExternalID          string
	Name                string
	NormalizedName      string
	City                string
	PostalCode          string
	Region              string
	Country             string
	Email               string
	Phone               string
	Website             string
	Siren               string
	Siret               string
	DeclaredTrainees    *int64
	DelegatedTrainees   *int64
	DeclaredTrainers    *int64
	FiscalYearStart     string
	RegistryRaw         string
	RegistrySyncedAt    *time.Time
	LastListScrapedAt   *time.Time
	LastDetailScrapedAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Training is one marketplace listing row. DetailURL is the natural dedup
// key; external ids are unreliable across site revisions.
type Training struct {
	ID                  int64
	CenterID            int64
	ExternalID          string
	DetailURL           string
	Title               string
	Summary             string
	Modality            string
	Certification       string
	Location            string
	Region              string
	PriceText           string
	Price               *float64
	DurationText        string
	DurationHours       *int64
	StartDate           string
	EndDate             string
	QueryName           string
	RawList             string
	RawDetail           string
	NeedsDetail         bool
	LastListScrapedAt   *time.Time
	LastDetailScrapedAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CenterInput carries the center fields extracted from a list or detail page.
type CenterInput struct {
	ExternalID string
	Name       string
	City       string
	PostalCode string
	Region     string
	Country    string
	Email      string
	Phone      string
	Website    string
}

// TrainingInput carries the training fields extracted from a list page.
type TrainingInput struct {
	ExternalID    string
	DetailURL     string
	Title         string
	Summary       string
	Modality      string
	Certification string
	Location      string
	Region        string
	PriceText     string
	Price         *float64
	DurationText  string
	DurationHours *int64
	StartDate     string
	EndDate       string
	QueryName     string
	RawList       string
}

// Enrichment carries what the detail worker extracted for one training and
// its owning center. Empty fields leave the stored value untouched.
type Enrichment struct {
	TrainingID    int64
	CenterID      int64
	PriceText     string
	Price         *float64
	DurationText  string
	DurationHours *int64
	Summary       string
	RawDetail     string
	CenterAddress CenterInput
}
