package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate())
	return st
}

func sampleCenter() CenterInput {
	return CenterInput{
		Name:       "Lingua Plus SARL",
		City:       "Paris",
		PostalCode: "75002",
		Country:    "FR",
	}
}

func sampleTraining(url string) TrainingInput {
	price := 990.0
	return TrainingInput{
		DetailURL: url,
		Title:     "Anglais professionnel",
		Location:  "Paris",
		PriceText: "990 €",
		Price:     &price,
		QueryName: "anglais-paris",
	}
}

func TestPersistListingCreates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id, created, err := st.PersistListing(ctx, sampleCenter(), "lingua plus", sampleTraining("https://x/f/1"), false)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Greater(t, id, int64(0))

	tr, err := st.NextPendingDetail(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, tr.ID)
	assert.True(t, tr.NeedsDetail)
	assert.Equal(t, "Anglais professionnel", tr.Title)

	center, err := st.CenterByNormalizedName(ctx, "lingua plus")
	require.NoError(t, err)
	assert.Equal(t, "Lingua Plus SARL", center.Name)
	assert.NotNil(t, center.LastListScrapedAt)
}

func TestPersistListingUpsertsOnDetailURL(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first := sampleTraining("https://x/f/1")
	id1, created, err := st.PersistListing(ctx, sampleCenter(), "lingua plus", first, false)
	require.NoError(t, err)
	require.True(t, created)

	second := sampleTraining("https://x/f/1")
	second.Title = "Anglais professionnel avancé"
	id2, created, err := st.PersistListing(ctx, sampleCenter(), "lingua plus", second, false)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	tr, err := st.NextPendingDetail(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Anglais professionnel avancé", tr.Title)
}

func TestPersistListingCenterResolution(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Same normalized name resolves to the same center row.
	_, _, err := st.PersistListing(ctx, sampleCenter(), "lingua plus", sampleTraining("https://x/f/1"), false)
	require.NoError(t, err)

	variant := sampleCenter()
	variant.Name = "LINGUA PLUS"
	_, _, err = st.PersistListing(ctx, variant, "lingua plus", sampleTraining("https://x/f/2"), false)
	require.NoError(t, err)

	var count int
	require.NoError(t, st.DB().QueryRow(`SELECT COUNT(*) FROM centers`).Scan(&count))
	assert.Equal(t, 1, count)

	// An external id takes precedence over the normalized name.
	withID := sampleCenter()
	withID.ExternalID = "ORG-9"
	withID.Name = "Lingua Plus Officiel"
	_, _, err = st.PersistListing(ctx, withID, "lingua plus officiel", sampleTraining("https://x/f/3"), false)
	require.NoError(t, err)

	c, err := st.CenterByExternalID(ctx, "ORG-9")
	require.NoError(t, err)
	assert.Equal(t, "Lingua Plus Officiel", c.Name)
}

func TestPersistListingNonEmptyWins(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	full := sampleCenter()
	full.Email = "contact@lingua.fr"
	_, _, err := st.PersistListing(ctx, full, "lingua plus", sampleTraining("https://x/f/1"), false)
	require.NoError(t, err)

	// A later listing without the email must not blank it.
	sparse := CenterInput{Name: "Lingua Plus SARL"}
	_, _, err = st.PersistListing(ctx, sparse, "lingua plus", sampleTraining("https://x/f/2"), false)
	require.NoError(t, err)

	c, err := st.CenterByNormalizedName(ctx, "lingua plus")
	require.NoError(t, err)
	assert.Equal(t, "contact@lingua.fr", c.Email)
	assert.Equal(t, "Paris", c.City)
}

func TestPersistListingOnePerCenterPolicy(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, _, err := st.PersistListing(ctx, sampleCenter(), "lingua plus", sampleTraining("https://x/f/1"), true)
	require.NoError(t, err)

	_, _, err = st.PersistListing(ctx, sampleCenter(), "lingua plus", sampleTraining("https://x/f/2"), true)
	assert.ErrorIs(t, err, ErrDuplicatePolicy)

	// Re-surfacing the same listing is an update, not a policy violation.
	_, created, err := st.PersistListing(ctx, sampleCenter(), "lingua plus", sampleTraining("https://x/f/1"), true)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestBacklogOrdering(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id1, _, err := st.PersistListing(ctx, sampleCenter(), "lingua plus", sampleTraining("https://x/f/1"), false)
	require.NoError(t, err)
	id2, _, err := st.PersistListing(ctx, sampleCenter(), "lingua plus", sampleTraining("https://x/f/2"), false)
	require.NoError(t, err)

	// Both rows share a timestamp from the listing pass; the lower id
	// comes out first.
	tr, err := st.NextPendingDetail(ctx)
	require.NoError(t, err)
	assert.Equal(t, id1, tr.ID)

	// A failed attempt cycles the item behind its sibling.
	require.NoError(t, st.TouchDetailAttempt(ctx, id1))
	tr, err = st.NextPendingDetail(ctx)
	require.NoError(t, err)
	assert.Equal(t, id2, tr.ID)

	count, err := st.PendingDetailCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, st.MarkDetailDone(ctx, id1))
	require.NoError(t, st.MarkDetailDone(ctx, id2))
	count, err = st.PendingDetailCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestApplyEnrichment(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id, _, err := st.PersistListing(ctx, sampleCenter(), "lingua plus", sampleTraining("https://x/f/1"), false)
	require.NoError(t, err)
	tr, err := st.NextPendingDetail(ctx)
	require.NoError(t, err)

	price := 1290.5
	hours := int64(40)
	err = st.ApplyEnrichment(ctx, Enrichment{
		TrainingID:    id,
		CenterID:      tr.CenterID,
		PriceText:     "1 290,50 €",
		Price:         &price,
		DurationText:  "40 heures",
		DurationHours: &hours,
		Summary:       "Cours intensif",
		RawDetail:     `{"k":"v"}`,
		CenterAddress: CenterInput{
			Email:   "contact@lingua.fr",
			Phone:   "01 23 45 67 89",
			Website: "https://lingua.fr",
		},
	})
	require.NoError(t, err)

	got, err := st.TrainingByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.NeedsDetail)
	require.NotNil(t, got.Price)
	assert.Equal(t, 1290.5, *got.Price)
	require.NotNil(t, got.DurationHours)
	assert.Equal(t, int64(40), *got.DurationHours)
	assert.Equal(t, "Cours intensif", got.Summary)

	c, err := st.CenterByID(ctx, tr.CenterID)
	require.NoError(t, err)
	assert.Equal(t, "contact@lingua.fr", c.Email)
	assert.Equal(t, "https://lingua.fr", c.Website)
	assert.NotNil(t, c.LastDetailScrapedAt)
	// The enrichment pass must not pose as a fresh listing pass.
	assert.Equal(t, "Paris", c.City)
}

func TestApplyRegistry(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, _, err := st.PersistListing(ctx, sampleCenter(), "lingua plus", sampleTraining("https://x/f/1"), false)
	require.NoError(t, err)

	missing, err := st.CentersMissingRegistry(ctx, 0)
	require.NoError(t, err)
	require.Len(t, missing, 1)

	trainees := int64(120)
	err = st.ApplyRegistry(ctx, missing[0].ID, RegistryUpdate{
		Siren:            "123456789",
		Siret:            "12345678900011",
		DeclaredTrainees: &trainees,
		FiscalYearStart:  "2024-01-01",
		RegistryRaw:      `{"denomination":"LINGUA PLUS"}`,
	})
	require.NoError(t, err)

	c, err := st.CenterByID(ctx, missing[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "123456789", c.Siren)
	require.NotNil(t, c.DeclaredTrainees)
	assert.Equal(t, int64(120), *c.DeclaredTrainees)
	assert.NotNil(t, c.RegistrySyncedAt)

	missing, err = st.CentersMissingRegistry(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestExportPaging(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		center := sampleCenter()
		center.Name = "Centre " + string(rune('A'+i))
		url := "https://x/f/" + string(rune('1'+i))
		_, _, err := st.PersistListing(ctx, center, "centre "+string(rune('a'+i)), sampleTraining(url), false)
		require.NoError(t, err)
	}

	centerMax, trainingMax, err := st.MaxIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), centerMax)
	assert.Equal(t, int64(5), trainingMax)

	page, err := st.CentersPage(ctx, 0, centerMax, 2, nil, false)
	require.NoError(t, err)
	require.Len(t, page, 2)

	page, err = st.CentersPage(ctx, page[1].ID, centerMax, 10, nil, false)
	require.NoError(t, err)
	assert.Len(t, page, 3)

	trainings, err := st.TrainingsPage(ctx, 0, trainingMax, 10, nil)
	require.NoError(t, err)
	assert.Len(t, trainings, 5)
}

func TestCentersPageCleanFilter(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	clean := sampleCenter()
	clean.Email = "a@b.fr"
	clean.Phone = "0102030405"
	_, _, err := st.PersistListing(ctx, clean, "clean", sampleTraining("https://x/f/1"), false)
	require.NoError(t, err)

	dirty := CenterInput{Name: "Sans Contact"}
	_, _, err = st.PersistListing(ctx, dirty, "sans contact", sampleTraining("https://x/f/2"), false)
	require.NoError(t, err)

	c, err := st.CenterByNormalizedName(ctx, "clean")
	require.NoError(t, err)
	require.NoError(t, st.ApplyRegistry(ctx, c.ID, RegistryUpdate{Siren: "123456789", Siret: "12345678900011"}))

	page, err := st.CentersPage(ctx, 0, 100, 10, nil, true)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "clean", page[0].NormalizedName)
}

func TestCentersPageCreatedAfter(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, _, err := st.PersistListing(ctx, sampleCenter(), "lingua plus", sampleTraining("https://x/f/1"), false)
	require.NoError(t, err)

	future := time.Now().UTC().Add(time.Hour)
	page, err := st.CentersPage(ctx, 0, 100, 10, &future, false)
	require.NoError(t, err)
	assert.Empty(t, page)

	past := time.Now().UTC().Add(-time.Hour)
	page, err = st.CentersPage(ctx, 0, 100, 10, &past, false)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestTrainingTitleIndex(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tr := sampleTraining("https://x/f/1")
	tr.Title = "Préparation VAE"
	_, _, err := st.PersistListing(ctx, sampleCenter(), "lingua plus", tr, false)
	require.NoError(t, err)

	refs, err := st.TrainingTitleIndex(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "Préparation VAE", refs[0].Title)
	assert.Greater(t, refs[0].CenterID, int64(0))
}

func TestClear(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, _, err := st.PersistListing(ctx, sampleCenter(), "lingua plus", sampleTraining("https://x/f/1"), false)
	require.NoError(t, err)

	trainings, centers, err := st.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), trainings)
	assert.Equal(t, int64(1), centers)

	count, err := st.PendingDetailCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
