package export

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"formascrape/config"
	"formascrape/internal/store"
)

// fakeSource serves in-memory rows through the paged read interface.
type fakeSource struct {
	centers   []*store.Center
	trainings []*store.Training
}

func (f *fakeSource) MaxIDs(context.Context) (int64, int64, error) {
	var cMax, tMax int64
	for _, c := range f.centers {
		if c.ID > cMax {
			cMax = c.ID
		}
	}
	for _, tr := range f.trainings {
		if tr.ID > tMax {
			tMax = tr.ID
		}
	}
	return cMax, tMax, nil
}

func (f *fakeSource) CentersPage(_ context.Context, afterID, maxID int64, limit int, createdAfter *time.Time, cleanOnly bool) ([]*store.Center, error) {
	var page []*store.Center
	for _, c := range f.centers {
		if c.ID <= afterID || c.ID > maxID {
			continue
		}
		if createdAfter != nil && c.CreatedAt.Before(*createdAfter) {
			continue
		}
		if cleanOnly && (c.Siren == "" || c.Siret == "" || c.City == "" || c.Email == "" || (c.Phone == "" && c.Website == "")) {
			continue
		}
		page = append(page, c)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (f *fakeSource) TrainingsPage(_ context.Context, afterID, maxID int64, limit int, createdAfter *time.Time) ([]*store.Training, error) {
	var page []*store.Training
	for _, tr := range f.trainings {
		if tr.ID <= afterID || tr.ID > maxID {
			continue
		}
		if createdAfter != nil && tr.CreatedAt.Before(*createdAfter) {
			continue
		}
		page = append(page, tr)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (f *fakeSource) TrainingTitleIndex(context.Context) ([]store.TitleRef, error) {
	var refs []store.TitleRef
	for _, tr := range f.trainings {
		refs = append(refs, store.TitleRef{ID: tr.ID, CenterID: tr.CenterID, Title: tr.Title})
	}
	return refs, nil
}

func exportConfig(t *testing.T) *config.Config {
	cfg := config.LoadConfig()
	cfg.ExportDir = t.TempDir()
	cfg.DBPageSize = 2
	return &cfg
}

func seededSource(n int) *fakeSource {
	src := &fakeSource{}
	now := time.Now().UTC()
	for i := 1; i <= n; i++ {
		src.centers = append(src.centers, &store.Center{
			ID:        int64(i),
			Name:      fmt.Sprintf("Centre %d", i),
			Region:    "Bretagne",
			Website:   fmt.Sprintf("https://centre%d.fr", i),
			CreatedAt: now,
			UpdatedAt: now,
		})
		src.trainings = append(src.trainings, &store.Training{
			ID:        int64(i),
			CenterID:  int64(i),
			Title:     fmt.Sprintf("Formation %d", i),
			DetailURL: fmt.Sprintf("https://x/f/%d", i),
			Region:    "Bretagne",
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return src
}

func TestExportWritesWorkbook(t *testing.T) {
	cfg := exportConfig(t)
	e := New(cfg, seededSource(3))

	paths, err := e.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, paths, 1)

	f, err := excelize.OpenFile(paths[0])
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{sheetCenters, sheetTrainings, sheetRegions}, f.GetSheetList())

	rows, err := f.GetRows(sheetCenters)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Centre 1", rows[1][1])

	rows, err = f.GetRows(sheetTrainings)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	rows, err = f.GetRows(sheetRegions)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Bretagne", rows[1][0])
	assert.Equal(t, "3", rows[1][1])
	assert.Equal(t, "3", rows[1][2])
}

func TestExportCentersOnly(t *testing.T) {
	cfg := exportConfig(t)
	e := New(cfg, seededSource(2))

	paths, err := e.Run(context.Background(), Options{CentersOnly: true})
	require.NoError(t, err)
	require.Len(t, paths, 1)

	f, err := excelize.OpenFile(paths[0])
	require.NoError(t, err)
	defer f.Close()
	assert.NotContains(t, f.GetSheetList(), sheetTrainings)
}

func TestExportTitleFilterCascades(t *testing.T) {
	src := seededSource(3)
	src.trainings[1].Title = "Préparation VAE complète"
	cfg := exportConfig(t)
	e := New(cfg, src)

	// Diacritic and case insensitive: "preparation" matches "Préparation".
	paths, err := e.Run(context.Background(), Options{TitleFilter: "PREPARATION"})
	require.NoError(t, err)
	require.Len(t, paths, 1)

	f, err := excelize.OpenFile(paths[0])
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetTrainings)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Préparation VAE complète", rows[1][2])

	rows, err = f.GetRows(sheetCenters)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Centre 2", rows[1][1])
}

func TestExportSplitsOversizedWorkbooks(t *testing.T) {
	cfg := exportConfig(t)
	// Far below any real workbook size, forcing bisection down to single
	// id ranges.
	cfg.ExportMaxBytes = 1
	e := New(cfg, seededSource(4))

	paths, err := e.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Greater(t, len(paths), 1)

	total := 0
	for _, p := range paths {
		f, err := excelize.OpenFile(p)
		require.NoError(t, err)
		rows, err := f.GetRows(sheetCenters)
		require.NoError(t, err)
		total += len(rows) - 1
		f.Close()
	}
	assert.Equal(t, 4, total)
}

func TestExportNothingToExport(t *testing.T) {
	cfg := exportConfig(t)
	e := New(cfg, &fakeSource{})
	_, err := e.Run(context.Background(), Options{})
	assert.Error(t, err)
}

func TestBisect(t *testing.T) {
	left, right := bisect(idRange{0, 10})
	assert.Equal(t, idRange{0, 5}, left)
	assert.Equal(t, idRange{5, 10}, right)

	left, right = bisect(idRange{4, 5})
	assert.Equal(t, idRange{4, 5}, left)
	assert.True(t, right.empty())
}
