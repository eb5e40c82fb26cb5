package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formascrape/config"
	"formascrape/internal/store"
)

type fakeIndex struct {
	centers []*store.Center
	applied map[int64]store.RegistryUpdate
}

func (f *fakeIndex) CentersMissingRegistry(context.Context, int) ([]*store.Center, error) {
	return f.centers, nil
}

func (f *fakeIndex) ApplyRegistry(_ context.Context, centerID int64, u store.RegistryUpdate) error {
	if f.applied == nil {
		f.applied = make(map[int64]store.RegistryUpdate)
	}
	f.applied[centerID] = u
	return nil
}

func syncConfig() *config.Config {
	cfg := config.LoadConfig()
	cfg.DelayMin = 0
	cfg.DelayMax = time.Millisecond
	return &cfg
}

func TestSyncerAppliesMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Lingua Plus", r.URL.Query().Get("denomination__contains"))
		fmt.Fprint(w, `{"data":[
			{"denomination":"LINGUA PLUS","siren":"111111111",
			 "siretetablissementdeclarant":"11111111100011",
			 "nbstagiaires":120,"datedeclaration":"2024-03-15"}
		]}`)
	}))
	defer srv.Close()

	index := &fakeIndex{centers: []*store.Center{
		{ID: 1, Name: "Lingua Plus", NormalizedName: "lingua plus"},
	}}
	client := NewClient(srv.URL, 20, 0, 5*time.Second)
	syncer := NewSyncer(syncConfig(), index, client)

	stats, err := syncer.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Scanned)
	assert.Equal(t, 1, stats.Matched)
	require.Contains(t, index.applied, int64(1))
	u := index.applied[1]
	assert.Equal(t, "111111111", u.Siren)
	assert.Equal(t, "11111111100011", u.Siret)
	require.NotNil(t, u.DeclaredTrainees)
	assert.Equal(t, int64(120), *u.DeclaredTrainees)
	assert.NotEmpty(t, u.RegistryRaw)
}

func TestSyncerLeavesUnmatchedUntouched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":[{"denomination":"AUTRE CHOSE","siren":"999999999"}]}`)
	}))
	defer srv.Close()

	index := &fakeIndex{centers: []*store.Center{
		{ID: 1, Name: "Lingua Plus", NormalizedName: "lingua plus"},
	}}
	syncer := NewSyncer(syncConfig(), index, NewClient(srv.URL, 20, 0, 5*time.Second))

	stats, err := syncer.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Unmatched)
	assert.Empty(t, index.applied)
}

func TestSyncerSkipsFailedLookups(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	index := &fakeIndex{centers: []*store.Center{
		{ID: 1, Name: "Lingua Plus", NormalizedName: "lingua plus"},
		{ID: 2, Name: "Lingua Plus", NormalizedName: "lingua plus"},
	}}
	syncer := NewSyncer(syncConfig(), index, NewClient(srv.URL, 20, 0, time.Second))

	stats, err := syncer.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Failed)
	assert.Empty(t, index.applied)
}

func TestClientCapsRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"denomination":"A"},{"denomination":"B"},{"denomination":"C"}
		]}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 2, 0, time.Second)
	records, err := client.Search(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
