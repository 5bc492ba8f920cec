package crossmatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinderlab/tnsmarshal/internal/conf"
	"github.com/kinderlab/tnsmarshal/internal/datastore"
)

func newTestStore(t *testing.T) datastore.Interface {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "test.db")

	store := datastore.New(settings, slog.Default())
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedDB(t *testing.T, store datastore.Interface) *datastore.SQLiteStore {
	t.Helper()
	sqlite, ok := store.(*datastore.SQLiteStore)
	require.True(t, ok)
	return sqlite
}

func makeTarget(t *testing.T, store datastore.Interface, name string, ra, dec float64) *datastore.TransientObject {
	t.Helper()
	var objID int64
	for _, b := range []byte(name) {
		objID = objID*31 + int64(b)
	}
	obj := &datastore.TransientObject{
		ObjID:       objID,
		Name:        name,
		RA:          ra,
		Declination: dec,
		Inbox:       true,
	}
	require.NoError(t, store.InsertObjects([]*datastore.TransientObject{obj}))
	return obj
}

func TestSeparation(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0.0, Separation(150, 2, 150, 2), 1e-9)

	// A pure declination offset maps 1:1 to angular separation.
	assert.InDelta(t, 30.0, Separation(150, 0, 150, 30.0/3600), 1e-6)

	// An RA offset shrinks with cos(dec).
	sep := Separation(150, 60, 150+30.0/3600, 60)
	assert.InDelta(t, 15.0, sep, 0.01)
}

func TestSearchBoxIsSquare(t *testing.T) {
	t.Parallel()
	box := SearchBox(150, 60, 30)
	delta := 30.0 / 3600
	assert.InDelta(t, 150-delta, box.RAMin, 1e-9)
	assert.InDelta(t, 150+delta, box.RAMax, 1e-9)
	assert.InDelta(t, 60-delta, box.DecMin, 1e-9)
	assert.InDelta(t, 60+delta, box.DecMax, 1e-9)
}

func TestMatchObjectRadiusBoundary(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	db := seedDB(t, store)
	obj := makeTarget(t, store, "2025aaa", 150, 0)

	inside := 20.0 / 3600
	boundary := 30.0 / 3600
	// Inside the square box but outside the circular radius.
	corner := 29.0 / 3600
	require.NoError(t, db.DB.Create(&datastore.DESIGalaxy{TargetID: 1, RA: 150, Dec: inside}).Error)
	require.NoError(t, db.DB.Create(&datastore.DESIGalaxy{TargetID: 2, RA: 150, Dec: boundary}).Error)
	require.NoError(t, db.DB.Create(&datastore.DESIGalaxy{TargetID: 3, RA: 150 + corner, Dec: corner}).Error)

	engine := New(store, DefaultCatalogs(store, 30, 15), 1, nil, nil)
	t.Cleanup(engine.Close)

	matches, candidateErrors := engine.MatchObject(obj, engine.Catalogs()[0])
	require.Zero(t, candidateErrors)
	require.Len(t, matches, 2, "boundary candidate included, corner candidate rejected")

	assert.InDelta(t, 20.0, matches[0].SeparationArcsec, 0.01)
	assert.InDelta(t, 30.0, matches[1].SeparationArcsec, 0.01)
}

func TestMatchObjectRespectsConfirmedHost(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	db := seedDB(t, store)
	obj := makeTarget(t, store, "2025bbb", 10, -5)

	saved, err := store.SaveCrossMatches([]datastore.CrossMatchResult{
		{TargetName: "2025bbb", CatalogName: "desi", SeparationArcsec: 25, IsHost: true},
	})
	require.NoError(t, err)
	require.Equal(t, 1, saved)

	require.NoError(t, db.DB.Create(&datastore.DESIGalaxy{TargetID: 9, RA: 10, Dec: -5 + 10.0/3600}).Error)

	engine := New(store, DefaultCatalogs(store, 30, 15), 1, nil, nil)
	t.Cleanup(engine.Close)

	byCatalog, _ := engine.matchAll(obj)
	require.Len(t, byCatalog["desi"], 1)
	assert.False(t, byCatalog["desi"][0].IsHost, "operator-confirmed host must not be displaced")
}

func TestHostFlagUniqueAcrossCatalogs(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	obj := makeTarget(t, store, "2025eee", 80, 10)

	galaxies := stubCatalog{name: "galaxies", radius: 30, candidates: []Candidate{
		stubCandidate{ra: 80, dec: 10 + 20.0/3600, payload: `{"id":1}`},
	}}
	lenses := stubCatalog{name: "lenses", radius: 15, candidates: []Candidate{
		stubCandidate{ra: 80, dec: 10 + 5.0/3600, payload: `{"id":2}`},
		stubCandidate{ra: 80, dec: 10 + 9.0/3600, payload: `{"id":3}`},
	}}
	engine := New(store, []Catalog{galaxies, lenses}, 1, nil, nil)
	t.Cleanup(engine.Close)

	byCatalog, candidateErrors := engine.matchAll(obj)
	require.Zero(t, candidateErrors)
	require.Len(t, byCatalog["galaxies"], 1)
	require.Len(t, byCatalog["lenses"], 2)

	hosts := 0
	for _, matches := range byCatalog {
		for _, m := range matches {
			if m.IsHost {
				hosts++
				assert.Equal(t, "lenses", m.CatalogName)
				assert.InDelta(t, 5.0, m.SeparationArcsec, 0.01)
			}
		}
	}
	assert.Equal(t, 1, hosts, "exactly one host candidate across all catalogs")
}

// failingCatalog simulates an unreachable reference catalog.
type failingCatalog struct{}

func (failingCatalog) Name() string          { return "broken" }
func (failingCatalog) RadiusArcsec() float64 { return 30 }
func (failingCatalog) CandidatesInBox(datastore.Box) ([]Candidate, error) {
	return nil, fmt.Errorf("catalog database unavailable")
}

// badCandidate fails payload serialization.
type badCandidate struct{ ra, dec float64 }

func (c badCandidate) Position() (float64, float64) { return c.ra, c.dec }
func (c badCandidate) Payload() (string, error)     { return "", fmt.Errorf("corrupt row") }

// stubCatalog serves a fixed candidate list.
type stubCatalog struct {
	name       string
	radius     float64
	candidates []Candidate
}

func (c stubCatalog) Name() string          { return c.name }
func (c stubCatalog) RadiusArcsec() float64 { return c.radius }
func (c stubCatalog) CandidatesInBox(datastore.Box) ([]Candidate, error) {
	return c.candidates, nil
}

type stubCandidate struct {
	ra, dec float64
	payload string
}

func (c stubCandidate) Position() (float64, float64) { return c.ra, c.dec }
func (c stubCandidate) Payload() (string, error)     { return c.payload, nil }

func TestCatalogFailureDegradesToEmpty(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	obj := makeTarget(t, store, "2025ccc", 50, 50)

	good := stubCatalog{name: "stub", radius: 30, candidates: []Candidate{
		stubCandidate{ra: 50, dec: 50 + 5.0/3600, payload: `{"id":1}`},
	}}
	engine := New(store, []Catalog{failingCatalog{}, good}, 2, nil, nil)
	t.Cleanup(engine.Close)

	result, err := engine.Run(context.Background(), []datastore.TransientObject{*obj})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Objects)
	assert.Zero(t, result.MatchesByCat["broken"])
	assert.Equal(t, 1, result.MatchesByCat["stub"], "healthy catalogs still run after a failure")
	assert.Equal(t, 1, result.Saved)
}

func TestCandidateFailureIsIsolated(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	obj := makeTarget(t, store, "2025ddd", 50, 50)

	catalog := stubCatalog{name: "stub", radius: 30, candidates: []Candidate{
		badCandidate{ra: 50, dec: 50 + 3.0/3600},
		stubCandidate{ra: 50, dec: 50 + 6.0/3600, payload: `{"id":2}`},
	}}
	engine := New(store, []Catalog{catalog}, 1, nil, nil)
	t.Cleanup(engine.Close)

	matches, candidateErrors := engine.MatchObject(obj, catalog)
	assert.Equal(t, 1, candidateErrors)
	require.Len(t, matches, 1, "one bad candidate must not sink the rest")
}

func TestRunAcrossWorkerPool(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	db := seedDB(t, store)

	var objects []datastore.TransientObject
	for i := 0; i < 20; i++ {
		ra := float64(i) * 10.0
		obj := makeTarget(t, store, fmt.Sprintf("2025w%02d", i), ra, 5)
		require.NoError(t, db.DB.Create(&datastore.DESIGalaxy{
			TargetID: int64(1000 + i), RA: ra, Dec: 5 + 8.0/3600,
		}).Error)
		objects = append(objects, *obj)
	}

	engine := New(store, DefaultCatalogs(store, 30, 15), 4, nil, nil)
	t.Cleanup(engine.Close)

	result, err := engine.Run(context.Background(), objects)
	require.NoError(t, err)
	assert.Equal(t, 20, result.Objects)
	assert.Equal(t, 20, result.MatchesByCat["desi"])
	assert.Equal(t, 20, result.Saved)

	// A second run stores nothing new.
	result, err = engine.Run(context.Background(), objects)
	require.NoError(t, err)
	assert.Zero(t, result.Saved)
}
