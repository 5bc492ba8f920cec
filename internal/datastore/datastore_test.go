package datastore

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kinderlab/tnsmarshal/internal/workflow"
)

func newTestStore(t *testing.T) *DataStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{Logger: createGormLogger(false)})
	require.NoError(t, err)

	ds := &DataStore{DB: db, Logger: slog.Default()}
	require.NoError(t, performAutoMigration(db, ds.Logger, "SQLite", dbPath))

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})
	return ds
}

func makeObject(objID int64, name string, lastModified time.Time) *TransientObject {
	return &TransientObject{
		ObjID:         objID,
		NamePrefix:    "AT",
		Name:          name,
		RA:            150.0,
		Declination:   2.0,
		DiscoveryDate: lastModified.AddDate(0, 0, -1),
		LastModified:  lastModified,
		Inbox:         true,
	}
}

func TestInsertAndLookupObjects(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, ds.InsertObjects([]*TransientObject{
		makeObject(101, "2025abc", now),
		makeObject(102, "2025abd", now),
	}))

	stamps, err := ds.LastModifiedByObjID([]int64{101, 102, 999})
	require.NoError(t, err)
	assert.Len(t, stamps, 2)
	assert.True(t, stamps[101].Equal(now))

	obj, err := ds.GetObject("2025abc")
	require.NoError(t, err)
	assert.Equal(t, int64(101), obj.ObjID)

	// Case-insensitive and display-name fallbacks.
	obj, err = ds.GetObject("2025ABC")
	require.NoError(t, err)
	assert.Equal(t, "2025abc", obj.Name)

	obj, err = ds.GetObject("AT 2025abd")
	require.NoError(t, err)
	assert.Equal(t, "2025abd", obj.Name)

	_, err = ds.GetObject("2099zzz")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestRefreshObjectsReactivatesSnoozed(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	obj := makeObject(201, "2025xyz", now)
	require.NoError(t, ds.InsertObjects([]*TransientObject{obj}))

	_, err := ds.UpdateObjectFlags("2025xyz", workflow.Flags{Snoozed: true})
	require.NoError(t, err)

	updated := makeObject(201, "2025xyz", now.Add(time.Hour))
	updated.Type = "SN Ia"
	require.NoError(t, ds.RefreshObjects([]*TransientObject{updated}))

	got, err := ds.GetObject("2025xyz")
	require.NoError(t, err)
	assert.Equal(t, "SN Ia", got.Type)
	assert.True(t, got.Inbox, "catalog update should pull the object back into the inbox")
	assert.False(t, got.Snoozed)
	assert.Equal(t, 1, got.UpdateCount)
	assert.True(t, got.LastModified.After(now))
}

func TestUpdateObjectFlags(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, ds.InsertObjects([]*TransientObject{makeObject(301, "2025flw", now)}))

	f, err := workflow.Apply(workflow.Initial(), workflow.TagFollowup)
	require.NoError(t, err)
	rows, err := ds.UpdateObjectFlags("2025flw", f)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	got, err := ds.GetObject("2025flw")
	require.NoError(t, err)
	assert.Equal(t, workflow.TagFollowup, workflow.EffectiveTag(got.Flags()))

	rows, err = ds.UpdateObjectFlags("2099nope", f)
	require.NoError(t, err)
	assert.Zero(t, rows)
}

func TestSearchObjectsByTagAndType(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	now := time.Now().UTC()

	objects := []*TransientObject{
		makeObject(401, "2025aaa", now),
		makeObject(402, "2025bbb", now),
		makeObject(403, "2025ccc", now),
	}
	objects[1].Type = "SN Ia"
	require.NoError(t, ds.InsertObjects(objects))

	f, err := workflow.Apply(workflow.Initial(), workflow.TagSnoozed)
	require.NoError(t, err)
	_, err = ds.UpdateObjectFlags("2025ccc", f)
	require.NoError(t, err)

	inbox, err := ds.SearchObjects(SearchFilter{Tag: workflow.TagObject})
	require.NoError(t, err)
	assert.Len(t, inbox, 2)

	snoozed, err := ds.SearchObjects(SearchFilter{Tag: workflow.TagSnoozed})
	require.NoError(t, err)
	require.Len(t, snoozed, 1)
	assert.Equal(t, "2025ccc", snoozed[0].Name)

	// The AT pseudo-type covers unclassified rows.
	ats, err := ds.SearchObjects(SearchFilter{Type: "AT"})
	require.NoError(t, err)
	assert.Len(t, ats, 2)

	count, err := ds.CountObjects(SearchFilter{Type: "SN Ia"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	stats, err := ds.TagStatistics()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats[workflow.TagObject])
	assert.Equal(t, int64(1), stats[workflow.TagSnoozed])
}

func TestExpiryCandidates(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	now := time.Now().UTC()

	stale := makeObject(501, "2025old", now.AddDate(0, 0, -30))
	fresh := makeObject(502, "2025new", now)
	staleButObserved := makeObject(503, "2025obs", now.AddDate(0, 0, -30))
	photometry := now.AddDate(0, 0, -2)
	staleButObserved.LastPhotometryDate = &photometry
	require.NoError(t, ds.InsertObjects([]*TransientObject{stale, fresh, staleButObserved}))

	cutoff := now.AddDate(0, 0, -15)
	candidates, err := ds.ExpiryCandidates(cutoff)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "2025old", candidates[0].Name)

	// Snoozed objects never expire again.
	f, err := workflow.Apply(workflow.Initial(), workflow.TagSnoozed)
	require.NoError(t, err)
	_, err = ds.UpdateObjectFlags("2025old", f)
	require.NoError(t, err)

	candidates, err = ds.ExpiryCandidates(cutoff)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	awake, err := ds.SnoozedActiveSince(cutoff)
	require.NoError(t, err)
	assert.Empty(t, awake, "stale snoozed object should stay asleep")
}

func TestSaveCrossMatchesDedupes(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)

	results := []CrossMatchResult{
		{TargetName: "2025abc", CatalogName: "desi", SeparationArcsec: 12.5, MatchData: `{"targetid":1}`},
		{TargetName: "2025abc", CatalogName: "desi", SeparationArcsec: 20.0, MatchData: `{"targetid":2}`},
	}
	saved, err := ds.SaveCrossMatches(results)
	require.NoError(t, err)
	assert.Equal(t, 2, saved)

	// Re-running the same match set inserts nothing new.
	saved, err = ds.SaveCrossMatches([]CrossMatchResult{
		{TargetName: "2025abc", CatalogName: "desi", SeparationArcsec: 12.50000001},
	})
	require.NoError(t, err)
	assert.Zero(t, saved)

	// Same separation against a different catalog is a distinct match.
	saved, err = ds.SaveCrossMatches([]CrossMatchResult{
		{TargetName: "2025abc", CatalogName: TableLensHsu, SeparationArcsec: 12.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, saved)

	dates, err := ds.CrossMatchDates()
	require.NoError(t, err)
	require.Len(t, dates, 1)

	today, err := ds.CrossMatchesForDate(dates[0])
	require.NoError(t, err)
	assert.Len(t, today, 3)
}

func TestHostSelection(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)

	_, err := ds.SaveCrossMatches([]CrossMatchResult{
		{TargetName: "2025abc", CatalogName: "desi", SeparationArcsec: 5.0},
		{TargetName: "2025abc", CatalogName: "desi", SeparationArcsec: 9.0},
	})
	require.NoError(t, err)

	matches, err := ds.CrossMatchesForDate(time.Now().UTC().Format("2006-01-02"))
	require.NoError(t, err)
	require.Len(t, matches, 2)

	require.NoError(t, ds.SetHost(matches[1].ID, "2025abc"))
	exists, err := ds.HostExists("2025abc")
	require.NoError(t, err)
	assert.True(t, exists)

	// Moving the host flag clears the previous holder.
	require.NoError(t, ds.SetHost(matches[0].ID, "2025abc"))
	m, err := ds.GetCrossMatch(matches[1].ID)
	require.NoError(t, err)
	assert.False(t, m.IsHost)

	require.NoError(t, ds.UnsetHost("2025abc"))
	exists, err = ds.HostExists("2025abc")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.ErrorIs(t, ds.SetHost(9999, "2025abc"), ErrMatchNotFound)
}

func TestCatalogBoxQueries(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)

	require.NoError(t, ds.DB.Create(&DESIGalaxy{TargetID: 1, RA: 150.0, Dec: 2.0}).Error)
	require.NoError(t, ds.DB.Create(&DESIGalaxy{TargetID: 2, RA: 150.5, Dec: 2.0}).Error)
	require.NoError(t, ds.DB.Table(TableLensHsu).Create(&LensCandidate{Name: "HSU-1", RA: 150.0, Dec: 2.001}).Error)

	box := Box{RAMin: 149.99, RAMax: 150.01, DecMin: 1.99, DecMax: 2.01}
	galaxies, err := ds.GalaxiesInBox(box)
	require.NoError(t, err)
	require.Len(t, galaxies, 1)
	assert.Equal(t, int64(1), galaxies[0].TargetID)

	lenses, err := ds.LensesInBox(TableLensHsu, box)
	require.NoError(t, err)
	assert.Len(t, lenses, 1)

	_, err = ds.LensesInBox("lens_bogus", box)
	assert.Error(t, err)
}

func TestPhotometryActivitySync(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, ds.InsertObjects([]*TransientObject{makeObject(601, "2025pho", now.AddDate(0, 0, -20))}))

	mag1, mag2 := 18.5, 17.9
	require.NoError(t, ds.SavePhotometry([]PhotometryPoint{
		{ObjectName: "2025pho", MJD: 60900.0, Magnitude: &mag1, Filter: "r"},
		{ObjectName: "2025pho", MJD: 60905.0, Magnitude: &mag2, Filter: "r"},
	}))

	obj, err := ds.GetObject("2025pho")
	require.NoError(t, err)
	require.NotNil(t, obj.LastPhotometryDate)
	assert.Equal(t, mjdToTime(60905.0), obj.LastPhotometryDate.UTC())

	brightest, err := ds.BrightestMagnitude("2025pho")
	require.NoError(t, err)
	require.NotNil(t, brightest)
	assert.Equal(t, 17.9, *brightest)

	points, err := ds.GetPhotometry("2025pho")
	require.NoError(t, err)
	require.Len(t, points, 2)

	// Removing the newest point rolls the activity stamp back.
	require.NoError(t, ds.DeletePhotometryPoint(points[1].ID))
	obj, err = ds.GetObject("2025pho")
	require.NoError(t, err)
	require.NotNil(t, obj.LastPhotometryDate)
	assert.Equal(t, mjdToTime(60900.0), obj.LastPhotometryDate.UTC())
}

func TestDownloadLogLifecycle(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)

	log := &DownloadLog{RunID: "run-1", Filename: "tns_public_objects_20250901.csv"}
	require.NoError(t, ds.StartDownloadLog(log))
	assert.Equal(t, DownloadInProgress, log.Status)
	require.NotZero(t, log.ID)

	require.NoError(t, ds.FinishDownloadLog(log.ID, DownloadCompleted, 10, 5, 985, ""))

	recent, err := ds.RecentDownloads(5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, DownloadCompleted, recent[0].Status)
	assert.Equal(t, 10, recent[0].RecordsImported)
	assert.NotNil(t, recent[0].CompletedAt)

	err = ds.FinishDownloadLog(9999, DownloadFailed, 0, 0, 0, "boom")
	assert.Error(t, err)
}
