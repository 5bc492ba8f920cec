package expiry

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinderlab/tnsmarshal/internal/conf"
	"github.com/kinderlab/tnsmarshal/internal/datastore"
	"github.com/kinderlab/tnsmarshal/internal/workflow"
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

func newService(t *testing.T, store datastore.Interface, thresholdDays int, now time.Time) *Service {
	t.Helper()
	svc := New(store, &conf.ExpirySettings{ThresholdDays: thresholdDays, RunAt: "00:20"}, nil, nil)
	svc.now = func() time.Time { return now }
	t.Cleanup(svc.Close)
	return svc
}

func seed(t *testing.T, store datastore.Interface, objID int64, name string, lastModified time.Time) {
	t.Helper()
	require.NoError(t, store.InsertObjects([]*datastore.TransientObject{{
		ObjID:        objID,
		Name:         name,
		RA:           150,
		Declination:  2,
		LastModified: lastModified,
		Inbox:        true,
	}}))
}

func TestRunSnoozesInactiveObjects(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	seed(t, store, 1, "2025old", now.AddDate(0, 0, -20))
	seed(t, store, 2, "2025new", now.AddDate(0, 0, -3))

	svc := newService(t, store, 15, now)
	result, err := svc.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Examined)
	assert.Equal(t, 1, result.Snoozed)
	assert.Zero(t, result.Reactivated)

	old, err := store.GetObject("2025old")
	require.NoError(t, err)
	assert.Equal(t, workflow.TagSnoozed, workflow.EffectiveTag(old.Flags()))

	fresh, err := store.GetObject("2025new")
	require.NoError(t, err)
	assert.Equal(t, workflow.TagObject, workflow.EffectiveTag(fresh.Flags()))
}

func TestRunClosesOutFollowupOnSnooze(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	seed(t, store, 1, "2025flw", now.AddDate(0, 0, -30))
	flags, err := workflow.Apply(workflow.Initial(), workflow.TagFollowup)
	require.NoError(t, err)
	_, err = store.UpdateObjectFlags("2025flw", flags)
	require.NoError(t, err)

	svc := newService(t, store, 15, now)
	result, err := svc.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Snoozed)

	obj, err := store.GetObject("2025flw")
	require.NoError(t, err)
	assert.True(t, obj.FinishFollow, "snoozing a followed object closes the follow-up out")
	assert.False(t, obj.Inbox)
}

func TestRunIsReentrant(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	seed(t, store, 1, "2025old", now.AddDate(0, 0, -20))
	svc := newService(t, store, 15, now)

	first, err := svc.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, first.Snoozed)

	second, err := svc.Run()
	require.NoError(t, err)
	assert.Zero(t, second.Examined, "already snoozed objects never re-expire")
	assert.Zero(t, second.Snoozed)
}

func TestRunReactivatesSnoozedWithRecentActivity(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	seed(t, store, 1, "2025wake", now.AddDate(0, 0, -2))
	flags, err := workflow.Apply(workflow.Initial(), workflow.TagSnoozed)
	require.NoError(t, err)
	_, err = store.UpdateObjectFlags("2025wake", flags)
	require.NoError(t, err)

	svc := newService(t, store, 15, now)
	result, err := svc.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reactivated)

	obj, err := store.GetObject("2025wake")
	require.NoError(t, err)
	assert.Equal(t, workflow.TagObject, workflow.EffectiveTag(obj.Flags()))
}

func TestRunUsesPhotometryActivity(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	// Catalog row is stale but recent photometry keeps the object active.
	seed(t, store, 1, "2025pho", now.AddDate(0, 0, -40))
	mag := 18.0
	require.NoError(t, store.SavePhotometry([]datastore.PhotometryPoint{
		{ObjectName: "2025pho", MJD: 60920.0, Magnitude: &mag, Filter: "r"},
	}))

	svc := newService(t, store, 15, now)
	result, err := svc.Run()
	require.NoError(t, err)
	assert.Zero(t, result.Snoozed)
}

func TestNextRunSchedule(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	svc := newService(t, store, 15, now)

	next := svc.nextRun()
	assert.Equal(t, time.Date(2025, 9, 2, 0, 20, 0, 0, time.UTC), next,
		"today's slot already passed, schedule for tomorrow")

	svc.now = func() time.Time { return time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC) }
	next = svc.nextRun()
	assert.Equal(t, time.Date(2025, 9, 1, 0, 20, 0, 0, time.UTC), next)
}
