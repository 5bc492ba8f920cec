package crossmatch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinderlab/tnsmarshal/internal/datastore"
	"github.com/kinderlab/tnsmarshal/internal/tns"
)

func writePartition(t *testing.T, dailyDir, day string, names ...string) {
	t.Helper()
	path := tns.PartitionPath(dailyDir, day)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	lines := []string{"objid,name_prefix,name,ra,declination"}
	for i, name := range names {
		lines = append(lines, strings.Join([]string{
			"10" + name[len(name)-1:], "AT", name, "150." + string(rune('0'+i)), "2.0",
		}, ","))
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func TestTargetsCoverTrailingWindow(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	dailyDir := t.TempDir()
	asOf := time.Date(2025, 9, 3, 12, 0, 0, 0, time.UTC)

	for _, name := range []string{"2025aaa", "2025bbb", "2025ccc", "2025ddd"} {
		makeTarget(t, store, name, 150, 2)
	}
	writePartition(t, dailyDir, "2025-09-03", "2025aaa")
	writePartition(t, dailyDir, "2025-09-02", "2025bbb")
	writePartition(t, dailyDir, "2025-09-01", "2025ccc")
	// Outside the three-day window.
	writePartition(t, dailyDir, "2025-08-30", "2025ddd")

	ts := &TargetSource{Store: store, DailyDir: dailyDir, WindowDays: 3}
	targets, err := ts.Targets(asOf)
	require.NoError(t, err)

	names := make([]string, 0, len(targets))
	for i := range targets {
		names = append(names, targets[i].Name)
	}
	assert.ElementsMatch(t, []string{"2025aaa", "2025bbb", "2025ccc"}, names)
}

func TestTargetsIncludeFlagFile(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	dailyDir := t.TempDir()
	asOf := time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC)

	makeTarget(t, store, "2025aaa", 150, 2)
	makeTarget(t, store, "2025flag", 10, 10)
	writePartition(t, dailyDir, "2025-09-03", "2025aaa")

	flagFile := filepath.Join(t.TempDir(), "watch.txt")
	require.NoError(t, os.WriteFile(flagFile, []byte("# operator watch list\n2025flag\n\n2025gone\n"), 0o644))

	ts := &TargetSource{Store: store, DailyDir: dailyDir, WindowDays: 3, FlagFile: flagFile}
	targets, err := ts.Targets(asOf)
	require.NoError(t, err)

	names := make([]string, 0, len(targets))
	for i := range targets {
		names = append(names, targets[i].Name)
	}
	assert.ElementsMatch(t, []string{"2025aaa", "2025flag"}, names,
		"flagged names join the run, unknown names are skipped")
}

func TestTargetsDeduplicateAcrossSources(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	dailyDir := t.TempDir()
	asOf := time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC)

	makeTarget(t, store, "2025aaa", 150, 2)
	writePartition(t, dailyDir, "2025-09-03", "2025aaa")
	writePartition(t, dailyDir, "2025-09-02", "2025aaa")

	flagFile := filepath.Join(t.TempDir(), "watch.txt")
	require.NoError(t, os.WriteFile(flagFile, []byte("2025aaa\n"), 0o644))

	ts := &TargetSource{Store: store, DailyDir: dailyDir, WindowDays: 3, FlagFile: flagFile}
	targets, err := ts.Targets(asOf)
	require.NoError(t, err)
	assert.Len(t, targets, 1)
}

func TestArtifactWriteAndLayout(t *testing.T) {
	t.Parallel()
	outDir := t.TempDir()
	w := &ArtifactWriter{OutputDir: outDir}
	runDate := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	obj := &datastore.TransientObject{
		Name:        "2025aaa",
		RA:          150.5,
		Declination: 2.25,
		Type:        "SN Ia",
	}
	matches := []datastore.CrossMatchResult{
		{TargetName: "2025aaa", CatalogName: "desi", SeparationArcsec: 12.3456,
			IsHost: true, MatchData: `{"targetid":42,"spectype":"GALAXY"}`},
		{TargetName: "2025aaa", CatalogName: "desi", SeparationArcsec: 25.0,
			MatchData: `{"targetid":43,"spectype":"QSO"}`},
	}

	path, err := w.Write("desi", runDate, map[string]*datastore.TransientObject{"2025aaa": obj}, matches)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "desi_20250901.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)

	assert.Equal(t, "target_name,ra,declination,type,discoverydate,catalog_name,separation_arcsec,is_Host,spectype,targetid", lines[0])
	assert.Contains(t, lines[1], "2025aaa,150.5,2.25,SN Ia")
	assert.Contains(t, lines[1], "desi,12.3456,true")
	assert.Contains(t, lines[1], "GALAXY,42")
	assert.Contains(t, lines[2], "false")
}

func TestArtifactGroupMergesLensTables(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "lens", ArtifactGroup(datastore.TableLensHsu))
	assert.Equal(t, "lens", ArtifactGroup(datastore.TableLensKarp))
	assert.Equal(t, "desi", ArtifactGroup("desi"))

	outDir := t.TempDir()
	w := &ArtifactWriter{OutputDir: outDir}
	runDate := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	obj := &datastore.TransientObject{Name: "2025bbb", RA: 30, Declination: -4}
	matches := []datastore.CrossMatchResult{
		{TargetName: "2025bbb", CatalogName: datastore.TableLensHsu,
			SeparationArcsec: 3.5, MatchData: `{"lens_id":"H1"}`},
		{TargetName: "2025bbb", CatalogName: datastore.TableLensKarp,
			SeparationArcsec: 8.0, MatchData: `{"lens_id":"K7"}`},
	}

	path, err := w.Write("lens", runDate, map[string]*datastore.TransientObject{"2025bbb": obj}, matches)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "lens_20250901.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3, "both lens tables land in the one artifact")
	assert.Contains(t, lines[1], datastore.TableLensHsu)
	assert.Contains(t, lines[2], datastore.TableLensKarp)
}
