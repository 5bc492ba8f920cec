package tns

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kinderlab/tnsmarshal/internal/conf"
	"github.com/kinderlab/tnsmarshal/internal/datastore"
)

const sampleBanner = `"2025-08-31 00:00:00 - 2025-09-01 23:59:59"`

const sampleHeader = `"objid","name_prefix","name","ra","declination","redshift","typeid","type","reporting_group","source_group","discoverydate","discoverymag","filter","reporters","time_received","internal_names","discovery_ads_bibcode","class_ads_bibcodes","creationdate","lastmodified"`

// sampleRow builds a batch row with the columns the pipeline cares about.
func sampleRow(objID int, prefix, name string, ra, dec float64, discovery, lastModified string) string {
	return fmt.Sprintf(`%d,"%s","%s",%g,%g,"","","","ALeRCE","ALeRCE","%s",18.2,"r","bot","%s 00:00:00","ZTF25x","","","%s","%s"`,
		objID, prefix, name, ra, dec, discovery, discovery[:10], discovery, lastModified)
}

func sampleCSV(rows ...string) string {
	lines := append([]string{sampleBanner, sampleHeader}, rows...)
	return strings.Join(lines, "\n") + "\n"
}

func writeWorkingFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, WorkingFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

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
