package crossmatch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kinderlab/tnsmarshal/internal/datastore"
	"github.com/kinderlab/tnsmarshal/internal/errors"
)

// artifactHeader is the fixed leading part of every artifact row; catalog
// payload columns follow it. The catalog_name column identifies the source
// table inside merged artifacts such as the combined lens file.
var artifactHeader = []string{
	"target_name", "ra", "declination", "type", "discoverydate",
	"catalog_name", "separation_arcsec", "is_Host",
}

// ArtifactGroup maps a catalog to its artifact file stem. The lens tables
// share one combined artifact, everything else gets its own.
func ArtifactGroup(catalogName string) string {
	if strings.HasPrefix(catalogName, "lens") {
		return "lens"
	}
	return catalogName
}

// ArtifactWriter emits one CSV per run per catalog with the matches found,
// for the operator to review outside the dashboard.
type ArtifactWriter struct {
	OutputDir string
}

// ArtifactPath returns the output path for one catalog and run date, for
// example desi_20250901.csv.
func (w *ArtifactWriter) ArtifactPath(catalogName string, runDate time.Time) string {
	stamp := runDate.UTC().Format("20060102")
	return filepath.Join(w.OutputDir, fmt.Sprintf("%s_%s.csv", catalogName, stamp))
}

// Write stores the matches of one catalog as a CSV artifact. Objects are
// looked up by name in the given index to flatten their catalog fields into
// each row. Payload keys become trailing columns, sorted for a stable
// header.
func (w *ArtifactWriter) Write(catalogName string, runDate time.Time,
	objects map[string]*datastore.TransientObject, matches []datastore.CrossMatchResult) (string, error) {

	if err := os.MkdirAll(w.OutputDir, 0o755); err != nil {
		return "", errors.New(err).
			Component("crossmatch").
			Category(errors.CategoryFileIO).
			Context("dir", w.OutputDir).
			Build()
	}

	payloadKeys := collectPayloadKeys(matches)
	header := append(append([]string{}, artifactHeader...), payloadKeys...)

	outPath := w.ArtifactPath(catalogName, runDate)
	file, err := os.Create(outPath)
	if err != nil {
		return "", errors.New(err).
			Component("crossmatch").
			Category(errors.CategoryFileIO).
			Context("path", outPath).
			Build()
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return "", errors.New(err).
			Component("crossmatch").
			Category(errors.CategoryFileIO).
			Context("path", outPath).
			Build()
	}

	for i := range matches {
		m := &matches[i]
		row := artifactRow(m, objects[m.TargetName], payloadKeys)
		if err := writer.Write(row); err != nil {
			return "", errors.New(err).
				Component("crossmatch").
				Category(errors.CategoryFileIO).
				Context("path", outPath).
				Build()
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", errors.New(err).
			Component("crossmatch").
			Category(errors.CategoryFileIO).
			Context("path", outPath).
			Build()
	}
	return outPath, nil
}

func collectPayloadKeys(matches []datastore.CrossMatchResult) []string {
	seen := make(map[string]bool)
	for i := range matches {
		var payload map[string]any
		if err := json.Unmarshal([]byte(matches[i].MatchData), &payload); err != nil {
			continue
		}
		for key := range payload {
			seen[key] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func artifactRow(m *datastore.CrossMatchResult, obj *datastore.TransientObject, payloadKeys []string) []string {
	row := make([]string, 0, len(artifactHeader)+len(payloadKeys))
	if obj != nil {
		row = append(row,
			obj.Name,
			strconv.FormatFloat(obj.RA, 'f', -1, 64),
			strconv.FormatFloat(obj.Declination, 'f', -1, 64),
			obj.Type,
			obj.DiscoveryDate.UTC().Format("2006-01-02 15:04:05"),
		)
	} else {
		row = append(row, m.TargetName, "", "", "", "")
	}
	row = append(row,
		m.CatalogName,
		strconv.FormatFloat(m.SeparationArcsec, 'f', 4, 64),
		strconv.FormatBool(m.IsHost),
	)

	var payload map[string]any
	_ = json.Unmarshal([]byte(m.MatchData), &payload)
	for _, key := range payloadKeys {
		row = append(row, payloadValue(payload[key]))
	}
	return row
}

func payloadValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
