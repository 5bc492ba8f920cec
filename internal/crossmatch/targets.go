package crossmatch

import (
	"bufio"
	"encoding/csv"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kinderlab/tnsmarshal/internal/datastore"
	"github.com/kinderlab/tnsmarshal/internal/errors"
	"github.com/kinderlab/tnsmarshal/internal/tns"
)

// TargetSource selects which objects a cross-match run covers: every object
// discovered in the trailing daily partitions, plus any names the operator
// put on the watch list.
type TargetSource struct {
	Store      datastore.Interface
	DailyDir   string
	WindowDays int
	FlagFile   string // optional, one object name per line, # comments
	Logger     *slog.Logger
}

// Targets resolves the run's object list as of the given date. Names that
// cannot be found in the store are logged and skipped so a half-imported
// partition never aborts the run.
func (ts *TargetSource) Targets(asOf time.Time) ([]datastore.TransientObject, error) {
	names, err := ts.collectNames(asOf)
	if err != nil {
		return nil, err
	}

	objects := make([]datastore.TransientObject, 0, len(names))
	for _, name := range names {
		obj, err := ts.Store.GetObject(name)
		if err != nil {
			if errors.Is(err, datastore.ErrObjectNotFound) {
				ts.logger().Warn("target not in object store, skipping", "name", name)
				continue
			}
			return nil, err
		}
		objects = append(objects, *obj)
	}
	return objects, nil
}

func (ts *TargetSource) logger() *slog.Logger {
	if ts.Logger != nil {
		return ts.Logger
	}
	return slog.Default()
}

// collectNames gathers the deduplicated target names, partition files first
// and then the watch list.
func (ts *TargetSource) collectNames(asOf time.Time) ([]string, error) {
	window := ts.WindowDays
	if window < 1 {
		window = 1
	}

	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	for back := 0; back < window; back++ {
		day := asOf.UTC().AddDate(0, 0, -back).Format("2006-01-02")
		partNames, err := readPartitionNames(tns.PartitionPath(ts.DailyDir, day))
		if err != nil {
			return nil, err
		}
		for _, name := range partNames {
			add(name)
		}
	}

	flagged, err := readFlagFile(ts.FlagFile)
	if err != nil {
		return nil, err
	}
	for _, name := range flagged {
		add(name)
	}
	return names, nil
}

// readPartitionNames extracts the name column of one daily partition file.
// A missing file means no discoveries that day.
func readPartitionNames(path string) ([]string, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New(err).
			Component("crossmatch").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.New(err).
			Component("crossmatch").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}
	if len(rows) < 2 {
		return nil, nil
	}

	nameIdx := -1
	for i, column := range rows[0] {
		if strings.EqualFold(strings.TrimSpace(column), "name") {
			nameIdx = i
			break
		}
	}
	if nameIdx < 0 {
		return nil, errors.Newf("partition %s has no name column", path).
			Component("crossmatch").
			Category(errors.CategoryFileParsing).
			Build()
	}

	names := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if nameIdx < len(row) {
			names = append(names, strings.TrimSpace(row[nameIdx]))
		}
	}
	return names, nil
}

// readFlagFile loads the operator watch list. Empty path means no list.
func readFlagFile(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New(err).
			Component("crossmatch").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer func() { _ = file.Close() }()

	var names []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New(err).
			Component("crossmatch").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return names, nil
}
