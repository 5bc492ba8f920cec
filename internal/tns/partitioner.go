package tns

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kinderlab/tnsmarshal/internal/conf"
	"github.com/kinderlab/tnsmarshal/internal/errors"
	"github.com/kinderlab/tnsmarshal/internal/logging"
	"github.com/kinderlab/tnsmarshal/internal/observability/metrics"
)

// excludedPrefix is the non-transient category dropped before partitioning.
// Fast radio bursts share the feed but never enter the follow-up workflow.
const excludedPrefix = "FRB"

// DistributeResult summarizes one partition run.
type DistributeResult struct {
	FilesCreated   int
	FilesUpdated   int
	NewObjects     int
	UpdatedObjects int
	Excluded       int // rows dropped by the category filter
}

// Partitioner splits the working file into one CSV per discovery date and
// keeps those daily files merged across runs.
type Partitioner struct {
	dailyDir string
	metrics  *metrics.IngestMetrics
	logger   *slog.Logger
	closeLog func() error
}

// NewPartitioner creates a Partitioner writing under dailyDir. The metrics
// collector may be nil.
func NewPartitioner(dailyDir string, m *metrics.IngestMetrics, logCfg *conf.LogConfig) *Partitioner {
	logger, closeLog := logging.ForService("tns-daily", slog.LevelInfo, logCfg)
	return &Partitioner{
		dailyDir: dailyDir,
		metrics:  m,
		logger:   logger,
		closeLog: closeLog,
	}
}

// PartitionPath returns the daily file path for a discovery date
// (YYYY-MM-DD), for example 2025_09/tns_public_objects_20250901.csv under
// the daily root.
func PartitionPath(dailyDir, day string) string {
	compact := strings.ReplaceAll(day, "-", "")
	monthDir := fmt.Sprintf("%s_%s", compact[:4], compact[4:6])
	return filepath.Join(dailyDir, monthDir, fmt.Sprintf("tns_public_objects_%s.csv", compact))
}

// PartitionPath returns the daily file path for a discovery date under this
// partitioner's root.
func (p *Partitioner) PartitionPath(day string) string {
	return PartitionPath(p.dailyDir, day)
}

// Distribute reads the working file, drops the excluded category, merges
// each record into its discovery date's partition file and rewrites the
// working file filtered and sorted newest first. Merge order within one day
// is old rows then new rows, so on duplicate names the freshly distributed
// row wins.
func (p *Partitioner) Distribute(workPath string) (*DistributeResult, error) {
	file, err := os.Open(workPath)
	if err != nil {
		return nil, errors.New(err).
			Component("tns").
			Category(errors.CategoryFileIO).
			Context("path", workPath).
			Build()
	}
	batch, err := ParseBatch(file)
	_ = file.Close()
	if err != nil {
		return nil, err
	}

	result := &DistributeResult{}
	kept := make([]Record, 0, len(batch.Records))
	for i := range batch.Records {
		if batch.Records[i].NamePrefix == excludedPrefix {
			result.Excluded++
			continue
		}
		kept = append(kept, batch.Records[i])
	}

	byDay := make(map[string][]Record)
	for i := range kept {
		day := kept[i].DiscoveryDate.UTC().Format("2006-01-02")
		byDay[day] = append(byDay[day], kept[i])
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	for _, day := range days {
		if err := p.mergeDay(day, batch.Header, byDay[day], result); err != nil {
			return nil, err
		}
	}

	if err := p.rewriteWorkingFile(workPath, batch, kept); err != nil {
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.PartitionsWritten.Add(float64(result.FilesCreated + result.FilesUpdated))
	}
	p.logger.Info("distribution completed",
		"days", len(byDay),
		"created", result.FilesCreated,
		"updated", result.FilesUpdated,
		"new_objects", result.NewObjects,
		"updated_objects", result.UpdatedObjects,
		"excluded", result.Excluded)
	return result, nil
}

// mergeDay writes one day's records into its partition file, concatenating
// existing rows before new ones and keeping the last occurrence per name.
func (p *Partitioner) mergeDay(day string, header []string, records []Record, result *DistributeResult) error {
	outPath := p.PartitionPath(day)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return errors.New(err).
			Component("tns").
			Category(errors.CategoryFileIO).
			Context("dir", filepath.Dir(outPath)).
			Build()
	}

	existingHeader, existingRows, err := readPartition(outPath)
	if err != nil {
		return err
	}

	if existingRows == nil {
		result.FilesCreated++
		result.NewObjects += len(records)
	} else {
		result.FilesUpdated++
		header = existingHeader
		existingNames := make(map[string]bool, len(existingRows))
		nameIdx := columnIndex(existingHeader)[colName]
		for _, row := range existingRows {
			if nameIdx < len(row) {
				existingNames[row[nameIdx]] = true
			}
		}
		for i := range records {
			if existingNames[records[i].Name] {
				result.UpdatedObjects++
			} else {
				result.NewObjects++
			}
		}
	}

	rows := existingRows
	for i := range records {
		rows = append(rows, records[i].Raw)
	}

	// Last occurrence wins on duplicate names, so the pass runs back to
	// front keeping the first row seen per name.
	nameIdx := columnIndex(header)[colName]
	seen := make(map[string]bool, len(rows))
	deduped := make([][]string, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		name := ""
		if nameIdx < len(rows[i]) {
			name = rows[i][nameIdx]
		}
		if name != "" && seen[name] {
			continue
		}
		seen[name] = true
		deduped = append(deduped, rows[i])
	}
	for i, j := 0, len(deduped)-1; i < j; i, j = i+1, j-1 {
		deduped[i], deduped[j] = deduped[j], deduped[i]
	}

	return writeCSV(outPath, "", header, deduped)
}

// readPartition loads an existing daily file. Returns nil rows when the
// file does not exist yet.
func readPartition(path string) (header []string, rows [][]string, err error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.New(err).
			Component("tns").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	all, err := reader.ReadAll()
	if err != nil {
		return nil, nil, errors.New(err).
			Component("tns").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}

// rewriteWorkingFile replaces the working file with the filtered records
// sorted by discovery date descending, banner line preserved.
func (p *Partitioner) rewriteWorkingFile(workPath string, batch *Batch, kept []Record) error {
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].DiscoveryDate.After(kept[j].DiscoveryDate)
	})
	rows := make([][]string, 0, len(kept))
	for i := range kept {
		rows = append(rows, kept[i].Raw)
	}
	return writeCSV(workPath, batch.Banner, batch.Header, rows)
}

// writeCSV writes a CSV file atomically, with an optional banner line ahead
// of the header.
func writeCSV(path, banner string, header []string, rows [][]string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return errors.New(err).
			Component("tns").
			Category(errors.CategoryFileIO).
			Context("path", tmpPath).
			Build()
	}

	writeErr := func() error {
		if banner != "" {
			if _, err := fmt.Fprintln(file, banner); err != nil {
				return err
			}
		}
		writer := csv.NewWriter(file)
		if err := writer.Write(header); err != nil {
			return err
		}
		if err := writer.WriteAll(rows); err != nil {
			return err
		}
		writer.Flush()
		return writer.Error()
	}()
	if writeErr != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return errors.New(writeErr).
			Component("tns").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	if err := file.Close(); err != nil {
		return errors.New(err).
			Component("tns").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.New(err).
			Component("tns").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return nil
}

// Close releases the partitioner's log writer.
func (p *Partitioner) Close() {
	if p.closeLog != nil {
		_ = p.closeLog()
	}
}
