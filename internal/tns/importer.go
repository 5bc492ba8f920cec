package tns

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kinderlab/tnsmarshal/internal/conf"
	"github.com/kinderlab/tnsmarshal/internal/datastore"
	"github.com/kinderlab/tnsmarshal/internal/errors"
	"github.com/kinderlab/tnsmarshal/internal/logging"
	"github.com/kinderlab/tnsmarshal/internal/observability/metrics"
)

// importBatchSize is how many records go into one store transaction.
const importBatchSize = 1000

// ImportResult summarizes one import run.
type ImportResult struct {
	RunID    string
	Imported int // newly inserted objects
	Updated  int // refreshed objects with a strictly newer lastmodified
	Skipped  int // records no newer than the stored row
	Dropped  int // rows missing required fields
}

// Importer upserts parsed batch records into the object store, resolving
// conflicts by the catalog's lastmodified timestamp.
type Importer struct {
	store    datastore.Interface
	metrics  *metrics.IngestMetrics
	logger   *slog.Logger
	closeLog func() error
}

// NewImporter creates an Importer over the given store. The metrics
// collector may be nil.
func NewImporter(store datastore.Interface, m *metrics.IngestMetrics, logCfg *conf.LogConfig) *Importer {
	logger, closeLog := logging.ForService("tns-import", slog.LevelInfo, logCfg)
	return &Importer{
		store:    store,
		metrics:  m,
		logger:   logger,
		closeLog: closeLog,
	}
}

// FetchAndImport brackets one download and import cycle in a single
// download log row. The row is opened before the first network request,
// so a fetch that 404s or exhausts its retries still leaves a failed
// audit entry.
func (im *Importer) FetchAndImport(ctx context.Context, archive string,
	fetch func(context.Context) (string, error)) (*ImportResult, error) {

	result := &ImportResult{RunID: uuid.NewString()}
	log := &datastore.DownloadLog{
		RunID:    result.RunID,
		HourUTC:  time.Now().UTC().Hour(),
		Filename: archive,
	}
	if err := im.store.StartDownloadLog(log); err != nil {
		return nil, err
	}

	csvPath, err := fetch(ctx)
	if err != nil {
		im.fail(log.ID, result, err)
		return nil, err
	}
	return im.importInto(ctx, log, result, csvPath)
}

// Import parses the working CSV and upserts every record. The run is
// recorded in the download log before the first write and closed out with
// the final counts, so an aborted run stays visible as in_progress or
// failed.
func (im *Importer) Import(ctx context.Context, csvPath string) (*ImportResult, error) {
	result := &ImportResult{RunID: uuid.NewString()}
	log := &datastore.DownloadLog{
		RunID:    result.RunID,
		HourUTC:  time.Now().UTC().Hour(),
		Filename: filepath.Base(csvPath),
	}
	if err := im.store.StartDownloadLog(log); err != nil {
		return nil, err
	}
	return im.importInto(ctx, log, result, csvPath)
}

func (im *Importer) importInto(ctx context.Context, log *datastore.DownloadLog,
	result *ImportResult, csvPath string) (*ImportResult, error) {

	start := time.Now()
	file, err := os.Open(csvPath)
	if err != nil {
		wrapped := errors.New(err).
			Component("tns").
			Category(errors.CategoryFileIO).
			Context("path", csvPath).
			Build()
		im.fail(log.ID, result, wrapped)
		return nil, wrapped
	}
	defer func() { _ = file.Close() }()

	batch, err := ParseBatch(file)
	if err != nil {
		im.fail(log.ID, result, err)
		return nil, err
	}
	result.Dropped = batch.Dropped

	for offset := 0; offset < len(batch.Records); offset += importBatchSize {
		if err := ctx.Err(); err != nil {
			im.fail(log.ID, result, err)
			return nil, err
		}
		end := min(offset+importBatchSize, len(batch.Records))
		if err := im.upsertChunk(batch.Records[offset:end], result); err != nil {
			im.fail(log.ID, result, err)
			return nil, err
		}
	}

	if err := im.store.FinishDownloadLog(log.ID, datastore.DownloadCompleted,
		result.Imported, result.Updated, result.Skipped, ""); err != nil {
		return nil, err
	}

	if im.metrics != nil {
		im.metrics.RecordImport(result.Imported, result.Updated, result.Skipped,
			result.Dropped, time.Since(start).Seconds())
	}
	im.logger.Info("import completed",
		"run_id", result.RunID,
		"file", log.Filename,
		"imported", result.Imported,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"dropped", result.Dropped,
		"duration", time.Since(start).String())
	return result, nil
}

// upsertChunk splits one chunk of records into inserts, refreshes and
// stale skips against the stored lastmodified timestamps, then writes each
// group in its own transaction.
func (im *Importer) upsertChunk(records []Record, result *ImportResult) error {
	objIDs := make([]int64, 0, len(records))
	for i := range records {
		objIDs = append(objIDs, records[i].ObjID)
	}
	stored, err := im.store.LastModifiedByObjID(objIDs)
	if err != nil {
		return err
	}

	// A duplicate objid inside one batch resolves to its last row.
	deduped := records[:0:0]
	position := make(map[int64]int, len(records))
	for i := range records {
		if at, dup := position[records[i].ObjID]; dup {
			deduped[at] = records[i]
			continue
		}
		position[records[i].ObjID] = len(deduped)
		deduped = append(deduped, records[i])
	}

	var inserts, refreshes []*datastore.TransientObject
	for i := range deduped {
		rec := &deduped[i]
		existing, known := stored[rec.ObjID]
		switch {
		case !known:
			inserts = append(inserts, rec.Object())
			result.Imported++
		case rec.LastModified.After(existing):
			refreshes = append(refreshes, rec.Object())
			result.Updated++
		default:
			result.Skipped++
		}
	}

	if err := im.store.InsertObjects(inserts); err != nil {
		return err
	}
	return im.store.RefreshObjects(refreshes)
}

func (im *Importer) fail(logID uint, result *ImportResult, cause error) {
	im.logger.Error("import failed",
		"run_id", result.RunID,
		"imported", result.Imported,
		"updated", result.Updated,
		"error", cause)
	if err := im.store.FinishDownloadLog(logID, datastore.DownloadFailed,
		result.Imported, result.Updated, result.Skipped, cause.Error()); err != nil {
		im.logger.Error("failed to close download log", "log_id", logID, "error", err)
	}
}

// Close releases the importer's log writer.
func (im *Importer) Close() {
	if im.closeLog != nil {
		_ = im.closeLog()
	}
}
