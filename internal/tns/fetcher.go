package tns

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kinderlab/tnsmarshal/internal/conf"
	"github.com/kinderlab/tnsmarshal/internal/errors"
	"github.com/kinderlab/tnsmarshal/internal/httpclient"
	"github.com/kinderlab/tnsmarshal/internal/logging"
	"github.com/kinderlab/tnsmarshal/internal/observability/metrics"
)

// WorkingFileName is the single "current" batch file the downstream stages
// consume. Each successful fetch overwrites it.
const WorkingFileName = "tns_public_objects_WORK.csv"

// retryDelays are the fixed waits between fetch attempts. A 404 never
// retries; anything else walks this schedule before giving up.
var retryDelays = []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}

// ErrNotAvailable marks a batch the archive has not published yet. Callers
// treat it as "come back later", not as a failure.
var ErrNotAvailable = errors.NewStd("batch not available yet")

// Fetcher downloads dated batch archives from the public catalog and
// maintains the working CSV file.
type Fetcher struct {
	client   *httpclient.Client
	settings *conf.TNSSettings
	metrics  *metrics.IngestMetrics
	logger   *slog.Logger
	closeLog func() error

	// sleep is swapped out in tests to avoid real retry waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a Fetcher for the configured archive. The metrics
// collector may be nil.
func NewFetcher(settings *conf.Settings, m *metrics.IngestMetrics) (*Fetcher, error) {
	if err := settings.RequireBotCredentials(); err != nil {
		return nil, err
	}
	logger, closeLog := logging.ForService("tns-fetch", slog.LevelInfo, &settings.Main.Log)

	client := httpclient.New(&httpclient.Config{
		DefaultTimeout: time.Duration(settings.TNS.Timeout) * time.Second,
		UserAgent:      botMarker(settings.TNS.BotID, settings.TNS.BotName),
	})
	return &Fetcher{
		client:   client,
		settings: &settings.TNS,
		metrics:  m,
		logger:   logger,
		closeLog: closeLog,
		sleep:    sleepContext,
	}, nil
}

// botMarker builds the identity header the archive requires on every
// request.
func botMarker(botID int, botName string) string {
	return fmt.Sprintf(`tns_marker{"tns_id":%d,"type":"bot","name":"%s"}`, botID, botName)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DailyArchiveName returns the archive member name for a calendar date.
func DailyArchiveName(date time.Time) string {
	return fmt.Sprintf("tns_public_objects_%s.csv.zip", date.UTC().Format("20060102"))
}

// HourlyArchiveName returns the archive member name for one UTC hour.
func HourlyArchiveName(date time.Time) string {
	return fmt.Sprintf("tns_public_objects_%s.csv.zip", date.UTC().Format("15"))
}

// WorkingFilePath returns where the current working CSV lives.
func (f *Fetcher) WorkingFilePath() string {
	return filepath.Join(f.settings.DataDir, WorkingFileName)
}

// FetchDaily downloads the batch for a calendar date and rewrites the
// working file. Returns the working file path.
func (f *Fetcher) FetchDaily(ctx context.Context, date time.Time) (string, error) {
	return f.fetch(ctx, DailyArchiveName(date))
}

// FetchHourly downloads the batch for one UTC hour and rewrites the working
// file. The archive keeps only the current day's hourly files.
func (f *Fetcher) FetchHourly(ctx context.Context, hour time.Time) (string, error) {
	return f.fetch(ctx, HourlyArchiveName(hour))
}

func (f *Fetcher) fetch(ctx context.Context, archiveName string) (string, error) {
	archiveURL := strings.TrimRight(f.settings.ArchiveURL, "/") + "/" + archiveName
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= len(retryDelays); attempt++ {
		if attempt > 0 {
			f.recordOutcome("retry")
			f.logger.Warn("retrying batch download",
				"archive", archiveName,
				"attempt", attempt,
				"wait", retryDelays[attempt-1].String(),
				"error", lastErr)
			if err := f.sleep(ctx, retryDelays[attempt-1]); err != nil {
				return "", errors.New(err).
					Component("tns").
					Category(errors.CategoryNetwork).
					Context("archive", archiveName).
					Build()
			}
		}

		body, err := f.download(ctx, archiveURL)
		if err == nil {
			f.recordOutcome("success")
			if f.metrics != nil {
				f.metrics.FetchDuration.Observe(time.Since(start).Seconds())
				f.metrics.DownloadSize.Observe(float64(len(body)))
			}
			return f.extract(body, archiveName)
		}
		if errors.Is(err, ErrNotAvailable) {
			f.recordOutcome("not_available")
			f.logger.Info("batch not published yet", "archive", archiveName)
			return "", err
		}
		lastErr = err
	}

	f.recordOutcome("failed")
	return "", errors.New(lastErr).
		Component("tns").
		Category(errors.CategoryNetwork).
		Context("archive", archiveName).
		Context("attempts", len(retryDelays)+1).
		Build()
}

func (f *Fetcher) recordOutcome(outcome string) {
	if f.metrics != nil {
		f.metrics.RecordFetchOutcome(outcome)
	}
}

// download performs one authenticated POST against the archive.
func (f *Fetcher) download(ctx context.Context, archiveURL string) ([]byte, error) {
	form := url.Values{"api_key": {f.settings.APIKey}}
	resp, err := f.client.PostForm(ctx, archiveURL, form)
	if err != nil {
		return nil, errors.New(err).
			Component("tns").
			Category(errors.CategoryNetwork).
			Context("url", archiveURL).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotAvailable
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Newf("archive returned status %d", resp.StatusCode).
			Component("tns").
			Category(errors.CategoryNetwork).
			Context("url", archiveURL).
			Build()
	}
	return httpclient.ReadBody(resp)
}

// extract unpacks the single CSV member of the downloaded archive into the
// working file, replacing any stale copy from a previous run.
func (f *Fetcher) extract(body []byte, archiveName string) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", errors.New(err).
			Component("tns").
			Category(errors.CategoryFileParsing).
			Context("archive", archiveName).
			Build()
	}

	var member *zip.File
	for _, file := range reader.File {
		if strings.HasSuffix(file.Name, ".csv") {
			member = file
			break
		}
	}
	if member == nil {
		return "", errors.Newf("archive %s contains no CSV member", archiveName).
			Component("tns").
			Category(errors.CategoryFileParsing).
			Build()
	}

	rc, err := member.Open()
	if err != nil {
		return "", errors.New(err).
			Component("tns").
			Category(errors.CategoryFileIO).
			Context("member", member.Name).
			Build()
	}
	defer func() { _ = rc.Close() }()

	if err := os.MkdirAll(f.settings.DataDir, 0o755); err != nil {
		return "", errors.New(err).
			Component("tns").
			Category(errors.CategoryFileIO).
			Context("dir", f.settings.DataDir).
			Build()
	}

	workPath := f.WorkingFilePath()
	tmpPath := workPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return "", errors.New(err).
			Component("tns").
			Category(errors.CategoryFileIO).
			Context("path", tmpPath).
			Build()
	}
	if _, err := out.ReadFrom(rc); err != nil {
		_ = out.Close()
		_ = os.Remove(tmpPath)
		return "", errors.New(err).
			Component("tns").
			Category(errors.CategoryFileIO).
			Context("path", tmpPath).
			Build()
	}
	if err := out.Close(); err != nil {
		return "", errors.New(err).
			Component("tns").
			Category(errors.CategoryFileIO).
			Context("path", tmpPath).
			Build()
	}
	if err := os.Rename(tmpPath, workPath); err != nil {
		return "", errors.New(err).
			Component("tns").
			Category(errors.CategoryFileIO).
			Context("path", workPath).
			Build()
	}

	f.logger.Info("working file updated", "archive", archiveName, "path", workPath)
	return workPath, nil
}

// Close releases the underlying HTTP client and log writer.
func (f *Fetcher) Close() {
	f.client.Close()
	if f.closeLog != nil {
		_ = f.closeLog()
	}
}
