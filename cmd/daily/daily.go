// Package daily implements the full daily pipeline command: fetch, import,
// distribute and cross-match.
package daily

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kinderlab/tnsmarshal/internal/conf"
	"github.com/kinderlab/tnsmarshal/internal/crossmatch"
	"github.com/kinderlab/tnsmarshal/internal/datastore"
	"github.com/kinderlab/tnsmarshal/internal/errors"
	"github.com/kinderlab/tnsmarshal/internal/logging"
	"github.com/kinderlab/tnsmarshal/internal/observability"
	"github.com/kinderlab/tnsmarshal/internal/tns"
)

// Command creates the daily command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		dateStr     string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Run the daily pipeline: fetch, import, distribute, cross-match",
		RunE: func(cmd *cobra.Command, args []string) error {
			date := time.Now().UTC()
			if dateStr != "" {
				parsed, err := time.Parse("2006-01-02", dateStr)
				if err != nil {
					return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD: %w", dateStr, err)
				}
				date = parsed
			}
			return run(settings, date, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&dateStr, "date", "", "Batch date (YYYY-MM-DD, default today UTC)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address for the run")
	return cmd
}

func run(settings *conf.Settings, date time.Time, metricsAddr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}
	if metricsAddr != "" {
		server := &http.Server{Addr: metricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics server failed", "error", err)
			}
		}()
		defer func() { _ = server.Close() }()
	}

	store := datastore.New(settings, logging.Human())
	if err := store.Open(); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	// Stage 1 and 2: fetch and import under one audit row.
	fetcher, err := tns.NewFetcher(settings, m.Ingest)
	if err != nil {
		return err
	}
	defer fetcher.Close()

	importer := tns.NewImporter(store, m.Ingest, &settings.Main.Log)
	defer importer.Close()

	importResult, err := importer.FetchAndImport(ctx, tns.DailyArchiveName(date),
		func(ctx context.Context) (string, error) {
			return fetcher.FetchDaily(ctx, date)
		})
	if err != nil {
		if errors.Is(err, tns.ErrNotAvailable) {
			logging.Human().Info("Batch not published yet, nothing to do", "date", date.Format("2006-01-02"))
			return nil
		}
		return err
	}
	workPath := fetcher.WorkingFilePath()
	logging.Human().Info("Import completed",
		"imported", importResult.Imported,
		"updated", importResult.Updated,
		"skipped", importResult.Skipped)

	// Stage 3: distribute into daily partitions.
	partitioner := tns.NewPartitioner(settings.TNS.DailyDir, m.Ingest, &settings.Main.Log)
	defer partitioner.Close()

	distResult, err := partitioner.Distribute(workPath)
	if err != nil {
		return err
	}
	logging.Human().Info("Distribution completed",
		"files_created", distResult.FilesCreated,
		"files_updated", distResult.FilesUpdated,
		"new_objects", distResult.NewObjects,
		"excluded", distResult.Excluded)

	// Stage 4: cross-match the trailing discovery window.
	targetSource := &crossmatch.TargetSource{
		Store:      store,
		DailyDir:   settings.TNS.DailyDir,
		WindowDays: settings.CrossMatch.WindowDays,
		FlagFile:   settings.CrossMatch.FlagFile,
	}
	targets, err := targetSource.Targets(date)
	if err != nil {
		return err
	}

	catalogs := crossmatch.DefaultCatalogs(store,
		settings.CrossMatch.DESIRadiusArcsec, settings.CrossMatch.LensRadiusArcsec)
	engine := crossmatch.New(store, catalogs, settings.CrossMatch.Workers, m.CrossMatch, &settings.Main.Log)
	defer engine.Close()

	runResult, err := engine.Run(ctx, targets)
	if err != nil {
		return err
	}
	logging.Human().Info("Cross-match completed",
		"objects", runResult.Objects,
		"saved", runResult.Saved,
		"candidate_errors", runResult.CandidateErrors)

	if settings.CrossMatch.OutputDir != "" {
		if err := writeArtifacts(store, engine, settings.CrossMatch.OutputDir, date, targets); err != nil {
			return err
		}
	}
	return nil
}

// writeArtifacts emits one CSV per catalog with today's stored matches.
func writeArtifacts(store datastore.Interface, engine *crossmatch.Engine,
	outputDir string, date time.Time, targets []datastore.TransientObject) error {

	matches, err := store.CrossMatchesForDate(date.Format("2006-01-02"))
	if err != nil {
		return err
	}
	// The two lens tables share one combined artifact file.
	byGroup := make(map[string][]datastore.CrossMatchResult)
	for i := range matches {
		group := crossmatch.ArtifactGroup(matches[i].CatalogName)
		byGroup[group] = append(byGroup[group], matches[i])
	}

	index := make(map[string]*datastore.TransientObject, len(targets))
	for i := range targets {
		index[targets[i].Name] = &targets[i]
	}

	writer := &crossmatch.ArtifactWriter{OutputDir: outputDir}
	written := make(map[string]bool)
	for _, catalog := range engine.Catalogs() {
		group := crossmatch.ArtifactGroup(catalog.Name())
		groupMatches := byGroup[group]
		if written[group] || len(groupMatches) == 0 {
			continue
		}
		written[group] = true
		path, err := writer.Write(group, date, index, groupMatches)
		if err != nil {
			return err
		}
		logging.Human().Info("Cross-match artifact written", "path", path)
	}
	return nil
}
