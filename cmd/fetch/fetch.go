// Package fetch implements the batch download command.
package fetch

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kinderlab/tnsmarshal/internal/conf"
	"github.com/kinderlab/tnsmarshal/internal/datastore"
	"github.com/kinderlab/tnsmarshal/internal/errors"
	"github.com/kinderlab/tnsmarshal/internal/logging"
	"github.com/kinderlab/tnsmarshal/internal/tns"
)

// Command creates the fetch command: download one batch from the archive
// and import it into the object store.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		dateStr  string
		hourly   bool
		hour     int
		skipLoad bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download a public-objects batch and import it",
		RunE: func(cmd *cobra.Command, args []string) error {
			when := time.Now().UTC()
			if dateStr != "" {
				parsed, err := time.Parse("2006-01-02", dateStr)
				if err != nil {
					return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD: %w", dateStr, err)
				}
				when = parsed
			}
			if hourly {
				if cmd.Flags().Changed("hour") && (hour < 0 || hour > 23) {
					return fmt.Errorf("invalid --hour %d, expected 0-23", hour)
				}
				when = hourlyBatchTime(when, hour)
			}
			return run(settings, when, hourly, skipLoad)
		},
	}

	cmd.Flags().StringVar(&dateStr, "date", "", "Batch date (YYYY-MM-DD, default today UTC)")
	cmd.Flags().BoolVar(&hourly, "hourly", false, "Fetch an hourly batch instead of a daily one (previous UTC hour)")
	cmd.Flags().IntVar(&hour, "hour", -1, "UTC hour of the hourly batch to fetch (0-23, implies --hourly semantics)")
	cmd.Flags().BoolVar(&skipLoad, "no-import", false, "Download only, leave the store untouched")
	return cmd
}

// hourlyBatchTime returns the UTC hour whose archive a tick at "now"
// should pull. The archive closes an hour's file only after the hour
// ends, so the previous hour is the newest complete batch; an override
// in 0-23 picks that hour of the same (rolled-back) day instead.
func hourlyBatchTime(now time.Time, override int) time.Time {
	when := now.UTC().Add(-time.Hour)
	if override >= 0 && override <= 23 {
		when = time.Date(when.Year(), when.Month(), when.Day(), override, 0, 0, 0, time.UTC)
	}
	return when
}

func run(settings *conf.Settings, when time.Time, hourly, skipLoad bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher, err := tns.NewFetcher(settings, nil)
	if err != nil {
		return err
	}
	defer fetcher.Close()

	archive := tns.DailyArchiveName(when)
	fetch := fetcher.FetchDaily
	if hourly {
		archive = tns.HourlyArchiveName(when)
		fetch = fetcher.FetchHourly
	}

	if skipLoad {
		workPath, err := fetch(ctx, when)
		if err != nil {
			if errors.Is(err, tns.ErrNotAvailable) {
				logging.Human().Info("Batch not published yet", "archive", archive)
				return nil
			}
			return err
		}
		logging.Human().Info("Batch downloaded", "path", workPath)
		return nil
	}

	store := datastore.New(settings, logging.Human())
	if err := store.Open(); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	importer := tns.NewImporter(store, nil, &settings.Main.Log)
	defer importer.Close()

	result, err := importer.FetchAndImport(ctx, archive,
		func(ctx context.Context) (string, error) {
			return fetch(ctx, when)
		})
	if err != nil {
		if errors.Is(err, tns.ErrNotAvailable) {
			logging.Human().Info("Batch not published yet", "archive", archive)
			return nil
		}
		return err
	}
	logging.Human().Info("Import completed",
		"imported", result.Imported,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"dropped", result.Dropped)
	return nil
}
