// Package expire implements the auto-expiry command.
package expire

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kinderlab/tnsmarshal/internal/conf"
	"github.com/kinderlab/tnsmarshal/internal/datastore"
	"github.com/kinderlab/tnsmarshal/internal/expiry"
	"github.com/kinderlab/tnsmarshal/internal/logging"
)

// Command creates the expire command: one sweep by default, or the daily
// scheduler loop with --schedule.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		schedule      bool
		thresholdDays int
	)

	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Snooze objects inactive beyond the threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			if thresholdDays > 0 {
				settings.Expiry.ThresholdDays = thresholdDays
			}
			return run(settings, schedule)
		},
	}

	cmd.Flags().BoolVar(&schedule, "schedule", false, "Keep running, sweeping daily at the configured time")
	cmd.Flags().IntVar(&thresholdDays, "threshold-days", 0, "Override the inactivity threshold for this run")
	return cmd
}

func run(settings *conf.Settings, schedule bool) error {
	store := datastore.New(settings, logging.Human())
	if err := store.Open(); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	svc := expiry.New(store, &settings.Expiry, nil, &settings.Main.Log)
	defer svc.Close()

	if schedule {
		stopChan := make(chan struct{})
		go func() {
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			<-sigChan
			close(stopChan)
		}()
		svc.StartScheduler(stopChan)
		return nil
	}

	result, err := svc.Run()
	if err != nil {
		return err
	}
	logging.Human().Info("Expiry sweep completed",
		"examined", result.Examined,
		"snoozed", result.Snoozed,
		"reactivated", result.Reactivated)
	return nil
}
