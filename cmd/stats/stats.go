// Package stats implements the dashboard-statistics command.
package stats

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kinderlab/tnsmarshal/internal/conf"
	"github.com/kinderlab/tnsmarshal/internal/datastore"
	"github.com/kinderlab/tnsmarshal/internal/logging"
	"github.com/kinderlab/tnsmarshal/internal/marshal"
	"github.com/kinderlab/tnsmarshal/internal/workflow"
)

// Command creates the stats command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show object counts and recent import runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings)
		},
	}
	return cmd
}

func run(settings *conf.Settings) error {
	store := datastore.New(settings, logging.Human())
	if err := store.Open(); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	svc := marshal.NewService(store, &settings.Main.Log)
	defer svc.Close()

	stats, err := svc.Statistics()
	if err != nil {
		return err
	}

	fmt.Printf("Objects: %d\n", stats.TotalObjects)
	for _, tag := range workflow.ValidTags() {
		if tag == workflow.TagClear {
			continue
		}
		fmt.Printf("  %-10s %d\n", string(tag)+":", stats.ByTag[tag])
	}

	if len(stats.ByType) > 0 {
		fmt.Println("\nBy type:")
		types := make([]string, 0, len(stats.ByType))
		for name := range stats.ByType {
			types = append(types, name)
		}
		sort.Slice(types, func(i, j int) bool {
			return stats.ByType[types[i]] > stats.ByType[types[j]]
		})
		for _, name := range types {
			fmt.Printf("  %-12s %d\n", name, stats.ByType[name])
		}
	}

	if len(stats.RecentDownloads) > 0 {
		fmt.Println("\nRecent imports:")
		for _, dl := range stats.RecentDownloads {
			fmt.Printf("  %s  %-12s +%d ~%d =%d  %s\n",
				dl.DownloadTime.Format("2006-01-02 15:04"),
				dl.Status,
				dl.RecordsImported,
				dl.RecordsUpdated,
				dl.RecordsSkipped,
				dl.Filename)
			if dl.Status == datastore.DownloadFailed && dl.ErrorMessage != "" {
				fmt.Printf("      error: %s\n", dl.ErrorMessage)
			}
		}
	}
	return nil
}
