// Package status implements the operator status-transition command.
package status

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kinderlab/tnsmarshal/internal/conf"
	"github.com/kinderlab/tnsmarshal/internal/datastore"
	"github.com/kinderlab/tnsmarshal/internal/logging"
	"github.com/kinderlab/tnsmarshal/internal/marshal"
	"github.com/kinderlab/tnsmarshal/internal/workflow"
)

// Command creates the status command: inspect or transition one object's
// workflow state.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status OBJECT [TAG]",
		Short: "Show or change an object's workflow status",
		Long: `Show an object's workflow status, or transition it when a tag is given.
Valid tags: object, followup, finished, snoozed, clear.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return show(settings, args[0])
			}
			return transition(settings, args[0], workflow.Tag(args[1]))
		},
	}
	return cmd
}

func openStore(settings *conf.Settings) (datastore.Interface, error) {
	store := datastore.New(settings, logging.Human())
	if err := store.Open(); err != nil {
		return nil, err
	}
	return store, nil
}

func show(settings *conf.Settings, name string) error {
	store, err := openStore(settings)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	obj, err := store.GetObject(name)
	if err != nil {
		return err
	}

	flags := obj.Flags()
	fmt.Printf("%s\n", obj.FullName())
	fmt.Printf("  status:     %s\n", workflow.EffectiveTag(flags))
	fmt.Printf("  type:       %s\n", orDash(obj.Type))
	fmt.Printf("  ra/dec:     %.5f %.5f\n", obj.RA, obj.Declination)
	fmt.Printf("  discovered: %s\n", obj.DiscoveryDate.Format("2006-01-02 15:04:05"))
	fmt.Printf("  modified:   %s\n", obj.LastModified.Format("2006-01-02 15:04:05"))
	if obj.Redshift != nil {
		fmt.Printf("  redshift:   %.4f\n", *obj.Redshift)
	}
	return nil
}

func transition(settings *conf.Settings, name string, tag workflow.Tag) error {
	store, err := openStore(settings)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	svc := marshal.NewService(store, &settings.Main.Log)
	defer svc.Close()

	if err := svc.SetStatus(name, tag); err != nil {
		return err
	}

	obj, err := store.GetObject(name)
	if err != nil {
		return err
	}
	fmt.Printf("%s -> %s\n", obj.FullName(), workflow.EffectiveTag(obj.Flags()))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
