package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"berth/cmd/berth/ui"
)

func psCmd(flags *globalFlags) *cobra.Command {
	var (
		filter string
		sample time.Duration
		quiet  bool
	)
	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List containers grouped by compose project",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(flags, appOptions{preferences: true})
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.refresh(ctx); err != nil {
				return err
			}
			// CPU needs two samples.
			if sample > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(sample):
				}
				if err := a.refresh(ctx); err != nil {
					return err
				}
			}

			if err := a.engine.LoadPreferences(ctx); err != nil {
				return err
			}
			view := a.engine.Groups(filter)
			if quiet {
				for _, c := range view.Containers() {
					fmt.Println(c.ID)
				}
				return nil
			}
			if len(view.Groups) == 0 {
				fmt.Println(ui.Muted("no containers"))
				return nil
			}
			fmt.Print(ui.ContainerTable(view))
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "Only show containers whose name or image contains this text")
	cmd.Flags().DurationVar(&sample, "sample", 0, "Take a second sample after this long to report CPU usage")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print container ids")
	return cmd
}
