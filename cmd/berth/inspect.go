package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"berth/cmd/berth/ui"
)

func inspectCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <container>",
		Short: "Show environment, mounts and networks of a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(flags, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.refresh(ctx); err != nil {
				return err
			}
			c, err := a.engine.Resolve(args[0])
			if err != nil {
				return err
			}
			d, err := a.engine.Details(ctx, c.ID)
			if err != nil {
				return err
			}
			fmt.Print(ui.DetailsView(c, d))
			return nil
		},
	}
}
