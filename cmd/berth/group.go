package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"berth/cmd/berth/ui"
)

func groupCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Act on a compose project",
	}
	cmd.AddCommand(groupActionCmd(flags, actionStart), groupActionCmd(flags, actionStop), groupToggleCmd(flags))
	return cmd
}

func groupActionCmd(flags *globalFlags, kind actionKind) *cobra.Command {
	use, short := "start", "Start the stopped members of a compose project"
	if kind == actionStop {
		use, short = "stop", "Stop the running members of a compose project"
	}
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   use + " <project>",
		Short: short,
		Long:  short + ". Members are handled one at a time and the first failure stops the rest.",
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

			var ids []string
			if kind == actionStart {
				ids, err = a.engine.StartGroup(ctx, args[0])
			} else {
				ids, err = a.engine.StopGroup(ctx, args[0])
			}
			for _, id := range ids {
				fmt.Println(ui.SuccessMsg("%s %s", nameOf(a, id), kind.past()))
			}
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println(ui.Muted("nothing to do"))
				return nil
			}
			if wait > 0 {
				return confirm(ctx, a, ids, wait)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "Wait up to this long for the changes to be observed")
	return cmd
}

func groupToggleCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <project>",
		Short: "Collapse or expand a project in listings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(flags, appOptions{preferences: true})
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.engine.LoadPreferences(ctx); err != nil {
				return err
			}
			collapsed, err := a.engine.ToggleGroup(ctx, args[0])
			if err != nil {
				return err
			}
			state := "expanded"
			if collapsed {
				state = "collapsed"
			}
			fmt.Println(ui.SuccessMsg("%s %s", args[0], state))
			return nil
		},
	}
}
