package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"berth/cmd/berth/ui"
)

type actionKind uint8

const (
	actionStart actionKind = iota + 1
	actionStop
	actionRestart
	actionRemove
)

func (k actionKind) past() string {
	switch k {
	case actionStart:
		return "started"
	case actionStop:
		return "stopped"
	case actionRestart:
		return "restarted"
	default:
		return "removed"
	}
}

func (k actionKind) do(ctx context.Context, a *app, id string) error {
	switch k {
	case actionStart:
		return a.engine.Start(ctx, id)
	case actionStop:
		return a.engine.Stop(ctx, id)
	case actionRestart:
		return a.engine.Restart(ctx, id)
	default:
		return a.engine.Remove(ctx, id)
	}
}

const confirmPoll = 500 * time.Millisecond

func actionCmd(flags *globalFlags, use, short string, kind actionKind) *cobra.Command {
	var (
		all  bool
		wait time.Duration
	)
	cmd := &cobra.Command{
		Use:   use + " <container>...",
		Short: short,
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.MinimumNArgs(1)(cmd, args)
		},
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
			var errs []error
			if all {
				ids, err = bulkAll(ctx, a, kind)
				if err != nil {
					errs = append(errs, err)
				}
			} else {
				for _, ref := range args {
					c, err := a.engine.Resolve(ref)
					if err == nil {
						err = kind.do(ctx, a, c.ID)
					}
					if err != nil {
						errs = append(errs, err)
						continue
					}
					ids = append(ids, c.ID)
				}
			}
			for _, id := range ids {
				fmt.Println(ui.SuccessMsg("%s %s", nameOf(a, id), kind.past()))
			}
			if wait > 0 && len(ids) > 0 {
				if err := confirm(ctx, a, ids, wait); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
	if kind == actionStart || kind == actionStop {
		cmd.Flags().BoolVarP(&all, "all", "a", false, "Act on every container")
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "Wait up to this long for the change to be observed")
	return cmd
}

func bulkAll(ctx context.Context, a *app, kind actionKind) ([]string, error) {
	if kind == actionStart {
		return a.engine.StartAll(ctx)
	}
	return a.engine.StopAll(ctx)
}

func nameOf(a *app, id string) string {
	if c, err := a.engine.Resolve(id); err == nil && c.Name != "" {
		return c.Name
	}
	return id[:min(len(id), 12)]
}

// confirm polls until every pending action has been matched by an observed
// transition or the timeout passes.
func confirm(ctx context.Context, a *app, ids []string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(confirmPoll)
	defer ticker.Stop()
	for {
		if err := a.refresh(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		var waiting []string
		for _, id := range ids {
			if _, ok := a.engine.Pending(id); ok {
				waiting = append(waiting, nameOf(a, id))
			}
		}
		if len(waiting) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("still waiting for %v after %s", waiting, timeout)
		case <-ticker.C:
		}
	}
}
