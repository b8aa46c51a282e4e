package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"berth/cmd/berth/ui"
	"berth/internal/watch"
)

func watchCmd(flags *globalFlags) *cobra.Command {
	var (
		filter   string
		noNotify bool
		wait     bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow container changes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := openApp(flags, appOptions{notifications: !noNotify, preferences: true})
			if err != nil {
				return err
			}
			defer a.close()

			if wait {
				if err := a.runtime.WaitReady(ctx, time.Second); err != nil {
					return fmt.Errorf("wait for daemon: %w", err)
				}
			}

			_, updates := a.engine.Subscribe(ctx)
			done := make(chan error, 1)
			go func() { done <- a.engine.Run(ctx) }()

			w := &watchPrinter{filter: filter, app: a}
			for u := range updates {
				w.print(u)
			}
			return <-done
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "Only show containers whose name or image contains this text")
	cmd.Flags().BoolVar(&noNotify, "no-notify", false, "Disable notifications for unexpected changes")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the daemon to come up before watching")
	return cmd
}

type watchPrinter struct {
	filter   string
	app      *app
	listed   bool
	degraded bool
}

func (w *watchPrinter) print(u watch.Update) {
	if u.Err != nil {
		if !w.degraded {
			w.degraded = true
			fmt.Fprintln(os.Stderr, ui.WarnMsg("daemon unavailable, showing last known state: %v", u.Err))
		}
		return
	}
	if w.degraded {
		w.degraded = false
		fmt.Fprintln(os.Stderr, ui.SuccessMsg("daemon reachable again"))
	}
	if !w.listed && u.Snapshot != nil {
		w.listed = true
		fmt.Print(ui.ContainerTable(w.app.engine.Groups(w.filter)))
		return
	}
	q := strings.ToLower(w.filter)
	for _, ev := range u.Events {
		if q != "" && !strings.Contains(strings.ToLower(ev.Name), q) {
			continue
		}
		fmt.Printf("%s %s\n", ui.Muted(time.Now().Format(time.TimeOnly)), ui.EventLine(ev))
	}
}
