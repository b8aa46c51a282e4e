package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"berth/cmd/berth/ui"
	"berth/internal/logstream"
	"berth/internal/observed"
)

func logsCmd(flags *globalFlags) *cobra.Command {
	var (
		follow     bool
		tail       int
		timestamps bool
	)
	cmd := &cobra.Command{
		Use:   "logs <container>",
		Short: "Print container output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if cmd.Flags().Changed("tail") {
				flags.cfg.LogTail = tail
			}
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

			if !follow {
				r, err := a.runtime.StreamLogs(ctx, c.ID, observed.LogOptions{Tail: flags.cfg.LogTail})
				if err != nil {
					return err
				}
				defer r.Close()
				for {
					line, err := r.Next()
					if errors.Is(err, io.EOF) {
						return nil
					}
					if err != nil {
						return err
					}
					fmt.Println(ui.LogLine(line, timestamps))
				}
			}

			h, err := a.engine.SubscribeLogs(c.ID)
			if err != nil {
				return err
			}
			defer a.engine.UnsubscribeLogs(h)

			var last *observed.LogLine
			report := newStatusReporter(c.Name)
			for {
				select {
				case <-ctx.Done():
					return nil
				case _, ok := <-h.Updates():
					for _, line := range unseen(h.Lines(), last) {
						fmt.Println(ui.LogLine(line, timestamps))
						last = &line
					}
					st := h.Status()
					report(st)
					if !ok {
						return st.Err
					}
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow new output, reconnecting on interruptions")
	cmd.Flags().IntVarP(&tail, "tail", "n", 0, "Number of existing lines to show (default log_tail)")
	cmd.Flags().BoolVarP(&timestamps, "timestamps", "t", false, "Prefix lines with their timestamp")
	return cmd
}

// unseen returns the lines after last. When last has been evicted from the
// buffer every line is new.
func unseen(lines []observed.LogLine, last *observed.LogLine) []observed.LogLine {
	if last == nil {
		return lines
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i].Timestamp.Equal(last.Timestamp) && lines[i].Text == last.Text && lines[i].Stream == last.Stream {
			return lines[i+1:]
		}
	}
	return lines
}

func newStatusReporter(name string) func(logstream.Status) {
	prev := logstream.Connecting
	return func(st logstream.Status) {
		if st.State == prev {
			return
		}
		prev = st.State
		switch st.State {
		case logstream.Disconnected:
			fmt.Fprintln(os.Stderr, ui.WarnMsg("%s: log stream ended (retry %d)", name, st.Retries))
		case logstream.Failed:
			fmt.Fprintln(os.Stderr, ui.WarnMsg("%s: log stream interrupted: %v", name, st.Err))
		case logstream.Streaming:
			if st.Retries > 0 {
				fmt.Fprintln(os.Stderr, ui.SuccessMsg("%s: log stream reconnected", name))
			}
		}
	}
}
