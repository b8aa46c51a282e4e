package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, note Notification) error {
	log := n.Logger
	if log == nil {
		log = slog.Default()
	}
	level := slog.LevelInfo
	if note.Urgency == UrgencyCritical {
		level = slog.LevelWarn
	}
	log.Log(ctx, level, note.Body, "component", "notify", "title", note.Title, "urgency", note.Urgency.String())
	return nil
}

// CommandNotifier runs an external command per notification, notify-send
// style: <command> [args...] -u <urgency> <title> <body>.
type CommandNotifier struct {
	Command string
	Args    []string
}

// NewCommandNotifier splits a command line on whitespace.
func NewCommandNotifier(commandLine string) (CommandNotifier, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return CommandNotifier{}, fmt.Errorf("notification command is empty")
	}
	return CommandNotifier{Command: fields[0], Args: fields[1:]}, nil
}

func (n CommandNotifier) Notify(ctx context.Context, note Notification) error {
	args := append(append([]string(nil), n.Args...), "-u", note.Urgency.String(), note.Title, note.Body)
	out, err := exec.CommandContext(ctx, n.Command, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("run %s: %w: %s", n.Command, err, strings.TrimSpace(string(out)))
	}
	return nil
}
