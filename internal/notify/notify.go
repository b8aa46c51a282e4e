// Package notify turns externally caused transitions into user notifications.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"berth/internal/observed"
)

type Urgency uint8

const (
	UrgencyLow Urgency = iota + 1
	UrgencyNormal
	UrgencyCritical
)

func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyNormal:
		return "normal"
	case UrgencyCritical:
		return "critical"
	default:
		return "unknown"
	}
}

type Notification struct {
	Title   string
	Body    string
	Urgency Urgency
}

// Notifier delivers a notification to the user.
// Production: CommandNotifier or LogNotifier
// Testing: fake.Notifier
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// For maps an event to the notification it warrants. Only externally caused
// exits, disappearances of running containers and transitions to unhealthy
// notify.
func For(ev observed.Event) (Notification, bool) {
	name := ev.Name
	if name == "" {
		name = observed.ShortID(ev.ContainerID)
	}
	switch ev.Kind {
	case observed.EventStateChanged:
		if ev.UserInitiated || ev.To != observed.StateExited {
			return Notification{}, false
		}
		return Notification{
			Title:   "Container stopped",
			Body:    fmt.Sprintf("Container %s stopped unexpectedly", name),
			Urgency: UrgencyNormal,
		}, true
	case observed.EventHealthChanged:
		if ev.ToHealth != observed.HealthUnhealthy {
			return Notification{}, false
		}
		return Notification{
			Title:   "Container unhealthy",
			Body:    fmt.Sprintf("Container %s is unhealthy", name),
			Urgency: UrgencyCritical,
		}, true
	case observed.EventDisappeared:
		if ev.UserInitiated || ev.Evicted || ev.From != observed.StateRunning {
			return Notification{}, false
		}
		return Notification{
			Title:   "Container removed",
			Body:    fmt.Sprintf("Container %s was removed", name),
			Urgency: UrgencyNormal,
		}, true
	}
	return Notification{}, false
}

// Dispatcher forwards qualifying events to a Notifier. A nil Dispatcher or
// one without a Notifier drops everything.
type Dispatcher struct {
	notifier Notifier
	log      *slog.Logger
}

func NewDispatcher(n Notifier) *Dispatcher {
	return &Dispatcher{notifier: n, log: slog.With("component", "notify")}
}

// Dispatch sends one notification per qualifying event and returns how many
// were delivered. Delivery failures are logged and do not stop the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, events []observed.Event) int {
	if d == nil || d.notifier == nil {
		return 0
	}
	sent := 0
	for _, ev := range events {
		n, ok := For(ev)
		if !ok {
			continue
		}
		if err := d.notifier.Notify(ctx, n); err != nil {
			d.log.Warn("notification failed", "container", observed.ShortID(ev.ContainerID), "err", err)
			continue
		}
		sent++
	}
	return sent
}
