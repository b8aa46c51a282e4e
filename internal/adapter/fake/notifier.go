package fake

import (
	"context"
	"sync"

	"berth/internal/notify"
)

var _ notify.Notifier = (*Notifier)(nil)

// Notifier records delivered notifications.
type Notifier struct {
	CallRecorder

	mu   sync.Mutex
	sent []notify.Notification

	NotifyErr func(ctx context.Context, n notify.Notification) error
}

func (n *Notifier) Notify(ctx context.Context, note notify.Notification) error {
	n.record("Notify", note)
	if n.NotifyErr != nil {
		if err := n.NotifyErr(ctx, note); err != nil {
			return err
		}
	}
	n.mu.Lock()
	n.sent = append(n.sent, note)
	n.mu.Unlock()
	return nil
}

// Sent returns delivered notifications in order.
func (n *Notifier) Sent() []notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Notification(nil), n.sent...)
}
