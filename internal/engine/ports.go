package engine

import (
	"context"

	"berth/internal/notify"
)

// Preferences persists UI-owned state that must survive restarts.
// Production: *sqlite.Store
// Testing: fake.Preferences
type Preferences interface {
	CollapsedGroups(ctx context.Context) ([]string, error)
	SetGroupCollapsed(ctx context.Context, project string, collapsed bool) error
}

// Notifier delivers user-facing alerts for external transitions.
// Production: notify.CommandNotifier or notify.LogNotifier
// Testing: fake.Notifier
type Notifier = notify.Notifier
