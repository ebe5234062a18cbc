package repository

import (
	"context"

	"github.com/linkflow-ai/notifyhub/internal/notification/domain/model"
)

// Storage keys. Each is namespaced by user id when one is configured.
const (
	KeyNotifications = "notifications"
	KeyPreferences   = "notification-preferences"
	KeyTooltipsSeen  = "tooltips-seen"
)

// PreferenceRepository persists the preferences record. Get never fails:
// missing or malformed data yields defaults.
type PreferenceRepository interface {
	Get(ctx context.Context) model.Preferences
	Update(ctx context.Context, patch model.PreferencesPatch) (model.Preferences, error)
}

// NotificationListRepository persists a view's full notification list.
// Load never fails: missing or malformed data yields an empty list.
type NotificationListRepository interface {
	Load(ctx context.Context) []model.Notification
	Save(ctx context.Context, list []model.Notification) error
}

// TooltipRepository remembers which tooltips a user has dismissed
type TooltipRepository interface {
	IsSeen(ctx context.Context, id string) bool
	MarkSeen(ctx context.Context, id string) error
	Reset(ctx context.Context) error
}
