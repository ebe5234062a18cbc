package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkflow-ai/notifyhub/internal/notification/domain/model"
)

func TestBell(t *testing.T) {
	base := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	at := func(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }

	tests := []struct {
		name   string
		list   []model.Notification
		unread int
		topID  string
		icon   string
		color  string
	}{
		{
			name:  "empty",
			icon:  "bell",
			color: "gray",
		},
		{
			name: "all read",
			list: []model.Notification{
				{ID: "a", Type: model.TypeError, Priority: model.PriorityUrgent, Read: true, Timestamp: at(1)},
			},
			icon:  "bell",
			color: "gray",
		},
		{
			name: "highest priority wins",
			list: []model.Notification{
				{ID: "new-info", Type: model.TypeInfo, Priority: model.PriorityLow, Timestamp: at(3)},
				{ID: "old-error", Type: model.TypeError, Priority: model.PriorityUrgent, Timestamp: at(1)},
				{ID: "read-error", Type: model.TypeError, Priority: model.PriorityUrgent, Read: true, Timestamp: at(5)},
			},
			unread: 2,
			topID:  "old-error",
			icon:   "x-circle",
			color:  "red",
		},
		{
			name: "newest breaks ties",
			list: []model.Notification{
				{ID: "older", Type: model.TypeWarning, Priority: model.PriorityHigh, Timestamp: at(1)},
				{ID: "newer", Type: model.TypeAchievement, Priority: model.PriorityHigh, Timestamp: at(2)},
			},
			unread: 2,
			topID:  "newer",
			icon:   "trophy",
			color:  "purple",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := Bell(tt.list)

			assert.Equal(t, tt.unread, state.UnreadCount)
			assert.Equal(t, tt.icon, state.Icon)
			assert.Equal(t, tt.color, state.Color)
			if tt.topID == "" {
				assert.Nil(t, state.Top)
				return
			}
			require.NotNil(t, state.Top)
			assert.Equal(t, tt.topID, state.Top.ID)
		})
	}
}

func TestAppearanceCoversEveryType(t *testing.T) {
	for _, typ := range model.Types {
		icon, color := Appearance(typ)
		assert.NotEqual(t, "bell", icon, typ)
		assert.NotEmpty(t, color, typ)
	}
}
