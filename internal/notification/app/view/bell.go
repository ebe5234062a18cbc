// Package view derives presentation state from a notification list.
package view

import "github.com/linkflow-ai/notifyhub/internal/notification/domain/model"

const (
	idleIcon  = "bell"
	idleColor = "gray"
)

type appearance struct {
	icon  string
	color string
}

var appearances = map[model.Type]appearance{
	model.TypeInfo:        {icon: "info", color: "blue"},
	model.TypeSuccess:     {icon: "check-circle", color: "green"},
	model.TypeWarning:     {icon: "alert-triangle", color: "yellow"},
	model.TypeError:       {icon: "x-circle", color: "red"},
	model.TypeAchievement: {icon: "trophy", color: "purple"},
	model.TypeMessage:     {icon: "message-circle", color: "indigo"},
	model.TypeSystem:      {icon: "settings", color: "gray"},
}

// Appearance returns the icon and color used for a notification type
func Appearance(t model.Type) (icon, color string) {
	if a, ok := appearances[t]; ok {
		return a.icon, a.color
	}
	return idleIcon, idleColor
}

// BellState is what the bell indicator renders
type BellState struct {
	UnreadCount int                 `json:"unreadCount"`
	Icon        string              `json:"icon"`
	Color       string              `json:"color"`
	Top         *model.Notification `json:"top,omitempty"`
}

// Bell summarises list. The top item is the unread notification with the
// highest priority, newest first among equals.
func Bell(list []model.Notification) BellState {
	state := BellState{Icon: idleIcon, Color: idleColor}

	var top *model.Notification
	for i := range list {
		n := list[i]
		if n.Read {
			continue
		}
		state.UnreadCount++
		if top == nil || outranks(n, *top) {
			top = &n
		}
	}

	if top != nil {
		state.Top = top
		state.Icon, state.Color = Appearance(top.Type)
	}
	return state
}

func outranks(a, b model.Notification) bool {
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra > rb
	}
	return a.Timestamp.After(b.Timestamp)
}
