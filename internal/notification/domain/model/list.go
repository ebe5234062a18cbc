package model

// DefaultMaxRetained bounds a view's notification list
const DefaultMaxRetained = 50

// Prepend inserts n at the head of a newest-first list, drops any older
// entry with the same id and truncates to max. The input slice is not
// modified.
func Prepend(list []Notification, n Notification, max int) []Notification {
	if max <= 0 {
		max = DefaultMaxRetained
	}
	out := make([]Notification, 0, min(len(list)+1, max))
	out = append(out, n)
	for _, existing := range list {
		if len(out) == max {
			break
		}
		if existing.ID == n.ID {
			continue
		}
		out = append(out, existing)
	}
	return out
}

// MarkRead marks one notification read. It reports whether the id exists.
func MarkRead(list []Notification, id string) ([]Notification, bool) {
	out := append([]Notification(nil), list...)
	for i := range out {
		if out[i].ID == id {
			out[i].MarkAsRead()
			return out, true
		}
	}
	return out, false
}

// MarkAllRead marks every notification read
func MarkAllRead(list []Notification) []Notification {
	out := append([]Notification(nil), list...)
	for i := range out {
		out[i].MarkAsRead()
	}
	return out
}

// Remove drops the notification with id. It reports whether it existed.
func Remove(list []Notification, id string) ([]Notification, bool) {
	out := make([]Notification, 0, len(list))
	found := false
	for _, n := range list {
		if n.ID == id {
			found = true
			continue
		}
		out = append(out, n)
	}
	return out, found
}

// UnreadCount counts unread notifications
func UnreadCount(list []Notification) int {
	count := 0
	for _, n := range list {
		if !n.Read {
			count++
		}
	}
	return count
}
