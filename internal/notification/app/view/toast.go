package view

import (
	"sync"
	"time"

	"github.com/linkflow-ai/notifyhub/internal/notification/domain/model"
)

const (
	DefaultToastDuration  = 5 * time.Second
	DefaultToastStackSize = 5
)

// PreferenceSource supplies the current preferences snapshot
type PreferenceSource interface {
	Preferences() model.Preferences
}

// Toast is a notification on screen
type Toast struct {
	Notification model.Notification `json:"notification"`
	ShownAt      time.Time          `json:"shownAt"`
	Duration     time.Duration      `json:"duration"`
	Remaining    float64            `json:"remaining"`
}

type toastEntry struct {
	notification model.Notification
	shownAt      time.Time
	timer        *time.Timer
}

// ToastManager shows newly arrived notifications for a bounded time. Each
// toast leaves on Dismiss or when its timer fires, whichever comes first.
type ToastManager struct {
	prefs     PreferenceSource
	duration  time.Duration
	stackSize int
	now       func() time.Time

	mu       sync.Mutex
	toasts   []*toastEntry
	closed   bool
	onChange func()
}

type ToastOption func(*ToastManager)

func WithToastDuration(d time.Duration) ToastOption {
	return func(m *ToastManager) {
		if d > 0 {
			m.duration = d
		}
	}
}

func WithStackSize(n int) ToastOption {
	return func(m *ToastManager) {
		if n > 0 {
			m.stackSize = n
		}
	}
}

func WithToastClock(now func() time.Time) ToastOption {
	return func(m *ToastManager) { m.now = now }
}

// WithOnChange registers a callback run after a toast appears or leaves
func WithOnChange(fn func()) ToastOption {
	return func(m *ToastManager) { m.onChange = fn }
}

func NewToastManager(prefs PreferenceSource, opts ...ToastOption) *ToastManager {
	m := &ToastManager{
		prefs:     prefs,
		duration:  DefaultToastDuration,
		stackSize: DefaultToastStackSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Show displays n unless preferences hide it. It reports whether a toast
// was shown. Showing an id already on screen restarts its countdown.
func (m *ToastManager) Show(n model.Notification) bool {
	if !m.prefs.Preferences().Allows(n) {
		return false
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.removeLocked(n.ID)

	entry := &toastEntry{notification: n, shownAt: m.now()}
	entry.timer = time.AfterFunc(m.duration, func() { m.expire(entry) })
	m.toasts = append([]*toastEntry{entry}, m.toasts...)

	for len(m.toasts) > m.stackSize {
		oldest := m.toasts[len(m.toasts)-1]
		oldest.timer.Stop()
		m.toasts = m.toasts[:len(m.toasts)-1]
	}
	m.mu.Unlock()

	m.changed()
	return true
}

// Dismiss removes a toast before its timer fires
func (m *ToastManager) Dismiss(id string) bool {
	m.mu.Lock()
	removed := m.removeLocked(id)
	m.mu.Unlock()

	if removed {
		m.changed()
	}
	return removed
}

func (m *ToastManager) expire(entry *toastEntry) {
	m.mu.Lock()
	removed := false
	for i, e := range m.toasts {
		if e == entry {
			m.toasts = append(m.toasts[:i], m.toasts[i+1:]...)
			removed = true
			break
		}
	}
	m.mu.Unlock()

	if removed {
		m.changed()
	}
}

func (m *ToastManager) removeLocked(id string) bool {
	for i, e := range m.toasts {
		if e.notification.ID == id {
			e.timer.Stop()
			m.toasts = append(m.toasts[:i], m.toasts[i+1:]...)
			return true
		}
	}
	return false
}

// Active returns the toasts on screen, newest first
func (m *ToastManager) Active() []Toast {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]Toast, 0, len(m.toasts))
	for _, e := range m.toasts {
		out = append(out, Toast{
			Notification: e.notification,
			ShownAt:      e.shownAt,
			Duration:     m.duration,
			Remaining:    m.remaining(e, now),
		})
	}
	return out
}

// Remaining is the countdown fraction for id, from 1 when shown to 0 when
// it expires
func (m *ToastManager) Remaining(id string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.toasts {
		if e.notification.ID == id {
			return m.remaining(e, m.now()), true
		}
	}
	return 0, false
}

func (m *ToastManager) remaining(e *toastEntry, now time.Time) float64 {
	left := 1 - float64(now.Sub(e.shownAt))/float64(m.duration)
	return max(0, min(1, left))
}

// Close stops every timer and clears the stack. Later Show calls are
// ignored.
func (m *ToastManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.toasts {
		e.timer.Stop()
	}
	m.toasts = nil
	m.closed = true
}

func (m *ToastManager) changed() {
	if m.onChange != nil {
		m.onChange()
	}
}
