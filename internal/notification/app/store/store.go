// Package store keeps one view's notification list in sync with the
// notification service and durable storage.
package store

import (
	"context"
	"sync"

	"github.com/linkflow-ai/notifyhub/internal/notification/app/service"
	"github.com/linkflow-ai/notifyhub/internal/notification/domain/model"
	"github.com/linkflow-ai/notifyhub/internal/notification/domain/repository"
	"github.com/linkflow-ai/notifyhub/internal/platform/logger"
	"github.com/linkflow-ai/notifyhub/internal/platform/metrics"
)

// Service is the part of the notification service a store consumes
type Service interface {
	Send(ctx context.Context, draft model.Draft) (model.Notification, error)
	Subscribe(fn service.Subscriber) func()
	SubscribeControl(fn service.ControlSubscriber) func()
	MarkAsRead(id string) *service.Pending
	MarkAllAsRead() *service.Pending
	Delete(id string) *service.Pending
	ClearAll() *service.Pending
	Preferences() model.Preferences
	ReloadPreferences(ctx context.Context) model.Preferences
}

// Store owns the persisted list of one view tree. The full list is written
// back after every mutation; reads never touch storage.
type Store struct {
	svc         Service
	list        repository.NotificationListRepository
	logger      logger.Logger
	metrics     *metrics.Metrics
	maxRetained int

	mu            sync.RWMutex
	notifications []model.Notification
	filters       model.Filter
	mounted       bool
	unsubscribe   []func()

	listenersMu sync.RWMutex
	listeners   map[uint64]func()
	nextID      uint64
}

type Option func(*Store)

func WithMaxRetained(max int) Option {
	return func(s *Store) {
		if max > 0 {
			s.maxRetained = max
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func New(svc Service, list repository.NotificationListRepository, log logger.Logger, opts ...Option) *Store {
	s := &Store{
		svc:           svc,
		list:          list,
		logger:        log,
		maxRetained:   model.DefaultMaxRetained,
		notifications: []model.Notification{},
		listeners:     make(map[uint64]func()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mount reloads preferences, restores the persisted list and subscribes to
// the service. Mounting twice is a no-op.
func (s *Store) Mount(ctx context.Context) {
	s.mu.Lock()
	if s.mounted {
		s.mu.Unlock()
		return
	}
	s.mounted = true

	s.svc.ReloadPreferences(ctx)

	restored := s.list.Load(ctx)
	if len(restored) > s.maxRetained {
		restored = restored[:s.maxRetained]
	}
	s.notifications = restored
	s.unsubscribe = []func(){
		s.svc.Subscribe(s.receive),
		s.svc.SubscribeControl(s.applyRemote),
	}
	s.mu.Unlock()

	s.logger.Debug("Notification store mounted", "restored", len(restored))
	s.changed()
}

// Unmount drops the service subscriptions. Safe to call more than once.
func (s *Store) Unmount() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mounted = false
	s.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
}

// AddNotification hands the draft to the service. The list is updated when
// the service delivers it back through the subscription.
func (s *Store) AddNotification(ctx context.Context, draft model.Draft) (model.Notification, error) {
	return s.svc.Send(ctx, draft)
}

func (s *Store) receive(n model.Notification) {
	s.mutate(context.Background(), func(list []model.Notification) []model.Notification {
		return model.Prepend(list, n, s.maxRetained)
	})
}

// applyRemote mirrors a control operation performed elsewhere
func (s *Store) applyRemote(env model.ControlEnvelope) {
	ctx := context.Background()
	switch env.Type {
	case model.ControlMarkRead:
		s.mutate(ctx, func(list []model.Notification) []model.Notification {
			out, _ := model.MarkRead(list, env.ID)
			return out
		})
	case model.ControlMarkAllRead:
		s.mutate(ctx, model.MarkAllRead)
	case model.ControlDelete:
		s.mutate(ctx, func(list []model.Notification) []model.Notification {
			out, _ := model.Remove(list, env.ID)
			return out
		})
	case model.ControlClearAll:
		s.mutate(ctx, func([]model.Notification) []model.Notification {
			return []model.Notification{}
		})
	}
}

// MarkAsRead updates the list immediately and relays the change. It
// reports whether id was present.
func (s *Store) MarkAsRead(ctx context.Context, id string) bool {
	found := false
	s.mutate(ctx, func(list []model.Notification) []model.Notification {
		var out []model.Notification
		out, found = model.MarkRead(list, id)
		return out
	})
	s.svc.MarkAsRead(id)
	return found
}

func (s *Store) MarkAllAsRead(ctx context.Context) {
	s.mutate(ctx, model.MarkAllRead)
	s.svc.MarkAllAsRead()
}

// DeleteNotification removes id locally and relays the change. It reports
// whether id was present.
func (s *Store) DeleteNotification(ctx context.Context, id string) bool {
	found := false
	s.mutate(ctx, func(list []model.Notification) []model.Notification {
		var out []model.Notification
		out, found = model.Remove(list, id)
		return out
	})
	s.svc.Delete(id)
	return found
}

func (s *Store) ClearAll(ctx context.Context) {
	s.mutate(ctx, func([]model.Notification) []model.Notification {
		return []model.Notification{}
	})
	s.svc.ClearAll()
}

// mutate swaps the list, persists the full result and notifies listeners
func (s *Store) mutate(ctx context.Context, fn func([]model.Notification) []model.Notification) {
	s.mu.Lock()
	next := fn(s.notifications)
	s.notifications = next
	if err := s.list.Save(ctx, next); err != nil {
		if s.metrics != nil {
			s.metrics.StorageWriteFailures.WithLabelValues(repository.KeyNotifications).Inc()
		}
		s.logger.Error("Failed to persist notifications", "error", err)
	}
	unread := model.UnreadCount(next)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.UnreadNotifications.Set(float64(unread))
	}
	s.changed()
}

// UpdateFilters merges patch into the active filters
func (s *Store) UpdateFilters(patch model.Filter) {
	s.mu.Lock()
	s.filters = s.filters.Merge(patch)
	s.mu.Unlock()
	s.changed()
}

// ResetFilters clears every active filter
func (s *Store) ResetFilters() {
	s.mu.Lock()
	s.filters = model.Filter{}
	s.mu.Unlock()
	s.changed()
}

func (s *Store) Filters() model.Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.Filter{}.Merge(s.filters)
}

// Notifications returns a copy of the full list, newest first
func (s *Store) Notifications() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Notification{}, s.notifications...)
}

// GetFilteredNotifications projects the full list through the active
// filters
func (s *Store) GetFilteredNotifications() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters.Apply(s.notifications)
}

// VisibleNotifications is the filtered list further restricted by the
// type and priority toggles. Disabling notifications keeps retained items
// visible, in line with the bell and unread count.
func (s *Store) VisibleNotifications() []model.Notification {
	prefs := s.svc.Preferences()
	filtered := s.GetFilteredNotifications()

	out := make([]model.Notification, 0, len(filtered))
	for _, n := range filtered {
		if prefs.ShowsCategory(n) {
			out = append(out, n)
		}
	}
	return out
}

// UnreadCount counts over the full list regardless of filters
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.UnreadCount(s.notifications)
}

// OnChange registers fn to run after every list or filter change
func (s *Store) OnChange(fn func()) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Store) changed() {
	s.listenersMu.RLock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}
