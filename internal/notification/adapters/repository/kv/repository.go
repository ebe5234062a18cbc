// Package kv implements the notification repositories on top of a
// storage.Store. Every read is fail-soft.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/linkflow-ai/notifyhub/internal/notification/domain/model"
	"github.com/linkflow-ai/notifyhub/internal/notification/domain/repository"
	"github.com/linkflow-ai/notifyhub/internal/platform/logger"
	"github.com/linkflow-ai/notifyhub/internal/platform/storage"
)

// readJSON loads key into dest. It reports false when the key is absent or
// its value cannot be decoded; the latter is logged.
func readJSON(ctx context.Context, store storage.Store, log logger.Logger, key string, dest interface{}) bool {
	data, err := store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn("Failed to read from storage", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		log.Warn("Discarding malformed stored value", "key", key, "error", err)
		return false
	}
	return true
}

func writeJSON(ctx context.Context, store storage.Store, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// PreferenceStore persists preferences under their own key
type PreferenceStore struct {
	store  storage.Store
	key    string
	logger logger.Logger
	mu     sync.Mutex
}

func NewPreferenceStore(store storage.Store, userID string, log logger.Logger) *PreferenceStore {
	return &PreferenceStore{
		store:  store,
		key:    storage.Key(repository.KeyPreferences, userID),
		logger: log,
	}
}

var _ repository.PreferenceRepository = (*PreferenceStore)(nil)

// Get returns stored preferences merged over the defaults
func (s *PreferenceStore) Get(ctx context.Context) model.Preferences {
	stored := model.DefaultPreferences()
	if !readJSON(ctx, s.store, s.logger, s.key, &stored) {
		return model.DefaultPreferences()
	}
	defaults := model.DefaultPreferences()
	if stored.Types == nil {
		stored.Types = defaults.Types
	}
	if stored.Priorities == nil {
		stored.Priorities = defaults.Priorities
	}
	return stored
}

// Update merges patch into the current preferences and writes them
// synchronously. The merged value is returned even if the write fails.
func (s *PreferenceStore) Update(ctx context.Context, patch model.PreferencesPatch) (model.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.Get(ctx).Merge(patch)
	return merged, writeJSON(ctx, s.store, s.key, merged)
}

// ListStore persists one view's notification list
type ListStore struct {
	store  storage.Store
	key    string
	logger logger.Logger
}

func NewListStore(store storage.Store, userID string, log logger.Logger) *ListStore {
	return &ListStore{
		store:  store,
		key:    storage.Key(repository.KeyNotifications, userID),
		logger: log,
	}
}

var _ repository.NotificationListRepository = (*ListStore)(nil)

func (s *ListStore) Load(ctx context.Context) []model.Notification {
	var list []model.Notification
	if !readJSON(ctx, s.store, s.logger, s.key, &list) {
		return []model.Notification{}
	}
	if list == nil {
		list = []model.Notification{}
	}
	return list
}

func (s *ListStore) Save(ctx context.Context, list []model.Notification) error {
	if list == nil {
		list = []model.Notification{}
	}
	return writeJSON(ctx, s.store, s.key, list)
}

// TooltipStore keeps the set of dismissed tooltip ids
type TooltipStore struct {
	store  storage.Store
	key    string
	logger logger.Logger
	mu     sync.Mutex
}

func NewTooltipStore(store storage.Store, userID string, log logger.Logger) *TooltipStore {
	return &TooltipStore{
		store:  store,
		key:    storage.Key(repository.KeyTooltipsSeen, userID),
		logger: log,
	}
}

var _ repository.TooltipRepository = (*TooltipStore)(nil)

func (s *TooltipStore) load(ctx context.Context) map[string]bool {
	seen := make(map[string]bool)
	if !readJSON(ctx, s.store, s.logger, s.key, &seen) || seen == nil {
		return make(map[string]bool)
	}
	return seen
}

func (s *TooltipStore) IsSeen(ctx context.Context, id string) bool {
	return s.load(ctx)[id]
}

func (s *TooltipStore) MarkSeen(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := s.load(ctx)
	if seen[id] {
		return nil
	}
	seen[id] = true
	return writeJSON(ctx, s.store, s.key, seen)
}

func (s *TooltipStore) Reset(ctx context.Context) error {
	if err := s.store.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("failed to reset tooltips: %w", err)
	}
	return nil
}
