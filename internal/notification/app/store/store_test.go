package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkflow-ai/notifyhub/internal/notification/adapters/repository/kv"
	"github.com/linkflow-ai/notifyhub/internal/notification/app/service"
	"github.com/linkflow-ai/notifyhub/internal/notification/domain/model"
	"github.com/linkflow-ai/notifyhub/internal/platform/logger"
	"github.com/linkflow-ai/notifyhub/internal/platform/storage"
)

type fixture struct {
	backend storage.Store
	svc     *service.NotificationService
	store   *Store
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixtureWithBackend(t, storage.NewMemory(), opts...)
}

func newFixtureWithBackend(t *testing.T, backend storage.Store, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	log := logger.NewNop()

	seq := 0
	clock := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	svc := service.NewNotificationService(ctx,
		kv.NewPreferenceStore(backend, "", log),
		log,
		service.WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
		service.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("n-%d", seq)
		}),
	)
	t.Cleanup(func() { _ = svc.Close() })

	s := New(svc, kv.NewListStore(backend, "", log), log, opts...)
	s.Mount(ctx)
	t.Cleanup(s.Unmount)

	return &fixture{backend: backend, svc: svc, store: s}
}

func (f *fixture) send(t *testing.T, typ model.Type, priority model.Priority) model.Notification {
	t.Helper()
	n, err := f.store.AddNotification(context.Background(), model.Draft{
		Type:     typ,
		Priority: priority,
		Title:    string(typ),
	})
	require.NoError(t, err)
	return n
}

func idsOf(list []model.Notification) []string {
	out := make([]string, len(list))
	for i, n := range list {
		out[i] = n.ID
	}
	return out
}

func TestNewestFirstAndUnreadCount(t *testing.T) {
	f := newFixture(t)

	info := f.send(t, model.TypeInfo, model.PriorityMedium)
	achievement := f.send(t, model.TypeAchievement, model.PriorityHigh)
	failure := f.send(t, model.TypeError, model.PriorityUrgent)

	list := f.store.Notifications()
	assert.Equal(t, []string{failure.ID, achievement.ID, info.ID}, idsOf(list))
	assert.Equal(t, []model.Type{model.TypeError, model.TypeAchievement, model.TypeInfo},
		[]model.Type{list[0].Type, list[1].Type, list[2].Type})
	assert.Equal(t, 3, f.store.UnreadCount())

	require.True(t, f.store.MarkAsRead(context.Background(), achievement.ID))
	assert.Equal(t, 2, f.store.UnreadCount())

	list = f.store.Notifications()
	assert.False(t, list[0].Read)
	assert.True(t, list[1].Read)
	assert.False(t, list[2].Read)

	assert.False(t, f.store.MarkAsRead(context.Background(), "missing"))
	assert.Equal(t, 2, f.store.UnreadCount())
}

func TestRetainedListIsBounded(t *testing.T) {
	tests := []struct {
		name  string
		opts  []Option
		sends int
		max   int
	}{
		{name: "default bound", sends: 60, max: model.DefaultMaxRetained},
		{name: "custom bound", opts: []Option{WithMaxRetained(3)}, sends: 7, max: 3},
		{name: "under bound", sends: 4, max: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.opts...)

			var sent []model.Notification
			for i := 0; i < tt.sends; i++ {
				sent = append(sent, f.send(t, model.TypeInfo, model.PriorityLow))
				assert.LessOrEqual(t, len(f.store.Notifications()), tt.max)
			}

			list := f.store.Notifications()
			require.Len(t, list, tt.max)
			assert.Equal(t, sent[len(sent)-1].ID, list[0].ID)
			assert.Equal(t, sent[len(sent)-tt.max].ID, list[len(list)-1].ID)
		})
	}
}

func TestUnreadCountIgnoresFilters(t *testing.T) {
	f := newFixture(t)
	f.send(t, model.TypeInfo, model.PriorityLow)
	f.send(t, model.TypeWarning, model.PriorityHigh)

	f.store.UpdateFilters(model.Filter{Type: model.TypeRef(model.TypeWarning)})

	assert.Len(t, f.store.GetFilteredNotifications(), 1)
	assert.Equal(t, 2, f.store.UnreadCount())
}

func TestMarkAllAsReadWithReadFilters(t *testing.T) {
	f := newFixture(t)
	for _, typ := range []model.Type{model.TypeInfo, model.TypeSuccess, model.TypeSystem} {
		f.send(t, typ, model.PriorityMedium)
	}

	f.store.MarkAllAsRead(context.Background())
	assert.Equal(t, 0, f.store.UnreadCount())

	f.store.UpdateFilters(model.Filter{Read: model.ReadRef(true)})
	assert.Equal(t, idsOf(f.store.Notifications()), idsOf(f.store.GetFilteredNotifications()))

	f.store.UpdateFilters(model.Filter{Read: model.ReadRef(false)})
	assert.Empty(t, f.store.GetFilteredNotifications())
}

func TestClearAll(t *testing.T) {
	f := newFixture(t)
	f.send(t, model.TypeInfo, model.PriorityLow)
	f.send(t, model.TypeError, model.PriorityHigh)

	f.store.ClearAll(context.Background())

	assert.Empty(t, f.store.Notifications())
	assert.Equal(t, 0, f.store.UnreadCount())

	reloaded := kv.NewListStore(f.backend, "", logger.NewNop()).Load(context.Background())
	assert.Empty(t, reloaded)
}

func TestDeleteNotification(t *testing.T) {
	f := newFixture(t)
	keep := f.send(t, model.TypeInfo, model.PriorityLow)
	drop := f.send(t, model.TypeError, model.PriorityHigh)

	assert.True(t, f.store.DeleteNotification(context.Background(), drop.ID))
	assert.False(t, f.store.DeleteNotification(context.Background(), drop.ID))
	assert.Equal(t, []string{keep.ID}, idsOf(f.store.Notifications()))
}

func TestFiltersAreConjunctive(t *testing.T) {
	f := newFixture(t)
	f.send(t, model.TypeAchievement, model.PriorityLow)
	match := f.send(t, model.TypeAchievement, model.PriorityHigh)
	f.send(t, model.TypeError, model.PriorityHigh)

	f.store.UpdateFilters(model.Filter{Type: model.TypeRef(model.TypeAchievement)})
	f.store.UpdateFilters(model.Filter{Priority: model.PriorityRef(model.PriorityHigh)})

	assert.Equal(t, []string{match.ID}, idsOf(f.store.GetFilteredNotifications()))
	assert.Len(t, f.store.Notifications(), 3)

	f.store.ResetFilters()
	assert.True(t, f.store.Filters().IsZero())
	assert.Len(t, f.store.GetFilteredNotifications(), 3)
}

func TestDateRangeFilter(t *testing.T) {
	f := newFixture(t)
	first := f.send(t, model.TypeInfo, model.PriorityLow)
	second := f.send(t, model.TypeInfo, model.PriorityLow)
	f.send(t, model.TypeInfo, model.PriorityLow)

	f.store.UpdateFilters(model.Filter{DateRange: &model.DateRange{
		Start: first.Timestamp,
		End:   second.Timestamp,
	}})

	assert.Equal(t, []string{second.ID, first.ID}, idsOf(f.store.GetFilteredNotifications()))
}

func TestPersistenceRoundTrip(t *testing.T) {
	backend := storage.NewMemory()
	f := newFixtureWithBackend(t, backend)

	f.send(t, model.TypeInfo, model.PriorityLow)
	read := f.send(t, model.TypeAchievement, model.PriorityHigh)
	f.send(t, model.TypeMessage, model.PriorityMedium)
	f.store.MarkAsRead(context.Background(), read.ID)
	before := f.store.Notifications()

	f.store.Unmount()

	again := New(f.svc, kv.NewListStore(backend, "", logger.NewNop()), logger.NewNop())
	again.Mount(context.Background())
	defer again.Unmount()

	after := again.Notifications()
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Read, after[i].Read)
	}
	assert.Equal(t, before, after)
}

func TestCorruptStoredListStartsEmpty(t *testing.T) {
	backend := storage.NewMemory()
	require.NoError(t, backend.Set(context.Background(), "notifications", []byte("{not json")))

	f := newFixtureWithBackend(t, backend)
	assert.Empty(t, f.store.Notifications())
}

func TestDisabledPreferencesLeaveStorageUntouched(t *testing.T) {
	f := newFixture(t)
	f.svc.UpdatePreferences(context.Background(), model.PreferencesPatch{Enabled: model.Bool(false)})

	_, err := f.store.AddNotification(context.Background(), model.Draft{Title: "muted"})
	require.NoError(t, err)

	assert.Empty(t, f.store.Notifications())
	_, err = f.backend.Get(context.Background(), "notifications")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestVisibleNotificationsHonourToggles(t *testing.T) {
	f := newFixture(t)
	f.send(t, model.TypeSystem, model.PriorityLow)
	shown := f.send(t, model.TypeInfo, model.PriorityLow)

	f.svc.UpdatePreferences(context.Background(), model.PreferencesPatch{
		Types: map[model.Type]bool{model.TypeSystem: false},
	})

	assert.Equal(t, []string{shown.ID}, idsOf(f.store.VisibleNotifications()))
	assert.Len(t, f.store.Notifications(), 2)
}

func TestVisibleNotificationsSurviveDisable(t *testing.T) {
	f := newFixture(t)
	f.send(t, model.TypeSystem, model.PriorityLow)
	shown := f.send(t, model.TypeInfo, model.PriorityHigh)

	f.svc.UpdatePreferences(context.Background(), model.PreferencesPatch{
		Enabled: model.Bool(false),
		Types:   map[model.Type]bool{model.TypeSystem: false},
	})

	assert.Equal(t, []string{shown.ID}, idsOf(f.store.VisibleNotifications()))
	assert.Equal(t, 2, f.store.UnreadCount())
}

func TestUnmountStopsDeliveryAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.send(t, model.TypeInfo, model.PriorityLow)

	f.store.Unmount()
	f.store.Unmount()

	f.send(t, model.TypeInfo, model.PriorityLow)
	assert.Len(t, f.store.Notifications(), 1)
}

func TestTwoStoresReceiveTheSameNotification(t *testing.T) {
	f := newFixture(t)
	other := New(f.svc, kv.NewListStore(storage.NewMemory(), "", logger.NewNop()), logger.NewNop())
	other.Mount(context.Background())
	defer other.Unmount()

	n := f.send(t, model.TypeSuccess, model.PriorityMedium)

	assert.Equal(t, []string{n.ID}, idsOf(f.store.Notifications()))
	assert.Equal(t, []string{n.ID}, idsOf(other.Notifications()))
}

func TestOnChange(t *testing.T) {
	f := newFixture(t)

	calls := 0
	stop := f.store.OnChange(func() { calls++ })

	f.send(t, model.TypeInfo, model.PriorityLow)
	f.store.UpdateFilters(model.Filter{Read: model.ReadRef(false)})
	assert.Equal(t, 2, calls)

	stop()
	f.send(t, model.TypeInfo, model.PriorityLow)
	assert.Equal(t, 2, calls)
}

type fakeService struct {
	*service.NotificationService
	handlers []service.ControlSubscriber
}

func (f *fakeService) SubscribeControl(fn service.ControlSubscriber) func() {
	f.handlers = append(f.handlers, fn)
	return func() {}
}

func TestRemoteControlAppliesLocally(t *testing.T) {
	log := logger.NewNop()
	backend := storage.NewMemory()
	svc := service.NewNotificationService(context.Background(), kv.NewPreferenceStore(backend, "", log), log)
	defer svc.Close()

	fake := &fakeService{NotificationService: svc}
	s := New(fake, kv.NewListStore(backend, "", log), log)
	s.Mount(context.Background())
	defer s.Unmount()
	require.Len(t, fake.handlers, 1)

	a, err := s.AddNotification(context.Background(), model.Draft{Title: "a"})
	require.NoError(t, err)
	b, err := s.AddNotification(context.Background(), model.Draft{Title: "b"})
	require.NoError(t, err)

	remote := fake.handlers[0]
	remote(model.ControlEnvelope{Type: model.ControlMarkRead, ID: a.ID})
	assert.Equal(t, 1, s.UnreadCount())

	remote(model.ControlEnvelope{Type: model.ControlDelete, ID: b.ID})
	assert.Equal(t, []string{a.ID}, idsOf(s.Notifications()))

	remote(model.ControlEnvelope{Type: model.ControlClearAll})
	assert.Empty(t, s.Notifications())
}

type brokenList struct{}

func (brokenList) Load(context.Context) []model.Notification { return []model.Notification{} }
func (brokenList) Save(context.Context, []model.Notification) error {
	return errors.New("disk full")
}

func TestStorageFailureKeepsLocalState(t *testing.T) {
	log := logger.NewNop()
	svc := service.NewNotificationService(context.Background(), kv.NewPreferenceStore(storage.NewMemory(), "", log), log)
	defer svc.Close()

	s := New(svc, brokenList{}, log)
	s.Mount(context.Background())
	defer s.Unmount()

	_, err := s.AddNotification(context.Background(), model.Draft{Title: "kept"})
	require.NoError(t, err)
	assert.Len(t, s.Notifications(), 1)
}
