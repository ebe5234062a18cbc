package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linkflow-ai/notifyhub/internal/notification/adapters/repository/kv"
	"github.com/linkflow-ai/notifyhub/internal/notification/adapters/sound"
	"github.com/linkflow-ai/notifyhub/internal/notification/domain/model"
	"github.com/linkflow-ai/notifyhub/internal/platform/logger"
	"github.com/linkflow-ai/notifyhub/internal/platform/metrics"
	"github.com/linkflow-ai/notifyhub/internal/platform/storage"
	"github.com/linkflow-ai/notifyhub/internal/shared/events"
)

type fakeTransport struct {
	mu      sync.Mutex
	open    bool
	sendErr error
	sent    []interface{}
	handler func(model.Inbound)
	closed  int
}

func (f *fakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeTransport) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = true
	return nil
}

func (f *fakeTransport) SendAsync(v interface{}) (<-chan error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, v)
	result := make(chan error, 1)
	result <- nil
	return result, nil
}

func (f *fakeTransport) OnMessage(handler func(model.Inbound)) {
	f.handler = handler
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	f.open = false
	return nil
}

func (f *fakeTransport) frames() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interface{}(nil), f.sent...)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event *events.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type recordingPlayer struct {
	mu     sync.Mutex
	played []sound.Sound
	err    error
}

func (p *recordingPlayer) Play(_ context.Context, s sound.Sound) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, s)
	return p.err
}

type failingStore struct {
	storage.Store
}

func (failingStore) Set(context.Context, string, []byte) error {
	return errors.New("quota exceeded")
}

func newService(t *testing.T, opts ...Option) (*NotificationService, *kv.PreferenceStore) {
	t.Helper()
	prefs := kv.NewPreferenceStore(storage.NewMemory(), "", logger.NewNop())
	svc := NewNotificationService(context.Background(), prefs, logger.NewNop(), opts...)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, prefs
}

func TestSendDeliversToEverySubscriber(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newService(t,
		WithClock(func() time.Time { return now }),
		WithIDGenerator(func() string { return "n-1" }),
	)

	var first, second []model.Notification
	svc.Subscribe(func(n model.Notification) { first = append(first, n) })
	svc.Subscribe(func(n model.Notification) { second = append(second, n) })

	n, err := svc.Send(context.Background(), model.Draft{
		Type:     model.TypeSuccess,
		Priority: model.PriorityHigh,
		Title:    "Deployed",
		Message:  "v1.2.0 is live",
	})
	require.NoError(t, err)

	assert.Equal(t, "n-1", n.ID)
	assert.Equal(t, now, n.Timestamp)
	assert.False(t, n.Read)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, n, first[0])
	assert.Equal(t, n, second[0])
}

func TestSendRejectsInvalidDraft(t *testing.T) {
	svc, _ := newService(t)

	called := false
	svc.Subscribe(func(model.Notification) { called = true })

	_, err := svc.Send(context.Background(), model.Draft{Message: "no title"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTitleRequired)
	assert.False(t, called)
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	m := metrics.NewMetrics("test")
	svc, _ := newService(t, WithMetrics(m))

	var mu sync.Mutex
	received := 0
	svc.Subscribe(func(model.Notification) { panic("boom") })
	svc.Subscribe(func(model.Notification) {
		mu.Lock()
		received++
		mu.Unlock()
	})

	for i := 0; i < 2; i++ {
		_, err := svc.Send(context.Background(), model.Draft{Title: "hello"})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, received)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	svc, _ := newService(t)

	count := 0
	unsubscribe := svc.Subscribe(func(model.Notification) { count++ })
	other := svc.Subscribe(func(model.Notification) {})

	unsubscribe()
	unsubscribe()

	_, err := svc.Send(context.Background(), model.Draft{Title: "after"})
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	other()
}

func TestDisabledPreferencesSuppressDelivery(t *testing.T) {
	transport := &fakeTransport{open: true}
	player := &recordingPlayer{}
	svc, _ := newService(t, WithTransport(transport), WithSoundPlayer(player))

	svc.UpdatePreferences(context.Background(), model.PreferencesPatch{Enabled: model.Bool(false)})

	called := false
	svc.Subscribe(func(model.Notification) { called = true })

	n, err := svc.Send(context.Background(), model.Draft{Title: "quiet"})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.False(t, called)
	assert.Empty(t, transport.frames())

	require.NoError(t, svc.Close())
	assert.Empty(t, player.played)

	// subscriptions survive a disable and resume once re-enabled
	svc2, _ := newService(t)
	svc2.UpdatePreferences(context.Background(), model.PreferencesPatch{Enabled: model.Bool(false)})
	got := 0
	svc2.Subscribe(func(model.Notification) { got++ })
	_, _ = svc2.Send(context.Background(), model.Draft{Title: "one"})
	svc2.UpdatePreferences(context.Background(), model.PreferencesPatch{Enabled: model.Bool(true)})
	_, _ = svc2.Send(context.Background(), model.Draft{Title: "two"})
	assert.Equal(t, 1, got)
}

func TestSendForwardsOnlyWhenTransportOpen(t *testing.T) {
	transport := &fakeTransport{}
	svc, _ := newService(t, WithTransport(transport))

	_, err := svc.Send(context.Background(), model.Draft{Title: "offline"})
	require.NoError(t, err)
	assert.Empty(t, transport.frames())

	svc.Start(context.Background())
	n, err := svc.Send(context.Background(), model.Draft{Title: "online"})
	require.NoError(t, err)

	frames := transport.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, n, frames[0])
}

func TestTransportFailureDoesNotFailSend(t *testing.T) {
	transport := &fakeTransport{open: true, sendErr: errors.New("buffer full")}
	svc, _ := newService(t, WithTransport(transport))

	delivered := false
	svc.Subscribe(func(model.Notification) { delivered = true })

	_, err := svc.Send(context.Background(), model.Draft{Title: "still local"})
	require.NoError(t, err)
	assert.True(t, delivered)
}

func TestSoundFollowsPreferences(t *testing.T) {
	player := &recordingPlayer{err: errors.New("no audio device")}
	svc, _ := newService(t, WithSoundPlayer(player), WithProduction(true))

	_, err := svc.Send(context.Background(), model.Draft{Type: model.TypeAchievement, Title: "Badge"})
	require.NoError(t, err)
	_, err = svc.Send(context.Background(), model.Draft{Priority: model.PriorityUrgent, Title: "Disk full"})
	require.NoError(t, err)

	svc.UpdatePreferences(context.Background(), model.PreferencesPatch{Sound: model.Bool(false)})
	_, err = svc.Send(context.Background(), model.Draft{Title: "silent"})
	require.NoError(t, err)

	require.NoError(t, svc.Close())
	assert.ElementsMatch(t, []sound.Sound{sound.SoundAchievement, sound.SoundUrgent}, player.played)
}

func TestControlWithoutTransportResolvesNotConnected(t *testing.T) {
	svc, _ := newService(t)

	ctx := context.Background()
	assert.ErrorIs(t, svc.MarkAsRead("a").Wait(ctx), ErrNotConnected)
	assert.ErrorIs(t, svc.MarkAllAsRead().Wait(ctx), ErrNotConnected)
	assert.ErrorIs(t, svc.Delete("a").Wait(ctx), ErrNotConnected)
	assert.ErrorIs(t, svc.ClearAll().Wait(ctx), ErrNotConnected)
}

func TestControlRelaysEnvelopes(t *testing.T) {
	transport := &fakeTransport{open: true}
	svc, _ := newService(t, WithTransport(transport))

	ctx := context.Background()
	require.NoError(t, svc.MarkAsRead("a").Wait(ctx))
	require.NoError(t, svc.Delete("b").Wait(ctx))
	require.NoError(t, svc.MarkAllAsRead().Wait(ctx))

	pending := svc.ClearAll()
	require.NoError(t, pending.Wait(ctx))
	require.NoError(t, pending.Wait(ctx))

	assert.Equal(t, []interface{}{
		model.ControlEnvelope{Type: model.ControlMarkRead, ID: "a"},
		model.ControlEnvelope{Type: model.ControlDelete, ID: "b"},
		model.ControlEnvelope{Type: model.ControlMarkAllRead},
		model.ControlEnvelope{Type: model.ControlClearAll},
	}, transport.frames())
}

func TestPendingWaitHonoursContext(t *testing.T) {
	p := newPending(make(chan error))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, p.Wait(ctx), context.DeadlineExceeded)
}

func TestInboundMessagesAreRouted(t *testing.T) {
	transport := &fakeTransport{open: true}
	svc, _ := newService(t, WithTransport(transport))
	require.NotNil(t, transport.handler)

	var notes []model.Notification
	var controls []model.ControlEnvelope
	svc.Subscribe(func(n model.Notification) { notes = append(notes, n) })
	svc.SubscribeControl(func(env model.ControlEnvelope) { controls = append(controls, env) })

	pushed := model.Notification{ID: "remote-1", Type: model.TypeMessage, Priority: model.PriorityMedium, Title: "Hi"}
	transport.handler(model.Inbound{Notification: &pushed})
	transport.handler(model.Inbound{Control: &model.ControlEnvelope{Type: model.ControlDelete, ID: "remote-1"}})

	require.Len(t, notes, 1)
	assert.Equal(t, pushed, notes[0])
	require.Len(t, controls, 1)
	assert.Equal(t, model.ControlDelete, controls[0].Type)

	// pushed notifications are not echoed back upstream
	assert.Empty(t, transport.frames())
}

func TestUpdatePreferencesPersistsAndPublishes(t *testing.T) {
	publisher := &mockPublisher{}
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e *events.Event) bool {
		return e.EventType == events.PreferencesUpdated
	})).Return(nil).Once()

	svc, repo := newService(t, WithEventPublisher(publisher))

	updated := svc.UpdatePreferences(context.Background(), model.PreferencesPatch{
		Types: map[model.Type]bool{model.TypeSystem: false},
	})

	assert.False(t, updated.Types[model.TypeSystem])
	assert.True(t, updated.Types[model.TypeInfo])
	assert.Equal(t, updated, svc.Preferences())
	assert.Equal(t, updated, repo.Get(context.Background()))
	publisher.AssertExpectations(t)
}

func TestUpdatePreferencesSurvivesWriteFailure(t *testing.T) {
	repo := kv.NewPreferenceStore(failingStore{Store: storage.NewMemory()}, "", logger.NewNop())
	svc := NewNotificationService(context.Background(), repo, logger.NewNop())
	defer svc.Close()

	updated := svc.UpdatePreferences(context.Background(), model.PreferencesPatch{Sound: model.Bool(false)})
	assert.False(t, updated.Sound)
	assert.False(t, svc.Preferences().Sound)
}

// blockingStore parks every Set until release is closed
type blockingStore struct {
	storage.Store
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) Set(ctx context.Context, key string, value []byte) error {
	b.entered <- struct{}{}
	<-b.release
	return b.Store.Set(ctx, key, value)
}

func TestUpdatePreferencesDoesNotBlockDelivery(t *testing.T) {
	backend := &blockingStore{
		Store:   storage.NewMemory(),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	repo := kv.NewPreferenceStore(backend, "", logger.NewNop())
	svc := NewNotificationService(context.Background(), repo, logger.NewNop())
	defer svc.Close()

	updated := make(chan model.Preferences, 1)
	go func() {
		updated <- svc.UpdatePreferences(context.Background(), model.PreferencesPatch{Sound: model.Bool(false)})
	}()

	select {
	case <-backend.entered:
	case <-time.After(time.Second):
		t.Fatal("preference write never started")
	}

	delivered := make(chan struct{})
	go func() {
		unsubscribe := svc.Subscribe(func(model.Notification) {})
		defer unsubscribe()
		_, _ = svc.Send(context.Background(), model.Draft{Title: "during write"})
		_ = svc.Preferences()
		close(delivered)
	}()

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("send blocked behind a preference write")
	}

	close(backend.release)
	select {
	case prefs := <-updated:
		assert.False(t, prefs.Sound)
		assert.False(t, svc.Preferences().Sound)
	case <-time.After(time.Second):
		t.Fatal("preference update never finished")
	}
}

func TestReloadPreferences(t *testing.T) {
	store := storage.NewMemory()
	repo := kv.NewPreferenceStore(store, "", logger.NewNop())
	svc := NewNotificationService(context.Background(), repo, logger.NewNop())
	defer svc.Close()

	other := kv.NewPreferenceStore(store, "", logger.NewNop())
	_, err := other.Update(context.Background(), model.PreferencesPatch{Enabled: model.Bool(false)})
	require.NoError(t, err)

	assert.True(t, svc.Preferences().Enabled)
	assert.False(t, svc.ReloadPreferences(context.Background()).Enabled)
	assert.False(t, svc.Preferences().Enabled)
}

func TestSendPublishesEvent(t *testing.T) {
	publisher := &mockPublisher{}
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e *events.Event) bool {
		return e.EventType == events.NotificationSent && e.AggregateID == "n-7"
	})).Return(errors.New("broker down")).Once()

	svc, _ := newService(t,
		WithEventPublisher(publisher),
		WithIDGenerator(func() string { return "n-7" }),
	)

	_, err := svc.Send(context.Background(), model.Draft{Title: "published"})
	require.NoError(t, err)
	publisher.AssertExpectations(t)
}

func TestDisabledSendPublishesDropEvent(t *testing.T) {
	publisher := &mockPublisher{}
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e *events.Event) bool {
		return e.EventType == events.PreferencesUpdated
	})).Return(nil).Once()
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e *events.Event) bool {
		return e.EventType == events.NotificationDropped && e.AggregateID == "n-9"
	})).Return(nil).Once()

	svc, _ := newService(t,
		WithEventPublisher(publisher),
		WithIDGenerator(func() string { return "n-9" }),
	)
	svc.UpdatePreferences(context.Background(), model.PreferencesPatch{Enabled: model.Bool(false)})

	_, err := svc.Send(context.Background(), model.Draft{Title: "quiet"})
	require.NoError(t, err)
	publisher.AssertExpectations(t)
}

func TestClose(t *testing.T) {
	transport := &fakeTransport{open: true}
	svc, _ := newService(t, WithTransport(transport))

	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())
	assert.Equal(t, 1, transport.closed)

	_, err := svc.Send(context.Background(), model.Draft{Title: "late"})
	assert.ErrorIs(t, err, ErrClosed)
}
