package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/linkflow-ai/notifyhub/internal/notification/adapters/sound"
	"github.com/linkflow-ai/notifyhub/internal/notification/domain/model"
	"github.com/linkflow-ai/notifyhub/internal/notification/domain/repository"
	"github.com/linkflow-ai/notifyhub/internal/platform/logger"
	"github.com/linkflow-ai/notifyhub/internal/platform/metrics"
	"github.com/linkflow-ai/notifyhub/internal/shared/events"
)

var (
	ErrClosed       = errors.New("notification service closed")
	ErrNotConnected = errors.New("push channel not connected")
)

// Subscriber receives every delivered notification by value
type Subscriber func(model.Notification)

// ControlSubscriber receives lifecycle operations relayed from the push
// channel
type ControlSubscriber func(model.ControlEnvelope)

// Transport is the optional duplex push channel
type Transport interface {
	IsOpen() bool
	Connect(ctx context.Context) error
	SendAsync(v interface{}) (<-chan error, error)
	OnMessage(handler func(model.Inbound))
	Close() error
}

// EventPublisher receives domain events for downstream consumers
type EventPublisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

// NotificationService is the single fan-out point for notifications. It
// holds the subscriber set and the preferences snapshot, never the
// notification list itself. Build one per process and Close it on
// shutdown.
type NotificationService struct {
	preferences repository.PreferenceRepository
	logger      logger.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	transport   Transport
	player      sound.Player
	publisher   EventPublisher
	now         func() time.Time
	newID       func() string
	production  bool

	// updateMu orders preference writes; mu is never held across storage I/O
	updateMu sync.Mutex

	mu          sync.RWMutex
	prefs       model.Preferences
	subscribers map[uint64]Subscriber
	controls    map[uint64]ControlSubscriber
	nextSubID   uint64
	closed      bool

	soundCtx    context.Context
	soundCancel context.CancelFunc
	soundWG     sync.WaitGroup
}

type Option func(*NotificationService)

func WithTransport(t Transport) Option {
	return func(s *NotificationService) { s.transport = t }
}

func WithSoundPlayer(p sound.Player) Option {
	return func(s *NotificationService) { s.player = p }
}

func WithEventPublisher(p EventPublisher) Option {
	return func(s *NotificationService) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *NotificationService) { s.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *NotificationService) { s.tracer = t }
}

func WithClock(now func() time.Time) Option {
	return func(s *NotificationService) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *NotificationService) { s.newID = newID }
}

// WithProduction enables production-only logging such as sound failures
func WithProduction(production bool) Option {
	return func(s *NotificationService) { s.production = production }
}

// NewNotificationService reads preferences once and wires the transport's
// inbound messages into the fan-out.
func NewNotificationService(
	ctx context.Context,
	preferences repository.PreferenceRepository,
	log logger.Logger,
	opts ...Option,
) *NotificationService {
	s := &NotificationService{
		preferences: preferences,
		logger:      log,
		tracer:      noop.NewTracerProvider().Tracer("notification"),
		now:         time.Now,
		newID:       model.NewNotificationID,
		subscribers: make(map[uint64]Subscriber),
		controls:    make(map[uint64]ControlSubscriber),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.soundCtx, s.soundCancel = context.WithCancel(context.Background())
	s.prefs = preferences.Get(ctx)

	if s.transport != nil {
		s.transport.OnMessage(s.handleInbound)
	}

	return s
}

// Start connects the push channel, if any. A failed dial is logged; the
// transport keeps retrying on its own schedule.
func (s *NotificationService) Start(ctx context.Context) {
	if s.transport == nil {
		return
	}
	if err := s.transport.Connect(ctx); err != nil {
		s.logger.Warn("Push channel unavailable, continuing locally", "error", err)
	}
}

// Subscribe registers fn and returns an idempotent unsubscribe func
func (s *NotificationService) Subscribe(fn Subscriber) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.updateSubscriberGaugeLocked()
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.updateSubscriberGaugeLocked()
			s.mu.Unlock()
		})
	}
}

// SubscribeControl registers fn for relayed lifecycle operations
func (s *NotificationService) SubscribeControl(fn ControlSubscriber) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.controls[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.controls, id)
			s.mu.Unlock()
		})
	}
}

// Send stamps a draft and delivers it. Only draft validation fails the
// call; transport, subscriber, sound and publishing failures are logged.
// With notifications disabled the stamped notification is returned but
// nothing is delivered.
func (s *NotificationService) Send(ctx context.Context, draft model.Draft) (model.Notification, error) {
	ctx, span := s.tracer.Start(ctx, "NotificationService.Send")
	defer span.End()

	s.mu.RLock()
	closed := s.closed
	prefs := s.prefs
	s.mu.RUnlock()
	if closed {
		return model.Notification{}, ErrClosed
	}

	n, err := model.NewNotification(draft, s.newID(), s.now())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return model.Notification{}, fmt.Errorf("invalid notification: %w", err)
	}
	span.SetAttributes(
		attribute.String("notification.id", n.ID),
		attribute.String("notification.type", string(n.Type)),
		attribute.String("notification.priority", string(n.Priority)),
	)

	if !prefs.Enabled {
		s.countDropped("disabled")
		s.logger.Debug("Notifications disabled, dropping", "notification_id", n.ID)
		span.SetAttributes(attribute.Bool("notification.dropped", true))
		s.publish(ctx, n.ID, events.NotificationDropped, events.DroppedPayload{Reason: "disabled", Notification: n})
		return n, nil
	}

	s.forward(n)
	delivered := s.deliver(n)

	if prefs.Sound && s.player != nil {
		s.playSound(n)
	}

	s.publish(ctx, n.ID, events.NotificationSent, n)

	if s.metrics != nil {
		s.metrics.NotificationsSent.WithLabelValues(string(n.Type), string(n.Priority)).Inc()
	}
	s.logger.Debug("Notification sent",
		"notification_id", n.ID,
		"type", n.Type,
		"priority", n.Priority,
		"subscribers", delivered,
	)

	return n, nil
}

// forward pushes n upstream when the channel is open
func (s *NotificationService) forward(n model.Notification) {
	if s.transport == nil || !s.transport.IsOpen() {
		return
	}
	if _, err := s.transport.SendAsync(n); err != nil {
		s.logger.Warn("Failed to forward notification", "notification_id", n.ID, "error", err)
	}
}

// deliver invokes every subscriber in isolation and returns how many
// completed without panicking
func (s *NotificationService) deliver(n model.Notification) int {
	s.mu.RLock()
	subs := make([]Subscriber, 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	ok := 0
	for _, fn := range subs {
		if s.invoke(n.ID, func() { fn(n) }) {
			ok++
		}
	}
	return ok
}

func (s *NotificationService) deliverControl(env model.ControlEnvelope) {
	s.mu.RLock()
	subs := make([]ControlSubscriber, 0, len(s.controls))
	for _, fn := range s.controls {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	for _, fn := range subs {
		s.invoke(env.ID, func() { fn(env) })
	}
}

func (s *NotificationService) invoke(id string, call func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			if s.metrics != nil {
				s.metrics.SubscriberFailures.Inc()
			}
			s.logger.Error("Notification subscriber panicked", "notification_id", id, "panic", r)
		}
	}()
	call()
	return true
}

func (s *NotificationService) playSound(n model.Notification) {
	which := sound.Select(n)

	s.soundWG.Add(1)
	go func() {
		defer s.soundWG.Done()
		if err := s.player.Play(s.soundCtx, which); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if s.metrics != nil {
				s.metrics.SoundPlaybackErrors.Inc()
			}
			if s.production {
				s.logger.Warn("Sound playback failed", "sound", which, "error", err)
			}
		}
	}()
}

// handleInbound applies a message received from the push channel
func (s *NotificationService) handleInbound(in model.Inbound) {
	switch {
	case in.Notification != nil:
		if s.metrics != nil {
			s.metrics.NotificationsReceived.WithLabelValues("notification").Inc()
		}
		s.mu.RLock()
		enabled := s.prefs.Enabled && !s.closed
		s.mu.RUnlock()
		if !enabled {
			s.countDropped("disabled")
			return
		}
		s.deliver(*in.Notification)

	case in.Control != nil:
		if s.metrics != nil {
			s.metrics.NotificationsReceived.WithLabelValues("control").Inc()
		}
		s.deliverControl(*in.Control)
	}
}

// MarkAsRead relays a mark-read to the push channel. Local state is owned
// by the subscribers.
func (s *NotificationService) MarkAsRead(id string) *Pending {
	return s.control(model.ControlEnvelope{Type: model.ControlMarkRead, ID: id})
}

func (s *NotificationService) MarkAllAsRead() *Pending {
	return s.control(model.ControlEnvelope{Type: model.ControlMarkAllRead})
}

func (s *NotificationService) Delete(id string) *Pending {
	return s.control(model.ControlEnvelope{Type: model.ControlDelete, ID: id})
}

func (s *NotificationService) ClearAll() *Pending {
	return s.control(model.ControlEnvelope{Type: model.ControlClearAll})
}

func (s *NotificationService) control(env model.ControlEnvelope) *Pending {
	s.publish(context.Background(), env.ID, events.NotificationControlled, events.ControlPayload{
		Operation: string(env.Type),
		ID:        env.ID,
	})

	if s.transport == nil || !s.transport.IsOpen() {
		s.countControl(env.Type, "local")
		return resolved(ErrNotConnected)
	}

	result, err := s.transport.SendAsync(env)
	if err != nil {
		s.countControl(env.Type, "failed")
		s.logger.Warn("Failed to relay control message", "type", env.Type, "id", env.ID, "error", err)
		return resolved(err)
	}
	s.countControl(env.Type, "sent")
	return newPending(result)
}

// Preferences returns the current snapshot
func (s *NotificationService) Preferences() model.Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.Clone()
}

// UpdatePreferences merges patch, persists it and swaps the snapshot. A
// failed write is logged; the new preferences still apply to this
// process.
func (s *NotificationService) UpdatePreferences(ctx context.Context, patch model.PreferencesPatch) model.Preferences {
	s.updateMu.Lock()
	merged, err := s.preferences.Update(ctx, patch)
	s.mu.Lock()
	s.prefs = merged
	s.mu.Unlock()
	s.updateMu.Unlock()

	if err != nil {
		if s.metrics != nil {
			s.metrics.StorageWriteFailures.WithLabelValues(repository.KeyPreferences).Inc()
		}
		s.logger.Error("Failed to persist preferences", "error", err)
	}

	s.publish(ctx, "", events.PreferencesUpdated, merged)
	return merged.Clone()
}

// ReloadPreferences re-reads preferences from storage
func (s *NotificationService) ReloadPreferences(ctx context.Context) model.Preferences {
	prefs := s.preferences.Get(ctx)

	s.mu.Lock()
	s.prefs = prefs
	s.mu.Unlock()

	return prefs.Clone()
}

// Close stops the push channel and waits for in-flight sounds
func (s *NotificationService) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var err error
	if s.transport != nil {
		err = s.transport.Close()
	}
	s.soundCancel()
	s.soundWG.Wait()
	return err
}

func (s *NotificationService) publish(ctx context.Context, aggregateID, eventType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	event, err := events.NewEvent(aggregateID, "Notification", eventType, payload)
	if err != nil {
		s.logger.Warn("Failed to build event", "event", eventType, "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event", "event", eventType, "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.KafkaMessagesQueued.WithLabelValues(eventType).Inc()
	}
}

func (s *NotificationService) countDropped(reason string) {
	if s.metrics != nil {
		s.metrics.NotificationsDropped.WithLabelValues(reason).Inc()
	}
}

func (s *NotificationService) countControl(t model.ControlType, outcome string) {
	if s.metrics != nil {
		s.metrics.ControlMessages.WithLabelValues(string(t), outcome).Inc()
	}
}

func (s *NotificationService) updateSubscriberGaugeLocked() {
	if s.metrics != nil {
		s.metrics.Subscribers.Set(float64(len(s.subscribers)))
	}
}
