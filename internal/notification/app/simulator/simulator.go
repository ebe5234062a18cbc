// Package simulator emits demo notifications on a cron schedule.
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/linkflow-ai/notifyhub/internal/notification/domain/model"
	"github.com/linkflow-ai/notifyhub/internal/platform/logger"
)

var ErrAlreadyStarted = errors.New("simulator already started")

// Sender accepts drafts for delivery
type Sender interface {
	Send(ctx context.Context, draft model.Draft) (model.Notification, error)
}

// Simulator sends a rotating set of drafts through a Sender
type Simulator struct {
	cron    *cron.Cron
	parser  cron.Parser
	sender  Sender
	logger  logger.Logger
	drafts  []model.Draft
	mu      sync.Mutex
	next    int
	started bool
}

type Option func(*Simulator)

// WithDrafts replaces the built-in rotation
func WithDrafts(drafts ...model.Draft) Option {
	return func(s *Simulator) {
		if len(drafts) > 0 {
			s.drafts = drafts
		}
	}
}

func New(sender Sender, log logger.Logger, opts ...Option) *Simulator {
	cronLog := cronLogger{log: log}
	s := &Simulator{
		cron: cron.New(
			cron.WithChain(
				cron.Recover(cronLog),
				cron.SkipIfStillRunning(cronLog),
			),
			cron.WithLogger(cronLog),
		),
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		sender: sender,
		logger: log,
		drafts: defaultDrafts(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules Tick with a standard cron expression or a descriptor
// such as "@every 30s".
func (s *Simulator) Start(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	schedule, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("invalid simulator schedule %q: %w", spec, err)
	}

	s.cron.Schedule(schedule, cron.FuncJob(func() {
		if _, err := s.Tick(context.Background()); err != nil {
			s.logger.Warn("Simulated notification rejected", "error", err)
		}
	}))
	s.cron.Start()
	s.started = true

	s.logger.Info("Notification simulator started", "schedule", spec)
	return nil
}

// Tick sends the next draft in the rotation
func (s *Simulator) Tick(ctx context.Context) (model.Notification, error) {
	s.mu.Lock()
	draft := s.drafts[s.next%len(s.drafts)]
	s.next++
	s.mu.Unlock()

	return s.sender.Send(ctx, draft)
}

// Stop halts the schedule; the returned context is done once a running
// tick finishes.
func (s *Simulator) Stop() context.Context {
	return s.cron.Stop()
}

func defaultDrafts() []model.Draft {
	return []model.Draft{
		{
			Type:     model.TypeInfo,
			Priority: model.PriorityLow,
			Title:    "Workspace synced",
			Message:  "All changes are saved.",
		},
		{
			Type:     model.TypeAchievement,
			Priority: model.PriorityHigh,
			Title:    "Achievement unlocked",
			Message:  "You completed your first week streak.",
			Data: mustEncode(model.AchievementData{
				BadgeID: "week-streak",
				Name:    "Week Streak",
				Points:  50,
			}),
		},
		{
			Type:       model.TypeMessage,
			Priority:   model.PriorityMedium,
			Title:      "New message",
			Message:    "Are we still on for tomorrow?",
			ActionURL:  "/messages/demo",
			ActionText: "Reply",
			Data: mustEncode(model.MessageData{
				ConversationID: "demo",
				SenderID:       "user-42",
				SenderName:     "Sam",
			}),
		},
		{
			Type:     model.TypeWarning,
			Priority: model.PriorityMedium,
			Title:    "Storage almost full",
			Message:  "You have used 90% of your quota.",
		},
		{
			Type:     model.TypeError,
			Priority: model.PriorityUrgent,
			Title:    "Sync failed",
			Message:  "Your last change could not be uploaded.",
		},
		{
			Type:     model.TypeSystem,
			Priority: model.PriorityLow,
			Title:    "Scheduled maintenance",
			Message:  "Service will be briefly unavailable tonight.",
		},
	}
}

func mustEncode(v interface{}) json.RawMessage {
	data, err := model.EncodeData(v)
	if err != nil {
		panic(err)
	}
	return data
}

// cronLogger adapts Logger to cron.Logger
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
