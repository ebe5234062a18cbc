package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTitleRequired   = errors.New("title is required")
	ErrInvalidType     = errors.New("invalid notification type")
	ErrInvalidPriority = errors.New("invalid notification priority")
	ErrNoData          = errors.New("notification carries no data")
	ErrDataMismatch    = errors.New("notification data does not match its type")
)

// NewNotificationID returns an opaque unique id
func NewNotificationID() string {
	return uuid.New().String()
}

type Type string

const (
	TypeInfo        Type = "info"
	TypeSuccess     Type = "success"
	TypeWarning     Type = "warning"
	TypeError       Type = "error"
	TypeAchievement Type = "achievement"
	TypeMessage     Type = "message"
	TypeSystem      Type = "system"
)

// Types lists every notification type in display order
var Types = []Type{TypeInfo, TypeSuccess, TypeWarning, TypeError, TypeAchievement, TypeMessage, TypeSystem}

func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every priority from least to most relevant
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func (p Priority) Valid() bool {
	return p.Rank() >= 0
}

// Rank orders priorities; unknown values rank -1.
func (p Priority) Rank() int {
	for i, known := range Priorities {
		if p == known {
			return i
		}
	}
	return -1
}

// Notification is a single alert instance as held by a view and sent over
// the wire. It is passed by value: every store owns its own copy.
type Notification struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	Priority   Priority        `json:"priority"`
	Title      string          `json:"title"`
	Message    string          `json:"message"`
	Timestamp  time.Time       `json:"timestamp"`
	Read       bool            `json:"read"`
	ActionURL  string          `json:"actionUrl,omitempty"`
	ActionText string          `json:"actionText,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	ExpiresAt  *time.Time      `json:"expiresAt,omitempty"`
}

// Draft is the caller-supplied part of a notification. Id, timestamp and
// read state are stamped by the service.
type Draft struct {
	Type       Type            `json:"type"`
	Priority   Priority        `json:"priority"`
	Title      string          `json:"title"`
	Message    string          `json:"message"`
	ActionURL  string          `json:"actionUrl,omitempty"`
	ActionText string          `json:"actionText,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	ExpiresAt  *time.Time      `json:"expiresAt,omitempty"`
}

// Normalize fills in the default type and priority and validates the draft
func (d Draft) Normalize() (Draft, error) {
	if d.Type == "" {
		d.Type = TypeInfo
	}
	if d.Priority == "" {
		d.Priority = PriorityMedium
	}
	if !d.Type.Valid() {
		return d, fmt.Errorf("%w: %q", ErrInvalidType, d.Type)
	}
	if !d.Priority.Valid() {
		return d, fmt.Errorf("%w: %q", ErrInvalidPriority, d.Priority)
	}
	if d.Title == "" {
		return d, ErrTitleRequired
	}
	if len(d.Data) > 0 && !json.Valid(d.Data) {
		return d, fmt.Errorf("data is not valid JSON")
	}
	return d, nil
}

// NewNotification stamps a draft into an unread notification
func NewNotification(d Draft, id string, now time.Time) (Notification, error) {
	d, err := d.Normalize()
	if err != nil {
		return Notification{}, err
	}
	if id == "" {
		id = NewNotificationID()
	}
	return Notification{
		ID:         id,
		Type:       d.Type,
		Priority:   d.Priority,
		Title:      d.Title,
		Message:    d.Message,
		Timestamp:  now.UTC(),
		Read:       false,
		ActionURL:  d.ActionURL,
		ActionText: d.ActionText,
		Data:       d.Data,
		ExpiresAt:  d.ExpiresAt,
	}, nil
}

// MarkAsRead sets read. It never reverts a read notification.
func (n *Notification) MarkAsRead() {
	n.Read = true
}

// IsExpired reports whether now is past the expiry instant
func (n Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// IsActionable reports whether the follow-up action may still be offered
func (n Notification) IsActionable(now time.Time) bool {
	return n.ActionURL != "" && !n.IsExpired(now)
}
