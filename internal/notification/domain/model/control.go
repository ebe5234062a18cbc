package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMissingID = errors.New("control message requires an id")

// ControlType names a lifecycle operation relayed over the push channel
type ControlType string

const (
	ControlMarkRead    ControlType = "mark-read"
	ControlMarkAllRead ControlType = "mark-all-read"
	ControlDelete      ControlType = "delete"
	ControlClearAll    ControlType = "clear-all"
)

func (c ControlType) Valid() bool {
	switch c {
	case ControlMarkRead, ControlMarkAllRead, ControlDelete, ControlClearAll:
		return true
	}
	return false
}

// ControlEnvelope is the wire form of a lifecycle operation
type ControlEnvelope struct {
	Type ControlType `json:"type"`
	ID   string      `json:"id,omitempty"`
}

func (e ControlEnvelope) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("unknown control type %q", e.Type)
	}
	if (e.Type == ControlMarkRead || e.Type == ControlDelete) && e.ID == "" {
		return ErrMissingID
	}
	return nil
}

// Inbound is a decoded push message: exactly one field is set.
type Inbound struct {
	Notification *Notification
	Control      *ControlEnvelope
}

// DecodeInbound tells notifications and control envelopes apart by their
// type field; the two vocabularies do not overlap.
func DecodeInbound(data []byte) (Inbound, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Inbound{}, fmt.Errorf("failed to decode message: %w", err)
	}

	if ControlType(head.Type).Valid() {
		var env ControlEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return Inbound{}, fmt.Errorf("failed to decode control message: %w", err)
		}
		if err := env.Validate(); err != nil {
			return Inbound{}, err
		}
		return Inbound{Control: &env}, nil
	}

	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return Inbound{}, fmt.Errorf("failed to decode notification: %w", err)
	}
	if !n.Type.Valid() {
		return Inbound{}, fmt.Errorf("%w: %q", ErrInvalidType, n.Type)
	}
	if n.ID == "" {
		return Inbound{}, ErrMissingID
	}
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
	return Inbound{Notification: &n}, nil
}
