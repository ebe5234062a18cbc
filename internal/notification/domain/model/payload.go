package model

import (
	"encoding/json"
	"fmt"
)

// AchievementData is the payload carried by achievement notifications
type AchievementData struct {
	BadgeID string `json:"badgeId"`
	Name    string `json:"name"`
	Points  int    `json:"points,omitempty"`
}

// MessageData is the payload carried by message notifications
type MessageData struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	SenderName     string `json:"senderName,omitempty"`
}

// EncodeData marshals a payload for Draft.Data
func EncodeData(v interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification data: %w", err)
	}
	return data, nil
}

// DecodeData unmarshals the raw payload into v
func (n Notification) DecodeData(v interface{}) error {
	if len(n.Data) == 0 {
		return ErrNoData
	}
	if err := json.Unmarshal(n.Data, v); err != nil {
		return fmt.Errorf("failed to decode notification data: %w", err)
	}
	return nil
}

// Achievement returns the achievement payload of an achievement notification
func (n Notification) Achievement() (AchievementData, error) {
	var data AchievementData
	if n.Type != TypeAchievement {
		return data, ErrDataMismatch
	}
	err := n.DecodeData(&data)
	return data, err
}

// ChatMessage returns the message payload of a message notification
func (n Notification) ChatMessage() (MessageData, error) {
	var data MessageData
	if n.Type != TypeMessage {
		return data, ErrDataMismatch
	}
	err := n.DecodeData(&data)
	return data, err
}
