package model

import "github.com/linkflow-ai/notifyhub/internal/platform/validation"

const (
	MaxTitleLength      = 200
	MaxMessageLength    = 2000
	MaxActionTextLength = 50
)

// Check applies request limits to a draft before it reaches the service.
// Missing type and priority pass; Normalize defaults them.
func (d Draft) Check() *validation.Validator {
	types := make([]string, len(Types))
	for i, t := range Types {
		types[i] = string(t)
	}
	priorities := make([]string, len(Priorities))
	for i, p := range Priorities {
		priorities[i] = string(p)
	}

	return validation.New().
		Required(d.Title, "title").
		MaxLength(d.Title, MaxTitleLength, "title").
		MaxLength(d.Message, MaxMessageLength, "message").
		MaxLength(d.ActionText, MaxActionTextLength, "actionText").
		Link(d.ActionURL, "actionUrl").
		OneOf(string(d.Type), types, "type").
		OneOf(string(d.Priority), priorities, "priority")
}
