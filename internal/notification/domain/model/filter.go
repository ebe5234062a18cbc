package model

import "time"

// DateRange is an inclusive timestamp window. A zero bound is open.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// Filter is a conjunctive query over a notification list. Nil fields match
// everything.
type Filter struct {
	Type      *Type      `json:"type,omitempty"`
	Priority  *Priority  `json:"priority,omitempty"`
	Read      *bool      `json:"read,omitempty"`
	DateRange *DateRange `json:"dateRange,omitempty"`
}

// Merge overrides the fields set in patch
func (f Filter) Merge(patch Filter) Filter {
	if patch.Type != nil {
		t := *patch.Type
		f.Type = &t
	}
	if patch.Priority != nil {
		p := *patch.Priority
		f.Priority = &p
	}
	if patch.Read != nil {
		r := *patch.Read
		f.Read = &r
	}
	if patch.DateRange != nil {
		dr := *patch.DateRange
		f.DateRange = &dr
	}
	return f
}

// IsZero reports whether the filter matches everything
func (f Filter) IsZero() bool {
	return f.Type == nil && f.Priority == nil && f.Read == nil && f.DateRange == nil
}

func (f Filter) Matches(n Notification) bool {
	if f.Type != nil && n.Type != *f.Type {
		return false
	}
	if f.Priority != nil && n.Priority != *f.Priority {
		return false
	}
	if f.Read != nil && n.Read != *f.Read {
		return false
	}
	if f.DateRange != nil && !f.DateRange.Contains(n.Timestamp) {
		return false
	}
	return true
}

// Apply returns the matching notifications in their original order
func (f Filter) Apply(list []Notification) []Notification {
	out := make([]Notification, 0, len(list))
	for _, n := range list {
		if f.Matches(n) {
			out = append(out, n)
		}
	}
	return out
}

// TypeRef, PriorityRef and ReadRef build filter fields inline
func TypeRef(t Type) *Type             { return &t }
func PriorityRef(p Priority) *Priority { return &p }
func ReadRef(r bool) *bool             { return &r }
