package model

// Preferences control whether and how notifications reach the user.
// Per-type and per-priority toggles filter what is surfaced; they never
// remove anything from the retained list.
type Preferences struct {
	Enabled    bool              `json:"enabled"`
	Sound      bool              `json:"sound"`
	Desktop    bool              `json:"desktop"`
	Email      bool              `json:"email"`
	Types      map[Type]bool     `json:"types"`
	Priorities map[Priority]bool `json:"priorities"`
}

// DefaultPreferences enables every type and priority with sound on
func DefaultPreferences() Preferences {
	p := Preferences{
		Enabled:    true,
		Sound:      true,
		Desktop:    false,
		Email:      false,
		Types:      make(map[Type]bool, len(Types)),
		Priorities: make(map[Priority]bool, len(Priorities)),
	}
	for _, t := range Types {
		p.Types[t] = true
	}
	for _, pr := range Priorities {
		p.Priorities[pr] = true
	}
	return p
}

// PreferencesPatch is a partial update. Nil fields are left unchanged and
// map entries are merged key by key.
type PreferencesPatch struct {
	Enabled    *bool             `json:"enabled,omitempty"`
	Sound      *bool             `json:"sound,omitempty"`
	Desktop    *bool             `json:"desktop,omitempty"`
	Email      *bool             `json:"email,omitempty"`
	Types      map[Type]bool     `json:"types,omitempty"`
	Priorities map[Priority]bool `json:"priorities,omitempty"`
}

// Clone returns a deep copy
func (p Preferences) Clone() Preferences {
	out := p
	out.Types = make(map[Type]bool, len(p.Types))
	for k, v := range p.Types {
		out.Types[k] = v
	}
	out.Priorities = make(map[Priority]bool, len(p.Priorities))
	for k, v := range p.Priorities {
		out.Priorities[k] = v
	}
	return out
}

// Merge applies a patch and returns the result without touching p
func (p Preferences) Merge(patch PreferencesPatch) Preferences {
	out := p.Clone()
	if patch.Enabled != nil {
		out.Enabled = *patch.Enabled
	}
	if patch.Sound != nil {
		out.Sound = *patch.Sound
	}
	if patch.Desktop != nil {
		out.Desktop = *patch.Desktop
	}
	if patch.Email != nil {
		out.Email = *patch.Email
	}
	for k, v := range patch.Types {
		out.Types[k] = v
	}
	for k, v := range patch.Priorities {
		out.Priorities[k] = v
	}
	return out
}

// Allows reports whether n should be surfaced. Categories without an
// explicit toggle are allowed.
func (p Preferences) Allows(n Notification) bool {
	return p.Enabled && p.ShowsCategory(n)
}

// ShowsCategory applies only the type and priority toggles. The master
// switch gates delivery, not what is already retained.
func (p Preferences) ShowsCategory(n Notification) bool {
	if on, ok := p.Types[n.Type]; ok && !on {
		return false
	}
	if on, ok := p.Priorities[n.Priority]; ok && !on {
		return false
	}
	return true
}

// Bool is a helper for building patches
func Bool(v bool) *bool {
	return &v
}
