// Package validation provides input validation utilities
package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Validator collects the first error per field in the order fields failed
type Validator struct {
	fields map[string]string
	order  []string
}

// New creates a new Validator
func New() *Validator {
	return &Validator{fields: make(map[string]string)}
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.order) > 0
}

// Fields returns field -> message for every failed field
func (v *Validator) Fields() map[string]string {
	out := make(map[string]string, len(v.fields))
	for k, msg := range v.fields {
		out[k] = msg
	}
	return out
}

// Error returns a combined error message
func (v *Validator) Error() string {
	msgs := make([]string, 0, len(v.order))
	for _, field := range v.order {
		msgs = append(msgs, v.fields[field])
	}
	return strings.Join(msgs, "; ")
}

// Err returns the validator as an error, or nil when nothing failed
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return v
}

func (v *Validator) add(field, message string) {
	if _, seen := v.fields[field]; seen {
		return
	}
	v.fields[field] = message
	v.order = append(v.order, field)
}

// Required validates that a value is not blank
func (v *Validator) Required(value, field string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.add(field, fmt.Sprintf("%s is required", field))
	}
	return v
}

// MaxLength validates maximum string length in runes
func (v *Validator) MaxLength(value string, max int, field string) *Validator {
	if utf8.RuneCountInString(value) > max {
		v.add(field, fmt.Sprintf("%s must be at most %d characters", field, max))
	}
	return v
}

// Link validates an absolute http(s) URL or an absolute path. Empty passes.
func (v *Validator) Link(value, field string) *Validator {
	if value == "" {
		return v
	}
	u, err := url.Parse(value)
	switch {
	case err != nil:
	case u.IsAbs() && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "":
		return v
	case !u.IsAbs() && u.Host == "" && strings.HasPrefix(u.Path, "/") && !strings.HasPrefix(value, "//"):
		return v
	}
	v.add(field, fmt.Sprintf("%s must be an http(s) URL or an absolute path", field))
	return v
}

// OneOf validates value is one of allowed values. Empty passes.
func (v *Validator) OneOf(value string, allowed []string, field string) *Validator {
	if value == "" {
		return v
	}
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	v.add(field, fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
	return v
}
