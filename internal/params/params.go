// Package params holds the user-defined fields rendered into the portal's
// credential form. Values are written only by form submission and persist
// until the registry is reset.
package params

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"
)

// DefaultCapacity is the number of fields a registry holds unless told
// otherwise.
const DefaultCapacity = 10

// ErrCapacityExceeded is returned by Add once the registry is full.
var ErrCapacityExceeded = errors.New("parameter registry is full")

// ErrDuplicateID is returned by Add for an ID that is already registered.
var ErrDuplicateID = errors.New("parameter id already registered")

// Field is one form field. A field with an empty ID is a raw HTML fragment.
type Field struct {
	ID         string
	Label      string
	Default    string
	MaxLength  int
	CustomHTML string

	mu    sync.RWMutex
	value string
}

// NewField returns an input field pre-filled with defaultValue.
func NewField(id, label, defaultValue string, maxLength int, customHTML string) *Field {
	f := &Field{
		ID:         id,
		Label:      label,
		Default:    defaultValue,
		MaxLength:  maxLength,
		CustomHTML: customHTML,
	}
	f.value = f.truncate(defaultValue)
	return f
}

// NewHTML returns a field that renders html verbatim and carries no value.
func NewHTML(html string) *Field {
	return &Field{CustomHTML: html}
}

// IsHTMLOnly reports whether the field is a raw fragment.
func (f *Field) IsHTMLOnly() bool {
	return f.ID == ""
}

// Value returns the current value.
func (f *Field) Value() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value
}

func (f *Field) setValue(v string) {
	f.mu.Lock()
	f.value = f.truncate(v)
	f.mu.Unlock()
}

func (f *Field) truncate(v string) string {
	if f.MaxLength <= 0 || utf8.RuneCountInString(v) <= f.MaxLength {
		return v
	}
	runes := []rune(v)
	return string(runes[:f.MaxLength])
}

// render produces the field's HTML.
func (f *Field) render() string {
	if f.IsHTMLOnly() {
		return f.CustomHTML
	}
	var b strings.Builder
	b.WriteString("<br/><input id='")
	b.WriteString(html.EscapeString(f.ID))
	b.WriteString("' name='")
	b.WriteString(html.EscapeString(f.ID))
	b.WriteString("' maxlength=")
	b.WriteString(strconv.Itoa(f.MaxLength))
	b.WriteString(" placeholder='")
	b.WriteString(html.EscapeString(f.Label))
	b.WriteString("' value='")
	b.WriteString(html.EscapeString(f.Value()))
	b.WriteString("' ")
	b.WriteString(f.CustomHTML)
	b.WriteString(">")
	return b.String()
}

// Registry is an ordered, fixed-capacity set of fields. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	capacity int
	fields   []*Field
}

// NewRegistry returns an empty registry. capacity <= 0 selects
// DefaultCapacity.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{capacity: capacity}
}

// Add appends a field.
func (r *Registry) Add(f *Field) error {
	if f == nil {
		return fmt.Errorf("nil field")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.fields) >= r.capacity {
		return fmt.Errorf("%w: capacity %d", ErrCapacityExceeded, r.capacity)
	}
	if !f.IsHTMLOnly() {
		for _, existing := range r.fields {
			if existing.ID == f.ID {
				return fmt.Errorf("%w: %q", ErrDuplicateID, f.ID)
			}
		}
	}
	r.fields = append(r.fields, f)
	return nil
}

// Len returns the number of registered fields.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fields)
}

// Capacity returns the maximum number of fields.
func (r *Registry) Capacity() int {
	return r.capacity
}

// Fields returns the fields in registration order.
func (r *Registry) Fields() []*Field {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Lookup finds a field by ID.
func (r *Registry) Lookup(id string) (*Field, bool) {
	if id == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.fields {
		if f.ID == id {
			return f, true
		}
	}
	return nil, false
}

// Values returns the current value of every input field keyed by ID.
func (r *Registry) Values() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.fields))
	for _, f := range r.fields {
		if !f.IsHTMLOnly() {
			out[f.ID] = f.Value()
		}
	}
	return out
}

// Apply copies submitted values into the fields. get returns a form value
// by name; fields are set even when the submitted value is empty.
func (r *Registry) Apply(get func(name string) string) {
	for _, f := range r.Fields() {
		if f.IsHTMLOnly() {
			continue
		}
		f.setValue(get(f.ID))
	}
}

// Render returns the HTML fragment for all fields in order, or "" when the
// registry is empty.
func (r *Registry) Render() string {
	fields := r.Fields()
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(f.render())
	}
	return b.String()
}

// Reset removes every field.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields = nil
}
