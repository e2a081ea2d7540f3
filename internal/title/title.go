// Package title renders the short human-readable summary shown next to each
// inbox item. Formatters are registered per event type and declare exactly
// which payload fields they read; an unknown type falls back to the raw type
// string.
package title

import (
	"encoding/json"
	"fmt"
)

// Formatter derives a one-line title from a raw event payload. Returning
// ok=false falls back to the event type string.
type Formatter func(payload json.RawMessage) (string, bool)

type Registry struct {
	formatters map[string]Formatter
}

func NewRegistry() *Registry {
	return &Registry{formatters: make(map[string]Formatter)}
}

func (r *Registry) Register(eventType string, f Formatter) {
	r.formatters[eventType] = f
}

// Format renders the title for the event type, falling back to the raw type
// string when no formatter is registered or the payload lacks the fields the
// formatter needs.
func (r *Registry) Format(eventType string, payload json.RawMessage) string {
	if f, ok := r.formatters[eventType]; ok {
		if s, ok := f(payload); ok {
			return s
		}
	}
	return eventType
}

// fields decodes only the top-level string fields of the payload.
func fields(payload json.RawMessage) map[string]string {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
		}
	}
	return out
}

// one reads a single payload field.
func one(payload json.RawMessage, key string) (string, bool) {
	f := fields(payload)
	v, ok := f[key]
	return v, ok && v != ""
}

// two reads two payload fields; both must be present.
func two(payload json.RawMessage, k1, k2 string) (string, string, bool) {
	f := fields(payload)
	v1, ok1 := f[k1]
	v2, ok2 := f[k2]
	return v1, v2, ok1 && ok2 && v1 != "" && v2 != ""
}

// NewDefaultRegistry wires the formatters for the producing HR domains.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register("EMPLOYEE_HIRED", func(p json.RawMessage) (string, bool) {
		name, ok := one(p, "fullName")
		if !ok {
			return "", false
		}
		return fmt.Sprintf("New employee hired: %s", name), true
	})

	r.Register("EMPLOYEE_TERMINATED", func(p json.RawMessage) (string, bool) {
		name, ok := one(p, "fullName")
		if !ok {
			return "", false
		}
		return fmt.Sprintf("Employee left the company: %s", name), true
	})

	r.Register("LEAVE_REQUESTED", func(p json.RawMessage) (string, bool) {
		name, leaveType, ok := two(p, "employeeName", "leaveType")
		if !ok {
			return "", false
		}
		return fmt.Sprintf("%s requested %s leave", name, leaveType), true
	})

	r.Register("LEAVE_APPROVED", func(p json.RawMessage) (string, bool) {
		leaveType, ok := one(p, "leaveType")
		if !ok {
			return "", false
		}
		return fmt.Sprintf("Your %s leave was approved", leaveType), true
	})

	r.Register("LEAVE_REJECTED", func(p json.RawMessage) (string, bool) {
		leaveType, ok := one(p, "leaveType")
		if !ok {
			return "", false
		}
		return fmt.Sprintf("Your %s leave was rejected", leaveType), true
	})

	r.Register("DUTY_ASSIGNED", func(p json.RawMessage) (string, bool) {
		duty, date, ok := two(p, "dutyName", "date")
		if !ok {
			return "", false
		}
		return fmt.Sprintf("Duty assigned: %s on %s", duty, date), true
	})

	r.Register("DEPARTMENT_TRANSFERRED", func(p json.RawMessage) (string, bool) {
		dept, ok := one(p, "departmentName")
		if !ok {
			return "", false
		}
		return fmt.Sprintf("You were transferred to %s", dept), true
	})

	r.Register("DOCUMENT_EXPIRING", func(p json.RawMessage) (string, bool) {
		doc, date, ok := two(p, "documentName", "expiresAt")
		if !ok {
			return "", false
		}
		return fmt.Sprintf("Document %s expires on %s", doc, date), true
	})

	return r
}
