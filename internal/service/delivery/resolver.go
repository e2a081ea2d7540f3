package delivery

import (
	"strings"

	"github.com/mariks1/unipeople-notify/internal/model"
)

// Resolve turns the envelope's producer-declared recipient sets into concrete
// delivery targets. Pure: trims whitespace, drops empties, dedups within each
// set, keeps producer order. An empty result is valid — the event is stored
// and fanned out to nobody.
func Resolve(env model.Envelope) []model.Recipient {
	out := make([]model.Recipient, 0, len(env.Recipients.EmployeeIDs)+len(env.Recipients.Roles))

	seen := make(map[string]struct{})
	for _, id := range env.Recipients.EmployeeIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, model.EmployeeRecipient(id))
	}

	seenRoles := make(map[string]struct{})
	for _, role := range env.Recipients.Roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, dup := seenRoles[role]; dup {
			continue
		}
		seenRoles[role] = struct{}{}
		out = append(out, model.RoleRecipient(role))
	}

	return out
}
