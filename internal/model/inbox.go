package model

import (
	"encoding/json"
	"errors"
	"time"
)

// Recipient is the delivery target of one inbox entry: either a single
// employee or everyone holding a role, never both and never neither.
// Construct it only via EmployeeRecipient / RoleRecipient so the
// exclusivity holds by construction.
type Recipient struct {
	employeeID string
	role       string
}

func EmployeeRecipient(id string) Recipient { return Recipient{employeeID: id} }

func RoleRecipient(name string) Recipient { return Recipient{role: name} }

// IsRole reports whether this is a shared role delivery.
func (r Recipient) IsRole() bool { return r.role != "" }

func (r Recipient) EmployeeID() string { return r.employeeID }

func (r Recipient) Role() string { return r.role }

// Columns maps the recipient onto the two DB columns. The unused side is
// the empty string, not NULL: MySQL unique indexes skip NULL values, so the
// (event_id, recipient_employee_id, recipient_role) idempotency key only
// works with non-null sentinels.
func (r Recipient) Columns() (employeeID, role string) {
	return r.employeeID, r.role
}

func (r Recipient) String() string {
	if r.IsRole() {
		return "role:" + r.role
	}
	return "employee:" + r.employeeID
}

var ErrAmbiguousRecipient = errors.New("inbox entry must have exactly one of employee or role recipient")

// InboxEntry is one delivery record of one event to one recipient.
// read_at and deleted_at are mutated later by the inbox service; nothing
// else ever changes after insert.
type InboxEntry struct {
	ID                  string     `db:"id"` // ULID
	EventRef            int64      `db:"event_id"`
	RecipientEmployeeID string     `db:"recipient_employee_id"`
	RecipientRole       string     `db:"recipient_role"`
	DeliveredAt         time.Time  `db:"delivered_at"`
	ReadAt              *time.Time `db:"read_at"`
	DeletedAt           *time.Time `db:"deleted_at"`
}

// Recipient reconstructs the tagged union from the stored columns.
func (e InboxEntry) Recipient() (Recipient, error) {
	switch {
	case e.RecipientEmployeeID != "" && e.RecipientRole == "":
		return EmployeeRecipient(e.RecipientEmployeeID), nil
	case e.RecipientEmployeeID == "" && e.RecipientRole != "":
		return RoleRecipient(e.RecipientRole), nil
	default:
		return Recipient{}, ErrAmbiguousRecipient
	}
}

// InboxRow is the joined listing shape: one inbox entry plus its canonical event.
type InboxRow struct {
	InboxEntry
	EventID        string          `db:"evt_event_id"`
	EventCreatedAt time.Time       `db:"evt_created_at"`
	Source         string          `db:"evt_source"`
	EventType      string          `db:"evt_event_type"`
	EntityID       *string         `db:"evt_entity_id"`
	Payload        json.RawMessage `db:"evt_payload"`
}
