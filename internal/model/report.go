package model

import "time"

// DeliveryReport is one fan-out delivery as mirrored into ClickHouse for
// reporting. Best-effort: the MySQL rows stay the source of truth.
type DeliveryReport struct {
	InboxID             string    `db:"inbox_id" json:"inboxId"`
	EventID             string    `db:"event_id" json:"eventId"`
	Source              string    `db:"source" json:"source"`
	EventType           string    `db:"event_type" json:"eventType"`
	RecipientEmployeeID string    `db:"recipient_employee_id" json:"recipientEmployeeId,omitempty"`
	RecipientRole       string    `db:"recipient_role" json:"recipientRole,omitempty"`
	DeliveredAt         time.Time `db:"delivered_at" json:"deliveredAt"`
}
