package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RecipientSet is the producer-declared delivery target list.
// Absent arrays unmarshal to nil and are treated as empty.
type RecipientSet struct {
	EmployeeIDs []string `json:"employeeIds"`
	Roles       []string `json:"roles"`
}

// Empty reports whether the set addresses nobody. A stored event with an
// empty set is a valid terminal state, not an error.
func (s RecipientSet) Empty() bool {
	return len(s.EmployeeIDs) == 0 && len(s.Roles) == 0
}

// Envelope is the wire message a producing domain publishes to its Kafka topic.
type Envelope struct {
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	Source     string          `json:"source"`
	OccurredAt time.Time       `json:"occurredAt"`
	EntityID   *string         `json:"entityId"`
	Payload    json.RawMessage `json:"payload"`
	Recipients RecipientSet    `json:"recipients"`
}

var (
	ErrMissingEventID   = errors.New("envelope: missing eventId")
	ErrMissingEventType = errors.New("envelope: missing eventType")
	ErrMissingSource    = errors.New("envelope: missing source")
	ErrInvalidEventID   = errors.New("envelope: eventId is not a valid UUID")
)

// Validate checks the fields the fan-out core depends on. A validation
// failure is permanent: the message is dead-lettered without retrying.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return ErrMissingEventID
	}
	if strings.TrimSpace(e.EventType) == "" {
		return ErrMissingEventType
	}
	if strings.TrimSpace(e.Source) == "" {
		return ErrMissingSource
	}
	// producers assign UUID event ids; anything else can never dedup correctly
	if _, err := uuid.Parse(e.EventID); err != nil {
		return ErrInvalidEventID
	}
	return nil
}
