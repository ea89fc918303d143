package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event is the canonical, normalized disaster observation. It is immutable
// once stored except for LastUpdated, which a duplicate observation in the
// same dedup bucket may refresh.
type Event struct {
	ID          string    `json:"id"`
	DedupKey    string    `json:"dedupKey"`
	Type        Type      `json:"type"`
	Source      Source    `json:"source"`
	Severity    Severity  `json:"severity"`
	Location    GeoPoint  `json:"location"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	LastUpdated time.Time `json:"lastUpdated"`
	Payload     Payload   `json:"-"`
	IsActive    bool      `json:"isActive"`
}

// Validate enforces the Event invariants: valid enumerations, coordinates in
// range, Timestamp not after LastUpdated, and a payload (when present) whose
// category matches the type.
func (e Event) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("invalid type %q", e.Type)
	}
	if !e.Source.Valid() {
		return fmt.Errorf("invalid source %q", e.Source)
	}
	if !e.Severity.Valid() {
		return fmt.Errorf("invalid severity %d", int(e.Severity))
	}
	if err := e.Location.Validate(); err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.LastUpdated.Before(e.Timestamp) {
		return fmt.Errorf("lastUpdated %s precedes timestamp %s",
			e.LastUpdated.Format(time.RFC3339), e.Timestamp.Format(time.RFC3339))
	}
	if e.Payload != nil && e.Payload.Category() != e.Type.Category() {
		return fmt.Errorf("payload category %q does not match type %q", e.Payload.Category(), e.Type)
	}
	return nil
}

// ActiveAt reports whether the event was touched within window of now.
func (e Event) ActiveAt(now time.Time, window time.Duration) bool {
	return !e.LastUpdated.Before(now.Add(-window))
}

// MarshalJSON writes the payload through its category envelope.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	payload, err := MarshalPayload(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		plain
		Payload json.RawMessage `json:"payload"`
	}{plain: plain(e), Payload: payload})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	var aux struct {
		plain
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	payload, err := UnmarshalPayload(aux.Payload)
	if err != nil {
		return err
	}
	*e = Event(aux.plain)
	e.Payload = payload
	return nil
}
