// Package cloudevent defines the JSON envelope every service puts on the bus.
// The shape follows CloudEvents 1.0 structured mode, plus a correlationid
// extension used only to stitch traces together across services.
package cloudevent

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const specVersion = "1.0"

// Event is a CloudEvents-shaped envelope with a raw JSON payload.
type Event struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	Subject         string          `json:"subject,omitempty"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	CorrelationID   string          `json:"correlationid,omitempty"`
	Data            json.RawMessage `json:"data"`
}

// New wraps data in an envelope with a fresh id and the current time.
func New(source, eventType string, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal event data: %w", err)
	}
	return Event{
		SpecVersion:     specVersion,
		ID:              uuid.NewString(),
		Source:          source,
		Type:            eventType,
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            raw,
	}, nil
}

// WithCorrelationID returns a copy of e carrying the given correlation id.
func (e Event) WithCorrelationID(id string) Event {
	e.CorrelationID = id
	return e
}

// WithSubject returns a copy of e carrying the given subject.
func (e Event) WithSubject(subject string) Event {
	e.Subject = subject
	return e
}

// Parse decodes and validates an envelope.
func Parse(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if e.Type == "" {
		return Event{}, errors.New("envelope has no type")
	}
	if len(e.Data) == 0 {
		return Event{}, errors.New("envelope has no data")
	}
	return e, nil
}

// ParseData decodes the payload into v.
func (e Event) ParseData(v interface{}) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", e.Type, err)
	}
	return nil
}

// Marshal encodes the envelope.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
