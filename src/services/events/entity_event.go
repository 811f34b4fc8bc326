package events

import (
	"time"

	"webinyframework/src/entity"
)

const (
	SourceService = "webiny-api"
	SchemaVersion = "v1"
)

// EntityEventMessage is the payload published for every entity write or removal.
// Data holds the top level attributes and is empty for deletions.
type EntityEventMessage struct {
	EventID    string           `json:"eventId"`
	Type       entity.EventType `json:"type"`
	Class      string           `json:"class"`
	ID         string           `json:"id"`
	OccurredAt time.Time        `json:"occurredAt"`
	Data       map[string]any   `json:"data,omitempty"`
}

// MessageKey keeps the events of an entity on one partition.
func (m EntityEventMessage) MessageKey() string {
	return m.Class + ":" + m.ID
}

func (m EntityEventMessage) Headers() map[string]string {
	return map[string]string{
		"event_type":     string(m.Type),
		"entity_class":   m.Class,
		"event_id":       m.EventID,
		"source_service": SourceService,
		"schema_version": SchemaVersion,
	}
}
